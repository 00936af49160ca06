//go:build !integration

package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"jobsync-client/internal/config"
	"jobsync-client/internal/domain"
	"jobsync-client/internal/domain/model"
)

func chatRecord(jobID, session string) *model.PendingJobRecord {
	return &model.PendingJobRecord{
		JobID:         jobID,
		Kind:          model.JobKindChat,
		RequestID:     "req-" + jobID,
		PlaceholderID: "ph-" + jobID,
		UserText:      "hello",
		SessionID:     session,
		CreatedAt:     time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestFileKVPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	kv, err := OpenFileKV(path, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := kv.Set(ctx, "a", []byte("1")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := kv.Set(ctx, "b", []byte("2")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := kv.Del(ctx, "a"); err != nil {
		t.Fatalf("del: %v", err)
	}

	reopened, err := OpenFileKV(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if _, err := reopened.Get(ctx, "a"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected a to be deleted, got %v", err)
	}
	got, err := reopened.Get(ctx, "b")
	if err != nil || string(got) != "2" {
		t.Fatalf("expected b=2, got %q, %v", got, err)
	}
}

func TestFileKVCorruptFileStartsEmpty(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}
	kv, err := OpenFileKV(path, nil)
	if err != nil {
		t.Fatalf("corrupt file must not be fatal, got %v", err)
	}
	keys, _ := kv.Keys(ctx, "")
	if len(keys) != 0 {
		t.Fatalf("expected empty store, got %v", keys)
	}
	if err := kv.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("write after corrupt load: %v", err)
	}
}

func TestPendingJobRepo(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	keys := NewKeyspace("jobsync", "user-1")
	repo := NewPendingJobRepo(kv, keys, nil)

	t.Run("save list delete", func(t *testing.T) {
		if err := repo.Save(ctx, chatRecord("j1", "main")); err != nil {
			t.Fatalf("save: %v", err)
		}
		up := &model.PendingJobRecord{JobID: "u1", Kind: model.JobKindUploadExam, PlaceholderID: "ph-u1", CreatedAt: time.Now()}
		if err := repo.Save(ctx, up); err != nil {
			t.Fatalf("save upload: %v", err)
		}
		recs, err := repo.List(ctx)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(recs) != 2 {
			t.Fatalf("expected 2 records, got %d", len(recs))
		}
		if err := repo.Delete(ctx, model.JobKindChat, "j1"); err != nil {
			t.Fatalf("delete: %v", err)
		}
		recs, _ = repo.List(ctx)
		if len(recs) != 1 || recs[0].JobID != "u1" {
			t.Fatalf("expected only u1 left, got %+v", recs)
		}
		_ = repo.Delete(ctx, model.JobKindUploadExam, "u1")
	})

	t.Run("invalid records are rejected on save", func(t *testing.T) {
		err := repo.Save(ctx, &model.PendingJobRecord{JobID: "x", Kind: model.JobKindChat})
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("malformed entries are treated as absent", func(t *testing.T) {
		_ = repo.Save(ctx, chatRecord("good", "main"))
		_ = kv.Set(ctx, keys.Pending(model.JobKindChat, "garbage"), []byte("{{{"))
		_ = kv.Set(ctx, keys.Pending(model.JobKindChat, "nosession"), []byte(`{"job_id":"nosession","kind":"chat","placeholder_id":"p"}`))
		_ = kv.Set(ctx, keys.Pending(model.JobKindChat, "mismatch"), []byte(`{"job_id":"other","kind":"chat","session_id":"s","placeholder_id":"p"}`))

		recs, err := repo.List(ctx)
		if err != nil {
			t.Fatalf("list must fail open, got %v", err)
		}
		if len(recs) != 1 || recs[0].JobID != "good" {
			t.Fatalf("expected only the good record, got %+v", recs)
		}
	})

	t.Run("records are scoped per user", func(t *testing.T) {
		other := NewPendingJobRepo(kv, NewKeyspace("jobsync", "user-2"), nil)
		recs, _ := other.List(ctx)
		if len(recs) != 0 {
			t.Fatalf("user-2 must not see user-1 records, got %d", len(recs))
		}
	})
}

func TestUploadMarker(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	keys := NewKeyspace("", "")
	repo := NewPendingJobRepo(kv, keys, nil)

	if _, err := repo.GetUploadMarker(ctx); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := repo.SaveUploadMarker(ctx, &model.UploadMarker{Kind: model.JobKindChat, JobID: "x"}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("chat jobs cannot be upload markers, got %v", err)
	}
	if err := repo.SaveUploadMarker(ctx, &model.UploadMarker{Kind: model.JobKindUploadAssignment, JobID: "u9"}); err != nil {
		t.Fatalf("save marker: %v", err)
	}
	m, err := repo.GetUploadMarker(ctx)
	if err != nil || m.JobID != "u9" || m.Kind != model.JobKindUploadAssignment {
		t.Fatalf("unexpected marker %+v, %v", m, err)
	}

	_ = kv.Set(ctx, keys.UploadMarker(), []byte(`{"type":"bogus","job_id":"u9"}`))
	if _, err := repo.GetUploadMarker(ctx); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("malformed marker should read as absent, got %v", err)
	}

	if err := repo.ClearUploadMarker(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
}

func TestViewStateRepo(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	keys := NewKeyspace("ns", "u")
	repo := NewViewStateRepo(kv, keys, nil)

	if _, err := repo.Load(ctx); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on empty store, got %v", err)
	}

	v := model.NewViewState()
	v.TitleMap["s1"] = "Essay"
	v.HiddenIDs = []string{"s2"}
	v.UpdatedAt = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	if err := repo.Save(ctx, v); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Signature() != v.Signature() {
		t.Fatalf("round trip changed the state: %+v vs %+v", got, v)
	}

	_ = kv.Set(ctx, keys.ViewState(), []byte("nope"))
	if _, err := repo.Load(ctx); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("malformed snapshot should read as absent, got %v", err)
	}
}

func TestSessionRepo(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	repo := NewSessionRepo(kv, NewKeyspace("ns", "u"), nil)

	active, err := repo.ActiveSession(ctx)
	if err != nil || active != "" {
		t.Fatalf("expected no active session, got %q, %v", active, err)
	}
	_ = repo.SetActiveSession(ctx, "main")
	if active, _ = repo.ActiveSession(ctx); active != "main" {
		t.Fatalf("expected main, got %q", active)
	}

	_ = repo.AddLocalSession(ctx, "s1")
	_ = repo.AddLocalSession(ctx, "s2")
	_ = repo.AddLocalSession(ctx, "s1")
	ids, _ := repo.LocalSessions(ctx)
	if len(ids) != 2 {
		t.Fatalf("expected 2 unique local sessions, got %v", ids)
	}
	_ = repo.RemoveLocalSession(ctx, "s1")
	ids, _ = repo.LocalSessions(ctx)
	if len(ids) != 1 || ids[0] != "s2" {
		t.Fatalf("expected [s2], got %v", ids)
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	ctx := context.Background()
	kv, err := Open(ctx, config.StoreConfig{Backend: "memory"}, nil)
	if err != nil {
		t.Fatalf("memory backend: %v", err)
	}
	if _, ok := kv.(*MemoryKV); !ok {
		t.Fatalf("expected *MemoryKV, got %T", kv)
	}

	kv, err = Open(ctx, config.StoreConfig{Backend: "file", Path: filepath.Join(t.TempDir(), "s.json")}, nil)
	if err != nil {
		t.Fatalf("file backend: %v", err)
	}
	if _, ok := kv.(*FileKV); !ok {
		t.Fatalf("expected *FileKV, got %T", kv)
	}

	if _, err := Open(ctx, config.StoreConfig{Backend: "indexeddb"}, nil); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestSealedKV(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryKV()
	kv, err := Open(ctx, config.StoreConfig{Backend: "memory", EncryptionKey: "0123456789abcdef"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	sealed, ok := kv.(*SealedKV)
	if !ok {
		t.Fatalf("expected *SealedKV, got %T", kv)
	}
	sealed.inner = inner

	keys := NewKeyspace("test", "user-1")
	repo := NewPendingJobRepo(sealed, keys, nil)
	rec := chatRecord("j1", "s1")
	if err := repo.Save(ctx, rec); err != nil {
		t.Fatal(err)
	}

	raw, err := inner.Get(ctx, keys.Pending(model.JobKindChat, "j1"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), "hello") {
		t.Fatal("value stored in clear")
	}

	list, err := repo.List(ctx)
	if err != nil || len(list) != 1 || list[0].UserText != "hello" {
		t.Fatalf("got %v, %v", list, err)
	}

	// a value written without the key reads as missing
	_ = inner.Set(ctx, keys.ViewState(), []byte(`{"title_map":{}}`))
	if _, err := sealed.Get(ctx, keys.ViewState()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
