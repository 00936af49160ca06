//go:build !integration

package usecase

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"jobsync-client/internal/domain/model"
)

type fakeBootstrapper struct {
	calls int
	err   error
}

func (f *fakeBootstrapper) Bootstrap(context.Context) error {
	f.calls++
	return f.err
}

func TestRecoveryController(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T, d *testDeps, recs ...*model.PendingJobRecord) {
		t.Helper()
		for _, r := range recs {
			if err := d.pending.Save(ctx, r); err != nil {
				t.Fatal(err)
			}
		}
	}

	t.Run("Switches to the recovered job's session exactly once", func(t *testing.T) {
		// --- Arrange ---
		d := newTestDeps(t)
		_ = d.sessions.SetActiveSession(ctx, "main")
		seed(t, d, &model.PendingJobRecord{
			JobID: "j1", Kind: model.JobKindChat, PlaceholderID: "ph1",
			UserText: "hi", SessionID: "s2", CreatedAt: d.clock.Now(),
		})
		tr := d.newTracker(t)
		views := &fakeBootstrapper{}
		rc := NewRecoveryController(d.pending, d.sessions, tr, views, nil)

		// --- Act ---
		rep := rc.Recover(ctx)

		// --- Assert ---
		if views.calls != 1 {
			t.Errorf("expected one view-state bootstrap, got %d", views.calls)
		}
		if rep.Resumed != 1 || !rep.Switched || rep.ActiveSession != "s2" {
			t.Fatalf("unexpected report: %+v", rep)
		}
		if got := recvStatus(t, d.remote); got != "j1" {
			t.Errorf("expected recovered job to be polled, got %q", got)
		}

		// the user moves back; later re-evaluations must not pull them away again
		_ = d.sessions.SetActiveSession(ctx, "main")
		for i := 0; i < 3; i++ {
			active, switched := rc.Reevaluate(ctx)
			if switched || active != "main" {
				t.Fatalf("re-evaluation %d forced a switch: %q", i, active)
			}
		}
	})

	t.Run("Outcome is logged once with its counts", func(t *testing.T) {
		// --- Arrange ---
		d := newTestDeps(t)
		var buf bytes.Buffer
		logger := zerolog.New(&buf)
		rc := NewRecoveryController(d.pending, d.sessions, d.newTracker(t), &fakeBootstrapper{}, &logger)

		// --- Act ---
		rc.Recover(ctx)

		// --- Assert ---
		out := buf.String()
		if n := strings.Count(out, "recovery finished"); n != 1 {
			t.Fatalf("expected one summary line, got %d:\n%s", n, out)
		}
		if !strings.Contains(out, `"resumed":0`) || !strings.Contains(out, `"skipped":0`) {
			t.Fatalf("summary line lacks counts: %s", out)
		}
	})

	t.Run("Newest chat job decides the session", func(t *testing.T) {
		d := newTestDeps(t)
		now := d.clock.Now()
		seed(t, d,
			&model.PendingJobRecord{JobID: "a", Kind: model.JobKindChat, PlaceholderID: "p", SessionID: "old", CreatedAt: now.Add(-time.Minute)},
			&model.PendingJobRecord{JobID: "b", Kind: model.JobKindChat, PlaceholderID: "p", SessionID: "new", CreatedAt: now},
			&model.PendingJobRecord{JobID: "u", Kind: model.JobKindUploadExam, PlaceholderID: "p", CreatedAt: now.Add(time.Minute)},
		)
		rc := NewRecoveryController(d.pending, d.sessions, d.newTracker(t), nil, nil)

		rep := rc.Recover(ctx)
		if rep.Resumed != 3 || rep.ActiveSession != "new" {
			t.Fatalf("unexpected report: %+v", rep)
		}
	})

	t.Run("Malformed entries are treated as absent", func(t *testing.T) {
		d := newTestDeps(t)
		_ = d.sessions.SetActiveSession(ctx, "main")
		_ = d.kv.Set(ctx, "test:user-1:pending:chat:broken", []byte("{not json"))
		_ = d.kv.Set(ctx, "test:user-1:upload:active", []byte(`{"type":"upload_exam","job_id":"gone"}`))
		views := &fakeBootstrapper{err: errors.New("offline")}
		rc := NewRecoveryController(d.pending, d.sessions, d.newTracker(t), views, nil)

		rep := rc.Recover(ctx)

		if rep.Resumed != 0 || rep.Switched || rep.ActiveSession != "main" {
			t.Fatalf("unexpected report: %+v", rep)
		}
		if _, err := d.pending.GetUploadMarker(ctx); err == nil {
			t.Error("marker without a live record should be cleared")
		}
	})

	t.Run("Already matching session is not rewritten", func(t *testing.T) {
		d := newTestDeps(t)
		_ = d.sessions.SetActiveSession(ctx, "s2")
		seed(t, d, &model.PendingJobRecord{JobID: "j", Kind: model.JobKindChat, PlaceholderID: "p", SessionID: "s2", CreatedAt: d.clock.Now()})
		rc := NewRecoveryController(d.pending, d.sessions, d.newTracker(t), nil, nil)

		rep := rc.Recover(ctx)
		if rep.Switched || rep.ActiveSession != "s2" {
			t.Fatalf("unexpected report: %+v", rep)
		}
	})
}
