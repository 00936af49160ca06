package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"jobsync-client/internal/domain"
	"jobsync-client/internal/domain/model"
	"jobsync-client/internal/domain/ports/repository"
	"jobsync-client/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Ensure the adapters implement the port interfaces.
var (
	_ repository.PendingJobRepository = (*PendingJobRepo)(nil)
	_ repository.ViewStateRepository  = (*ViewStateRepo)(nil)
	_ repository.SessionRepository    = (*SessionRepo)(nil)
)

// PendingJobRepo stores one whole record per live job.
type PendingJobRepo struct {
	kv   repository.KVStore
	keys Keyspace
	log  *zerolog.Logger
}

func NewPendingJobRepo(kv repository.KVStore, keys Keyspace, logger *zerolog.Logger) *PendingJobRepo {
	return &PendingJobRepo{kv: kv, keys: keys, log: orNop(logger)}
}

func (r *PendingJobRepo) Save(ctx context.Context, rec *model.PendingJobRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return r.kv.Set(ctx, r.keys.Pending(rec.Kind, rec.JobID), data)
}

func (r *PendingJobRepo) Delete(ctx context.Context, kind model.JobKind, jobID string) error {
	return r.kv.Del(ctx, r.keys.Pending(kind, jobID))
}

// List returns every decodable record. Broken entries are skipped and logged,
// never returned as an error.
func (r *PendingJobRepo) List(ctx context.Context) ([]*model.PendingJobRecord, error) {
	keys, err := r.kv.Keys(ctx, r.keys.PendingPrefix())
	if err != nil {
		return nil, err
	}
	out := make([]*model.PendingJobRecord, 0, len(keys))
	for _, key := range keys {
		data, err := r.kv.Get(ctx, key)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, err
		}
		var rec model.PendingJobRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			r.discard(key, err)
			continue
		}
		if err := rec.Validate(); err != nil {
			r.discard(key, err)
			continue
		}
		if r.keys.Pending(rec.Kind, rec.JobID) != key {
			r.discard(key, fmt.Errorf("record does not match its key"))
			continue
		}
		out = append(out, &rec)
	}
	return out, nil
}

func (r *PendingJobRepo) discard(key string, err error) {
	metrics.IncStoreDiscarded("pending_job")
	r.log.Warn().Err(err).Str("key", key).Msg("ignoring malformed pending job record")
}

func (r *PendingJobRepo) SaveUploadMarker(ctx context.Context, m *model.UploadMarker) error {
	if m == nil || m.JobID == "" || !m.Kind.IsUpload() {
		return domain.ErrInvalidArgument
	}
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return r.kv.Set(ctx, r.keys.UploadMarker(), data)
}

// GetUploadMarker returns domain.ErrNotFound when no usable marker exists.
func (r *PendingJobRepo) GetUploadMarker(ctx context.Context) (*model.UploadMarker, error) {
	data, err := r.kv.Get(ctx, r.keys.UploadMarker())
	if err != nil {
		return nil, err
	}
	var m model.UploadMarker
	if err := json.Unmarshal(data, &m); err != nil || m.JobID == "" || !m.Kind.IsUpload() {
		metrics.IncStoreDiscarded("upload_marker")
		r.log.Warn().Err(err).Msg("ignoring malformed upload marker")
		return nil, domain.ErrNotFound
	}
	return &m, nil
}

func (r *PendingJobRepo) ClearUploadMarker(ctx context.Context) error {
	return r.kv.Del(ctx, r.keys.UploadMarker())
}

// ViewStateRepo stores the view-state snapshot as one record.
type ViewStateRepo struct {
	kv   repository.KVStore
	keys Keyspace
	log  *zerolog.Logger
}

func NewViewStateRepo(kv repository.KVStore, keys Keyspace, logger *zerolog.Logger) *ViewStateRepo {
	return &ViewStateRepo{kv: kv, keys: keys, log: orNop(logger)}
}

func (r *ViewStateRepo) Load(ctx context.Context) (model.ViewState, error) {
	data, err := r.kv.Get(ctx, r.keys.ViewState())
	if err != nil {
		return model.ViewState{}, err
	}
	var v model.ViewState
	if err := json.Unmarshal(data, &v); err != nil {
		metrics.IncStoreDiscarded("view_state")
		r.log.Warn().Err(err).Msg("ignoring malformed view-state snapshot")
		return model.ViewState{}, domain.ErrNotFound
	}
	v.Normalize()
	return v, nil
}

func (r *ViewStateRepo) Save(ctx context.Context, v model.ViewState) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return r.kv.Set(ctx, r.keys.ViewState(), data)
}

// SessionRepo stores device-local session focus and locally created sessions.
type SessionRepo struct {
	kv   repository.KVStore
	keys Keyspace
	log  *zerolog.Logger
}

func NewSessionRepo(kv repository.KVStore, keys Keyspace, logger *zerolog.Logger) *SessionRepo {
	return &SessionRepo{kv: kv, keys: keys, log: orNop(logger)}
}

// ActiveSession returns "" when none is stored.
func (r *SessionRepo) ActiveSession(ctx context.Context) (string, error) {
	data, err := r.kv.Get(ctx, r.keys.ActiveSession())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return string(data), nil
}

func (r *SessionRepo) SetActiveSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return r.kv.Del(ctx, r.keys.ActiveSession())
	}
	return r.kv.Set(ctx, r.keys.ActiveSession(), []byte(sessionID))
}

func (r *SessionRepo) LocalSessions(ctx context.Context) ([]string, error) {
	data, err := r.kv.Get(ctx, r.keys.LocalSessions())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return []string{}, nil
		}
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		metrics.IncStoreDiscarded("local_sessions")
		r.log.Warn().Err(err).Msg("ignoring malformed local session list")
		return []string{}, nil
	}
	return ids, nil
}

func (r *SessionRepo) AddLocalSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return domain.ErrInvalidArgument
	}
	ids, err := r.LocalSessions(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id == sessionID {
			return nil
		}
	}
	return r.writeLocal(ctx, append(ids, sessionID))
}

func (r *SessionRepo) RemoveLocalSession(ctx context.Context, sessionID string) error {
	ids, err := r.LocalSessions(ctx)
	if err != nil {
		return err
	}
	kept := ids[:0]
	for _, id := range ids {
		if id != sessionID {
			kept = append(kept, id)
		}
	}
	if len(kept) == len(ids) {
		return nil
	}
	return r.writeLocal(ctx, kept)
}

func (r *SessionRepo) writeLocal(ctx context.Context, ids []string) error {
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return r.kv.Set(ctx, r.keys.LocalSessions(), data)
}

func orNop(l *zerolog.Logger) *zerolog.Logger {
	if l != nil {
		return l
	}
	nop := zerolog.Nop()
	return &nop
}
