package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"jobsync-client/internal/domain"
	"jobsync-client/internal/domain/model"
	"jobsync-client/internal/domain/ports/repository"
	"jobsync-client/internal/infra/logging"
)

// JobResumer restarts polling for a persisted job.
type JobResumer interface {
	Resume(ctx context.Context, rec *model.PendingJobRecord) error
}

// Bootstrapper reconciles synced state at startup.
type Bootstrapper interface {
	Bootstrap(ctx context.Context) error
}

type RecoveryReport struct {
	Resumed       int    `json:"resumed"`
	Skipped       int    `json:"skipped"`
	ActiveSession string `json:"active_session"`
	Switched      bool   `json:"switched"`
}

// RecoveryController rehydrates persisted jobs and view-state on startup.
// Nothing it reads can make startup fail.
type RecoveryController struct {
	pending  repository.PendingJobRepository
	sessions repository.SessionRepository
	jobs     JobResumer
	views    Bootstrapper
	log      *zerolog.Logger

	mu        sync.Mutex
	recovered []*model.PendingJobRecord
	switched  bool
}

func NewRecoveryController(pending repository.PendingJobRepository, sessions repository.SessionRepository, jobs JobResumer, views Bootstrapper, logger *zerolog.Logger) *RecoveryController {
	if logger == nil {
		logger = logging.Nop()
	}
	return &RecoveryController{
		pending:  pending,
		sessions: sessions,
		jobs:     jobs,
		views:    views,
		log:      logging.Component(logger, "recovery"),
	}
}

// Recover resumes every live persisted job and corrects the active session.
func (r *RecoveryController) Recover(ctx context.Context) RecoveryReport {
	var rep RecoveryReport
	if r.views != nil {
		if err := r.views.Bootstrap(ctx); err != nil {
			r.log.Warn().Err(err).Msg("view-state bootstrap failed; continuing with local copy")
		}
	}

	records, err := r.pending.List(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("failed to list pending jobs; nothing to recover")
		records = nil
	}
	sort.Slice(records, func(a, b int) bool {
		return records[a].CreatedAt.Before(records[b].CreatedAt)
	})

	live := make([]*model.PendingJobRecord, 0, len(records))
	for _, rec := range records {
		err := r.jobs.Resume(ctx, rec)
		switch {
		case err == nil, errors.Is(err, domain.ErrJobAlreadyActive):
			rep.Resumed++
			live = append(live, rec)
		default:
			rep.Skipped++
			r.log.Warn().Err(err).Str("job_id", rec.JobID).Msg("skipping unrecoverable job")
		}
	}
	r.dropStaleMarker(ctx, live)

	r.mu.Lock()
	r.recovered = live
	r.mu.Unlock()

	rep.ActiveSession, rep.Switched = r.Reevaluate(ctx)
	r.log.Info().Int("resumed", rep.Resumed).Int("skipped", rep.Skipped).
		Str("active_session", rep.ActiveSession).Bool("switched", rep.Switched).Msg("recovery finished")
	return rep
}

// dropStaleMarker clears an upload marker whose job has no live record.
func (r *RecoveryController) dropStaleMarker(ctx context.Context, live []*model.PendingJobRecord) {
	m, err := r.pending.GetUploadMarker(ctx)
	if err != nil {
		return
	}
	for _, rec := range live {
		if rec.JobID == m.JobID && rec.Kind == m.Kind {
			return
		}
	}
	if err := r.pending.ClearUploadMarker(ctx); err != nil {
		r.log.Warn().Err(err).Msg("failed to clear stale upload marker")
	}
}

// Reevaluate moves the active session to the newest recovered chat job's
// session. The switch happens at most once per controller; later calls only
// report the current active session.
func (r *RecoveryController) Reevaluate(ctx context.Context) (string, bool) {
	active, err := r.sessions.ActiveSession(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("failed to read active session")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.switched {
		return active, false
	}
	target := ""
	for i := len(r.recovered) - 1; i >= 0; i-- {
		if rec := r.recovered[i]; rec.Kind == model.JobKindChat {
			target = rec.SessionID
			break
		}
	}
	if target == "" {
		return active, false
	}
	r.switched = true
	if target == active {
		return active, false
	}
	if err := r.sessions.SetActiveSession(ctx, target); err != nil {
		r.log.Warn().Err(err).Str("session_id", target).Msg("failed to switch active session")
		return active, false
	}
	r.log.Info().Str("from", active).Str("to", target).Msg("switched to session with a recovered job")
	return target, true
}
