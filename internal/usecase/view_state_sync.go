package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"jobsync-client/internal/config"
	"jobsync-client/internal/domain"
	"jobsync-client/internal/domain/model"
	"jobsync-client/internal/domain/ports/adapter"
	"jobsync-client/internal/domain/ports/repository"
	"jobsync-client/internal/infra/logging"
	"jobsync-client/internal/infra/metrics"
)

// ViewStateSyncer keeps the local view-state and the server copy in step,
// whole-object last writer wins.
type ViewStateSyncer struct {
	remote adapter.ViewStateService
	repo   repository.ViewStateRepository
	cfg    config.ViewStateConfig
	clock  clockwork.Clock
	log    *zerolog.Logger

	kick   chan struct{}
	pushMu sync.Mutex // one push at a time

	mu         sync.Mutex
	state      model.ViewState
	lastSynced string
	applying   bool
	reconciled bool
	retry      clockwork.Timer
	retryDelay time.Duration
}

func NewViewStateSyncer(remote adapter.ViewStateService, repo repository.ViewStateRepository, cfg config.ViewStateConfig, clock clockwork.Clock, logger *zerolog.Logger) *ViewStateSyncer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = logging.Nop()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 250 * time.Millisecond
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 2 * time.Second
	}
	if cfg.RetryMax < cfg.RetryBase {
		cfg.RetryMax = cfg.RetryBase
	}
	return &ViewStateSyncer{
		remote: remote,
		repo:   repo,
		cfg:    cfg,
		clock:  clock,
		log:    logging.Component(logger, "view_state"),
		kick:   make(chan struct{}, 1),
		state:  model.NewViewState(),
	}
}

// Bootstrap reconciles the stored copy with the server once per process. A
// strictly newer remote copy replaces the local one; otherwise the local copy
// is pushed. When the server cannot be read, nothing is pushed: the fetch is
// retried on the retry timer and the compare runs once it succeeds.
func (s *ViewStateSyncer) Bootstrap(ctx context.Context) error {
	local, err := s.repo.Load(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.log.Warn().Err(err).Msg("failed to read local view-state; starting empty")
		}
		local = model.NewViewState()
	}
	local.Normalize()
	s.mu.Lock()
	s.state = local.Clone()
	s.reconciled = false
	s.mu.Unlock()

	s.pushMu.Lock()
	err = s.reconcile(ctx)
	s.pushMu.Unlock()
	if err != nil {
		s.armRetry()
		return fmt.Errorf("bootstrap view-state: %w", err)
	}
	return nil
}

// reconcile fetches the server copy and compares it with the local one.
// Callers hold pushMu.
func (s *ViewStateSyncer) reconcile(ctx context.Context) error {
	remote, err := s.remote.GetViewState(ctx)
	if err != nil {
		metrics.IncViewStateBootstrap("remote_error")
		s.log.Warn().Err(err).Msg("failed to fetch remote view-state; local copy is not pushed until it can be read")
		return fmt.Errorf("fetch remote view-state: %w", err)
	}
	remote.Normalize()

	s.mu.Lock()
	s.reconciled = true
	s.retryDelay = 0
	s.stopRetryLocked()
	local := s.state.Clone()
	if remote.UpdatedAt.After(local.UpdatedAt) {
		s.applyLocked(remote)
		s.mu.Unlock()
		s.finishApply(ctx, remote)
		metrics.IncViewStateBootstrap("adopted_remote")
		s.log.Info().Time("remote_updated_at", remote.UpdatedAt).Msg("adopted newer remote view-state")
		return nil
	}
	if remote.Signature() == local.Signature() {
		s.lastSynced = local.Signature()
		s.mu.Unlock()
		metrics.IncViewStateBootstrap("in_sync")
		return nil
	}
	s.mu.Unlock()

	metrics.IncViewStateBootstrap("pushed_local")
	return s.push(ctx)
}

// adopt replaces local state with a server copy. The applying guard keeps the
// adoption itself from being detected as a local change.
func (s *ViewStateSyncer) adopt(ctx context.Context, v model.ViewState) {
	s.mu.Lock()
	s.applyLocked(v)
	s.mu.Unlock()
	s.finishApply(ctx, v)
}

func (s *ViewStateSyncer) applyLocked(v model.ViewState) {
	s.applying = true
	s.state = v.Clone()
	s.lastSynced = v.Signature()
}

func (s *ViewStateSyncer) finishApply(ctx context.Context, v model.ViewState) {
	s.persist(ctx, v)

	s.mu.Lock()
	s.applying = false
	s.mu.Unlock()
}

// State returns a copy of the current view-state.
func (s *ViewStateSyncer) State() model.ViewState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// SetTitle sets or clears a session title.
func (s *ViewStateSyncer) SetTitle(ctx context.Context, sessionID, title string) error {
	if sessionID == "" {
		return domain.ErrInvalidArgument
	}
	title = strings.TrimSpace(title)
	return s.mutate(ctx, func(v *model.ViewState) bool {
		cur, ok := v.TitleMap[sessionID]
		if title == "" {
			if !ok {
				return false
			}
			delete(v.TitleMap, sessionID)
			return true
		}
		if ok && cur == title {
			return false
		}
		v.TitleMap[sessionID] = title
		return true
	})
}

// SetHidden archives or restores a session.
func (s *ViewStateSyncer) SetHidden(ctx context.Context, sessionID string, hidden bool) error {
	if sessionID == "" {
		return domain.ErrInvalidArgument
	}
	return s.mutate(ctx, func(v *model.ViewState) bool {
		return v.SetHidden(sessionID, hidden)
	})
}

// mutate applies fn to a copy of the state. Edits that change nothing are
// dropped; anything else gets a fresh timestamp, is stored locally and
// schedules a debounced push.
func (s *ViewStateSyncer) mutate(ctx context.Context, fn func(*model.ViewState) bool) error {
	s.mu.Lock()
	next := s.state.Clone()
	if !fn(&next) {
		s.mu.Unlock()
		return nil
	}
	next.UpdatedAt = s.stampLocked()
	s.state = next
	s.stopRetryLocked()
	s.mu.Unlock()

	s.persist(ctx, next)
	s.notify()
	return nil
}

// stampLocked returns a timestamp strictly after the current one.
func (s *ViewStateSyncer) stampLocked() time.Time {
	now := s.clock.Now().UTC().Truncate(time.Millisecond)
	if !now.After(s.state.UpdatedAt) {
		now = s.state.UpdatedAt.Add(time.Millisecond)
	}
	return now
}

func (s *ViewStateSyncer) persist(ctx context.Context, v model.ViewState) {
	if err := s.repo.Save(ctx, v); err != nil {
		s.log.Warn().Err(err).Msg("failed to persist view-state locally")
	}
}

// notify wakes the push loop unless a server copy is being applied.
func (s *ViewStateSyncer) notify() {
	s.mu.Lock()
	applying := s.applying
	s.mu.Unlock()
	if applying {
		return
	}
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Run pushes changes after they have been quiet for the debounce window. It
// returns when ctx ends.
func (s *ViewStateSyncer) Run(ctx context.Context) error {
	defer func() {
		s.mu.Lock()
		s.stopRetryLocked()
		s.mu.Unlock()
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.kick:
		}
		if !s.debounce(ctx) {
			return nil
		}
		if err := s.Flush(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Warn().Err(err).Msg("view-state push failed")
			s.armRetry()
		}
	}
}

// debounce waits until no kick has arrived for the debounce window.
func (s *ViewStateSyncer) debounce(ctx context.Context) bool {
	timer := s.clock.NewTimer(s.cfg.Debounce)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-s.kick:
			timer.Reset(s.cfg.Debounce)
		case <-timer.Chan():
			return true
		}
	}
}

// Flush pushes the current state now unless the server already has it. Until
// the server copy has been read once, Flush only retries that read and the
// bootstrap compare.
func (s *ViewStateSyncer) Flush(ctx context.Context) error {
	s.pushMu.Lock()
	defer s.pushMu.Unlock()

	s.mu.Lock()
	reconciled := s.reconciled
	s.mu.Unlock()
	if !reconciled {
		return s.reconcile(ctx)
	}
	return s.push(ctx)
}

// push sends the current state. Callers hold pushMu.
func (s *ViewStateSyncer) push(ctx context.Context) error {
	s.mu.Lock()
	v := s.state.Clone()
	sig := v.Signature()
	if sig == s.lastSynced {
		s.mu.Unlock()
		metrics.IncViewStatePush("skipped")
		return nil
	}
	s.mu.Unlock()

	resolved, err := s.remote.PutViewState(ctx, v)
	if err != nil {
		metrics.IncViewStatePush("error")
		return fmt.Errorf("push view-state: %w", err)
	}
	metrics.IncViewStatePush("ok")
	resolved.Normalize()
	if resolved.UpdatedAt.IsZero() {
		resolved.UpdatedAt = v.UpdatedAt
	}

	s.mu.Lock()
	s.retryDelay = 0
	s.stopRetryLocked()
	if s.state.Signature() != sig {
		// edited while the push was in flight; the newer copy goes out next
		s.lastSynced = resolved.Signature()
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	s.adopt(ctx, resolved)
	s.log.Debug().Time("updated_at", resolved.UpdatedAt).Msg("view-state pushed")
	return nil
}

// armRetry schedules another push attempt with exponential backoff. A local
// edit or a successful push cancels it.
func (s *ViewStateSyncer) armRetry() {
	if s.cfg.DisableRetry {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retryDelay <= 0 {
		s.retryDelay = s.cfg.RetryBase
	} else {
		s.retryDelay *= 2
		if s.retryDelay > s.cfg.RetryMax {
			s.retryDelay = s.cfg.RetryMax
		}
	}
	s.stopRetryLocked()
	s.retry = s.clock.AfterFunc(s.retryDelay, s.notify)
}

func (s *ViewStateSyncer) stopRetryLocked() {
	if s.retry != nil {
		s.retry.Stop()
		s.retry = nil
	}
}
