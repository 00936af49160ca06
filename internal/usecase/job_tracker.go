package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"jobsync-client/internal/config"
	"jobsync-client/internal/domain"
	"jobsync-client/internal/domain/model"
	"jobsync-client/internal/domain/ports/adapter"
	"jobsync-client/internal/domain/ports/repository"
	"jobsync-client/internal/infra/i18n"
	"jobsync-client/internal/infra/logging"
	"jobsync-client/internal/infra/metrics"
	"jobsync-client/internal/infra/poller"
	"jobsync-client/internal/infra/visibility"
)

// JobRemote is the part of the remote service the tracker needs.
type JobRemote interface {
	adapter.JobService
	adapter.HistoryService
}

type TrackerOptions struct {
	Poller     config.PollerConfig
	Clock      clockwork.Clock
	Visibility visibility.Source
	// Rand is handed to every poll loop; nil uses the poller default.
	Rand func() float64
}

// JobView is a snapshot of one tracked job.
type JobView struct {
	Record   model.PendingJobRecord `json:"record"`
	Status   model.JobStatus        `json:"status"`
	Progress int                    `json:"progress"`
	Notice   string                 `json:"notice"`
	Result   string                 `json:"result,omitempty"`
	DraftRef string                 `json:"draft_ref,omitempty"`
	Error    string                 `json:"error,omitempty"`
	Hint     string                 `json:"hint,omitempty"`
	Polling  bool                   `json:"polling"`
}

type trackedJob struct {
	rec      model.PendingJobRecord
	status   model.JobStatus
	progress int
	notice   string
	result   string
	draftRef string
	errText  string
	hint     string
	settled  bool

	gen    uint64
	handle *poller.Handle
}

func (j *trackedJob) polling() bool {
	if j.handle == nil {
		return false
	}
	select {
	case <-j.handle.Done():
		return false
	default:
		return true
	}
}

func (j *trackedJob) view() JobView {
	return JobView{
		Record:   j.rec,
		Status:   j.status,
		Progress: j.progress,
		Notice:   j.notice,
		Result:   j.result,
		DraftRef: j.draftRef,
		Error:    j.errText,
		Hint:     j.hint,
		Polling:  j.polling(),
	}
}

// settlement is the work left to do once a job reaches its final state. It is
// carried out without holding the tracker lock.
type settlement struct {
	rec      model.PendingJobRecord
	status   model.JobStatus
	messages []model.ChatMessage
}

// JobTracker owns every live job: it submits them, runs one poll loop per job
// and keeps the pending records in the local store in step with the server.
type JobTracker struct {
	remote   JobRemote
	pending  repository.PendingJobRepository
	sessions repository.SessionRepository
	history  *HistoryCache
	tr       *i18n.Translator
	opts     TrackerOptions
	log      *zerolog.Logger

	root context.Context
	stop context.CancelFunc

	mu   sync.Mutex
	jobs map[string]*trackedJob
	// chat submits still waiting for a job id, by placeholder id
	submitting map[string]model.PendingJobRecord
	gen        uint64
}

func NewJobTracker(
	remote JobRemote,
	pending repository.PendingJobRepository,
	sessions repository.SessionRepository,
	history *HistoryCache,
	tr *i18n.Translator,
	opts TrackerOptions,
	logger *zerolog.Logger,
) *JobTracker {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Visibility == nil {
		opts.Visibility = visibility.AlwaysVisible{}
	}
	if history == nil {
		history = NewHistoryCache()
	}
	if tr == nil {
		tr = i18n.MustDefault("en")
	}
	if logger == nil {
		logger = logging.Nop()
	}
	root, stop := context.WithCancel(context.Background())
	return &JobTracker{
		remote:     remote,
		pending:    pending,
		sessions:   sessions,
		history:    history,
		tr:         tr,
		opts:       opts,
		log:        logging.Component(logger, "job_tracker"),
		root:       root,
		stop:       stop,
		jobs:       map[string]*trackedJob{},
		submitting: map[string]model.PendingJobRecord{},
	}
}

// SubmitChat sends a message to the server and starts tracking the reply job.
func (t *JobTracker) SubmitChat(ctx context.Context, sessionID, text, laneID string) (*model.PendingJobRecord, error) {
	text = strings.TrimSpace(text)
	if sessionID == "" || text == "" {
		return nil, domain.ErrInvalidArgument
	}
	rec := model.PendingJobRecord{
		Kind:          model.JobKindChat,
		RequestID:     uuid.NewString(),
		PlaceholderID: ulid.Make().String(),
		UserText:      text,
		SessionID:     sessionID,
		LaneID:        laneID,
		CreatedAt:     t.opts.Clock.Now().UTC(),
	}
	// the placeholder shows while the request is in flight; once tracked, the
	// job's own entry takes over under the same placeholder id
	t.mu.Lock()
	t.submitting[rec.PlaceholderID] = rec
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.submitting, rec.PlaceholderID)
		t.mu.Unlock()
	}()

	res, err := t.remote.SubmitChat(ctx, adapter.ChatSubmitRequest{
		SessionID: sessionID,
		Message:   text,
		RequestID: rec.RequestID,
		LaneID:    laneID,
	})
	if err != nil {
		metrics.IncJobSubmitted(string(rec.Kind), "error")
		return nil, fmt.Errorf("submit chat: %w", err)
	}
	if res.JobID == "" {
		metrics.IncJobSubmitted(string(rec.Kind), "error")
		return nil, fmt.Errorf("submit chat: server returned no job id")
	}
	rec.JobID = res.JobID
	metrics.IncJobSubmitted(string(rec.Kind), "accepted")

	if err := t.pending.Save(ctx, &rec); err != nil {
		t.log.Warn().Err(err).Str("job_id", rec.JobID).Msg("pending record not persisted; job will not survive a restart")
	}
	// the server knows the session from now on
	if err := t.sessions.RemoveLocalSession(ctx, sessionID); err != nil {
		t.log.Warn().Err(err).Str("session_id", sessionID).Msg("failed to drop local session marker")
	}

	status := res.Status
	if status == "" {
		status = model.JobStatusQueued
	}
	if err := t.track(rec, model.Job{
		ID:            rec.JobID,
		Kind:          rec.Kind,
		Status:        status,
		SessionID:     sessionID,
		QueuePosition: res.QueuePosition,
		QueueSize:     res.QueueSize,
	}); err != nil {
		return nil, err
	}
	t.log.Info().Str("job_id", rec.JobID).Str("session_id", sessionID).
		Str("text", logging.Redact(text, false)).Msg("chat job submitted")
	out := rec
	return &out, nil
}

// SubmitUpload sends a document for parsing. The new job becomes the active
// upload; a previous unconfirmed draft is abandoned.
func (t *JobTracker) SubmitUpload(ctx context.Context, kind model.JobKind, req adapter.UploadSubmitRequest) (*model.PendingJobRecord, error) {
	if !kind.IsUpload() || len(req.Content) == 0 {
		return nil, domain.ErrInvalidArgument
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	res, err := t.remote.SubmitUpload(ctx, kind, req)
	if err != nil {
		metrics.IncJobSubmitted(string(kind), "error")
		return nil, fmt.Errorf("submit upload: %w", err)
	}
	if res.JobID == "" {
		metrics.IncJobSubmitted(string(kind), "error")
		return nil, fmt.Errorf("submit upload: server returned no job id")
	}
	metrics.IncJobSubmitted(string(kind), "accepted")

	rec := model.PendingJobRecord{
		JobID:         res.JobID,
		Kind:          kind,
		RequestID:     req.RequestID,
		PlaceholderID: ulid.Make().String(),
		UserText:      req.FileName,
		CreatedAt:     t.opts.Clock.Now().UTC(),
	}

	if old, err := t.pending.GetUploadMarker(ctx); err == nil && old.JobID != rec.JobID {
		if err := t.Abandon(ctx, old.JobID); err != nil && !errors.Is(err, domain.ErrUnknownJob) {
			t.log.Warn().Err(err).Str("job_id", old.JobID).Msg("failed to abandon previous upload")
		}
	}
	if err := t.pending.Save(ctx, &rec); err != nil {
		t.log.Warn().Err(err).Str("job_id", rec.JobID).Msg("pending record not persisted; job will not survive a restart")
	}
	if err := t.pending.SaveUploadMarker(ctx, &model.UploadMarker{Kind: kind, JobID: rec.JobID}); err != nil {
		t.log.Warn().Err(err).Str("job_id", rec.JobID).Msg("failed to persist upload marker")
	}

	status := res.Status
	if status == "" {
		status = model.JobStatusCreated
	}
	if err := t.track(rec, model.Job{ID: rec.JobID, Kind: kind, Status: status}); err != nil {
		return nil, err
	}
	t.log.Info().Str("job_id", rec.JobID).Str("kind", string(kind)).Msg("upload job submitted")
	out := rec
	return &out, nil
}

// Resume starts polling a job recovered from the local store. Its status is
// unknown until the first poll returns.
func (t *JobTracker) Resume(ctx context.Context, rec *model.PendingJobRecord) error {
	if rec == nil {
		return domain.ErrInvalidArgument
	}
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedRecord, err)
	}
	return t.track(*rec, model.Job{})
}

func (t *JobTracker) track(rec model.PendingJobRecord, initial model.Job) error {
	t.mu.Lock()
	if j, ok := t.jobs[rec.JobID]; ok && (j.polling() || !j.settled) {
		t.mu.Unlock()
		return domain.ErrJobAlreadyActive
	}
	j := &trackedJob{rec: rec, progress: -1, notice: t.tr.T(i18n.KeyGenerating)}
	t.jobs[rec.JobID] = j
	var s *settlement
	if initial.Status != "" {
		s = t.applyLocked(j, initial)
	}
	if !j.status.StopsPolling() {
		t.startLocked(j)
	}
	t.mu.Unlock()

	if s != nil {
		t.settle(t.root, s)
	}
	return nil
}

func (t *JobTracker) startLocked(j *trackedJob) {
	t.gen++
	j.gen = t.gen
	profile := t.opts.Poller.Chat
	if j.rec.Kind.IsUpload() {
		profile = t.opts.Poller.Upload
	}
	j.handle = poller.Start(t.root, t.pollFn(j.rec.JobID, j.gen), t.onError(j.rec.JobID, j.gen), poller.Options{
		Name:           string(j.rec.Kind),
		BaseDelay:      profile.BaseDelay,
		MaxDelay:       profile.MaxDelay,
		Multiplier:     profile.Multiplier,
		Jitter:         t.opts.Poller.Jitter,
		HiddenMinDelay: t.opts.Poller.HiddenMinDelay,
		Clock:          t.opts.Clock,
		Visibility:     t.opts.Visibility,
		Rand:           t.opts.Rand,
		Logger:         t.log,
	})
}

// currentLocked returns the job only if gen is still its live loop generation.
func (t *JobTracker) currentLocked(jobID string, gen uint64) *trackedJob {
	j, ok := t.jobs[jobID]
	if !ok || j.gen != gen || j.settled {
		return nil
	}
	return j
}

func (t *JobTracker) pollFn(jobID string, gen uint64) poller.PollFunc {
	return func(ctx context.Context) (poller.Outcome, error) {
		t.mu.Lock()
		j := t.currentLocked(jobID, gen)
		t.mu.Unlock()
		if j == nil {
			return poller.Outcome{Stop: true}, nil
		}
		kind := j.rec.Kind

		job, err := t.remote.Status(ctx, kind, jobID)
		if err != nil {
			if !errors.Is(err, domain.ErrUnknownJob) {
				return poller.Outcome{}, err
			}
			job = model.Job{ID: jobID, Kind: kind, Status: model.JobStatusFailed, Error: err.Error()}
		}
		if ctx.Err() != nil {
			return poller.Outcome{Stop: true}, nil
		}

		t.mu.Lock()
		j = t.currentLocked(jobID, gen)
		if j == nil {
			// a newer loop owns the job; this answer is stale
			t.mu.Unlock()
			return poller.Outcome{Stop: true}, nil
		}
		s := t.applyLocked(j, job)
		t.mu.Unlock()

		if s != nil {
			t.settle(context.WithoutCancel(ctx), s)
		}
		return poller.Outcome{Stop: job.Status.StopsPolling(), Fingerprint: job.Fingerprint()}, nil
	}
}

func (t *JobTracker) onError(jobID string, gen uint64) poller.ErrorFunc {
	return func(err error) {
		t.mu.Lock()
		defer t.mu.Unlock()
		j := t.currentLocked(jobID, gen)
		if j == nil {
			return
		}
		j.notice = t.tr.T(i18n.KeyRetrying)
		t.log.Warn().Err(err).Str("job_id", jobID).Msg("status poll failed; retrying")
	}
}

// applyLocked folds a status response into the tracked job and returns the
// settlement work when the job just reached its final state.
func (t *JobTracker) applyLocked(j *trackedJob, job model.Job) *settlement {
	if j.status != "" && !model.IsValidTransition(j.rec.Kind, j.status, job.Status) {
		t.log.Debug().Str("job_id", j.rec.JobID).Str("from", string(j.status)).
			Str("to", string(job.Status)).Msg("unexpected status transition")
	}
	j.status = job.Status
	if job.Progress != nil {
		j.progress = *job.Progress
	}
	if job.Result != "" {
		j.result = job.Result
	}
	if job.DraftRef != "" {
		j.draftRef = job.DraftRef
	}
	j.errText = job.Error
	j.hint = job.Hint
	j.notice = t.noticeFor(j, job)

	if j.settled || !job.Status.Settled(j.rec.Kind) {
		return nil
	}
	j.settled = true
	s := &settlement{rec: j.rec, status: job.Status}
	if j.rec.Kind == model.JobKindChat {
		s.messages = t.finalMessages(j)
	}
	return s
}

func (t *JobTracker) noticeFor(j *trackedJob, job model.Job) string {
	switch job.Status {
	case model.JobStatusQueued:
		if job.QueuePosition != nil && job.QueueSize != nil {
			return t.tr.T(i18n.KeyQueued, *job.QueuePosition, *job.QueueSize)
		}
		return t.tr.T(i18n.KeyQueuedUnknown)
	case model.JobStatusCreated:
		return t.tr.T(i18n.KeyQueuedUnknown)
	case model.JobStatusProcessing:
		if j.rec.Kind.IsUpload() && j.progress >= 0 {
			return t.tr.T(i18n.KeyParsingProgress, j.progress)
		}
		return t.tr.T(i18n.KeyGenerating)
	case model.JobStatusDone:
		if j.rec.Kind.IsUpload() {
			return t.tr.T(i18n.KeyParsingProgress, 100)
		}
		return j.result
	case model.JobStatusConfirming:
		return t.tr.T(i18n.KeyParsingProgress, 100)
	case model.JobStatusConfirmed:
		return t.tr.T(i18n.KeyConfirmed)
	case model.JobStatusFailed:
		msg := job.Error
		if msg == "" {
			msg = string(job.Status)
		}
		if job.Hint != "" {
			msg += " (" + job.Hint + ")"
		}
		return t.tr.T(i18n.KeyFailed, msg)
	case model.JobStatusCancelled:
		if job.Hint != "" {
			return t.tr.T(i18n.KeyCancelled) + " (" + job.Hint + ")"
		}
		return t.tr.T(i18n.KeyCancelled)
	}
	return j.notice
}

// finalMessages replaces the placeholder with the finished assistant turn.
func (t *JobTracker) finalMessages(j *trackedJob) []model.ChatMessage {
	out := make([]model.ChatMessage, 0, 2)
	if msgs, ok := t.history.Get(j.rec.SessionID); !ok || !hasUserText(msgs, j.rec.UserText) {
		out = append(out, model.ChatMessage{
			ID:        j.rec.PlaceholderID + UserTurnSuffix,
			SessionID: j.rec.SessionID,
			Role:      model.RoleUser,
			Content:   j.rec.UserText,
			Timestamp: j.rec.CreatedAt,
		})
	}
	content := j.notice
	if j.status == model.JobStatusDone {
		content = j.result
	}
	return append(out, model.ChatMessage{
		ID:        j.rec.PlaceholderID,
		SessionID: j.rec.SessionID,
		Role:      model.RoleAssistant,
		Content:   content,
		Timestamp: t.opts.Clock.Now().UTC(),
	})
}

func (t *JobTracker) settle(ctx context.Context, s *settlement) {
	for _, m := range s.messages {
		t.history.Append(s.rec.SessionID, m)
	}
	if err := t.pending.Delete(ctx, s.rec.Kind, s.rec.JobID); err != nil {
		t.log.Warn().Err(err).Str("job_id", s.rec.JobID).Msg("failed to delete pending record")
	}
	if s.rec.Kind.IsUpload() {
		t.clearMarkerFor(ctx, s.rec.JobID)
	}
	metrics.IncJobSettled(string(s.rec.Kind), string(s.status))
	t.log.Info().Str("job_id", s.rec.JobID).Str("kind", string(s.rec.Kind)).
		Str("status", string(s.status)).Msg("job settled")
}

func (t *JobTracker) clearMarkerFor(ctx context.Context, jobID string) {
	m, err := t.pending.GetUploadMarker(ctx)
	if err != nil || m.JobID != jobID {
		return
	}
	if err := t.pending.ClearUploadMarker(ctx); err != nil {
		t.log.Warn().Err(err).Str("job_id", jobID).Msg("failed to clear upload marker")
	}
}

// Confirm accepts a parsed upload draft. While the job is still parsing no
// request is sent: the job is re-polled at once and ErrStillParsing is
// returned with a notice for the user.
func (t *JobTracker) Confirm(ctx context.Context, jobID string) (string, error) {
	t.mu.Lock()
	j, ok := t.jobs[jobID]
	if !ok {
		t.mu.Unlock()
		return "", domain.ErrUnknownJob
	}
	kind := j.rec.Kind
	if !kind.IsUpload() {
		t.mu.Unlock()
		return "", domain.ErrNotConfirmable
	}
	switch {
	case j.status == model.JobStatusConfirmed:
		t.mu.Unlock()
		return t.tr.T(i18n.KeyConfirmed), nil
	case j.status.IsFailure():
		notice := j.notice
		t.mu.Unlock()
		return notice, fmt.Errorf("%w: job %s is %s", domain.ErrNotConfirmable, jobID, j.status)
	case !j.status.CanConfirm():
		notice := t.tr.T(i18n.KeyStillParsing)
		t.nudgeLocked(j)
		t.mu.Unlock()
		metrics.IncConfirm(string(kind), "still_parsing")
		return notice, domain.ErrStillParsing
	}
	prev := j.status
	j.status = model.JobStatusConfirming
	t.mu.Unlock()

	err := t.remote.Confirm(ctx, kind, jobID)
	if err != nil {
		t.mu.Lock()
		if j.status == model.JobStatusConfirming {
			j.status = prev
		}
		var notReady *domain.JobNotReadyError
		if errors.As(err, &notReady) {
			j.progress = notReady.Progress
			notice := t.tr.T(i18n.KeyNotReady, notReady.Progress)
			j.notice = notice
			t.nudgeLocked(j)
			t.mu.Unlock()
			metrics.IncConfirm(string(kind), "not_ready")
			return notice, err
		}
		t.mu.Unlock()
		metrics.IncConfirm(string(kind), "error")
		return "", fmt.Errorf("confirm %s: %w", jobID, err)
	}

	t.mu.Lock()
	s := t.applyLocked(j, model.Job{ID: jobID, Kind: kind, Status: model.JobStatusConfirmed})
	t.mu.Unlock()
	if s != nil {
		t.settle(ctx, s)
	}
	metrics.IncConfirm(string(kind), "ok")
	return t.tr.T(i18n.KeyConfirmed), nil
}

// nudgeLocked forces an immediate status check, restarting the loop when it
// has already stopped.
func (t *JobTracker) nudgeLocked(j *trackedJob) {
	if j.settled {
		return
	}
	if j.polling() {
		j.handle.Nudge()
		return
	}
	t.startLocked(j)
}

// Abandon stops tracking a job locally and forgets its record. The server
// side is left alone.
func (t *JobTracker) Abandon(ctx context.Context, jobID string) error {
	t.mu.Lock()
	j, ok := t.jobs[jobID]
	if ok {
		delete(t.jobs, jobID)
	}
	t.mu.Unlock()
	if !ok {
		return domain.ErrUnknownJob
	}
	if j.handle != nil {
		j.handle.Cancel()
	}
	if err := t.pending.Delete(ctx, j.rec.Kind, jobID); err != nil {
		return fmt.Errorf("abandon %s: %w", jobID, err)
	}
	if j.rec.Kind.IsUpload() {
		t.clearMarkerFor(ctx, jobID)
	}
	t.log.Info().Str("job_id", jobID).Msg("job abandoned")
	return nil
}

// Job returns a snapshot of a tracked job.
func (t *JobTracker) Job(jobID string) (JobView, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.jobs[jobID]
	if !ok {
		return JobView{}, false
	}
	return j.view(), true
}

// Jobs returns snapshots of all tracked jobs, oldest first.
func (t *JobTracker) Jobs() []JobView {
	t.mu.Lock()
	out := make([]JobView, 0, len(t.jobs))
	for _, j := range t.jobs {
		out = append(out, j.view())
	}
	t.mu.Unlock()
	sort.Slice(out, func(a, b int) bool {
		return out[a].Record.CreatedAt.Before(out[b].Record.CreatedAt)
	})
	return out
}

// ActiveUpload returns the upload the user is currently working on.
func (t *JobTracker) ActiveUpload(ctx context.Context) (JobView, error) {
	m, err := t.pending.GetUploadMarker(ctx)
	if err != nil {
		return JobView{}, err
	}
	v, ok := t.Job(m.JobID)
	if !ok {
		return JobView{}, domain.ErrNotFound
	}
	return v, nil
}

// LoadHistory fetches a session's messages from the server. When a newer load
// for the same session started meanwhile, its result wins and this one is
// dropped.
func (t *JobTracker) LoadHistory(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	if sessionID == "" {
		return nil, domain.ErrInvalidArgument
	}
	gen := t.history.Begin(sessionID)
	msgs, err := t.remote.ListMessages(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("load history %s: %w", sessionID, err)
		}
		// created on this device and unknown to the server so far
		msgs = nil
	}
	if !t.history.Commit(sessionID, gen, msgs, t.opts.Clock.Now()) {
		t.log.Debug().Str("session_id", sessionID).Uint64("gen", gen).Msg("dropping stale history load")
		if cur, ok := t.history.Get(sessionID); ok {
			return cur, nil
		}
		return msgs, nil
	}
	cur, _ := t.history.Get(sessionID)
	return cur, nil
}

// Messages returns a session's history with the placeholders of its live
// chat jobs composed in.
func (t *JobTracker) Messages(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	msgs, ok := t.history.Get(sessionID)
	if !ok {
		var err error
		if msgs, err = t.LoadHistory(ctx, sessionID); err != nil {
			return nil, err
		}
	}
	for _, p := range t.liveChatJobs(sessionID) {
		msgs = Compose(msgs, &p.Record, sessionID, p.Notice)
	}
	return msgs, nil
}

func (t *JobTracker) liveChatJobs(sessionID string) []JobView {
	t.mu.Lock()
	var out []JobView
	tracked := map[string]bool{}
	for _, j := range t.jobs {
		if j.rec.Kind == model.JobKindChat && !j.settled && j.rec.SessionID == sessionID {
			out = append(out, j.view())
			tracked[j.rec.PlaceholderID] = true
		}
	}
	for ph, rec := range t.submitting {
		if rec.SessionID == sessionID && !tracked[ph] {
			out = append(out, JobView{Record: rec, Notice: t.tr.T(i18n.KeyQueuedUnknown)})
		}
	}
	t.mu.Unlock()
	sort.Slice(out, func(a, b int) bool {
		return out[a].Record.CreatedAt.Before(out[b].Record.CreatedAt)
	})
	return out
}

// Close stops every poll loop and waits for them to exit.
func (t *JobTracker) Close() {
	t.stop()
	t.mu.Lock()
	handles := make([]*poller.Handle, 0, len(t.jobs))
	for _, j := range t.jobs {
		if j.handle != nil {
			handles = append(handles, j.handle)
		}
	}
	t.mu.Unlock()
	for _, h := range handles {
		<-h.Done()
	}
}
