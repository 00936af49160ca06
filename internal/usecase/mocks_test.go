//go:build !integration

package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"jobsync-client/internal/config"
	"jobsync-client/internal/domain/model"
	"jobsync-client/internal/domain/ports/adapter"
	"jobsync-client/internal/infra/i18n"
	"jobsync-client/internal/infra/logging"
	"jobsync-client/internal/infra/store"
)

// mockRemote is a hand-rolled fake of adapter.RemoteService. Unset funcs
// return zero values.
type mockRemote struct {
	SubmitChatFunc   func(ctx context.Context, req adapter.ChatSubmitRequest) (adapter.SubmitResult, error)
	SubmitUploadFunc func(ctx context.Context, kind model.JobKind, req adapter.UploadSubmitRequest) (adapter.SubmitResult, error)
	StatusFunc       func(ctx context.Context, kind model.JobKind, jobID string) (model.Job, error)
	ConfirmFunc      func(ctx context.Context, kind model.JobKind, jobID string) error
	ListMessagesFunc func(ctx context.Context, sessionID string) ([]model.ChatMessage, error)
	GetViewStateFunc func(ctx context.Context) (model.ViewState, error)
	PutViewStateFunc func(ctx context.Context, v model.ViewState) (model.ViewState, error)

	// statusCalls receives the job id of every status request.
	statusCalls chan string

	mu       sync.Mutex
	confirms int
	puts     []model.ViewState
}

var _ adapter.RemoteService = (*mockRemote)(nil)

func newMockRemote() *mockRemote {
	return &mockRemote{statusCalls: make(chan string, 64)}
}

func (m *mockRemote) SubmitChat(ctx context.Context, req adapter.ChatSubmitRequest) (adapter.SubmitResult, error) {
	if m.SubmitChatFunc != nil {
		return m.SubmitChatFunc(ctx, req)
	}
	return adapter.SubmitResult{}, errors.New("SubmitChat not configured")
}

func (m *mockRemote) SubmitUpload(ctx context.Context, kind model.JobKind, req adapter.UploadSubmitRequest) (adapter.SubmitResult, error) {
	if m.SubmitUploadFunc != nil {
		return m.SubmitUploadFunc(ctx, kind, req)
	}
	return adapter.SubmitResult{}, errors.New("SubmitUpload not configured")
}

func (m *mockRemote) Status(ctx context.Context, kind model.JobKind, jobID string) (model.Job, error) {
	defer func() { m.statusCalls <- jobID }()
	if m.StatusFunc != nil {
		return m.StatusFunc(ctx, kind, jobID)
	}
	return model.Job{ID: jobID, Kind: kind, Status: model.JobStatusProcessing}, nil
}

func (m *mockRemote) Confirm(ctx context.Context, kind model.JobKind, jobID string) error {
	m.mu.Lock()
	m.confirms++
	m.mu.Unlock()
	if m.ConfirmFunc != nil {
		return m.ConfirmFunc(ctx, kind, jobID)
	}
	return nil
}

func (m *mockRemote) ListMessages(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	if m.ListMessagesFunc != nil {
		return m.ListMessagesFunc(ctx, sessionID)
	}
	return nil, nil
}

func (m *mockRemote) GetViewState(ctx context.Context) (model.ViewState, error) {
	if m.GetViewStateFunc != nil {
		return m.GetViewStateFunc(ctx)
	}
	return model.NewViewState(), nil
}

func (m *mockRemote) PutViewState(ctx context.Context, v model.ViewState) (model.ViewState, error) {
	m.mu.Lock()
	m.puts = append(m.puts, v.Clone())
	m.mu.Unlock()
	if m.PutViewStateFunc != nil {
		return m.PutViewStateFunc(ctx, v)
	}
	return v, nil
}

func (m *mockRemote) confirmCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.confirms
}

func (m *mockRemote) putsSnapshot() []model.ViewState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.ViewState(nil), m.puts...)
}

// statusSequence answers status polls with jobs in order, repeating the last.
func statusSequence(jobs ...model.Job) func(context.Context, model.JobKind, string) (model.Job, error) {
	var mu sync.Mutex
	i := 0
	return func(_ context.Context, kind model.JobKind, jobID string) (model.Job, error) {
		mu.Lock()
		defer mu.Unlock()
		j := jobs[i]
		if i < len(jobs)-1 {
			i++
		}
		j.ID = jobID
		j.Kind = kind
		return j, nil
	}
}

func intPtr(v int) *int { return &v }

// testDeps wires a tracker against an in-memory store and a fake clock.
type testDeps struct {
	remote   *mockRemote
	clock    *clockwork.FakeClock
	kv       *store.MemoryKV
	pending  *store.PendingJobRepo
	sessions *store.SessionRepo
	views    *store.ViewStateRepo
	history  *HistoryCache
}

func newTestDeps(t *testing.T) *testDeps {
	t.Helper()
	kv := store.NewMemoryKV()
	keys := store.NewKeyspace("test", "user-1")
	return &testDeps{
		remote:   newMockRemote(),
		clock:    clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)),
		kv:       kv,
		pending:  store.NewPendingJobRepo(kv, keys, logging.Nop()),
		sessions: store.NewSessionRepo(kv, keys, logging.Nop()),
		views:    store.NewViewStateRepo(kv, keys, logging.Nop()),
		history:  NewHistoryCache(),
	}
}

func testPollerConfig() config.PollerConfig {
	return config.PollerConfig{
		Chat:           config.PollerProfile{BaseDelay: 800 * time.Millisecond, MaxDelay: 30 * time.Second, Multiplier: 1.5},
		Upload:         config.PollerProfile{BaseDelay: 4 * time.Second, MaxDelay: 30 * time.Second, Multiplier: 1.5},
		Jitter:         0.2,
		HiddenMinDelay: 10 * time.Second,
	}
}

func (d *testDeps) newTracker(t *testing.T) *JobTracker {
	t.Helper()
	tr := NewJobTracker(d.remote, d.pending, d.sessions, d.history, i18n.MustDefault("en"), TrackerOptions{
		Poller: testPollerConfig(),
		Clock:  d.clock,
		Rand:   func() float64 { return 0.5 },
	}, logging.Nop())
	t.Cleanup(tr.Close)
	return tr
}

func (d *testDeps) newSyncer(cfg config.ViewStateConfig) *ViewStateSyncer {
	return NewViewStateSyncer(d.remote, d.views, cfg, d.clock, logging.Nop())
}

func blockUntil(t *testing.T, clock *clockwork.FakeClock, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := clock.BlockUntilContext(ctx, n); err != nil {
		t.Fatalf("timed out waiting for %d timer(s): %v", n, err)
	}
}

func recvStatus(t *testing.T, m *mockRemote) string {
	t.Helper()
	select {
	case id := <-m.statusCalls:
		return id
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a status poll")
	}
	return ""
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition never became true: %s", what)
}
