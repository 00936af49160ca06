// Package api is the loopback HTTP surface a UI shell drives the client
// through.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"jobsync-client/internal/domain/model"
	"jobsync-client/internal/domain/ports/adapter"
	"jobsync-client/internal/infra/logging"
	"jobsync-client/internal/usecase"
)

// Jobs is the part of the job tracker the API exposes.
type Jobs interface {
	SubmitChat(ctx context.Context, sessionID, text, laneID string) (*model.PendingJobRecord, error)
	SubmitUpload(ctx context.Context, kind model.JobKind, req adapter.UploadSubmitRequest) (*model.PendingJobRecord, error)
	Confirm(ctx context.Context, jobID string) (string, error)
	Abandon(ctx context.Context, jobID string) error
	Job(jobID string) (usecase.JobView, bool)
	Jobs() []usecase.JobView
	ActiveUpload(ctx context.Context) (usecase.JobView, error)
	Messages(ctx context.Context, sessionID string) ([]model.ChatMessage, error)
	LoadHistory(ctx context.Context, sessionID string) ([]model.ChatMessage, error)
}

type Sessions interface {
	Create(ctx context.Context, title string) (string, error)
	Select(ctx context.Context, sessionID string) error
	Active(ctx context.Context) (string, error)
	List(ctx context.Context) ([]usecase.SessionSummary, error)
}

type ViewState interface {
	SetTitle(ctx context.Context, sessionID, title string) error
	SetHidden(ctx context.Context, sessionID string, hidden bool) error
	State() model.ViewState
}

type Visibility interface {
	SetHidden(hidden bool)
}

type Deps struct {
	Jobs       Jobs
	Sessions   Sessions
	Views      ViewState
	Visibility Visibility
	Metrics    http.Handler
	Logger     *zerolog.Logger
	// Timeout bounds each request; zero means 30s.
	Timeout time.Duration
}

type Server struct {
	jobs     Jobs
	sessions Sessions
	views    ViewState
	vis      Visibility
	log      *zerolog.Logger
	router   chi.Router
}

func NewServer(d Deps) *Server {
	log := d.Logger
	if log == nil {
		log = logging.Nop()
	}
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	s := &Server{
		jobs:     d.Jobs,
		sessions: d.Sessions,
		views:    d.Views,
		vis:      d.Visibility,
		log:      logging.Component(log, "api"),
	}

	r := chi.NewRouter()
	r.Use(TraceID(), RequestLog(s.log), Recover(s.log), Timeout(timeout))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", s.listJobs)
			r.Post("/chat", s.submitChat)
			r.Post("/uploads/{kind}", s.submitUpload)
			r.Get("/uploads/active", s.activeUpload)
			r.Get("/{jobID}", s.getJob)
			r.Delete("/{jobID}", s.abandonJob)
			r.Post("/{jobID}/confirm", s.confirmJob)
		})
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", s.listSessions)
			r.Post("/", s.createSession)
			r.Get("/active", s.activeSession)
			r.Put("/active", s.selectSession)
			r.Get("/{sessionID}/messages", s.listMessages)
			r.Post("/{sessionID}/reload", s.reloadHistory)
			r.Put("/{sessionID}/title", s.setTitle)
			r.Put("/{sessionID}/hidden", s.setHidden)
		})
		r.Get("/view-state", s.viewState)
		r.Post("/visibility", s.setVisibility)
	})

	s.router = r
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves until ctx is cancelled, then drains in-flight
// requests for up to five seconds.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", ln.Addr().String()).Msg("local api listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	<-errCh
	return nil
}
