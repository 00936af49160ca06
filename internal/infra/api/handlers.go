package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"jobsync-client/internal/domain"
	"jobsync-client/internal/domain/model"
	"jobsync-client/internal/domain/ports/adapter"
	"jobsync-client/internal/infra/logging"
)

type chatSubmitRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	LaneID    string `json:"lane_id"`
}

type uploadSubmitRequest struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"content"`
}

type titleRequest struct {
	Title string `json:"title"`
}

type hiddenRequest struct {
	Hidden bool `json:"hidden"`
}

type sessionRequest struct {
	SessionID string `json:"session_id"`
	Title     string `json:"title"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Notice  string `json:"notice,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 32<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return false
	}
	return true
}

// fail maps domain errors onto status codes. notice carries the user-facing
// text some errors come with.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, notice string) {
	status, code := http.StatusInternalServerError, "internal"
	switch {
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrMalformedRecord):
		status, code = http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, domain.ErrUnknownJob):
		status, code = http.StatusNotFound, "unknown_job"
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrStillParsing):
		status, code = http.StatusConflict, "still_parsing"
	case errors.Is(err, domain.ErrJobNotReady):
		status, code = http.StatusConflict, "job_not_ready"
	case errors.Is(err, domain.ErrJobAlreadyActive):
		status, code = http.StatusConflict, "already_active"
	case errors.Is(err, domain.ErrNotConfirmable):
		status, code = http.StatusUnprocessableEntity, "not_confirmable"
	}
	if status == http.StatusInternalServerError {
		logging.With(r.Context(), s.log).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSON(w, status, errorResponse{Code: code, Message: err.Error(), Notice: notice})
}

func (s *Server) submitChat(w http.ResponseWriter, r *http.Request) {
	var req chatSubmitRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ctx := logging.WithSessID(r.Context(), req.SessionID)
	rec, err := s.jobs.SubmitChat(ctx, req.SessionID, req.Message, req.LaneID)
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusAccepted, rec)
}

func (s *Server) submitUpload(w http.ResponseWriter, r *http.Request) {
	kind := model.JobKind(chi.URLParam(r, "kind"))
	if !kind.IsUpload() {
		writeError(w, http.StatusBadRequest, "invalid_argument", "unknown upload kind")
		return
	}
	var req uploadSubmitRequest
	if !decodeBody(w, r, &req) {
		return
	}
	rec, err := s.jobs.SubmitUpload(r.Context(), kind, adapter.UploadSubmitRequest{
		FileName:    req.FileName,
		ContentType: req.ContentType,
		Content:     req.Content,
	})
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusAccepted, rec)
}

func (s *Server) listJobs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"data": s.jobs.Jobs()})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	v, ok := s.jobs.Job(chi.URLParam(r, "jobID"))
	if !ok {
		s.fail(w, r, domain.ErrUnknownJob, "")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) activeUpload(w http.ResponseWriter, r *http.Request) {
	v, err := s.jobs.ActiveUpload(r.Context())
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) abandonJob(w http.ResponseWriter, r *http.Request) {
	if err := s.jobs.Abandon(r.Context(), chi.URLParam(r, "jobID")); err != nil {
		s.fail(w, r, err, "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) confirmJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	ctx := logging.WithJobID(r.Context(), jobID)
	notice, err := s.jobs.Confirm(ctx, jobID)
	if err != nil {
		s.fail(w, r, err, notice)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": jobID, "notice": notice})
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	msgs, err := s.jobs.Messages(r.Context(), sessionID)
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	if msgs == nil {
		msgs = []model.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": sessionID, "messages": msgs})
}

func (s *Server) reloadHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if _, err := s.jobs.LoadHistory(r.Context(), sessionID); err != nil {
		s.fail(w, r, err, "")
		return
	}
	s.listMessages(w, r)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	list, err := s.sessions.List(r.Context())
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": list})
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	id, err := s.sessions.Create(r.Context(), strings.TrimSpace(req.Title))
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"session_id": id})
}

func (s *Server) activeSession(w http.ResponseWriter, r *http.Request) {
	id, err := s.sessions.Active(r.Context())
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"session_id": id})
}

func (s *Server) selectSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.sessions.Select(r.Context(), req.SessionID); err != nil {
		s.fail(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"session_id": req.SessionID})
}

func (s *Server) setTitle(w http.ResponseWriter, r *http.Request) {
	var req titleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.views.SetTitle(r.Context(), chi.URLParam(r, "sessionID"), strings.TrimSpace(req.Title)); err != nil {
		s.fail(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, s.views.State())
}

func (s *Server) setHidden(w http.ResponseWriter, r *http.Request) {
	var req hiddenRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.views.SetHidden(r.Context(), chi.URLParam(r, "sessionID"), req.Hidden); err != nil {
		s.fail(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, s.views.State())
}

func (s *Server) viewState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.views.State())
}

func (s *Server) setVisibility(w http.ResponseWriter, r *http.Request) {
	var req hiddenRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.vis.SetHidden(req.Hidden)
	w.WriteHeader(http.StatusNoContent)
}
