package adapter

import (
	"context"

	"jobsync-client/internal/domain/model"
)

// ChatSubmitRequest asks the server to generate a reply in one session.
type ChatSubmitRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	LaneID    string `json:"lane_id,omitempty"`
}

// UploadSubmitRequest carries a document to be parsed. The transport of the
// bytes is the remote client's concern.
type UploadSubmitRequest struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"content"`
	RequestID   string `json:"request_id"`
}

// SubmitResult is the server's acknowledgement of a new job.
type SubmitResult struct {
	JobID         string          `json:"job_id"`
	Status        model.JobStatus `json:"status"`
	QueuePosition *int            `json:"queue_position,omitempty"`
	QueueSize     *int            `json:"queue_size,omitempty"`
}

// JobService is the port for the server's job endpoints.
type JobService interface {
	SubmitChat(ctx context.Context, req ChatSubmitRequest) (SubmitResult, error)
	SubmitUpload(ctx context.Context, kind model.JobKind, req UploadSubmitRequest) (SubmitResult, error)
	Status(ctx context.Context, kind model.JobKind, jobID string) (model.Job, error)
	// Confirm returns *domain.JobNotReadyError when parsing has not finished.
	Confirm(ctx context.Context, kind model.JobKind, jobID string) error
}

// HistoryService loads a session's persisted messages.
type HistoryService interface {
	ListMessages(ctx context.Context, sessionID string) ([]model.ChatMessage, error)
}

// ViewStateService is the remote authority for the synced view-state. Put
// returns the server-resolved copy, whose UpdatedAt may differ from the input.
type ViewStateService interface {
	GetViewState(ctx context.Context) (model.ViewState, error)
	PutViewState(ctx context.Context, v model.ViewState) (model.ViewState, error)
}

// RemoteService bundles everything the client talks to.
type RemoteService interface {
	JobService
	HistoryService
	ViewStateService
}
