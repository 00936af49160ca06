package repository

import (
	"context"

	"jobsync-client/internal/domain/model"
)

// ViewStateRepository stores the local copy of the synced view-state.
// Load returns domain.ErrNotFound when nothing usable is stored.
type ViewStateRepository interface {
	Load(ctx context.Context) (model.ViewState, error)
	Save(ctx context.Context, v model.ViewState) error
}

// SessionRepository holds device-local session data: the focused session and
// sessions created here that the server has not acknowledged yet.
type SessionRepository interface {
	ActiveSession(ctx context.Context) (string, error)
	SetActiveSession(ctx context.Context, sessionID string) error

	LocalSessions(ctx context.Context) ([]string, error)
	AddLocalSession(ctx context.Context, sessionID string) error
	RemoveLocalSession(ctx context.Context, sessionID string) error
}
