package usecase

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"jobsync-client/internal/domain"
	"jobsync-client/internal/domain/ports/repository"
)

type SessionSummary struct {
	ID     string `json:"id"`
	Title  string `json:"title,omitempty"`
	Hidden bool   `json:"hidden"`
	Local  bool   `json:"local"`
	Active bool   `json:"active"`
}

// SessionUseCase handles device-local session focus and sessions created
// before the server has seen them.
type SessionUseCase struct {
	sessions repository.SessionRepository
	views    *ViewStateSyncer
}

func NewSessionUseCase(sessions repository.SessionRepository, views *ViewStateSyncer) *SessionUseCase {
	return &SessionUseCase{sessions: sessions, views: views}
}

// Create starts a new session on this device and focuses it.
func (u *SessionUseCase) Create(ctx context.Context, title string) (string, error) {
	id := uuid.NewString()
	if err := u.sessions.AddLocalSession(ctx, id); err != nil {
		return "", err
	}
	if err := u.sessions.SetActiveSession(ctx, id); err != nil {
		return "", err
	}
	if title != "" {
		if err := u.views.SetTitle(ctx, id, title); err != nil {
			return "", err
		}
	}
	return id, nil
}

func (u *SessionUseCase) Select(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return domain.ErrInvalidArgument
	}
	return u.sessions.SetActiveSession(ctx, sessionID)
}

func (u *SessionUseCase) Active(ctx context.Context) (string, error) {
	return u.sessions.ActiveSession(ctx)
}

// List returns every session this client knows by title or local creation.
func (u *SessionUseCase) List(ctx context.Context) ([]SessionSummary, error) {
	local, err := u.sessions.LocalSessions(ctx)
	if err != nil {
		return nil, err
	}
	active, err := u.sessions.ActiveSession(ctx)
	if err != nil {
		return nil, err
	}
	vs := u.views.State()

	byID := map[string]*SessionSummary{}
	get := func(id string) *SessionSummary {
		s, ok := byID[id]
		if !ok {
			s = &SessionSummary{ID: id}
			byID[id] = s
		}
		return s
	}
	for id, title := range vs.TitleMap {
		get(id).Title = title
	}
	for _, id := range vs.HiddenIDs {
		get(id).Hidden = true
	}
	for _, id := range local {
		get(id).Local = true
	}
	if active != "" {
		get(active).Active = true
	}

	out := make([]SessionSummary, 0, len(byID))
	for _, s := range byID {
		out = append(out, *s)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}
