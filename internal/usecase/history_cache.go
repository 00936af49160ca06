package usecase

import (
	"sync"
	"time"

	"jobsync-client/internal/domain/model"
)

// HistoryCache holds loaded session histories. It is owned by whoever creates
// it and passed explicitly to its consumers; entries are keyed by session id
// and invalidated by a per-session load generation.
type HistoryCache struct {
	mu      sync.Mutex
	entries map[string]*historyEntry
}

type historyEntry struct {
	gen    uint64
	loaded bool
	hist   model.SessionHistory
	// local holds messages appended on this device that the server copy may
	// not contain yet.
	local []model.ChatMessage
}

func NewHistoryCache() *HistoryCache {
	return &HistoryCache{entries: map[string]*historyEntry{}}
}

func (c *HistoryCache) entry(sessionID string) *historyEntry {
	e, ok := c.entries[sessionID]
	if !ok {
		e = &historyEntry{hist: model.SessionHistory{SessionID: sessionID}}
		c.entries[sessionID] = e
	}
	return e
}

// Begin starts a load and returns its generation. Any earlier load for the
// same session becomes stale.
func (c *HistoryCache) Begin(sessionID string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entry(sessionID)
	e.gen++
	return e.gen
}

// Commit stores a load result. It returns false and drops msgs when a newer
// load for the session has begun since gen was issued.
func (c *HistoryCache) Commit(sessionID string, gen uint64, msgs []model.ChatMessage, at time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entry(sessionID)
	if gen != e.gen {
		return false
	}
	hist := model.SessionHistory{SessionID: sessionID, LoadedAt: at}
	for _, m := range msgs {
		hist.Append(m)
	}
	var keep []model.ChatMessage
	for _, m := range e.local {
		if containsMessage(hist.Messages, m) {
			continue
		}
		hist.Append(m)
		keep = append(keep, m)
	}
	e.hist = hist
	e.local = keep
	e.loaded = true
	return true
}

// Append adds or replaces a message in a session's history.
func (c *HistoryCache) Append(sessionID string, m model.ChatMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entry(sessionID)
	e.hist.Append(m)
	for i := range e.local {
		if e.local[i].ID == m.ID {
			e.local[i] = m
			return
		}
	}
	e.local = append(e.local, m)
}

// Get returns a copy of the loaded history. ok is false until a load has been
// committed for the session.
func (c *HistoryCache) Get(sessionID string) (msgs []model.ChatMessage, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, found := c.entries[sessionID]
	if !found || !e.loaded {
		return nil, false
	}
	return e.hist.Snapshot(), true
}

// Invalidate forces the next read to reload from the server.
func (c *HistoryCache) Invalidate(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[sessionID]; ok {
		e.loaded = false
		e.gen++
	}
}

// containsMessage matches by id, or by role and content for messages the
// server stored under its own id. A content match also needs the server copy
// to be no older than the local one.
func containsMessage(list []model.ChatMessage, m model.ChatMessage) bool {
	for _, x := range list {
		if x.ID == m.ID {
			return true
		}
		if x.Role != m.Role || x.Content != m.Content {
			continue
		}
		if x.Timestamp.IsZero() || m.Timestamp.IsZero() || !x.Timestamp.Before(m.Timestamp) {
			return true
		}
	}
	return false
}
