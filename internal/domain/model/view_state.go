package model

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ViewState is the small per-user metadata object shared across devices.
// The active session is deliberately not part of it.
type ViewState struct {
	TitleMap  map[string]string `json:"title_map"`
	HiddenIDs []string          `json:"hidden_ids"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func NewViewState() ViewState {
	return ViewState{TitleMap: map[string]string{}, HiddenIDs: []string{}}
}

// Clone returns a deep copy so callers never share the map or slice.
func (v ViewState) Clone() ViewState {
	out := ViewState{
		TitleMap:  make(map[string]string, len(v.TitleMap)),
		HiddenIDs: make([]string, len(v.HiddenIDs)),
		UpdatedAt: v.UpdatedAt,
	}
	for k, t := range v.TitleMap {
		out.TitleMap[k] = t
	}
	copy(out.HiddenIDs, v.HiddenIDs)
	return out
}

func (v ViewState) IsHidden(sessionID string) bool {
	for _, id := range v.HiddenIDs {
		if id == sessionID {
			return true
		}
	}
	return false
}

// SetHidden adds or removes sessionID from the hidden set and reports whether
// anything changed.
func (v *ViewState) SetHidden(sessionID string, hidden bool) bool {
	if hidden {
		if v.IsHidden(sessionID) {
			return false
		}
		v.HiddenIDs = append(v.HiddenIDs, sessionID)
		return true
	}
	for i, id := range v.HiddenIDs {
		if id == sessionID {
			v.HiddenIDs = append(v.HiddenIDs[:i], v.HiddenIDs[i+1:]...)
			return true
		}
	}
	return false
}

// Normalize drops empty keys and duplicate hidden ids. Used on anything read
// from disk or the network.
func (v *ViewState) Normalize() {
	if v.TitleMap == nil {
		v.TitleMap = map[string]string{}
	}
	delete(v.TitleMap, "")
	seen := make(map[string]struct{}, len(v.HiddenIDs))
	ids := v.HiddenIDs[:0]
	for _, id := range v.HiddenIDs {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if ids == nil {
		ids = []string{}
	}
	v.HiddenIDs = ids
}

// Signature is stable over map iteration order and hidden id order.
func (v ViewState) Signature() string {
	keys := make([]string, 0, len(v.TitleMap))
	for k := range v.TitleMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	hidden := append([]string(nil), v.HiddenIDs...)
	sort.Strings(hidden)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(strconv.Quote(k)))
		h.Write([]byte{'='})
		h.Write([]byte(strconv.Quote(v.TitleMap[k])))
		h.Write([]byte{';'})
	}
	h.Write([]byte{'#'})
	h.Write([]byte(strings.Join(hidden, ",")))
	h.Write([]byte{'#'})
	h.Write([]byte(strconv.FormatInt(v.UpdatedAt.UnixNano(), 10)))
	return hex.EncodeToString(h.Sum(nil))
}
