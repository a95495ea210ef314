package policy

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/jun/vidshare/internal/model"
)

// ErrMalformedScope is returned when a stored scope is neither the wildcard
// marker nor a JSON array of video ids.
var ErrMalformedScope = errors.New("malformed video scope")

// Scope is the parsed form of AccessToken.AllowedVideos.
type Scope struct {
	all bool
	ids []string // unique, in first-seen order
}

// AllScope admits every video.
func AllScope() Scope {
	return Scope{all: true}
}

// ParseScope decodes a stored scope string.
func ParseScope(raw string) (Scope, error) {
	if strings.TrimSpace(raw) == model.AllVideos {
		return AllScope(), nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return Scope{}, fmt.Errorf("%w: %v", ErrMalformedScope, err)
	}
	if ids == nil {
		return Scope{}, fmt.Errorf("%w: %q", ErrMalformedScope, raw)
	}
	return NewScope(ids), nil
}

// NewScope builds an explicit scope. Duplicates are dropped.
func NewScope(ids []string) Scope {
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		if !slices.Contains(unique, id) {
			unique = append(unique, id)
		}
	}
	return Scope{ids: unique}
}

// All reports whether the scope is the wildcard.
func (s Scope) All() bool { return s.all }

// IDs returns the enumerated ids, or nil for the wildcard.
func (s Scope) IDs() []string {
	if s.all {
		return nil
	}
	return slices.Clone(s.ids)
}

// Contains reports whether videoID is admitted.
func (s Scope) Contains(videoID string) bool {
	if s.all {
		return true
	}
	return slices.Contains(s.ids, videoID)
}

// Encode returns the stored form of the scope.
func (s Scope) Encode() string {
	if s.all {
		return model.AllVideos
	}
	b, _ := json.Marshal(s.ids)
	return string(b)
}
