package controller

import (
	"fmt"

	"github.com/MrSnakeDoc/smartmark/internal/domain"
)

// State is the view-level lifecycle state.
type State int

const (
	StateUnauthenticated State = iota
	StateLoading               // signed in, first refresh not yet applied
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateLoading:
		return "authenticated_loading"
	case StateReady:
		return "authenticated_ready"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Draft holds the create form inputs. It survives a failed create and is
// cleared by a successful one.
type Draft struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Snapshot is an immutable copy of the view state.
type Snapshot struct {
	// Version increases with every applied change.
	Version   uint64            `json:"version"`
	State     State             `json:"state"`
	Identity  *domain.Identity  `json:"identity,omitempty"`
	Bookmarks []domain.Bookmark `json:"bookmarks"`
	Draft     Draft             `json:"draft"`
	LastError string            `json:"last_error,omitempty"`
}
