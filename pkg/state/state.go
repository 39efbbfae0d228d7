package state

import "time"

// NoUser marks an unset user id in persisted state.
const NoUser = -10000

// BackgroundUser is one entry of the restart registry.
type BackgroundUser struct {
	UserID int    `json:"user_id"`
	Rank   uint64 `json:"rank"`
}

// State represents coordination state persisted across power cycles.
type State struct {
	// BackgroundUsers is the restart registry in order, most recent first.
	BackgroundUsers []BackgroundUser `json:"background_users"`

	// Promoted is the user most recently promoted to the front of the
	// registry, or NoUser.
	Promoted int `json:"promoted"`

	// RankCounter is the last rank handed out.
	RankCounter uint64 `json:"rank_counter"`

	// InitialUser is the user selected to come up at boot, or NoUser.
	InitialUser int `json:"initial_user"`

	// SavedAt is the time of the last save.
	SavedAt time.Time `json:"saved_at"`
}

// Empty returns a state with no users recorded.
func Empty() State {
	return State{Promoted: NoUser, InitialUser: NoUser}
}

// IsEmpty returns true if the state has not been initialized.
func (s State) IsEmpty() bool {
	return s.SavedAt.IsZero() && len(s.BackgroundUsers) == 0
}

// Clone returns a deep copy.
func (s State) Clone() State {
	c := s
	if s.BackgroundUsers != nil {
		c.BackgroundUsers = append([]BackgroundUser(nil), s.BackgroundUsers...)
	}
	return c
}
