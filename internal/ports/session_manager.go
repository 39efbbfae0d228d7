package ports

import "github.com/bft-labs/usercoord/internal/domain"

// SessionManager is the OS facility that performs user context changes.
// All calls are synchronous.
type SessionManager interface {
	// CurrentUser returns the foreground user.
	CurrentUser() domain.UserID

	// SwitchUser brings the user to the foreground.
	SwitchUser(id domain.UserID) error

	// StartUserInBackground starts the user without bringing it to the foreground.
	StartUserInBackground(id domain.UserID) error

	// UnlockUser unlocks a started user.
	UnlockUser(id domain.UserID) error

	// StopUser stops a background user.
	StopUser(id domain.UserID) error

	// IsUserUnlockingOrUnlocked reports whether the user is unlocking or unlocked.
	IsUserUnlockingOrUnlocked(id domain.UserID) bool

	// IsUserRunning reports whether the user is started.
	IsUserRunning(id domain.UserID) bool
}
