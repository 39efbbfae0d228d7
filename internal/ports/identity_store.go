package ports

import "github.com/bft-labs/usercoord/internal/domain"

// IdentityStore provides CRUD for user records.
type IdentityStore interface {
	// User returns the record for id, or domain.ErrUserNotFound.
	User(id domain.UserID) (domain.UserRecord, error)

	// Users returns all users that are not being removed.
	Users() []domain.UserRecord

	// CreateUser creates a full user and assigns it a stable id.
	CreateUser(name, userType string, flags domain.UserFlags) (domain.UserRecord, error)

	// CreateProfile creates a profile user owned by parent.
	CreateProfile(name, userType string, flags domain.UserFlags, parent domain.UserID) (domain.UserRecord, error)

	// RemoveUser deletes the user.
	RemoveUser(id domain.UserID) error
}
