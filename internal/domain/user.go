package domain

import (
	"fmt"
	"strings"
)

// UserID identifies a user. Values are assigned by the identity store.
type UserID int

const (
	// NullUser marks the absence of a user.
	NullUser UserID = -10000

	// SystemUser is the base always-on user.
	SystemUser UserID = 0
)

// UserFlags is a bit set describing the kind of user.
type UserFlags uint32

const (
	FlagAdmin UserFlags = 1 << iota
	FlagGuest
	FlagEphemeral
	FlagManagedProfile
	FlagSystem
)

// Has reports whether all bits of f are set.
func (u UserFlags) Has(f UserFlags) bool { return u&f == f }

// String returns the flags as a pipe-separated list, e.g. "ADMIN|EPHEMERAL".
func (u UserFlags) String() string {
	if u == 0 {
		return "NONE"
	}
	var parts []string
	names := []struct {
		flag UserFlags
		name string
	}{
		{FlagAdmin, "ADMIN"},
		{FlagGuest, "GUEST"},
		{FlagEphemeral, "EPHEMERAL"},
		{FlagManagedProfile, "MANAGED_PROFILE"},
		{FlagSystem, "SYSTEM"},
	}
	for _, n := range names {
		if u.Has(n.flag) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// User types understood by the identity store.
const (
	UserTypeFull           = "full.secondary"
	UserTypeGuest          = "full.guest"
	UserTypeSystem         = "full.system"
	UserTypeProfileManaged = "profile.managed"
)

// DefaultUserType returns the user type matching the given flags.
func DefaultUserType(flags UserFlags) string {
	if flags.Has(FlagGuest) {
		return UserTypeGuest
	}
	return UserTypeFull
}

// UserRecord is a snapshot of a user owned by the identity store.
type UserRecord struct {
	ID    UserID
	Name  string
	Type  string
	Flags UserFlags

	// ProfileGroupID is the owning driver for profile users, NullUser otherwise.
	ProfileGroupID UserID

	Enabled bool
}

func (u UserRecord) IsAdmin() bool          { return u.Flags.Has(FlagAdmin) }
func (u UserRecord) IsGuest() bool          { return u.Flags.Has(FlagGuest) }
func (u UserRecord) IsEphemeral() bool      { return u.Flags.Has(FlagEphemeral) }
func (u UserRecord) IsManagedProfile() bool { return u.Flags.Has(FlagManagedProfile) }

// IsPersistent reports whether the user survives beyond the current session.
func (u UserRecord) IsPersistent() bool { return !u.IsEphemeral() }

func (u UserRecord) String() string {
	return fmt.Sprintf("UserRecord{id=%d, name=%q, type=%s, flags=%s}", u.ID, u.Name, u.Type, u.Flags)
}

// UsersInfo is the known-user directory handed to the external coordinator.
type UsersInfo struct {
	Current  UserRecord
	Existing []UserRecord
}

// NewUsersInfo builds a directory from the current user id and the full user list.
// If current is not in users, Current only carries the id.
func NewUsersInfo(current UserID, users []UserRecord) UsersInfo {
	info := UsersInfo{
		Current:  UserRecord{ID: current, ProfileGroupID: NullUser},
		Existing: make([]UserRecord, len(users)),
	}
	copy(info.Existing, users)
	for _, u := range users {
		if u.ID == current {
			info.Current = u
			break
		}
	}
	return info
}

// AdminCount returns how many existing users carry the admin flag.
func (i UsersInfo) AdminCount() int {
	n := 0
	for _, u := range i.Existing {
		if u.IsAdmin() {
			n++
		}
	}
	return n
}
