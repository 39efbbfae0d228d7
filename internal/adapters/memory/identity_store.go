package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/bft-labs/usercoord/internal/domain"
)

// FirstUserID is the id given to the first created user.
const FirstUserID domain.UserID = 10

// IdentityStore is an in-memory ports.IdentityStore. It always contains the
// system user.
type IdentityStore struct {
	mu        sync.Mutex
	users     map[domain.UserID]domain.UserRecord
	nextID    domain.UserID
	createErr error
	removeErr error
}

// NewIdentityStore creates a store holding only the system user.
func NewIdentityStore() *IdentityStore {
	s := &IdentityStore{
		users:  make(map[domain.UserID]domain.UserRecord),
		nextID: FirstUserID,
	}
	s.users[domain.SystemUser] = domain.UserRecord{
		ID:             domain.SystemUser,
		Name:           "Driver",
		Type:           domain.UserTypeSystem,
		Flags:          domain.FlagSystem | domain.FlagAdmin,
		ProfileGroupID: domain.NullUser,
		Enabled:        true,
	}
	return s
}

// Put inserts or replaces a record. Records that are not managed profiles
// get no profile group.
func (s *IdentityStore) Put(u domain.UserRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !u.IsManagedProfile() {
		u.ProfileGroupID = domain.NullUser
	}
	s.users[u.ID] = u
	if u.ID >= s.nextID {
		s.nextID = u.ID + 1
	}
}

// SetCreateError makes subsequent creations fail with err. nil clears it.
func (s *IdentityStore) SetCreateError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createErr = err
}

// SetRemoveError makes subsequent removals fail with err. nil clears it.
func (s *IdentityStore) SetRemoveError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeErr = err
}

// User returns the record for id.
func (s *IdentityStore) User(id domain.UserID) (domain.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return domain.UserRecord{}, fmt.Errorf("user %d: %w", id, domain.ErrUserNotFound)
	}
	return u, nil
}

// Users returns all users ordered by id.
func (s *IdentityStore) Users() []domain.UserRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserRecord, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CreateUser creates a full user.
func (s *IdentityStore) CreateUser(name, userType string, flags domain.UserFlags) (domain.UserRecord, error) {
	return s.create(name, userType, flags, domain.NullUser)
}

// CreateProfile creates a profile user owned by parent.
func (s *IdentityStore) CreateProfile(name, userType string, flags domain.UserFlags, parent domain.UserID) (domain.UserRecord, error) {
	s.mu.Lock()
	_, ok := s.users[parent]
	s.mu.Unlock()
	if !ok {
		return domain.UserRecord{}, fmt.Errorf("profile parent %d: %w", parent, domain.ErrUserNotFound)
	}
	return s.create(name, userType, flags, parent)
}

func (s *IdentityStore) create(name, userType string, flags domain.UserFlags, parent domain.UserID) (domain.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return domain.UserRecord{}, s.createErr
	}
	u := domain.UserRecord{
		ID:             s.nextID,
		Name:           name,
		Type:           userType,
		Flags:          flags,
		ProfileGroupID: parent,
		Enabled:        true,
	}
	s.nextID++
	s.users[u.ID] = u
	return u, nil
}

// RemoveUser deletes the user.
func (s *IdentityStore) RemoveUser(id domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removeErr != nil {
		return s.removeErr
	}
	if _, ok := s.users[id]; !ok {
		return fmt.Errorf("user %d: %w", id, domain.ErrUserNotFound)
	}
	delete(s.users, id)
	return nil
}
