package usercoord

import (
	"context"
	"time"

	"github.com/bft-labs/usercoord/internal/domain"
	"github.com/bft-labs/usercoord/internal/ports"
	"github.com/bft-labs/usercoord/internal/roundtrip"
	"github.com/bft-labs/usercoord/pkg/log"
	"github.com/bft-labs/usercoord/pkg/state"
)

// CreateUser creates a user and has the coordinator ratify it. If the
// coordinator rejects the user or does not answer within timeout, the user
// is removed again. A non-positive timeout uses the coordinator timeout.
func (s *Service) CreateUser(ctx context.Context, name, userType string, flags UserFlags, timeout time.Duration) CreateResult {
	return s.provisioner.CreateUser(ctx, name, userType, flags, timeout)
}

// CreateDriver creates a full user, optionally an admin.
func (s *Service) CreateDriver(ctx context.Context, name string, admin bool) CreateResult {
	return s.provisioner.CreateDriver(ctx, name, admin)
}

// CreateProfileUser creates a managed profile owned by driverID.
func (s *Service) CreateProfileUser(name string, driverID UserID) CreateResult {
	return s.provisioner.CreateProfileUser(name, driverID)
}

// RemoveUser removes a user that is not in the foreground.
func (s *Service) RemoveUser(id UserID) RemoveResult {
	return s.provisioner.RemoveUser(id)
}

// ListPersistentUsers returns the users that are neither ephemeral nor
// being removed.
func (s *Service) ListPersistentUsers() []UserRecord {
	return s.provisioner.ListPersistentUsers()
}

// ListProfilesOf returns the profiles owned by driverID.
func (s *Service) ListProfilesOf(driverID UserID) []UserRecord {
	return s.provisioner.ListProfilesOf(driverID)
}

// StartBackgroundUsers starts every user of the restart registry except the
// foreground user and returns the users now running.
func (s *Service) StartBackgroundUsers() []UserID {
	started := s.registry.StartAll()
	s.logger.Info("background users started", log.Any("users", started))
	return started
}

// StopBackgroundUser stops a background user. The foreground user and the
// system user are refused.
func (s *Service) StopBackgroundUser(id UserID) bool {
	return s.registry.Stop(id)
}

// BackgroundUsers returns the restart registry, most recent first.
func (s *Service) BackgroundUsers() []UserID {
	return s.registry.Users()
}

// RestartedUsers returns the users started by the last StartBackgroundUsers
// and not stopped since.
func (s *Service) RestartedUsers() []UserID {
	return s.registry.RestartedHere()
}

// SetMaxRunningUsers changes the running user bound and trims the restart
// registry to it. Values below 2 are ignored.
func (s *Service) SetMaxRunningUsers(n int) {
	if n < 2 {
		s.logger.Warn("ignoring max running users below 2", log.Int("max_running_users", n))
		return
	}
	s.tunMu.Lock()
	s.maxRunning = n
	s.tunMu.Unlock()
	s.registry.SetMaxRunningUsers(n)
}

// MaxRunningUsers returns the running user bound.
func (s *Service) MaxRunningUsers() int {
	s.tunMu.Lock()
	defer s.tunMu.Unlock()
	return s.maxRunning
}

// GetInitialUser returns the user selected to come up at boot, or NullUser.
func (s *Service) GetInitialUser() UserID {
	return UserID(s.store.Snapshot().InitialUser)
}

// SetInitialUser records the user to come up at boot. NullUser clears it.
func (s *Service) SetInitialUser(ctx context.Context, id UserID) error {
	if id != domain.NullUser {
		if _, err := s.users.User(id); err != nil {
			return err
		}
	}
	return s.store.Update(ctx, func(st *state.State) {
		st.InitialUser = int(id)
	})
}

// InitialUserInfo asks the coordinator which user should come up at boot.
// It returns ErrNotSupported when no coordinator is configured.
func (s *Service) InitialUserInfo(ctx context.Context, requestType int, timeout time.Duration) (InitialUserInfo, error) {
	if _, absent := s.coord.(absentCoordinator); absent {
		return InitialUserInfo{}, domain.ErrNotSupported
	}
	if timeout <= 0 {
		timeout = s.CoordinatorTimeout()
	}
	req := ports.InitialUserRequest{
		RequestType: requestType,
		Users:       domain.NewUsersInfo(s.sessions.CurrentUser(), s.users.Users()),
	}
	info, err := roundtrip.Do(ctx, "initial_user_info", timeout, func(ctx context.Context) (InitialUserInfo, error) {
		return s.coord.InitialUserInfo(ctx, req)
	})
	if err != nil {
		s.logger.Warn("initial user info failed", log.Err(err))
		return InitialUserInfo{}, err
	}
	return info, nil
}

// GetAssociations returns caller's identification associations for types.
func (s *Service) GetAssociations(caller UserID, types []int) AssociationResult {
	return s.bridge.Get(caller, types)
}

// SetAssociations writes caller's identification associations. A
// non-positive timeout uses the coordinator timeout.
func (s *Service) SetAssociations(ctx context.Context, caller UserID, types, values []int, timeout time.Duration) AssociationResult {
	return s.bridge.Set(ctx, caller, types, values, timeout)
}
