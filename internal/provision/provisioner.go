// Package provision creates and removes users, ratifying each change with
// the external coordinator when it supports it.
//
// Creation is local first. If the coordinator then rejects the new user, or
// does not answer in time, the local user is removed again. Removal is local
// first and the coordinator is informed one-way afterwards.
package provision

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bft-labs/usercoord/internal/domain"
	"github.com/bft-labs/usercoord/internal/metrics"
	"github.com/bft-labs/usercoord/internal/ports"
	"github.com/bft-labs/usercoord/internal/roundtrip"
	"github.com/bft-labs/usercoord/pkg/log"
)

// DefaultTimeout bounds a coordinator create round trip when none is given.
const DefaultTimeout = 5 * time.Second

// RestartTracker forgets users that were removed.
type RestartTracker interface {
	Forget(id domain.UserID)
}

// Provisioner creates and removes users.
type Provisioner struct {
	logger   log.Logger
	coord    ports.Coordinator
	sessions ports.SessionManager
	users    ports.IdentityStore
	restart  RestartTracker
	headless bool
	timeout  atomic.Int64
}

// Config holds construction parameters.
type Config struct {
	Coordinator    ports.Coordinator
	SessionManager ports.SessionManager
	IdentityStore  ports.IdentityStore
	Restart        RestartTracker
	Logger         log.Logger
	Timeout        time.Duration
	Headless       bool
}

// New creates a provisioner.
func New(cfg Config) *Provisioner {
	if cfg.Logger == nil {
		cfg.Logger = log.NewNoopLogger()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	p := &Provisioner{
		logger:   cfg.Logger,
		coord:    cfg.Coordinator,
		sessions: cfg.SessionManager,
		users:    cfg.IdentityStore,
		restart:  cfg.Restart,
		headless: cfg.Headless,
	}
	p.timeout.Store(int64(cfg.Timeout))
	return p
}

// SetTimeout changes the default round-trip timeout.
func (p *Provisioner) SetTimeout(d time.Duration) {
	if d > 0 {
		p.timeout.Store(int64(d))
	}
}

// CreateUser creates a user locally and has the coordinator ratify it. A
// non-positive timeout uses the default.
func (p *Provisioner) CreateUser(ctx context.Context, name, userType string, flags domain.UserFlags, timeout time.Duration) domain.CreateResult {
	if userType == "" {
		return p.createResult(domain.CreateResult{Status: domain.CreateInvalidRequest, ErrorMessage: "user type is required"})
	}
	if timeout <= 0 {
		timeout = time.Duration(p.timeout.Load())
	}

	created, err := p.users.CreateUser(name, userType, flags)
	if err != nil {
		p.logger.Warn("local user creation failed",
			log.String("type", userType),
			log.Stringer("flags", flags),
			log.Err(err),
		)
		return p.createResult(domain.CreateResult{Status: domain.CreateAndroidFailure, ErrorMessage: err.Error()})
	}
	p.logger.Debug("created user", log.Stringer("user", created))

	if !p.coord.Capabilities().Create {
		return p.createResult(domain.CreateResult{Status: domain.CreateSuccessful, User: &created})
	}

	req := ports.CreateRequest{
		NewUser: created,
		Name:    name,
		Users:   domain.NewUsersInfo(p.sessions.CurrentUser(), p.users.Users()),
	}
	resp, err := roundtrip.Do(ctx, "create", timeout, func(ctx context.Context) (ports.CreateResponse, error) {
		return p.coord.Create(ctx, req)
	})
	if err != nil {
		p.compensate(created, fmt.Sprintf("coordinator call failed: %v", err))
		return p.createResult(domain.CreateResult{Status: domain.CreateHalInternalFailure, ErrorMessage: err.Error()})
	}
	if !resp.Approved {
		p.compensate(created, "coordinator rejected user")
		return p.createResult(domain.CreateResult{Status: domain.CreateHalFailure, ErrorMessage: resp.ErrorMessage})
	}
	return p.createResult(domain.CreateResult{Status: domain.CreateSuccessful, User: &created, ErrorMessage: resp.ErrorMessage})
}

// CreateDriver creates a full user. Only an admin or the system user may
// create another admin.
func (p *Provisioner) CreateDriver(ctx context.Context, name string, admin bool) domain.CreateResult {
	var flags domain.UserFlags
	if admin {
		current := p.sessions.CurrentUser()
		rec, err := p.users.User(current)
		if current != domain.SystemUser && (err != nil || !rec.IsAdmin()) {
			p.logger.Error("only admin users and the system user can create other admins",
				log.Int("current", int(current)),
			)
			return p.createResult(domain.CreateResult{Status: domain.CreateInvalidRequest, ErrorMessage: "current user cannot create admins"})
		}
		flags = domain.FlagAdmin
	}
	return p.CreateUser(ctx, name, domain.DefaultUserType(flags), flags, 0)
}

// CreateProfileUser creates a non-admin managed profile owned by driverID.
// The coordinator is not involved.
func (p *Provisioner) CreateProfileUser(name string, driverID domain.UserID) domain.CreateResult {
	driver, err := p.users.User(driverID)
	if err != nil {
		p.logger.Warn("profile owner does not exist", log.Int("driver", int(driverID)))
		return p.createResult(domain.CreateResult{Status: domain.CreateInvalidRequest, ErrorMessage: "driver does not exist"})
	}
	if driver.IsGuest() {
		p.logger.Warn("a guest driver cannot own a profile", log.Int("driver", int(driverID)))
		return p.createResult(domain.CreateResult{Status: domain.CreateInvalidRequest, ErrorMessage: "guest driver cannot own a profile"})
	}
	created, err := p.users.CreateProfile(name, domain.UserTypeProfileManaged, domain.FlagManagedProfile, driverID)
	if err != nil {
		p.logger.Warn("cannot create profile", log.Int("driver", int(driverID)), log.Err(err))
		return p.createResult(domain.CreateResult{Status: domain.CreateAndroidFailure, ErrorMessage: err.Error()})
	}
	return p.createResult(domain.CreateResult{Status: domain.CreateSuccessful, User: &created})
}

// RemoveUser removes a user and informs the coordinator.
func (p *Provisioner) RemoveUser(id domain.UserID) domain.RemoveResult {
	if id == p.sessions.CurrentUser() {
		return p.removeResult(id, domain.RemoveTargetIsCurrentUser)
	}
	removed, err := p.users.User(id)
	if err != nil {
		return p.removeResult(id, domain.RemoveUserDoesNotExist)
	}

	info := domain.NewUsersInfo(p.sessions.CurrentUser(), p.users.Users())
	lastAdmin := removed.IsAdmin() && info.AdminCount() == 1

	if err := p.users.RemoveUser(id); err != nil {
		p.logger.Warn("local user removal failed", log.Int("user", int(id)), log.Err(err))
		return p.removeResult(id, domain.RemoveAndroidFailure)
	}
	if p.restart != nil {
		p.restart.Forget(id)
	}

	if p.coord.Capabilities().Remove {
		p.coord.Remove(ports.RemoveRequest{
			Removed: removed,
			Users:   domain.NewUsersInfo(p.sessions.CurrentUser(), p.users.Users()),
		})
	}

	if lastAdmin {
		p.logger.Warn("last admin user removed", log.Int("user", int(id)))
		return p.removeResult(id, domain.RemoveSuccessfulLastAdminRemoved)
	}
	return p.removeResult(id, domain.RemoveSuccessful)
}

// ListPersistentUsers returns enabled full users that survive the session,
// excluding the headless system user.
func (p *Provisioner) ListPersistentUsers() []domain.UserRecord {
	return p.filter(func(u domain.UserRecord) bool {
		return u.Enabled && !u.IsManagedProfile() && !u.IsEphemeral()
	})
}

// ListProfilesOf returns the enabled managed profiles owned by driverID.
func (p *Provisioner) ListProfilesOf(driverID domain.UserID) []domain.UserRecord {
	return p.filter(func(u domain.UserRecord) bool {
		return u.Enabled && u.IsManagedProfile() && u.ProfileGroupID == driverID
	})
}

func (p *Provisioner) filter(keep func(domain.UserRecord) bool) []domain.UserRecord {
	var out []domain.UserRecord
	for _, u := range p.users.Users() {
		if p.headless && u.ID == domain.SystemUser {
			continue
		}
		if keep(u) {
			out = append(out, u)
		}
	}
	return out
}

// compensate removes a user whose creation was not ratified.
func (p *Provisioner) compensate(u domain.UserRecord, reason string) {
	p.logger.Info("removing user after failed ratification",
		log.Int("user", int(u.ID)),
		log.String("reason", reason),
	)
	if err := p.users.RemoveUser(u.ID); err != nil {
		p.logger.Error("failed to remove unratified user", log.Int("user", int(u.ID)), log.Err(err))
	}
}

func (p *Provisioner) createResult(res domain.CreateResult) domain.CreateResult {
	metrics.RecordCreate(res.Status.String())
	return res
}

func (p *Provisioner) removeResult(id domain.UserID, status domain.RemoveStatus) domain.RemoveResult {
	metrics.RecordRemove(status.String())
	p.logger.Info("remove user", log.Int("user", int(id)), log.Stringer("status", status))
	return domain.RemoveResult{Status: status}
}
