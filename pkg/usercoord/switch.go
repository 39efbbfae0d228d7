package usercoord

import (
	"context"
	"time"

	"github.com/bft-labs/usercoord/internal/domain"
	"github.com/bft-labs/usercoord/internal/ports"
	"github.com/bft-labs/usercoord/pkg/log"
)

const notRunningMessage = "service not running"

// RequestSwitch asks to bring target to the foreground. The returned channel
// receives exactly one result. A non-positive timeout uses the configured
// coordinator timeout.
func (s *Service) RequestSwitch(target UserID, timeout time.Duration) <-chan SwitchResult {
	rt := s.current()
	if rt == nil {
		ch := make(chan SwitchResult, 1)
		ch <- SwitchResult{Status: domain.SwitchOSFailure, ErrorMessage: notRunningMessage}
		return ch
	}
	return rt.switcher.RequestSwitch(target, timeout)
}

// SwitchUser is the blocking form of RequestSwitch. It returns early with
// CoordinatorInternalFailure when ctx is done.
func (s *Service) SwitchUser(ctx context.Context, target UserID, timeout time.Duration) SwitchResult {
	rt := s.current()
	if rt == nil {
		return SwitchResult{Status: domain.SwitchOSFailure, ErrorMessage: notRunningMessage}
	}
	return rt.switcher.SwitchUser(ctx, target, timeout)
}

// SwitchDriver switches to a driver, a full user that is not a profile.
func (s *Service) SwitchDriver(ctx context.Context, driverID UserID, timeout time.Duration) SwitchResult {
	user, err := s.users.User(driverID)
	if err != nil {
		return SwitchResult{Status: domain.SwitchInvalidRequest, ErrorMessage: err.Error()}
	}
	if user.IsManagedProfile() {
		s.logger.Warn("refusing to switch to a profile user as driver", log.Int("user", int(driverID)))
		return SwitchResult{Status: domain.SwitchInvalidRequest, ErrorMessage: "user is a profile, not a driver"}
	}
	return s.SwitchUser(ctx, driverID, timeout)
}

// HandleCoordinatorSwitch performs a switch initiated by the coordinator.
// The switch is acknowledged with token once the target is unlocked. While
// the service is not running the switch is not performed, and token is
// acknowledged at once with the unchanged foreground user.
func (s *Service) HandleCoordinatorSwitch(token CorrelationToken, target UserID) {
	rt := s.current()
	if rt == nil {
		current := s.sessions.CurrentUser()
		s.logger.Warn("coordinator switch dropped, service not running",
			log.Int("target", int(target)), log.String("token", string(token)))
		s.coord.PostSwitch(ports.PostSwitchNotice{
			Token:  token,
			Prior:  current,
			Target: target,
			Users:  domain.NewUsersInfo(current, s.users.Users()),
		})
		return
	}
	rt.switcher.HandleCoordinatorSwitch(token, target)
}

// InFlight returns the in-flight switch transaction, if any.
func (s *Service) InFlight() (SwitchTransaction, bool) {
	rt := s.current()
	if rt == nil {
		return SwitchTransaction{}, false
	}
	return rt.switcher.InFlight()
}

// SetSwitchUI replaces the switch-in-progress UI; nil removes it.
func (s *Service) SetSwitchUI(ui SwitchUI) {
	s.tunMu.Lock()
	defer s.tunMu.Unlock()
	s.ui = ui
	if rt := s.current(); rt != nil {
		rt.switcher.SetSwitchUI(ui)
	}
}

// SetCoordinatorTimeout changes the default timeout of every coordinator
// round trip. Non-positive values are ignored.
func (s *Service) SetCoordinatorTimeout(d time.Duration) {
	if d <= 0 {
		s.logger.Warn("ignoring non-positive coordinator timeout", log.Duration("timeout", d))
		return
	}
	s.tunMu.Lock()
	defer s.tunMu.Unlock()
	s.timeout = d
	s.provisioner.SetTimeout(d)
	s.bridge.SetTimeout(d)
	if rt := s.current(); rt != nil {
		rt.switcher.SetTimeout(d)
	}
}

// CoordinatorTimeout returns the default coordinator round-trip timeout.
func (s *Service) CoordinatorTimeout() time.Duration {
	s.tunMu.Lock()
	defer s.tunMu.Unlock()
	return s.timeout
}
