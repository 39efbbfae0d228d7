package main

import (
	"context"
	"fmt"

	"github.com/bft-labs/usercoord/internal/domain"
	"github.com/bft-labs/usercoord/pkg/log"
	"github.com/bft-labs/usercoord/pkg/usercoord"
)

// initialUserRequestFirstBoot is the request type sent on a cold boot.
const initialUserRequestFirstBoot = 1

// seedDrivers creates drivers until n exist. It returns the drivers.
func seedDrivers(ctx context.Context, svc *usercoord.Service, n int, logger log.Logger) ([]usercoord.UserID, error) {
	drivers := listDrivers(svc)
	for i := len(drivers); i < n; i++ {
		res := svc.CreateDriver(ctx, fmt.Sprintf("Driver %d", i+1), i == 0)
		if res.Status != domain.CreateSuccessful {
			return drivers, fmt.Errorf("create driver %d: %s: %s", i+1, res.Status, res.ErrorMessage)
		}
		logger.Info("driver created", log.Int("user", int(res.User.ID)), log.String("name", res.User.Name))
		drivers = append(drivers, res.User.ID)
	}
	return drivers, nil
}

// listDrivers returns the persistent full users other than the system user.
func listDrivers(svc *usercoord.Service) []usercoord.UserID {
	var ids []usercoord.UserID
	for _, u := range svc.ListPersistentUsers() {
		if u.ID == usercoord.SystemUser || u.IsManagedProfile() || u.IsGuest() {
			continue
		}
		ids = append(ids, u.ID)
	}
	return ids
}

// bootInitialUser brings up the boot user. The coordinator decides when it
// can; otherwise the persisted initial user is used, then the first driver.
func bootInitialUser(ctx context.Context, svc *usercoord.Service, drivers []usercoord.UserID, logger log.Logger) usercoord.UserID {
	target := usercoord.NullUser

	info, err := svc.InitialUserInfo(ctx, initialUserRequestFirstBoot, 0)
	switch {
	case err != nil:
		logger.Warn("no initial user decision from coordinator", log.Err(err))
	case info.Action == domain.InitialUserSwitch:
		target = info.UserID
	case info.Action == domain.InitialUserCreate:
		res := svc.CreateUser(ctx, info.Name, domain.UserTypeFull, info.Flags, 0)
		if res.Status == domain.CreateSuccessful {
			target = res.User.ID
		} else {
			logger.Warn("initial user creation failed",
				log.Stringer("status", res.Status), log.String("error", res.ErrorMessage))
		}
	}

	if target == usercoord.NullUser {
		target = svc.GetInitialUser()
	}
	if target == usercoord.NullUser && len(drivers) > 0 {
		target = drivers[0]
	}
	if target == usercoord.NullUser {
		return usercoord.NullUser
	}

	res := svc.SwitchUser(ctx, target, 0)
	if !res.Status.Success() {
		logger.Warn("initial user switch failed",
			log.Int("user", int(target)),
			log.Stringer("status", res.Status),
			log.String("error", res.ErrorMessage))
		return usercoord.NullUser
	}
	if err := svc.SetInitialUser(ctx, target); err != nil {
		logger.Warn("failed to record initial user", log.Err(err))
	}
	return target
}
