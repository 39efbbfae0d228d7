// Package usercoord coordinates foreground user switching, user creation and
// removal, and lifecycle event fan-out on a multi-user vehicle head unit
// with an external vehicle coordinator.
//
// Example usage:
//
//	svc, err := usercoord.New(usercoord.DefaultConfig(),
//	    usercoord.WithSessionManager(sessions),
//	    usercoord.WithIdentityStore(users),
//	    usercoord.WithCoordinator(vehicle),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := svc.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Stop()
//
//	res := svc.SwitchUser(ctx, driverID, 0)
//
// The full API lives in pkg/usercoord; this package re-exports the entry
// points.
package usercoord

import (
	"io"

	"github.com/rs/zerolog"

	"github.com/bft-labs/usercoord/pkg/log"
	core "github.com/bft-labs/usercoord/pkg/usercoord"
)

// Config holds the configuration of the coordination service.
type Config = core.Config

// Service is the user coordination service.
type Service = core.Service

// Option configures optional behavior of a Service.
type Option = core.Option

// New creates a Service. See pkg/usercoord for the available options.
func New(cfg Config, opts ...Option) (*Service, error) {
	return core.New(cfg, opts...)
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return core.DefaultConfig()
}

// ConsoleLogger returns a human-readable logger writing to w at level.
func ConsoleLogger(w io.Writer, level zerolog.Level) core.Logger {
	return log.NewConsoleAdapter(w, level)
}
