// Package usercoord provides an embeddable multi-user coordination service
// for vehicles.
//
// The service decides which user is in the foreground, negotiates every
// change with an external hardware-side coordinator, commits it to the OS
// session manager and fans lifecycle notifications out to in-process and
// cross-process listeners. It also keeps a bounded set of background users
// that are restarted after a power cycle.
//
// # Basic Usage
//
//	svc, err := usercoord.New(usercoord.DefaultConfig(),
//	    usercoord.WithSessionManager(sessions),
//	    usercoord.WithIdentityStore(users),
//	    usercoord.WithCoordinator(coordinator),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := svc.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Stop()
//
//	res := svc.SwitchUser(ctx, 10, 0)
//
// The OS session manager reports lifecycle changes through
// [Service.OnLifecycleEvent]; switches started by the coordinator itself
// arrive through [Service.HandleCoordinatorSwitch].
//
// # Results
//
// Operations complete with result values ([SwitchResult], [CreateResult],
// [RemoveResult], [AssociationResult]). Errors are reserved for New, Start,
// Stop and listener registration. Switching and listener registration need
// a running service; user provisioning, associations and the restart
// registry work in any state.
//
// # Persistence
//
// When Config.StateDir is set the restart registry and the initial user
// survive restarts in StateDir/usercoord.json.
//
// # Plugins
//
// Plugins registered with [WithPlugin] are initialized by Start and shut
// down by Stop. They receive [Tunables] to adjust the coordinator timeout
// and the running user bound at runtime:
//
//	import "github.com/bft-labs/usercoord/plugins/configwatcher"
//
//	svc, err := usercoord.New(cfg, opts...,
//	    configwatcher.WithConfigWatcher(configwatcher.Config{Path: "/etc/usercoord.toml"}),
//	)
//
// # Lifecycle States
//
// A Service can be in one of five states: [StateStopped], [StateStarting],
// [StateRunning], [StateStopping], or [StateCrashed]. Use [Service.Status]
// to query the current state.
//
// # Version
//
// Current version: 1.0.0
// Minimum compatible version: 1.0.0
package usercoord
