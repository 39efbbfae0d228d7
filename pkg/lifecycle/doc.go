// Package lifecycle provides the service state machine and worker ownership.
//
// A [Manager] tracks one of five states (Stopped, Starting, Running,
// Stopping, Crashed), runs the service workers in an errgroup and bounds
// graceful shutdown with a timeout.
//
// # Usage
//
//	manager := lifecycle.NewManager(logger, emitter)
//
//	ctx, err := manager.Begin(parent, "Start() called")
//	if err != nil {
//	    return err
//	}
//	manager.Go("bus", func() error { return bus.Run(ctx) })
//	_ = manager.TransitionTo(lifecycle.StateRunning, "workers started")
//
//	// Graceful shutdown
//	if err := manager.Shutdown(lifecycle.ShutdownTimeout); err != nil {
//	    return err
//	}
//
// # State Machine
//
// Valid state transitions:
//   - Stopped -> Starting
//   - Starting -> Running, Crashed
//   - Running -> Stopping, Crashed
//   - Stopping -> Stopped, Crashed
//   - Crashed -> Starting, Stopping
//
// # Version
//
// Current version: 2.0.0
// Minimum compatible version: 2.0.0
//
// See version.go for version constants that can be used programmatically.
package lifecycle
