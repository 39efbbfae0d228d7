// Package ports defines the interfaces (ports) that connect the coordination
// core to the collaborators it does not own.
//
// Ports are the boundaries between the application core and the outside
// world. They define what the core needs from external systems without
// specifying how those needs are fulfilled.
//
// # Port Interfaces
//
//   - [Coordinator]: the external hardware-side coordinator (request/response with timeout)
//   - [SessionManager]: the OS facility that switches, starts, unlocks and stops users
//   - [IdentityStore]: CRUD for user records
//   - [SwitchUI]: fire-and-forget "switch in progress" signal
//   - [Listener], [RemoteListener]: lifecycle event subscribers
//
// # Usage
//
// The core packages (internal/switching, internal/provision, internal/restart,
// internal/association, internal/eventbus) depend only on these interfaces.
// Adapters (internal/adapters) implement them for development and tests.
package ports
