// Package domain contains the core entities and value objects of the user
// coordination service.
//
// This package is the innermost layer. It has no dependencies on the
// coordinator, the OS session manager, logging, or persistence, and contains
// only value types and the rules attached to them.
//
// # Entities
//
//   - [UserRecord]: a snapshot of a user as known to the identity store
//   - [UsersInfo]: the known-user directory sent to the external coordinator
//   - [LifecycleEvent]: an immutable user lifecycle notification
//   - [SwitchTransaction]: the single in-flight user switch
//
// # Results
//
// Every public operation completes with a result value ([SwitchResult],
// [CreateResult], [RemoveResult], [AssociationResult]) rather than an error.
// Errors are reserved for construction and lifecycle failures.
package domain
