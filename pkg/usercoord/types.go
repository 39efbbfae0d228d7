package usercoord

import (
	"github.com/bft-labs/usercoord/internal/domain"
	"github.com/bft-labs/usercoord/internal/ports"
	"github.com/bft-labs/usercoord/pkg/lifecycle"
	"github.com/bft-labs/usercoord/pkg/log"
)

// Re-export domain types so embedders do not need internal packages.
type (
	UserID            = domain.UserID
	UserFlags         = domain.UserFlags
	UserRecord        = domain.UserRecord
	UsersInfo         = domain.UsersInfo
	CorrelationToken  = domain.CorrelationToken
	LifecycleEvent    = domain.LifecycleEvent
	EventType         = domain.EventType
	SwitchTransaction = domain.SwitchTransaction
	SwitchStatus      = domain.SwitchStatus
	SwitchResult      = domain.SwitchResult
	CreateStatus      = domain.CreateStatus
	CreateResult      = domain.CreateResult
	RemoveStatus      = domain.RemoveStatus
	RemoveResult      = domain.RemoveResult
	AssociationResult = domain.AssociationResult
	InitialUserInfo   = domain.InitialUserInfo
)

// Re-export collaborator ports.
type (
	Coordinator    = ports.Coordinator
	Capabilities   = ports.Capabilities
	SessionManager = ports.SessionManager
	IdentityStore  = ports.IdentityStore
	SwitchUI       = ports.SwitchUI
	Listener       = ports.Listener
	RemoteListener = ports.RemoteListener
	UID            = ports.UID
)

// Logger is the structured logger accepted by WithLogger.
type Logger = log.Logger

// State is the lifecycle state of a Service.
type State = lifecycle.State

const (
	StateStopped  = lifecycle.StateStopped
	StateStarting = lifecycle.StateStarting
	StateRunning  = lifecycle.StateRunning
	StateStopping = lifecycle.StateStopping
	StateCrashed  = lifecycle.StateCrashed
)

const (
	NullUser   = domain.NullUser
	SystemUser = domain.SystemUser
)

// Errors returned by construction and lifecycle calls.
var (
	ErrAlreadyRunning  = domain.ErrAlreadyRunning
	ErrNotRunning      = domain.ErrNotRunning
	ErrShutdownTimeout = domain.ErrShutdownTimeout
	ErrInvalidConfig   = domain.ErrInvalidConfig
	ErrNotSupported    = domain.ErrNotSupported
)

// NewListenerFunc returns a removable Listener calling fn.
func NewListenerFunc(fn func(LifecycleEvent)) Listener {
	return ports.NewListenerFunc(fn)
}
