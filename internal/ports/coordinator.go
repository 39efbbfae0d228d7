package ports

import (
	"context"

	"github.com/bft-labs/usercoord/internal/domain"
)

// Capabilities describes what the external coordinator supports.
// A zero value means the coordinator is absent.
type Capabilities struct {
	Switch      bool
	Create      bool
	Remove      bool
	Association bool
}

// SwitchDecision is the coordinator verdict on a switch request.
type SwitchDecision int

const (
	SwitchDecisionUnknown SwitchDecision = iota
	SwitchApproved
	SwitchVetoed
)

// SwitchRequest asks the coordinator to approve a user switch.
type SwitchRequest struct {
	Target domain.UserRecord
	Users  domain.UsersInfo
}

// SwitchResponse is the coordinator answer to a SwitchRequest.
type SwitchResponse struct {
	Token        domain.CorrelationToken
	Decision     SwitchDecision
	ErrorMessage string
}

// PostSwitchNotice tells the coordinator how a negotiated switch ended.
type PostSwitchNotice struct {
	Token  domain.CorrelationToken
	Prior  domain.UserID
	Target domain.UserID
	Users  domain.UsersInfo
}

// LegacySwitchNotice tells the coordinator about a switch it did not negotiate.
type LegacySwitchNotice struct {
	From  domain.UserID
	To    domain.UserRecord
	Users domain.UsersInfo
}

// CreateRequest asks the coordinator to ratify a locally created user.
type CreateRequest struct {
	NewUser domain.UserRecord
	Name    string
	Users   domain.UsersInfo
}

// CreateResponse is the coordinator answer to a CreateRequest.
type CreateResponse struct {
	Approved     bool
	ErrorMessage string
}

// RemoveRequest informs the coordinator that a user was removed.
type RemoveRequest struct {
	Removed domain.UserRecord
	Users   domain.UsersInfo
}

// AssociationRequest reads or writes identification associations for a user.
// Values is only used for writes and must match Types in length.
type AssociationRequest struct {
	User   domain.UserRecord
	Types  []int
	Values []int
}

// AssociationResponse holds one value per requested type.
type AssociationResponse struct {
	Values       []int
	ErrorMessage string
}

// InitialUserRequest asks the coordinator which user should be brought up at boot.
type InitialUserRequest struct {
	RequestType int
	Users       domain.UsersInfo
}

// Coordinator is the external hardware-side component that approves, vetoes
// or itself initiates user changes.
//
// Blocking calls return when the coordinator answers or ctx is done; a done
// ctx must surface as an error, never a hang. One-way notices must not block.
type Coordinator interface {
	// Capabilities reports what the coordinator supports.
	Capabilities() Capabilities

	// Switch negotiates a user switch. The response token correlates the
	// follow-up PostSwitch notice.
	Switch(ctx context.Context, req SwitchRequest) (SwitchResponse, error)

	// PostSwitch reports the outcome of a negotiated switch.
	PostSwitch(notice PostSwitchNotice)

	// LegacySwitch reports a switch that was not negotiated.
	LegacySwitch(notice LegacySwitchNotice)

	// Create asks the coordinator to ratify a new user.
	Create(ctx context.Context, req CreateRequest) (CreateResponse, error)

	// Remove reports a removed user.
	Remove(req RemoveRequest)

	// GetAssociations reads identification associations synchronously.
	GetAssociations(req AssociationRequest) (AssociationResponse, error)

	// SetAssociations writes identification associations.
	SetAssociations(ctx context.Context, req AssociationRequest) (AssociationResponse, error)

	// InitialUserInfo asks which user to bring up at boot.
	InitialUserInfo(ctx context.Context, req InitialUserRequest) (domain.InitialUserInfo, error)
}
