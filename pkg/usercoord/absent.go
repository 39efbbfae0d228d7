package usercoord

import (
	"context"

	"github.com/bft-labs/usercoord/internal/domain"
	"github.com/bft-labs/usercoord/internal/ports"
)

// absentCoordinator stands in when no coordinator is configured. It
// advertises no capability.
type absentCoordinator struct{}

func (absentCoordinator) Capabilities() ports.Capabilities { return ports.Capabilities{} }

func (absentCoordinator) Switch(context.Context, ports.SwitchRequest) (ports.SwitchResponse, error) {
	return ports.SwitchResponse{}, domain.ErrNotSupported
}

func (absentCoordinator) PostSwitch(ports.PostSwitchNotice) {}

func (absentCoordinator) LegacySwitch(ports.LegacySwitchNotice) {}

func (absentCoordinator) Create(context.Context, ports.CreateRequest) (ports.CreateResponse, error) {
	return ports.CreateResponse{}, domain.ErrNotSupported
}

func (absentCoordinator) Remove(ports.RemoveRequest) {}

func (absentCoordinator) GetAssociations(ports.AssociationRequest) (ports.AssociationResponse, error) {
	return ports.AssociationResponse{}, domain.ErrNotSupported
}

func (absentCoordinator) SetAssociations(context.Context, ports.AssociationRequest) (ports.AssociationResponse, error) {
	return ports.AssociationResponse{}, domain.ErrNotSupported
}

func (absentCoordinator) InitialUserInfo(context.Context, ports.InitialUserRequest) (domain.InitialUserInfo, error) {
	return domain.InitialUserInfo{}, domain.ErrNotSupported
}
