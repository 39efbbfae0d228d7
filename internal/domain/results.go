package domain

import "fmt"

// SwitchStatus is the outcome of a switch request.
type SwitchStatus int

const (
	SwitchSuccessful SwitchStatus = iota + 1
	SwitchAlreadyInForeground
	SwitchAlreadyBeingSwitchedTo
	SwitchAbandonedForNewerRequest
	SwitchCoordinatorFailure
	SwitchCoordinatorInternalFailure
	SwitchOSFailure
	SwitchInvalidRequest
)

func (s SwitchStatus) String() string {
	switch s {
	case SwitchSuccessful:
		return "Successful"
	case SwitchAlreadyInForeground:
		return "AlreadyInForeground"
	case SwitchAlreadyBeingSwitchedTo:
		return "AlreadyBeingSwitchedTo"
	case SwitchAbandonedForNewerRequest:
		return "AbandonedForNewerRequest"
	case SwitchCoordinatorFailure:
		return "CoordinatorFailure"
	case SwitchCoordinatorInternalFailure:
		return "CoordinatorInternalFailure"
	case SwitchOSFailure:
		return "OSFailure"
	case SwitchInvalidRequest:
		return "InvalidRequest"
	default:
		return fmt.Sprintf("SwitchStatus(%d)", int(s))
	}
}

// Success reports whether the switch reached (or already was at) the target.
func (s SwitchStatus) Success() bool {
	return s == SwitchSuccessful || s == SwitchAlreadyInForeground
}

// SwitchResult is delivered once per switch request.
type SwitchResult struct {
	Status       SwitchStatus
	ErrorMessage string
}

// CreateStatus is the outcome of a user creation.
type CreateStatus int

const (
	CreateSuccessful CreateStatus = iota + 1
	CreateAndroidFailure
	CreateHalFailure
	CreateHalInternalFailure
	CreateInvalidRequest
)

func (s CreateStatus) String() string {
	switch s {
	case CreateSuccessful:
		return "Successful"
	case CreateAndroidFailure:
		return "AndroidFailure"
	case CreateHalFailure:
		return "HalFailure"
	case CreateHalInternalFailure:
		return "HalInternalFailure"
	case CreateInvalidRequest:
		return "InvalidRequest"
	default:
		return fmt.Sprintf("CreateStatus(%d)", int(s))
	}
}

// CreateResult carries the created user on success.
type CreateResult struct {
	Status       CreateStatus
	User         *UserRecord
	ErrorMessage string
}

// RemoveStatus is the outcome of a user removal.
type RemoveStatus int

const (
	RemoveSuccessful RemoveStatus = iota + 1
	RemoveSuccessfulLastAdminRemoved
	RemoveTargetIsCurrentUser
	RemoveUserDoesNotExist
	RemoveAndroidFailure
)

func (s RemoveStatus) String() string {
	switch s {
	case RemoveSuccessful:
		return "Successful"
	case RemoveSuccessfulLastAdminRemoved:
		return "SuccessfulLastAdminRemoved"
	case RemoveTargetIsCurrentUser:
		return "TargetIsCurrentUser"
	case RemoveUserDoesNotExist:
		return "UserDoesNotExist"
	case RemoveAndroidFailure:
		return "AndroidFailure"
	default:
		return fmt.Sprintf("RemoveStatus(%d)", int(s))
	}
}

// Success reports whether the user was removed.
func (s RemoveStatus) Success() bool {
	return s == RemoveSuccessful || s == RemoveSuccessfulLastAdminRemoved
}

// RemoveResult is returned by user removal.
type RemoveResult struct {
	Status RemoveStatus
}

// AssociationStatus is the outcome of an identification association call.
type AssociationStatus int

const (
	AssociationSuccessful AssociationStatus = iota + 1
	AssociationFailure
	AssociationNotSupported
	AssociationInvalidRequest
)

func (s AssociationStatus) String() string {
	switch s {
	case AssociationSuccessful:
		return "Successful"
	case AssociationFailure:
		return "Failure"
	case AssociationNotSupported:
		return "NotSupported"
	case AssociationInvalidRequest:
		return "InvalidRequest"
	default:
		return fmt.Sprintf("AssociationStatus(%d)", int(s))
	}
}

// AssociationResult carries the association values returned by the coordinator.
type AssociationResult struct {
	Status       AssociationStatus
	Values       []int
	ErrorMessage string
}

// InitialUserAction is the coordinator's answer to "which user should boot".
type InitialUserAction int

const (
	InitialUserDefault InitialUserAction = iota
	InitialUserSwitch
	InitialUserCreate
)

func (a InitialUserAction) String() string {
	switch a {
	case InitialUserDefault:
		return "Default"
	case InitialUserSwitch:
		return "Switch"
	case InitialUserCreate:
		return "Create"
	default:
		return fmt.Sprintf("InitialUserAction(%d)", int(a))
	}
}

// InitialUserInfo is the coordinator's boot-time user decision.
type InitialUserInfo struct {
	Action InitialUserAction

	// UserID is the user to switch to when Action is InitialUserSwitch.
	UserID UserID

	// Name and Flags describe the user to create when Action is InitialUserCreate.
	Name  string
	Flags UserFlags

	Locales string
}
