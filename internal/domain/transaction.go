package domain

import "fmt"

// CorrelationToken identifies a coordinator round trip. It is minted by the
// external coordinator and treated as opaque. The zero value means unset.
type CorrelationToken string

// NoToken is the unset correlation token.
const NoToken CorrelationToken = ""

// IsSet reports whether the token carries a coordinator-minted value.
func (t CorrelationToken) IsSet() bool { return t != NoToken }

// TxState is the state of a SwitchTransaction.
type TxState int

const (
	TxPending TxState = iota
	TxAwaitingCoordinator
	TxAwaitingOSCommit
	TxAwaitingUnlockAck
	TxCompleted
	TxAbandoned
	TxFailed
)

func (s TxState) String() string {
	switch s {
	case TxPending:
		return "Pending"
	case TxAwaitingCoordinator:
		return "AwaitingCoordinator"
	case TxAwaitingOSCommit:
		return "AwaitingOSCommit"
	case TxAwaitingUnlockAck:
		return "AwaitingUnlockAck"
	case TxCompleted:
		return "Completed"
	case TxAbandoned:
		return "Abandoned"
	case TxFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Terminal reports whether the state ends a transaction.
func (s TxState) Terminal() bool {
	return s == TxCompleted || s == TxAbandoned || s == TxFailed
}

// SwitchTransaction is the single tracked user switch.
type SwitchTransaction struct {
	Target UserID
	Token  CorrelationToken

	// Prior is the foreground user captured when the transaction was installed.
	Prior UserID

	State TxState

	// Seq distinguishes successive transactions for the same target.
	Seq uint64
}

func (t SwitchTransaction) String() string {
	return fmt.Sprintf("SwitchTransaction{seq=%d, target=%d, token=%q, prior=%d, state=%s}",
		t.Seq, t.Target, t.Token, t.Prior, t.State)
}
