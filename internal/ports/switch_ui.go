package ports

import "github.com/bft-labs/usercoord/internal/domain"

// SwitchUI is notified right after a switch is committed so that it can show
// switch-in-progress feedback. Errors are logged and otherwise ignored.
type SwitchUI interface {
	SwitchInProgress(target domain.UserID) error
}
