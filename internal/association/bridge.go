// Package association reads and writes the identification associations
// (key fob, custom ids) that bind a user to the vehicle, through the
// external coordinator.
package association

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bft-labs/usercoord/internal/domain"
	"github.com/bft-labs/usercoord/internal/metrics"
	"github.com/bft-labs/usercoord/internal/ports"
	"github.com/bft-labs/usercoord/internal/roundtrip"
	"github.com/bft-labs/usercoord/pkg/log"
)

// DefaultTimeout bounds a set round trip when none is given.
const DefaultTimeout = 5 * time.Second

const notSupportedMessage = "coordinator does not support user identification associations"

// Bridge forwards association calls to the coordinator.
type Bridge struct {
	logger  log.Logger
	coord   ports.Coordinator
	users   ports.IdentityStore
	timeout atomic.Int64
}

// New creates a bridge.
func New(coord ports.Coordinator, users ports.IdentityStore, timeout time.Duration, logger log.Logger) *Bridge {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	b := &Bridge{logger: logger, coord: coord, users: users}
	b.timeout.Store(int64(timeout))
	return b
}

// SetTimeout changes the default round-trip timeout.
func (b *Bridge) SetTimeout(d time.Duration) {
	if d > 0 {
		b.timeout.Store(int64(d))
	}
}

// Get returns the caller's association values for types.
func (b *Bridge) Get(caller domain.UserID, types []int) domain.AssociationResult {
	if !b.coord.Capabilities().Association {
		return b.result("get", domain.AssociationResult{Status: domain.AssociationNotSupported, ErrorMessage: notSupportedMessage})
	}
	if len(types) == 0 {
		return b.result("get", domain.AssociationResult{Status: domain.AssociationInvalidRequest, ErrorMessage: "must have at least one type"})
	}
	user, err := b.users.User(caller)
	if err != nil {
		return b.result("get", domain.AssociationResult{Status: domain.AssociationInvalidRequest, ErrorMessage: err.Error()})
	}

	resp, err := b.coord.GetAssociations(ports.AssociationRequest{User: user, Types: types})
	if err != nil {
		b.logger.Warn("get associations failed", log.Int("user", int(caller)), log.Err(err))
		return b.result("get", domain.AssociationResult{Status: domain.AssociationFailure, ErrorMessage: errMessage(resp.ErrorMessage, err)})
	}
	return b.result("get", domain.AssociationResult{Status: domain.AssociationSuccessful, Values: resp.Values, ErrorMessage: resp.ErrorMessage})
}

// Set writes the caller's association values. Calls from the same caller
// are not serialized against each other. A non-positive timeout uses the
// default.
func (b *Bridge) Set(ctx context.Context, caller domain.UserID, types, values []int, timeout time.Duration) domain.AssociationResult {
	if !b.coord.Capabilities().Association {
		return b.result("set", domain.AssociationResult{Status: domain.AssociationNotSupported, ErrorMessage: notSupportedMessage})
	}
	switch {
	case len(types) == 0:
		return b.result("set", domain.AssociationResult{Status: domain.AssociationInvalidRequest, ErrorMessage: "must have at least one type"})
	case len(values) == 0:
		return b.result("set", domain.AssociationResult{Status: domain.AssociationInvalidRequest, ErrorMessage: "must have at least one value"})
	case len(types) != len(values):
		return b.result("set", domain.AssociationResult{
			Status:       domain.AssociationInvalidRequest,
			ErrorMessage: fmt.Sprintf("types (%v) and values (%v) should have the same length", types, values),
		})
	}
	user, err := b.users.User(caller)
	if err != nil {
		return b.result("set", domain.AssociationResult{Status: domain.AssociationInvalidRequest, ErrorMessage: err.Error()})
	}
	if timeout <= 0 {
		timeout = time.Duration(b.timeout.Load())
	}

	req := ports.AssociationRequest{User: user, Types: types, Values: values}
	resp, err := roundtrip.Do(ctx, "set_association", timeout, func(ctx context.Context) (ports.AssociationResponse, error) {
		return b.coord.SetAssociations(ctx, req)
	})
	if err != nil {
		b.logger.Warn("set associations failed", log.Int("user", int(caller)), log.Err(err))
		return b.result("set", domain.AssociationResult{Status: domain.AssociationFailure, ErrorMessage: errMessage(resp.ErrorMessage, err)})
	}
	return b.result("set", domain.AssociationResult{Status: domain.AssociationSuccessful, Values: resp.Values, ErrorMessage: resp.ErrorMessage})
}

func (b *Bridge) result(op string, res domain.AssociationResult) domain.AssociationResult {
	metrics.RecordAssociation(op, res.Status.String())
	return res
}

func errMessage(msg string, err error) string {
	if msg != "" {
		return msg
	}
	return err.Error()
}
