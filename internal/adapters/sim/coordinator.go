// Package sim provides a simulated external coordinator for development and
// tests. It mints uuid correlation tokens, answers after a configurable
// latency and keeps at most one create and one association-set request
// pending at a time.
package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bft-labs/usercoord/internal/domain"
	"github.com/bft-labs/usercoord/internal/ports"
	"github.com/bft-labs/usercoord/pkg/log"
)

type requestKind string

const (
	kindCreate         requestKind = "create"
	kindSetAssociation requestKind = "set_association"
)

// SwitchHandler receives switches initiated by the coordinator.
type SwitchHandler func(token domain.CorrelationToken, target domain.UserID)

// Coordinator is a simulated ports.Coordinator.
type Coordinator struct {
	logger  log.Logger
	caps    ports.Capabilities
	latency time.Duration

	mu           sync.Mutex
	pending      map[requestKind]string
	vetoes       map[domain.UserID]string
	rejectCreate string
	associations map[domain.UserID]map[int]int
	initial      domain.InitialUserInfo
	handler      SwitchHandler

	posts   []ports.PostSwitchNotice
	legacy  []ports.LegacySwitchNotice
	removed []domain.UserID
}

// Option configures the simulated coordinator.
type Option func(*Coordinator)

// WithLatency delays every blocking answer by d.
func WithLatency(d time.Duration) Option {
	return func(c *Coordinator) { c.latency = d }
}

// WithCapabilities overrides the advertised capabilities.
func WithCapabilities(caps ports.Capabilities) Option {
	return func(c *Coordinator) { c.caps = caps }
}

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// New creates a simulated coordinator supporting every capability.
func New(opts ...Option) *Coordinator {
	c := &Coordinator{
		logger:       log.NewNoopLogger(),
		caps:         ports.Capabilities{Switch: true, Create: true, Remove: true, Association: true},
		pending:      make(map[requestKind]string),
		vetoes:       make(map[domain.UserID]string),
		associations: make(map[domain.UserID]map[int]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Veto makes switches to target fail with msg. An empty msg lifts the veto.
func (c *Coordinator) Veto(target domain.UserID, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if msg == "" {
		delete(c.vetoes, target)
		return
	}
	c.vetoes[target] = msg
}

// RejectCreate makes user creation fail with msg. An empty msg accepts again.
func (c *Coordinator) RejectCreate(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rejectCreate = msg
}

// SetInitialUserInfo sets the answer to InitialUserInfo.
func (c *Coordinator) SetInitialUserInfo(info domain.InitialUserInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initial = info
}

// SetSwitchHandler installs the receiver of coordinator-initiated switches.
func (c *Coordinator) SetSwitchHandler(h SwitchHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// InitiateSwitch asks the core to switch to target and returns the token
// the acknowledgment will carry.
func (c *Coordinator) InitiateSwitch(target domain.UserID) (domain.CorrelationToken, error) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h == nil {
		return domain.NoToken, fmt.Errorf("initiate switch to %d: no switch handler", target)
	}
	token := newToken()
	c.logger.Info("coordinator initiating switch", log.Int("target", int(target)), log.String("token", string(token)))
	h(token, target)
	return token, nil
}

// PostSwitches returns the acknowledgments received so far.
func (c *Coordinator) PostSwitches() []ports.PostSwitchNotice {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ports.PostSwitchNotice(nil), c.posts...)
}

// LegacySwitches returns the legacy switch notices received so far.
func (c *Coordinator) LegacySwitches() []ports.LegacySwitchNotice {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ports.LegacySwitchNotice(nil), c.legacy...)
}

// Removed returns the users reported as removed.
func (c *Coordinator) Removed() []domain.UserID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.UserID(nil), c.removed...)
}

// Capabilities returns the advertised capabilities.
func (c *Coordinator) Capabilities() ports.Capabilities { return c.caps }

// Switch approves the switch unless target is vetoed.
func (c *Coordinator) Switch(ctx context.Context, req ports.SwitchRequest) (ports.SwitchResponse, error) {
	if !c.caps.Switch {
		return ports.SwitchResponse{}, domain.ErrNotSupported
	}
	token := newToken()
	if err := c.wait(ctx); err != nil {
		return ports.SwitchResponse{}, err
	}

	c.mu.Lock()
	msg, vetoed := c.vetoes[req.Target.ID]
	c.mu.Unlock()
	if vetoed {
		return ports.SwitchResponse{Token: token, Decision: ports.SwitchVetoed, ErrorMessage: msg}, nil
	}
	return ports.SwitchResponse{Token: token, Decision: ports.SwitchApproved}, nil
}

// PostSwitch records the acknowledgment.
func (c *Coordinator) PostSwitch(n ports.PostSwitchNotice) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.posts = append(c.posts, n)
	c.logger.Debug("post switch received",
		log.String("token", string(n.Token)),
		log.Int("prior", int(n.Prior)),
		log.Int("target", int(n.Target)),
	)
}

// LegacySwitch records the notice.
func (c *Coordinator) LegacySwitch(n ports.LegacySwitchNotice) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.legacy = append(c.legacy, n)
}

// Create ratifies a new user unless creation is rejected.
func (c *Coordinator) Create(ctx context.Context, req ports.CreateRequest) (ports.CreateResponse, error) {
	if !c.caps.Create {
		return ports.CreateResponse{}, domain.ErrNotSupported
	}
	done, err := c.begin(kindCreate)
	if err != nil {
		return ports.CreateResponse{}, err
	}
	defer done()
	if err := c.wait(ctx); err != nil {
		return ports.CreateResponse{}, err
	}

	c.mu.Lock()
	msg := c.rejectCreate
	c.mu.Unlock()
	if msg != "" {
		return ports.CreateResponse{Approved: false, ErrorMessage: msg}, nil
	}
	return ports.CreateResponse{Approved: true}, nil
}

// Remove records the removal and drops the user's associations.
func (c *Coordinator) Remove(req ports.RemoveRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removed = append(c.removed, req.Removed.ID)
	delete(c.associations, req.Removed.ID)
}

// GetAssociations returns the stored value for each type, 0 when unset.
func (c *Coordinator) GetAssociations(req ports.AssociationRequest) (ports.AssociationResponse, error) {
	if !c.caps.Association {
		return ports.AssociationResponse{}, domain.ErrNotSupported
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	stored := c.associations[req.User.ID]
	values := make([]int, len(req.Types))
	for i, t := range req.Types {
		values[i] = stored[t]
	}
	return ports.AssociationResponse{Values: values}, nil
}

// SetAssociations stores the values and echoes them back.
func (c *Coordinator) SetAssociations(ctx context.Context, req ports.AssociationRequest) (ports.AssociationResponse, error) {
	if !c.caps.Association {
		return ports.AssociationResponse{}, domain.ErrNotSupported
	}
	if len(req.Types) != len(req.Values) {
		return ports.AssociationResponse{}, domain.ErrMalformedResponse
	}
	done, err := c.begin(kindSetAssociation)
	if err != nil {
		return ports.AssociationResponse{}, err
	}
	defer done()
	if err := c.wait(ctx); err != nil {
		return ports.AssociationResponse{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	stored := c.associations[req.User.ID]
	if stored == nil {
		stored = make(map[int]int)
		c.associations[req.User.ID] = stored
	}
	for i, t := range req.Types {
		stored[t] = req.Values[i]
	}
	return ports.AssociationResponse{Values: append([]int(nil), req.Values...)}, nil
}

// InitialUserInfo returns the configured boot decision.
func (c *Coordinator) InitialUserInfo(ctx context.Context, req ports.InitialUserRequest) (domain.InitialUserInfo, error) {
	if err := c.wait(ctx); err != nil {
		return domain.InitialUserInfo{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initial, nil
}

// begin marks a request of kind pending. The returned func clears it.
func (c *Coordinator) begin(kind requestKind) (func(), error) {
	id := uuid.NewString()
	c.mu.Lock()
	defer c.mu.Unlock()
	if other, ok := c.pending[kind]; ok {
		c.logger.Warn("request already pending", log.String("kind", string(kind)), log.String("pending", other))
		return nil, fmt.Errorf("%s: %w", kind, domain.ErrRequestPending)
	}
	c.pending[kind] = id
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.pending[kind] == id {
			delete(c.pending, kind)
		}
	}, nil
}

func (c *Coordinator) wait(ctx context.Context) error {
	if c.latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(c.latency)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newToken() domain.CorrelationToken {
	return domain.CorrelationToken(uuid.NewString())
}
