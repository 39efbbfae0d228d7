package switching

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bft-labs/usercoord/internal/domain"
	"github.com/bft-labs/usercoord/internal/metrics"
	"github.com/bft-labs/usercoord/internal/ports"
	"github.com/bft-labs/usercoord/internal/roundtrip"
	"github.com/bft-labs/usercoord/pkg/log"
)

// DefaultTimeout bounds a coordinator switch round trip when none is given.
const DefaultTimeout = 5 * time.Second

const commandBuffer = 64

// Coordinator is the switch coordinator.
type Coordinator struct {
	logger   log.Logger
	coord    ports.Coordinator
	sessions ports.SessionManager
	users    ports.IdentityStore
	headless bool

	cmds     chan command
	stopping chan struct{}
	done     chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc

	// stopMu is held shared by posters and exclusively by the worker when
	// it stops accepting commands.
	stopMu  sync.RWMutex
	stopped bool

	mu      sync.Mutex
	tx      *domain.SwitchTransaction
	seq     uint64
	timeout time.Duration
	ui      ports.SwitchUI
}

// Config holds construction parameters.
type Config struct {
	Coordinator    ports.Coordinator
	SessionManager ports.SessionManager
	IdentityStore  ports.IdentityStore
	Logger         log.Logger

	// Timeout is the default coordinator round-trip timeout.
	Timeout time.Duration

	// Headless is set when the system user runs without a display; switching
	// to it is then invalid.
	Headless bool
}

// New creates a switch coordinator. Call Run to start its worker.
func New(cfg Config) *Coordinator {
	if cfg.Logger == nil {
		cfg.Logger = log.NewNoopLogger()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		logger:   cfg.Logger,
		coord:    cfg.Coordinator,
		sessions: cfg.SessionManager,
		users:    cfg.IdentityStore,
		headless: cfg.Headless,
		cmds:     make(chan command, commandBuffer),
		stopping: make(chan struct{}),
		done:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
		timeout:  cfg.Timeout,
	}
}

// SetTimeout changes the default round-trip timeout.
func (c *Coordinator) SetTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = d
}

// Timeout returns the default round-trip timeout.
func (c *Coordinator) Timeout() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeout
}

// SetSwitchUI installs the switch-in-progress UI; nil removes it.
func (c *Coordinator) SetSwitchUI(ui ports.SwitchUI) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ui = ui
}

// InFlight returns a copy of the in-flight transaction, if any.
func (c *Coordinator) InFlight() (domain.SwitchTransaction, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tx == nil {
		return domain.SwitchTransaction{}, false
	}
	return *c.tx, true
}

// Done is closed once Run has returned.
func (c *Coordinator) Done() <-chan struct{} { return c.done }

// Run processes coordinator answers, OS commits and lifecycle events until
// ctx is done. Pending round trips are canceled on return and commands
// still queued are failed, so every request resolves.
func (c *Coordinator) Run(ctx context.Context) error {
	defer close(c.done)
	defer c.cancel()

	for {
		select {
		case cmd := <-c.cmds:
			cmd.apply(c)
		case <-ctx.Done():
			c.shutdown()
			return nil
		}
	}
}

// shutdown stops accepting commands and fails the queued ones.
func (c *Coordinator) shutdown() {
	close(c.stopping)
	c.stopMu.Lock()
	c.stopped = true
	c.stopMu.Unlock()

	for {
		select {
		case cmd := <-c.cmds:
			cmd.fail(c)
		default:
			return
		}
	}
}

// RequestSwitch asks to bring target to the foreground. The returned channel
// receives exactly one result. A non-positive timeout uses the default.
func (c *Coordinator) RequestSwitch(target domain.UserID, timeout time.Duration) <-chan domain.SwitchResult {
	reply := make(chan domain.SwitchResult, 1)

	record, err := c.users.User(target)
	if err != nil {
		c.resolve(reply, target, domain.SwitchInvalidRequest, fmt.Sprintf("user %d not found", target))
		return reply
	}
	if c.headless && target == domain.SystemUser {
		c.resolve(reply, target, domain.SwitchInvalidRequest, "cannot switch to system user in headless mode")
		return reply
	}
	current := c.sessions.CurrentUser()
	if target == current {
		c.resolve(reply, target, domain.SwitchAlreadyInForeground, "")
		return reply
	}
	if !c.coord.Capabilities().Switch {
		if !c.post(directSwitch{target: target, reply: reply}) {
			c.resolve(reply, target, domain.SwitchOSFailure, errStopped)
		}
		return reply
	}
	info := domain.NewUsersInfo(current, c.users.Users())

	c.mu.Lock()
	if c.tx != nil && c.tx.Target == target {
		c.mu.Unlock()
		c.logger.Debug("switch already in flight", log.Int("target", int(target)))
		c.resolve(reply, target, domain.SwitchAlreadyBeingSwitchedTo, "")
		return reply
	}
	if c.tx != nil {
		c.logger.Info("superseding in-flight switch",
			log.Int("old_target", int(c.tx.Target)),
			log.Int("new_target", int(target)),
		)
	}
	c.seq++
	tx := domain.SwitchTransaction{
		Target: target,
		Prior:  current,
		State:  domain.TxAwaitingCoordinator,
		Seq:    c.seq,
	}
	c.tx = &tx
	if timeout <= 0 {
		timeout = c.timeout
	}
	c.mu.Unlock()
	metrics.SetSwitchInFlight(true)

	c.logger.Info("requesting user switch",
		log.Int("target", int(target)),
		log.Int("prior", int(current)),
		log.Duration("timeout", timeout),
	)

	go func() {
		resp, err := roundtrip.Do(c.ctx, "switch", timeout, func(ctx context.Context) (ports.SwitchResponse, error) {
			return c.coord.Switch(ctx, ports.SwitchRequest{Target: record, Users: info})
		})
		answer := coordinatorAnswer{tx: tx, resp: resp, err: err, reply: reply}
		if !c.post(answer) {
			c.resolve(reply, target, domain.SwitchCoordinatorInternalFailure, errStopped)
		}
	}()
	return reply
}

// SwitchUser is the blocking form of RequestSwitch.
func (c *Coordinator) SwitchUser(ctx context.Context, target domain.UserID, timeout time.Duration) domain.SwitchResult {
	select {
	case res := <-c.RequestSwitch(target, timeout):
		return res
	case <-ctx.Done():
		return domain.SwitchResult{Status: domain.SwitchCoordinatorInternalFailure, ErrorMessage: ctx.Err().Error()}
	}
}

// HandleCoordinatorSwitch commits a switch initiated by the coordinator
// itself. token correlates the acknowledgment sent once target unlocks.
func (c *Coordinator) HandleCoordinatorSwitch(token domain.CorrelationToken, target domain.UserID) {
	s := coordinatorSwitch{token: token, target: target}
	if !c.post(s) {
		s.fail(c)
	}
}

// OnEvent feeds lifecycle events into the switch worker.
func (c *Coordinator) OnEvent(event domain.LifecycleEvent) {
	switch event.Type {
	case domain.EventUnlocked:
		c.post(userUnlocked{user: event.User()})
	case domain.EventSwitching:
		c.post(userSwitching{from: event.From, to: event.To})
	}
}

// post hands a command to the worker. It returns false once the worker has
// stopped; an accepted command is either applied or failed.
func (c *Coordinator) post(cmd command) bool {
	c.stopMu.RLock()
	defer c.stopMu.RUnlock()
	if c.stopped {
		return false
	}
	select {
	case c.cmds <- cmd:
		return true
	case <-c.stopping:
		return false
	}
}

func (c *Coordinator) resolve(reply chan<- domain.SwitchResult, target domain.UserID, status domain.SwitchStatus, msg string) {
	metrics.RecordSwitchResult(status.String())
	c.logger.Debug("switch resolved",
		log.Int("target", int(target)),
		log.Stringer("status", status),
		log.String("message", msg),
	)
	reply <- domain.SwitchResult{Status: status, ErrorMessage: msg}
}

// clearLocked drops the in-flight transaction.
func (c *Coordinator) clearLocked() {
	c.tx = nil
	metrics.SetSwitchInFlight(false)
}

// currentLocked reports whether tx is still the in-flight transaction.
func (c *Coordinator) currentLocked(tx domain.SwitchTransaction) bool {
	return c.tx != nil && c.tx.Seq == tx.Seq
}

func (c *Coordinator) usersInfo() domain.UsersInfo {
	return domain.NewUsersInfo(c.sessions.CurrentUser(), c.users.Users())
}

func (c *Coordinator) postSwitch(token domain.CorrelationToken, prior, target domain.UserID) {
	c.logger.Info("acknowledging switch to coordinator",
		log.String("token", string(token)),
		log.Int("prior", int(prior)),
		log.Int("target", int(target)),
	)
	c.coord.PostSwitch(ports.PostSwitchNotice{
		Token:  token,
		Prior:  prior,
		Target: target,
		Users:  c.usersInfo(),
	})
}

func (c *Coordinator) signalUI(target domain.UserID) {
	c.mu.Lock()
	ui := c.ui
	c.mu.Unlock()
	if ui == nil {
		return
	}
	if err := ui.SwitchInProgress(target); err != nil {
		c.logger.Warn("switch UI notification failed", log.Int("target", int(target)), log.Err(err))
	}
}

// errMessage prefers the coordinator-provided message over err.
func errMessage(msg string, err error) string {
	if msg != "" {
		return msg
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

var errMissingToken = errors.New("approval without correlation token")
