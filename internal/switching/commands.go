package switching

import (
	"github.com/bft-labs/usercoord/internal/domain"
	"github.com/bft-labs/usercoord/internal/metrics"
	"github.com/bft-labs/usercoord/internal/ports"
	"github.com/bft-labs/usercoord/pkg/log"
)

// errStopped is the failure message of requests the stopped worker drops.
const errStopped = "switch service stopped"

// command is a unit of work for the switch worker. fail is called instead
// of apply when the worker stops with the command still queued.
type command interface {
	apply(c *Coordinator)
	fail(c *Coordinator)
}

// coordinatorAnswer carries the outcome of a switch round trip.
type coordinatorAnswer struct {
	tx    domain.SwitchTransaction
	resp  ports.SwitchResponse
	err   error
	reply chan<- domain.SwitchResult
}

func (a coordinatorAnswer) apply(c *Coordinator) {
	target := a.tx.Target

	c.mu.Lock()
	if !c.currentLocked(a.tx) {
		c.mu.Unlock()
		c.logger.Info("switch superseded by newer request",
			log.Int("target", int(target)),
			log.String("token", string(a.resp.Token)),
		)
		c.resolve(a.reply, target, domain.SwitchAbandonedForNewerRequest, "")
		return
	}

	err := a.err
	if err == nil && a.resp.Decision == ports.SwitchApproved && !a.resp.Token.IsSet() {
		err = errMissingToken
	}
	if err != nil {
		c.clearLocked()
		c.mu.Unlock()
		c.logger.Warn("coordinator switch failed", log.Int("target", int(target)), log.Err(err))
		c.resolve(a.reply, target, domain.SwitchCoordinatorInternalFailure, errMessage(a.resp.ErrorMessage, err))
		return
	}

	switch a.resp.Decision {
	case ports.SwitchVetoed:
		c.clearLocked()
		c.mu.Unlock()
		c.logger.Info("coordinator vetoed switch",
			log.Int("target", int(target)),
			log.String("message", a.resp.ErrorMessage),
		)
		c.resolve(a.reply, target, domain.SwitchCoordinatorFailure, a.resp.ErrorMessage)
	case ports.SwitchApproved:
		c.tx.State = domain.TxAwaitingOSCommit
		c.mu.Unlock()
		c.commit(a)
	default:
		c.clearLocked()
		c.mu.Unlock()
		c.logger.Critical("unknown coordinator switch decision",
			log.Int("target", int(target)),
			log.Int("decision", int(a.resp.Decision)),
		)
		c.resolve(a.reply, target, domain.SwitchCoordinatorInternalFailure, "unknown coordinator decision")
	}
}

func (a coordinatorAnswer) fail(c *Coordinator) {
	c.mu.Lock()
	if c.currentLocked(a.tx) {
		c.clearLocked()
	}
	c.mu.Unlock()
	c.resolve(a.reply, a.tx.Target, domain.SwitchCoordinatorInternalFailure, errStopped)
}

// commit performs the approved OS switch outside the lock.
func (c *Coordinator) commit(a coordinatorAnswer) {
	target := a.tx.Target
	osErr := c.sessions.SwitchUser(target)

	c.mu.Lock()
	if !c.currentLocked(a.tx) {
		c.mu.Unlock()
		c.logger.Info("switch superseded while committing",
			log.Int("target", int(target)),
			log.String("token", string(a.resp.Token)),
			log.Err(osErr),
		)
		c.resolve(a.reply, target, domain.SwitchAbandonedForNewerRequest, "")
		return
	}
	if osErr != nil {
		c.clearLocked()
		c.mu.Unlock()
		c.logger.Error("OS user switch failed", log.Int("target", int(target)), log.Err(osErr))
		c.postSwitch(a.resp.Token, a.tx.Prior, target)
		c.resolve(a.reply, target, domain.SwitchOSFailure, osErr.Error())
		return
	}
	c.tx.Token = a.resp.Token
	c.tx.State = domain.TxAwaitingUnlockAck
	c.mu.Unlock()

	c.signalUI(target)
	c.resolve(a.reply, target, domain.SwitchSuccessful, "")
}

// directSwitch switches without a coordinator.
type directSwitch struct {
	target domain.UserID
	reply  chan<- domain.SwitchResult
}

func (d directSwitch) apply(c *Coordinator) {
	if err := c.sessions.SwitchUser(d.target); err != nil {
		c.logger.Error("OS user switch failed", log.Int("target", int(d.target)), log.Err(err))
		c.resolve(d.reply, d.target, domain.SwitchOSFailure, err.Error())
		return
	}
	c.signalUI(d.target)
	c.resolve(d.reply, d.target, domain.SwitchSuccessful, "")
}

func (d directSwitch) fail(c *Coordinator) {
	c.resolve(d.reply, d.target, domain.SwitchOSFailure, errStopped)
}

// coordinatorSwitch is a switch initiated by the coordinator.
type coordinatorSwitch struct {
	token  domain.CorrelationToken
	target domain.UserID
}

func (s coordinatorSwitch) apply(c *Coordinator) {
	prior := c.sessions.CurrentUser()
	c.logger.Info("coordinator requested user switch",
		log.Int("target", int(s.target)),
		log.String("token", string(s.token)),
	)
	if err := c.sessions.SwitchUser(s.target); err != nil {
		c.logger.Error("OS user switch requested by coordinator failed",
			log.Int("target", int(s.target)),
			log.Err(err),
		)
		c.postSwitch(s.token, prior, s.target)
		return
	}

	c.mu.Lock()
	if c.tx != nil && c.tx.Target != s.target {
		c.logger.Info("coordinator switch supersedes in-flight switch",
			log.Int("old_target", int(c.tx.Target)),
			log.Int("new_target", int(s.target)),
		)
	}
	c.seq++
	c.tx = &domain.SwitchTransaction{
		Target: s.target,
		Token:  s.token,
		Prior:  prior,
		State:  domain.TxAwaitingUnlockAck,
		Seq:    c.seq,
	}
	c.mu.Unlock()
	metrics.SetSwitchInFlight(true)
}

// fail tells the coordinator the switch was not performed, so the token it
// minted does not stay open.
func (s coordinatorSwitch) fail(c *Coordinator) {
	c.logger.Warn("coordinator switch dropped, switch service stopped",
		log.Int("target", int(s.target)),
		log.String("token", string(s.token)),
	)
	c.postSwitch(s.token, c.sessions.CurrentUser(), s.target)
}

// userUnlocked acknowledges the in-flight switch once its target unlocks.
type userUnlocked struct {
	user domain.UserID
}

func (u userUnlocked) apply(c *Coordinator) {
	c.mu.Lock()
	if c.tx == nil || c.tx.Target != u.user || !c.tx.Token.IsSet() {
		c.mu.Unlock()
		return
	}
	tx := *c.tx
	c.clearLocked()
	c.mu.Unlock()

	c.postSwitch(tx.Token, tx.Prior, tx.Target)
}

func (userUnlocked) fail(*Coordinator) {}

// userSwitching reports switches the coordinator did not negotiate.
type userSwitching struct {
	from, to domain.UserID
}

func (s userSwitching) apply(c *Coordinator) {
	c.mu.Lock()
	inFlight := c.tx != nil
	c.mu.Unlock()
	if inFlight || !c.coord.Capabilities().Switch {
		return
	}

	to, err := c.users.User(s.to)
	if err != nil {
		c.logger.Warn("legacy switch to unknown user", log.Int("to", int(s.to)), log.Err(err))
		return
	}
	c.logger.Info("notifying coordinator of legacy switch",
		log.Int("from", int(s.from)),
		log.Int("to", int(s.to)),
	)
	c.coord.LegacySwitch(ports.LegacySwitchNotice{From: s.from, To: to, Users: c.usersInfo()})
}

func (userSwitching) fail(*Coordinator) {}
