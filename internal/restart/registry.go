// Package restart tracks the bounded set of background users that are
// restarted after a power cycle.
//
// Entries carry a rank that grows on every insertion or promotion. When the
// registry exceeds maxRunningUsers-1 entries (one slot is reserved for the
// system user), the entry with the lowest rank is evicted. The user most
// recently promoted as the persistent foreground user is evicted last.
package restart

import (
	"context"
	"sync"

	"github.com/bft-labs/usercoord/internal/domain"
	"github.com/bft-labs/usercoord/internal/metrics"
	"github.com/bft-labs/usercoord/internal/ports"
	"github.com/bft-labs/usercoord/pkg/log"
	"github.com/bft-labs/usercoord/pkg/state"
)

type entry struct {
	user domain.UserID
	rank uint64
}

// Registry is the background user restart registry.
type Registry struct {
	logger   log.Logger
	sessions ports.SessionManager
	users    ports.IdentityStore
	store    *state.Store

	mu         sync.Mutex
	entries    []entry
	counter    uint64
	promoted   domain.UserID
	maxRunning int
	restarted  map[domain.UserID]struct{}
}

// New creates an empty registry. store may be nil, in which case nothing is
// persisted.
func New(sessions ports.SessionManager, users ports.IdentityStore, store *state.Store, maxRunningUsers int, logger log.Logger) *Registry {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Registry{
		logger:     logger,
		sessions:   sessions,
		users:      users,
		store:      store,
		promoted:   domain.NullUser,
		maxRunning: maxRunningUsers,
		restarted:  make(map[domain.UserID]struct{}),
	}
}

// Restore replaces the registry content with persisted state. The bound is
// enforced against the current maxRunningUsers.
func (r *Registry) Restore(st state.State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = r.entries[:0]
	for _, bu := range st.BackgroundUsers {
		r.entries = append(r.entries, entry{user: domain.UserID(bu.UserID), rank: bu.Rank})
	}
	r.counter = st.RankCounter
	r.promoted = domain.UserID(st.Promoted)
	r.evictLocked()
	metrics.SetBackgroundUsers(len(r.entries))
	r.logger.Info("background restart registry restored", log.Any("users", r.usersLocked()))
}

// OnEvent adds users to the registry when they unlock.
func (r *Registry) OnEvent(event domain.LifecycleEvent) {
	if event.Type != domain.EventUnlocked {
		return
	}
	user, err := r.users.User(event.User())
	if err != nil {
		r.logger.Debug("unlocked user not in identity store", log.Int("user", int(event.User())), log.Err(err))
		return
	}
	r.Add(user)
}

// Add records a user as a restart candidate. The system user and ephemeral
// users are ignored. The current foreground user moves to the front;
// other users are appended if absent.
func (r *Registry) Add(user domain.UserRecord) {
	if user.ID == domain.SystemUser || user.IsEphemeral() {
		return
	}
	foreground := r.sessions.CurrentUser()

	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexLocked(user.ID)
	switch {
	case user.ID == foreground:
		if i >= 0 {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
		}
		r.counter++
		r.entries = append([]entry{{user: user.ID, rank: r.counter}}, r.entries...)
		r.promoted = user.ID
	case i < 0:
		r.counter++
		r.entries = append(r.entries, entry{user: user.ID, rank: r.counter})
	default:
		return
	}
	r.evictLocked()
	r.persistLocked()
}

// Remove drops a user from the registry. It refuses the current foreground
// user and the system user.
func (r *Registry) Remove(id domain.UserID) bool {
	if id == domain.SystemUser || id == r.sessions.CurrentUser() {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.forgetLocked(id)
}

// Forget drops a user that no longer exists, regardless of foreground state.
func (r *Registry) Forget(id domain.UserID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forgetLocked(id)
}

func (r *Registry) forgetLocked(id domain.UserID) bool {
	i := r.indexLocked(id)
	if i < 0 {
		return false
	}
	r.entries = append(r.entries[:i], r.entries[i+1:]...)
	delete(r.restarted, id)
	if r.promoted == id {
		r.promoted = domain.NullUser
	}
	r.persistLocked()
	return true
}

// SetMaxRunningUsers changes the bound and evicts immediately.
func (r *Registry) SetMaxRunningUsers(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n == r.maxRunning {
		return
	}
	r.logger.Info("max running users changed", log.Int("old", r.maxRunning), log.Int("new", n))
	r.maxRunning = n
	before := len(r.entries)
	r.evictLocked()
	if len(r.entries) != before {
		r.persistLocked()
	}
}

// Users returns the registry content, most recent first.
func (r *Registry) Users() []domain.UserID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.usersLocked()
}

// RestartedHere returns the users started by the last StartAll that were
// not stopped since.
func (r *Registry) RestartedHere() []domain.UserID {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.UserID, 0, len(r.restarted))
	for _, e := range r.entries {
		if _, ok := r.restarted[e.user]; ok {
			out = append(out, e.user)
		}
	}
	return out
}

// StartAll starts every registered user except the current foreground user
// and returns the users that ended up running. The registry itself is not
// changed; users that fail to start are retried on the next cycle.
func (r *Registry) StartAll() []domain.UserID {
	r.mu.Lock()
	users := r.usersLocked()
	r.mu.Unlock()

	foreground := r.sessions.CurrentUser()
	var started []domain.UserID
	for _, id := range users {
		if id == foreground {
			continue
		}
		if r.start(id) {
			started = append(started, id)
		}
	}

	r.mu.Lock()
	r.restarted = make(map[domain.UserID]struct{}, len(started))
	for _, id := range started {
		r.restarted[id] = struct{}{}
	}
	r.mu.Unlock()
	return started
}

func (r *Registry) start(id domain.UserID) bool {
	if err := r.sessions.StartUserInBackground(id); err != nil {
		metrics.RecordBackgroundStart("start_failed")
		r.logger.Warn("failed to start background user", log.Int("user", int(id)), log.Err(err))
		return false
	}
	if r.sessions.IsUserUnlockingOrUnlocked(id) {
		metrics.RecordBackgroundStart("already_unlocked")
		return true
	}
	err := r.sessions.UnlockUser(id)
	if err == nil {
		metrics.RecordBackgroundStart("unlocked")
		return true
	}
	r.logger.Warn("background user started but cannot be unlocked", log.Int("user", int(id)), log.Err(err))
	// Still reported as started so it can be stopped later.
	if r.sessions.IsUserRunning(id) {
		metrics.RecordBackgroundStart("locked")
		return true
	}
	metrics.RecordBackgroundStart("unlock_failed")
	return false
}

// Stop stops a background user. It refuses the current foreground user and
// the system user. The registry is not changed.
func (r *Registry) Stop(id domain.UserID) bool {
	if id == domain.SystemUser {
		return false
	}
	if id == r.sessions.CurrentUser() {
		r.logger.Info("refusing to stop foreground user", log.Int("user", int(id)))
		return false
	}
	if err := r.sessions.StopUser(id); err != nil {
		r.logger.Info("failed to stop background user", log.Int("user", int(id)), log.Err(err))
		return false
	}
	r.mu.Lock()
	delete(r.restarted, id)
	r.mu.Unlock()
	return true
}

func (r *Registry) limitLocked() int {
	if r.maxRunning-1 < 0 {
		return 0
	}
	return r.maxRunning - 1
}

func (r *Registry) evictLocked() {
	for len(r.entries) > r.limitLocked() {
		victim := -1
		for i, e := range r.entries {
			if e.user == r.promoted && len(r.entries) > 1 {
				continue
			}
			if victim < 0 || e.rank < r.entries[victim].rank {
				victim = i
			}
		}
		dropped := r.entries[victim].user
		r.logger.Info("dropping least recently used user from restart registry", log.Int("user", int(dropped)))
		r.entries = append(r.entries[:victim], r.entries[victim+1:]...)
		delete(r.restarted, dropped)
		if dropped == r.promoted {
			r.promoted = domain.NullUser
		}
	}
	metrics.SetBackgroundUsers(len(r.entries))
}

func (r *Registry) indexLocked(id domain.UserID) int {
	for i, e := range r.entries {
		if e.user == id {
			return i
		}
	}
	return -1
}

func (r *Registry) usersLocked() []domain.UserID {
	out := make([]domain.UserID, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.user
	}
	return out
}

func (r *Registry) persistLocked() {
	metrics.SetBackgroundUsers(len(r.entries))
	if r.store == nil {
		return
	}
	users := make([]state.BackgroundUser, len(r.entries))
	for i, e := range r.entries {
		users[i] = state.BackgroundUser{UserID: int(e.user), Rank: e.rank}
	}
	promoted := int(r.promoted)
	counter := r.counter
	err := r.store.Update(context.Background(), func(s *state.State) {
		s.BackgroundUsers = users
		s.Promoted = promoted
		s.RankCounter = counter
	})
	if err != nil {
		r.logger.Error("failed to persist restart registry", log.Err(err))
	}
}
