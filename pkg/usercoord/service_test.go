package usercoord_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/bft-labs/usercoord/internal/adapters/memory"
	"github.com/bft-labs/usercoord/internal/adapters/sim"
	"github.com/bft-labs/usercoord/internal/domain"
	"github.com/bft-labs/usercoord/internal/ports"
	"github.com/bft-labs/usercoord/pkg/usercoord"
)

const waitFor = 2 * time.Second

type harness struct {
	svc      *usercoord.Service
	users    *memory.IdentityStore
	sessions *memory.SessionManager
	coord    *sim.Coordinator
}

func newHarness(t *testing.T, cfg usercoord.Config, opts ...usercoord.Option) *harness {
	t.Helper()
	h := &harness{
		users:    memory.NewIdentityStore(),
		sessions: memory.NewSessionManager(domain.SystemUser),
		coord:    sim.New(),
	}
	opts = append([]usercoord.Option{
		usercoord.WithIdentityStore(h.users),
		usercoord.WithSessionManager(h.sessions),
		usercoord.WithCoordinator(h.coord),
	}, opts...)

	svc, err := usercoord.New(cfg, opts...)
	require.NoError(t, err)
	h.svc = svc
	h.sessions.SetEventSink(svc.OnLifecycleEvent)
	h.coord.SetSwitchHandler(svc.HandleCoordinatorSwitch)
	return h
}

// start starts the service and returns a func stopping it. Tests defer the
// stop func so that it runs before goleak verification.
func (h *harness) start(t *testing.T) func() {
	t.Helper()
	require.NoError(t, h.svc.Start(context.Background()))
	return func() {
		if h.svc.Status() == usercoord.StateRunning {
			require.NoError(t, h.svc.Stop())
		}
	}
}

func (h *harness) driver(t *testing.T, name string) usercoord.UserID {
	t.Helper()
	res := h.svc.CreateDriver(context.Background(), name, false)
	require.Equal(t, domain.CreateSuccessful, res.Status, res.ErrorMessage)
	return res.User.ID
}

type recordingRemote struct {
	mu   sync.Mutex
	got  []usercoord.LifecycleEvent
	done chan struct{}
}

func newRecordingRemote() *recordingRemote {
	return &recordingRemote{done: make(chan struct{})}
}

func (r *recordingRemote) Send(e usercoord.LifecycleEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, e)
	return nil
}

func (r *recordingRemote) Done() <-chan struct{} { return r.done }

func (r *recordingRemote) types() []domain.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventType, len(r.got))
	for i, e := range r.got {
		out[i] = e.Type
	}
	return out
}

func TestNew_Validation(t *testing.T) {
	users := memory.NewIdentityStore()
	sessions := memory.NewSessionManager(domain.SystemUser)

	tests := []struct {
		name string
		cfg  usercoord.Config
		opts []usercoord.Option
	}{
		{
			name: "missing session manager",
			cfg:  usercoord.DefaultConfig(),
			opts: []usercoord.Option{usercoord.WithIdentityStore(users)},
		},
		{
			name: "missing identity store",
			cfg:  usercoord.DefaultConfig(),
			opts: []usercoord.Option{usercoord.WithSessionManager(sessions)},
		},
		{
			name: "max running users too small",
			cfg:  usercoord.Config{MaxRunningUsers: 1},
			opts: []usercoord.Option{usercoord.WithIdentityStore(users), usercoord.WithSessionManager(sessions)},
		},
		{
			name: "negative coordinator timeout",
			cfg:  usercoord.Config{CoordinatorTimeout: -time.Second},
			opts: []usercoord.Option{usercoord.WithIdentityStore(users), usercoord.WithSessionManager(sessions)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := usercoord.New(tt.cfg, tt.opts...)
			require.ErrorIs(t, err, usercoord.ErrInvalidConfig)
		})
	}
}

func TestService_StartStop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var mu sync.Mutex
	var states []usercoord.State
	h := newHarness(t, usercoord.DefaultConfig(), usercoord.WithStateHandler(func(_, current usercoord.State, _ string) {
		mu.Lock()
		states = append(states, current)
		mu.Unlock()
	}))

	require.Equal(t, usercoord.StateStopped, h.svc.Status())
	require.ErrorIs(t, h.svc.Stop(), usercoord.ErrNotRunning)

	require.NoError(t, h.svc.Start(context.Background()))
	require.Equal(t, usercoord.StateRunning, h.svc.Status())
	require.ErrorIs(t, h.svc.Start(context.Background()), usercoord.ErrAlreadyRunning)

	require.NoError(t, h.svc.Stop())
	require.Equal(t, usercoord.StateStopped, h.svc.Status())

	// A stopped service can be started again with fresh workers.
	require.NoError(t, h.svc.Start(context.Background()))
	require.NoError(t, h.svc.Stop())

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []usercoord.State{
		usercoord.StateStarting, usercoord.StateRunning, usercoord.StateStopping, usercoord.StateStopped,
		usercoord.StateStarting, usercoord.StateRunning, usercoord.StateStopping, usercoord.StateStopped,
	}, states)
}

func TestService_NotRunning(t *testing.T) {
	h := newHarness(t, usercoord.DefaultConfig())

	res := <-h.svc.RequestSwitch(10, 0)
	require.Equal(t, domain.SwitchOSFailure, res.Status)

	require.ErrorIs(t, h.svc.AddListener(usercoord.NewListenerFunc(func(usercoord.LifecycleEvent) {})), usercoord.ErrNotRunning)
	require.ErrorIs(t, h.svc.RegisterLifecycleListener(1000, newRecordingRemote()), usercoord.ErrNotRunning)
	require.ErrorIs(t, h.svc.FlushEvents(context.Background()), usercoord.ErrNotRunning)

	_, ok := h.svc.InFlight()
	require.False(t, ok)

	// Provisioning does not need the workers.
	id := h.driver(t, "driver")
	require.Equal(t, domain.RemoveSuccessful, h.svc.RemoveUser(id).Status)
}

func TestService_SwitchEndToEnd(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := newHarness(t, usercoord.DefaultConfig())
	stop := h.start(t)
	defer stop()

	remote := newRecordingRemote()
	require.NoError(t, h.svc.RegisterLifecycleListener(1000, remote))

	id := h.driver(t, "driver")
	res := h.svc.SwitchUser(context.Background(), id, time.Second)
	require.Equal(t, domain.SwitchSuccessful, res.Status, res.ErrorMessage)
	require.Equal(t, id, h.sessions.CurrentUser())

	// The acknowledgment is sent once the target has unlocked.
	require.Eventually(t, func() bool {
		posts := h.coord.PostSwitches()
		return len(posts) == 1 && posts[0].Target == id && posts[0].Prior == domain.SystemUser
	}, waitFor, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		_, inFlight := h.svc.InFlight()
		return !inFlight
	}, waitFor, 5*time.Millisecond)
	require.Empty(t, h.coord.LegacySwitches())

	require.NoError(t, h.svc.FlushEvents(context.Background()))
	require.Equal(t, []domain.EventType{
		domain.EventStarting,
		domain.EventSwitching,
		domain.EventUnlocking,
		domain.EventUnlocked,
		domain.EventPostUnlocked,
	}, remote.types())
	require.Equal(t, []usercoord.UserID{id}, h.svc.BackgroundUsers())

	res = h.svc.SwitchUser(context.Background(), id, time.Second)
	require.Equal(t, domain.SwitchAlreadyInForeground, res.Status)
}

func TestService_SwitchVetoed(t *testing.T) {
	h := newHarness(t, usercoord.DefaultConfig())
	stop := h.start(t)
	defer stop()

	id := h.driver(t, "driver")
	h.coord.Veto(id, "vehicle in motion")

	res := h.svc.SwitchUser(context.Background(), id, time.Second)
	require.Equal(t, domain.SwitchCoordinatorFailure, res.Status)
	require.Equal(t, "vehicle in motion", res.ErrorMessage)
	require.Equal(t, domain.SystemUser, h.sessions.CurrentUser())
}

func TestService_SwitchDriverRefusesProfile(t *testing.T) {
	h := newHarness(t, usercoord.DefaultConfig())
	stop := h.start(t)
	defer stop()

	driver := h.driver(t, "driver")
	profile := h.svc.CreateProfileUser("profile", driver)
	require.Equal(t, domain.CreateSuccessful, profile.Status)

	res := h.svc.SwitchDriver(context.Background(), profile.User.ID, time.Second)
	require.Equal(t, domain.SwitchInvalidRequest, res.Status)

	res = h.svc.SwitchDriver(context.Background(), 999, time.Second)
	require.Equal(t, domain.SwitchInvalidRequest, res.Status)

	res = h.svc.SwitchDriver(context.Background(), driver, time.Second)
	require.Equal(t, domain.SwitchSuccessful, res.Status)
}

func TestService_CoordinatorInitiatedSwitch(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := newHarness(t, usercoord.DefaultConfig())
	stop := h.start(t)
	defer stop()

	id := h.driver(t, "driver")
	token, err := h.coord.InitiateSwitch(id)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		posts := h.coord.PostSwitches()
		return len(posts) == 1 && posts[0].Token == token && posts[0].Target == id
	}, waitFor, 5*time.Millisecond)
	require.Equal(t, id, h.sessions.CurrentUser())
}

func TestService_CoordinatorSwitchWhileStopped(t *testing.T) {
	h := newHarness(t, usercoord.DefaultConfig())
	id := h.driver(t, "driver")

	token, err := h.coord.InitiateSwitch(id)
	require.NoError(t, err)

	posts := h.coord.PostSwitches()
	require.Len(t, posts, 1)
	require.Equal(t, token, posts[0].Token)
	require.Equal(t, domain.SystemUser, posts[0].Prior)
	require.Equal(t, id, posts[0].Target)
	require.Equal(t, domain.SystemUser, h.sessions.CurrentUser())
	require.Empty(t, h.sessions.Switches())
}

func TestService_NoCoordinator(t *testing.T) {
	users := memory.NewIdentityStore()
	sessions := memory.NewSessionManager(domain.SystemUser)
	svc, err := usercoord.New(usercoord.DefaultConfig(),
		usercoord.WithIdentityStore(users),
		usercoord.WithSessionManager(sessions),
	)
	require.NoError(t, err)
	sessions.SetEventSink(svc.OnLifecycleEvent)
	require.NoError(t, svc.Start(context.Background()))
	defer func() { require.NoError(t, svc.Stop()) }()

	created := svc.CreateDriver(context.Background(), "driver", false)
	require.Equal(t, domain.CreateSuccessful, created.Status)

	res := svc.SwitchUser(context.Background(), created.User.ID, time.Second)
	require.Equal(t, domain.SwitchSuccessful, res.Status)

	assoc := svc.GetAssociations(created.User.ID, []int{1})
	require.Equal(t, domain.AssociationNotSupported, assoc.Status)

	_, err = svc.InitialUserInfo(context.Background(), 0, 0)
	require.ErrorIs(t, err, usercoord.ErrNotSupported)
}

func TestService_Listeners(t *testing.T) {
	h := newHarness(t, usercoord.DefaultConfig())
	stop := h.start(t)
	defer stop()

	var mu sync.Mutex
	var got []domain.EventType
	l := usercoord.NewListenerFunc(func(e usercoord.LifecycleEvent) {
		mu.Lock()
		got = append(got, e.Type)
		mu.Unlock()
	})
	require.NoError(t, h.svc.AddListener(l))

	h.svc.OnLifecycleEvent(domain.NewLifecycleEvent(domain.EventStopping, 42, 1))
	require.NoError(t, h.svc.FlushEvents(context.Background()))

	require.NoError(t, h.svc.RemoveListener(l))
	h.svc.OnLifecycleEvent(domain.NewLifecycleEvent(domain.EventStopped, 42, 2))
	require.NoError(t, h.svc.FlushEvents(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []domain.EventType{domain.EventStopping}, got)
}

func TestService_RemoteListenerReplacedAndRemoved(t *testing.T) {
	h := newHarness(t, usercoord.DefaultConfig())
	stop := h.start(t)
	defer stop()

	first, second := newRecordingRemote(), newRecordingRemote()
	require.NoError(t, h.svc.RegisterLifecycleListener(1000, first))
	require.NoError(t, h.svc.RegisterLifecycleListener(1000, second))

	h.svc.OnLifecycleEvent(domain.NewLifecycleEvent(domain.EventStarting, 11, 1))
	require.NoError(t, h.svc.FlushEvents(context.Background()))

	require.NoError(t, h.svc.UnregisterLifecycleListener(1000))
	h.svc.OnLifecycleEvent(domain.NewLifecycleEvent(domain.EventStopped, 11, 2))
	require.NoError(t, h.svc.FlushEvents(context.Background()))

	require.Empty(t, first.types())
	require.Equal(t, []domain.EventType{domain.EventStarting}, second.types())
}

func TestService_CreateRejectedIsCompensated(t *testing.T) {
	h := newHarness(t, usercoord.DefaultConfig())
	h.coord.RejectCreate("no free seat")

	res := h.svc.CreateUser(context.Background(), "rejected", domain.UserTypeFull, 0, time.Second)
	require.Equal(t, domain.CreateHalFailure, res.Status)
	require.Equal(t, "no free seat", res.ErrorMessage)

	for _, u := range h.svc.ListPersistentUsers() {
		require.NotEqual(t, "rejected", u.Name)
	}
}

func TestService_ProfilesAndRemoval(t *testing.T) {
	h := newHarness(t, usercoord.DefaultConfig())

	driver := h.driver(t, "driver")
	profile := h.svc.CreateProfileUser("kid", driver)
	require.Equal(t, domain.CreateSuccessful, profile.Status)

	profiles := h.svc.ListProfilesOf(driver)
	require.Len(t, profiles, 1)
	require.Equal(t, profile.User.ID, profiles[0].ID)

	require.Equal(t, domain.RemoveTargetIsCurrentUser, h.svc.RemoveUser(domain.SystemUser).Status)
	require.Equal(t, domain.RemoveUserDoesNotExist, h.svc.RemoveUser(999).Status)
	require.True(t, h.svc.RemoveUser(profile.User.ID).Status.Success())
	require.Contains(t, h.coord.Removed(), profile.User.ID)
}

func TestService_Associations(t *testing.T) {
	h := newHarness(t, usercoord.DefaultConfig())
	driver := h.driver(t, "driver")

	set := h.svc.SetAssociations(context.Background(), driver, []int{1, 2}, []int{7, 8}, time.Second)
	require.Equal(t, domain.AssociationSuccessful, set.Status, set.ErrorMessage)

	get := h.svc.GetAssociations(driver, []int{2, 1})
	require.Equal(t, domain.AssociationSuccessful, get.Status)
	require.Equal(t, []int{8, 7}, get.Values)

	bad := h.svc.SetAssociations(context.Background(), driver, []int{1}, []int{1, 2}, time.Second)
	require.Equal(t, domain.AssociationInvalidRequest, bad.Status)
}

func TestService_InitialUser(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t, usercoord.Config{StateDir: dir})
	driver := h.driver(t, "driver")

	require.Equal(t, usercoord.NullUser, h.svc.GetInitialUser())
	require.ErrorIs(t, h.svc.SetInitialUser(context.Background(), 999), domain.ErrUserNotFound)
	require.NoError(t, h.svc.SetInitialUser(context.Background(), driver))
	require.Equal(t, driver, h.svc.GetInitialUser())

	// A new instance over the same state directory sees the choice.
	other := newHarness(t, usercoord.Config{StateDir: dir})
	stop := other.start(t)
	defer stop()
	require.Equal(t, driver, other.svc.GetInitialUser())
}

func TestService_InitialUserInfo(t *testing.T) {
	h := newHarness(t, usercoord.DefaultConfig())
	h.coord.SetInitialUserInfo(domain.InitialUserInfo{Action: domain.InitialUserSwitch, UserID: 10})

	info, err := h.svc.InitialUserInfo(context.Background(), 1, time.Second)
	require.NoError(t, err)
	require.Equal(t, domain.InitialUserSwitch, info.Action)
	require.Equal(t, usercoord.UserID(10), info.UserID)
}

func TestService_RestartRegistryPersists(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t, usercoord.Config{StateDir: dir, MaxRunningUsers: 3})
	stop := h.start(t)

	first := h.driver(t, "first")
	second := h.driver(t, "second")
	for _, id := range []usercoord.UserID{first, second} {
		res := h.svc.SwitchUser(context.Background(), id, time.Second)
		require.Equal(t, domain.SwitchSuccessful, res.Status)
		require.NoError(t, h.svc.FlushEvents(context.Background()))
	}
	require.Equal(t, []usercoord.UserID{second, first}, h.svc.BackgroundUsers())
	stop()

	// After a power cycle the registry is restored and its users restarted.
	next := newHarness(t, usercoord.Config{StateDir: dir, MaxRunningUsers: 3})
	stopNext := next.start(t)
	defer stopNext()
	require.Equal(t, []usercoord.UserID{second, first}, next.svc.BackgroundUsers())

	started := next.svc.StartBackgroundUsers()
	require.ElementsMatch(t, []usercoord.UserID{second, first}, started)
	require.True(t, next.svc.StopBackgroundUser(first))
	require.False(t, next.svc.StopBackgroundUser(domain.SystemUser))
	require.Equal(t, []usercoord.UserID{second}, next.svc.RestartedUsers())
}

func TestService_Tunables(t *testing.T) {
	h := newHarness(t, usercoord.Config{MaxRunningUsers: 4})
	stop := h.start(t)
	defer stop()

	h.svc.SetCoordinatorTimeout(time.Second)
	require.Equal(t, time.Second, h.svc.CoordinatorTimeout())
	h.svc.SetCoordinatorTimeout(0)
	require.Equal(t, time.Second, h.svc.CoordinatorTimeout())

	h.svc.SetMaxRunningUsers(1)
	require.Equal(t, 4, h.svc.MaxRunningUsers())
	h.svc.SetMaxRunningUsers(2)
	require.Equal(t, 2, h.svc.MaxRunningUsers())
}

func TestService_SwitchTimesOut(t *testing.T) {
	users := memory.NewIdentityStore()
	sessions := memory.NewSessionManager(domain.SystemUser)
	slow := sim.New(sim.WithLatency(time.Second))
	svc, err := usercoord.New(usercoord.DefaultConfig(),
		usercoord.WithIdentityStore(users),
		usercoord.WithSessionManager(sessions),
		usercoord.WithCoordinator(slow),
	)
	require.NoError(t, err)
	require.NoError(t, svc.Start(context.Background()))
	defer func() { require.NoError(t, svc.Stop()) }()

	created, err := users.CreateUser("driver", domain.UserTypeFull, 0)
	require.NoError(t, err)

	res := svc.SwitchUser(context.Background(), created.ID, 20*time.Millisecond)
	require.Equal(t, domain.SwitchCoordinatorInternalFailure, res.Status)
	require.Equal(t, domain.SystemUser, sessions.CurrentUser())
}

// trackingPlugin records initialization and shutdown order.
type trackingPlugin struct {
	name    string
	order   *[]string
	mu      *sync.Mutex
	initErr error
}

func (p *trackingPlugin) Name() string { return p.name }

func (p *trackingPlugin) Initialize(ctx context.Context, cfg usercoord.PluginConfig) error {
	if p.initErr != nil {
		return p.initErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	*p.order = append(*p.order, "init:"+p.name)
	return nil
}

func (p *trackingPlugin) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	*p.order = append(*p.order, "shutdown:"+p.name)
	return nil
}

func TestService_PluginOrder(t *testing.T) {
	var mu sync.Mutex
	var order []string
	h := newHarness(t, usercoord.DefaultConfig(),
		usercoord.WithPlugin(&trackingPlugin{name: "a", order: &order, mu: &mu}),
		usercoord.WithPlugin(&trackingPlugin{name: "b", order: &order, mu: &mu}),
	)
	require.NoError(t, h.svc.Start(context.Background()))
	require.NoError(t, h.svc.Stop())

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"init:a", "init:b", "shutdown:b", "shutdown:a"}, order)
}

func TestService_PluginInitFailureAbortsStart(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var mu sync.Mutex
	var order []string
	boom := errors.New("boom")
	h := newHarness(t, usercoord.DefaultConfig(),
		usercoord.WithPlugin(&trackingPlugin{name: "bad", order: &order, mu: &mu, initErr: boom}),
	)

	require.ErrorIs(t, h.svc.Start(context.Background()), boom)
	require.Equal(t, usercoord.StateCrashed, h.svc.Status())

	res := <-h.svc.RequestSwitch(10, 0)
	require.Equal(t, domain.SwitchOSFailure, res.Status)
}

var _ ports.RemoteListener = (*recordingRemote)(nil)
