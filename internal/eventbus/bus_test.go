package eventbus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/bft-labs/usercoord/internal/domain"
	"github.com/bft-labs/usercoord/internal/ports"
)

type recorder struct {
	mu    sync.Mutex
	order *[]string
	name  string
	got   []domain.LifecycleEvent
}

func (r *recorder) OnEvent(e domain.LifecycleEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, e)
	if r.order != nil {
		*r.order = append(*r.order, r.name)
	}
}

func (r *recorder) events() []domain.LifecycleEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.LifecycleEvent(nil), r.got...)
}

type fakeRemote struct {
	mu    sync.Mutex
	order *[]string
	name  string
	err   error
	got   []domain.LifecycleEvent
	done  chan struct{}
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{done: make(chan struct{})}
}

func (f *fakeRemote) Send(e domain.LifecycleEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.got = append(f.got, e)
	if f.order != nil {
		*f.order = append(*f.order, f.name)
	}
	return nil
}

func (f *fakeRemote) Done() <-chan struct{} { return f.done }

func (f *fakeRemote) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.got)
}

type panicker struct{}

func (*panicker) OnEvent(domain.LifecycleEvent) { panic("listener bug") }

type sliceListener struct {
	seen []domain.LifecycleEvent
}

func (s sliceListener) OnEvent(domain.LifecycleEvent) {}

// startBus runs a bus; the returned func stops it and waits for the worker.
func startBus(t *testing.T) (*Bus, func()) {
	t.Helper()
	b := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = b.Run(ctx) }()
	return b, func() {
		cancel()
		<-b.Done()
	}
}

func flush(t *testing.T, b *Bus) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, b.Flush(ctx))
}

func unlocked(user domain.UserID) domain.LifecycleEvent {
	return domain.NewLifecycleEvent(domain.EventUnlocked, user, 0)
}

func TestBus_LocalBeforeRemote(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	b, stop := startBus(t)
	defer stop()

	var order []string
	local := &recorder{order: &order, name: "local"}
	remote := newFakeRemote()
	remote.order = &order
	remote.name = "remote"
	// Both append to order from the worker goroutine only.
	require.NoError(t, b.RegisterRemote(1000, remote))
	require.NoError(t, b.Register(local))
	b.Dispatch(unlocked(10))
	flush(t, b)

	require.Equal(t, []string{"local", "remote"}, order)
}

func TestBus_DeliversInPostingOrder(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	b := New(nil)
	l := &recorder{}
	require.NoError(t, b.Register(l))

	// Posting never blocks, even before the worker runs.
	for i := 0; i < 500; i++ {
		b.Dispatch(unlocked(domain.UserID(i)))
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = b.Run(ctx) }()
	flush(t, b)
	cancel()
	<-b.Done()

	got := l.events()
	require.Len(t, got, 500)
	for i, e := range got {
		require.Equal(t, domain.UserID(i), e.User())
	}
}

func TestBus_PanickingListenerIsIsolated(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	b, stop := startBus(t)
	defer stop()

	good := &recorder{}
	require.NoError(t, b.Register(&panicker{}))
	require.NoError(t, b.Register(good))

	b.Dispatch(unlocked(10))
	b.Dispatch(unlocked(11))
	flush(t, b)

	require.Len(t, good.events(), 2)
	require.Equal(t, 2, b.LocalListeners())
}

type unregisterOnEvent struct {
	bus    *Bus
	target ports.Listener
}

func (u *unregisterOnEvent) OnEvent(domain.LifecycleEvent) {
	_ = u.bus.Unregister(u.target)
}

func TestBus_RemovedDuringDispatchGetsNothing(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	b, stop := startBus(t)
	defer stop()

	victim := &recorder{}
	require.NoError(t, b.Register(&unregisterOnEvent{bus: b, target: victim}))
	require.NoError(t, b.Register(victim))

	b.Dispatch(unlocked(10))
	b.Dispatch(unlocked(11))
	flush(t, b)

	require.Empty(t, victim.events())
	require.Equal(t, 1, b.LocalListeners())
}

func TestBus_RegisterIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	b, stop := startBus(t)
	defer stop()

	l := &recorder{}
	require.NoError(t, b.Register(l))
	require.NoError(t, b.Register(l))
	b.Dispatch(unlocked(10))
	flush(t, b)

	require.Len(t, l.events(), 1)

	require.NoError(t, b.Unregister(l))
	b.Dispatch(unlocked(11))
	flush(t, b)
	require.Len(t, l.events(), 1)
}

func TestBus_ListenerFunc(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	b, stop := startBus(t)
	defer stop()

	var got []domain.UserID
	fn := ports.NewListenerFunc(func(e domain.LifecycleEvent) { got = append(got, e.User()) })
	require.NoError(t, b.Register(fn))
	b.Dispatch(unlocked(10))
	flush(t, b)
	require.NoError(t, b.Unregister(fn))
	b.Dispatch(unlocked(11))
	flush(t, b)

	require.Equal(t, []domain.UserID{10}, got)
}

func TestBus_RejectsUncomparableListener(t *testing.T) {
	b := New(nil)

	err := b.Register(sliceListener{})
	require.ErrorIs(t, err, domain.ErrListenerNotComparable)

	err = b.Register(nil)
	require.ErrorIs(t, err, domain.ErrListenerNotComparable)
}

func TestBus_RemoteSendFailureDropsHandle(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	b, stop := startBus(t)
	defer stop()

	bad := newFakeRemote()
	bad.err = errors.New("dead object")
	good := newFakeRemote()
	require.NoError(t, b.RegisterRemote(1000, bad))
	require.NoError(t, b.RegisterRemote(1001, good))

	b.Dispatch(unlocked(10))
	flush(t, b)
	require.Equal(t, 1, b.RemoteListeners())

	bad.mu.Lock()
	bad.err = nil
	bad.mu.Unlock()
	b.Dispatch(unlocked(11))
	flush(t, b)

	require.Equal(t, 0, bad.count())
	require.Equal(t, 2, good.count())
}

func TestBus_RemoteDeathRemovesHandle(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	b, stop := startBus(t)
	defer stop()

	r := newFakeRemote()
	require.NoError(t, b.RegisterRemote(1000, r))
	flush(t, b)
	require.Equal(t, 1, b.RemoteListeners())

	close(r.done)
	require.Eventually(t, func() bool { return b.RemoteListeners() == 0 },
		2*time.Second, 5*time.Millisecond)

	b.Dispatch(unlocked(10))
	flush(t, b)
	require.Equal(t, 0, r.count())
}

func TestBus_RemoteReRegistrationReplaces(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	b, stop := startBus(t)
	defer stop()

	first := newFakeRemote()
	second := newFakeRemote()
	require.NoError(t, b.RegisterRemote(1000, first))
	require.NoError(t, b.RegisterRemote(1000, second))
	b.Dispatch(unlocked(10))
	flush(t, b)

	require.Equal(t, 0, first.count())
	require.Equal(t, 1, second.count())
	require.Equal(t, 1, b.RemoteListeners())

	// Death of the replaced handle must not drop the new one.
	close(first.done)
	b.Dispatch(unlocked(11))
	flush(t, b)
	require.Equal(t, 2, second.count())

	require.NoError(t, b.UnregisterRemote(1000))
	flush(t, b)
	require.Equal(t, 0, b.RemoteListeners())
}

func TestBus_StoppedBusRejectsWork(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	b := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = b.Run(ctx) }()
	cancel()
	<-b.Done()

	require.ErrorIs(t, b.Register(&recorder{}), domain.ErrNotRunning)
	require.ErrorIs(t, b.Flush(context.Background()), domain.ErrNotRunning)
	b.Dispatch(unlocked(10))
}
