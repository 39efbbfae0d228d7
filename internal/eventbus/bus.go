package eventbus

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/bft-labs/usercoord/internal/domain"
	"github.com/bft-labs/usercoord/internal/metrics"
	"github.com/bft-labs/usercoord/internal/ports"
	"github.com/bft-labs/usercoord/pkg/log"
)

type commandKind int

const (
	cmdAddLocal commandKind = iota + 1
	cmdRemoveLocal
	cmdAddRemote
	cmdRemoveRemote
	cmdRemoteDied
)

type command struct {
	kind     commandKind
	listener ports.Listener
	uid      ports.UID
	remote   ports.RemoteListener
	entry    *remoteEntry
}

// item is either an event or a flush barrier.
type item struct {
	event   domain.LifecycleEvent
	barrier chan struct{}
}

type remoteEntry struct {
	handle ports.RemoteListener
	stop   chan struct{}
}

// Bus is the lifecycle event bus.
type Bus struct {
	logger log.Logger

	mu      sync.Mutex
	control []command
	events  []item
	closed  bool
	notify  chan struct{}
	done    chan struct{}

	// Owned by the worker.
	local  []ports.Listener
	remote map[ports.UID]*remoteEntry

	localCount  atomic.Int32
	remoteCount atomic.Int32
}

// New creates a bus. Call Run to start delivering.
func New(logger log.Logger) *Bus {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Bus{
		logger: logger,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
		remote: make(map[ports.UID]*remoteEntry),
	}
}

// Dispatch posts an event. It never blocks. Events posted after the bus
// stopped are dropped.
func (b *Bus) Dispatch(event domain.LifecycleEvent) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.logger.Debug("lifecycle event dropped, bus stopped", log.Stringer("event", event))
		return
	}
	b.events = append(b.events, item{event: event})
	b.mu.Unlock()
	b.wake()
}

// Register adds an in-process listener. Listeners are identified by
// equality and must have a comparable dynamic type.
func (b *Bus) Register(l ports.Listener) error {
	if err := checkListener(l); err != nil {
		return err
	}
	return b.post(command{kind: cmdAddLocal, listener: l})
}

// Unregister removes an in-process listener. Unknown listeners are ignored.
func (b *Bus) Unregister(l ports.Listener) error {
	if err := checkListener(l); err != nil {
		return err
	}
	return b.post(command{kind: cmdRemoveLocal, listener: l})
}

// RegisterRemote adds or replaces the remote handle for uid.
func (b *Bus) RegisterRemote(uid ports.UID, handle ports.RemoteListener) error {
	if handle == nil {
		return fmt.Errorf("register remote listener for uid %d: nil handle", uid)
	}
	return b.post(command{kind: cmdAddRemote, uid: uid, remote: handle})
}

// UnregisterRemote removes the remote handle for uid, if any.
func (b *Bus) UnregisterRemote(uid ports.UID) error {
	return b.post(command{kind: cmdRemoveRemote, uid: uid})
}

// Flush blocks until every event posted before the call has been delivered.
func (b *Bus) Flush(ctx context.Context) error {
	barrier := make(chan struct{})
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return domain.ErrNotRunning
	}
	b.events = append(b.events, item{barrier: barrier})
	b.mu.Unlock()
	b.wake()

	select {
	case <-barrier:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LocalListeners returns the number of registered in-process listeners.
func (b *Bus) LocalListeners() int { return int(b.localCount.Load()) }

// RemoteListeners returns the number of registered remote handles.
func (b *Bus) RemoteListeners() int { return int(b.remoteCount.Load()) }

// Done is closed once Run has returned.
func (b *Bus) Done() <-chan struct{} { return b.done }

// Run delivers events until ctx is done. Events already queued when ctx is
// done are still delivered before Run returns.
func (b *Bus) Run(ctx context.Context) error {
	defer close(b.done)
	defer b.shutdown()

	for {
		b.drain()
		select {
		case <-b.notify:
		case <-ctx.Done():
			b.mu.Lock()
			b.closed = true
			b.mu.Unlock()
			b.drain()
			return nil
		}
	}
}

func (b *Bus) post(cmd command) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return domain.ErrNotRunning
	}
	b.control = append(b.control, cmd)
	b.mu.Unlock()
	b.wake()
	return nil
}

func (b *Bus) wake() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// drain processes queued work until the mailbox is empty.
func (b *Bus) drain() {
	for {
		b.applyControl()
		it, ok := b.nextItem()
		if !ok {
			return
		}
		if it.barrier != nil {
			close(it.barrier)
			continue
		}
		b.deliver(it.event)
	}
}

func (b *Bus) nextItem() (item, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.events) == 0 {
		return item{}, false
	}
	it := b.events[0]
	b.events[0] = item{}
	b.events = b.events[1:]
	return it, true
}

func (b *Bus) applyControl() {
	b.mu.Lock()
	cmds := b.control
	b.control = nil
	b.mu.Unlock()

	for _, cmd := range cmds {
		switch cmd.kind {
		case cmdAddLocal:
			if b.indexLocal(cmd.listener) < 0 {
				b.local = append(b.local, cmd.listener)
			}
		case cmdRemoveLocal:
			if i := b.indexLocal(cmd.listener); i >= 0 {
				b.local = append(b.local[:i], b.local[i+1:]...)
			}
		case cmdAddRemote:
			if old, ok := b.remote[cmd.uid]; ok {
				close(old.stop)
				b.logger.Debug("replacing remote lifecycle listener", log.Int("uid", int(cmd.uid)))
			}
			entry := &remoteEntry{handle: cmd.remote, stop: make(chan struct{})}
			b.remote[cmd.uid] = entry
			go b.watch(cmd.uid, entry)
		case cmdRemoveRemote:
			b.dropRemote(cmd.uid, nil)
		case cmdRemoteDied:
			if b.dropRemote(cmd.uid, cmd.entry) {
				b.logger.Info("remote lifecycle listener died", log.Int("uid", int(cmd.uid)))
			}
		}
	}

	b.localCount.Store(int32(len(b.local)))
	b.remoteCount.Store(int32(len(b.remote)))
	metrics.SetRemoteListeners(len(b.remote))
}

// watch reports the death of a remote handle to the worker.
func (b *Bus) watch(uid ports.UID, entry *remoteEntry) {
	select {
	case <-entry.handle.Done():
		b.mu.Lock()
		if !b.closed {
			b.control = append(b.control, command{kind: cmdRemoteDied, uid: uid, entry: entry})
		}
		b.mu.Unlock()
		b.wake()
	case <-entry.stop:
	}
}

// dropRemote removes the entry for uid. If want is non-nil the entry is
// only removed when it is still the registered one.
func (b *Bus) dropRemote(uid ports.UID, want *remoteEntry) bool {
	entry, ok := b.remote[uid]
	if !ok || (want != nil && entry != want) {
		return false
	}
	close(entry.stop)
	delete(b.remote, uid)
	return true
}

func (b *Bus) indexLocal(l ports.Listener) int {
	for i, cur := range b.local {
		if cur == l {
			return i
		}
	}
	return -1
}

func (b *Bus) deliver(event domain.LifecycleEvent) {
	metrics.RecordEvent(event.Type.String())

	snapshot := append([]ports.Listener(nil), b.local...)
	for _, l := range snapshot {
		b.applyControl()
		if b.indexLocal(l) < 0 {
			continue
		}
		b.deliverLocal(l, event)
	}

	uids := make([]ports.UID, 0, len(b.remote))
	for uid := range b.remote {
		uids = append(uids, uid)
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })

	for _, uid := range uids {
		b.applyControl()
		entry, ok := b.remote[uid]
		if !ok {
			continue
		}
		select {
		case <-entry.handle.Done():
			b.dropRemote(uid, entry)
			b.logger.Info("remote lifecycle listener died", log.Int("uid", int(uid)))
			continue
		default:
		}
		if err := entry.handle.Send(event); err != nil {
			metrics.RecordListenerFailure("remote")
			b.logger.Warn("dropping remote lifecycle listener after failed delivery",
				log.Int("uid", int(uid)),
				log.Stringer("event", event),
				log.Err(err),
			)
			b.dropRemote(uid, entry)
		}
	}
	b.remoteCount.Store(int32(len(b.remote)))
	metrics.SetRemoteListeners(len(b.remote))
}

func (b *Bus) deliverLocal(l ports.Listener, event domain.LifecycleEvent) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordListenerFailure("local")
			b.logger.Error("lifecycle listener panicked",
				log.Stringer("event", event),
				log.String("listener", fmt.Sprintf("%T", l)),
				log.Any("panic", r),
			)
		}
	}()
	l.OnEvent(event)
}

func (b *Bus) shutdown() {
	b.mu.Lock()
	b.closed = true
	pending := b.events
	b.events = nil
	b.control = nil
	b.mu.Unlock()

	for _, it := range pending {
		if it.barrier != nil {
			close(it.barrier)
		}
	}
	for uid := range b.remote {
		b.dropRemote(uid, nil)
	}
	b.local = nil
	b.localCount.Store(0)
	b.remoteCount.Store(0)
	metrics.SetRemoteListeners(0)
}

func checkListener(l ports.Listener) error {
	if l == nil {
		return fmt.Errorf("nil listener: %w", domain.ErrListenerNotComparable)
	}
	if !reflect.TypeOf(l).Comparable() {
		return fmt.Errorf("%T: %w", l, domain.ErrListenerNotComparable)
	}
	return nil
}
