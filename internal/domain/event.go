package domain

import "fmt"

// EventType is the kind of a user lifecycle event.
type EventType int

const (
	EventStarting EventType = iota + 1
	EventSwitching
	EventUnlocking
	EventUnlocked
	EventPostUnlocked
	EventStopping
	EventStopped
)

func (t EventType) String() string {
	switch t {
	case EventStarting:
		return "Starting"
	case EventSwitching:
		return "Switching"
	case EventUnlocking:
		return "Unlocking"
	case EventUnlocked:
		return "Unlocked"
	case EventPostUnlocked:
		return "PostUnlocked"
	case EventStopping:
		return "Stopping"
	case EventStopped:
		return "Stopped"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// LifecycleEvent is an immutable notification about a user lifecycle change.
// From is NullUser for events that are not transitions between two users.
type LifecycleEvent struct {
	Type        EventType
	From        UserID
	To          UserID
	TimestampMs int64
}

// NewLifecycleEvent creates an event for a single user.
func NewLifecycleEvent(t EventType, user UserID, timestampMs int64) LifecycleEvent {
	return LifecycleEvent{Type: t, From: NullUser, To: user, TimestampMs: timestampMs}
}

// User returns the user the event is about.
func (e LifecycleEvent) User() UserID { return e.To }

func (e LifecycleEvent) String() string {
	return fmt.Sprintf("LifecycleEvent{type=%s, from=%d, to=%d}", e.Type, e.From, e.To)
}
