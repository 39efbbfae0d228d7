package memory

import (
	"errors"
	"testing"

	"github.com/bft-labs/usercoord/internal/domain"
)

func TestIdentityStore_CreateAndRemove(t *testing.T) {
	s := NewIdentityStore()

	u, err := s.CreateUser("alice", domain.UserTypeFull, domain.FlagAdmin)
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	if u.ID != FirstUserID {
		t.Errorf("first id = %d, want %d", u.ID, FirstUserID)
	}
	if u.ProfileGroupID != domain.NullUser {
		t.Errorf("ProfileGroupID = %d, want NullUser", u.ProfileGroupID)
	}

	p, err := s.CreateProfile("work", domain.UserTypeProfileManaged, domain.FlagManagedProfile, u.ID)
	if err != nil {
		t.Fatalf("CreateProfile() error = %v", err)
	}
	if p.ProfileGroupID != u.ID {
		t.Errorf("profile group = %d, want %d", p.ProfileGroupID, u.ID)
	}

	if got := len(s.Users()); got != 3 {
		t.Errorf("len(Users()) = %d, want 3", got)
	}

	if err := s.RemoveUser(u.ID); err != nil {
		t.Fatalf("RemoveUser() error = %v", err)
	}
	if _, err := s.User(u.ID); !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("User() after remove error = %v, want ErrUserNotFound", err)
	}
	if err := s.RemoveUser(u.ID); !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("second RemoveUser() error = %v, want ErrUserNotFound", err)
	}
}

func TestIdentityStore_ProfileNeedsParent(t *testing.T) {
	s := NewIdentityStore()
	if _, err := s.CreateProfile("work", domain.UserTypeProfileManaged, domain.FlagManagedProfile, 42); !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("CreateProfile() error = %v, want ErrUserNotFound", err)
	}
}

func TestIdentityStore_InjectedErrors(t *testing.T) {
	s := NewIdentityStore()
	s.SetCreateError(ErrInjected)
	if _, err := s.CreateUser("bob", domain.UserTypeFull, 0); !errors.Is(err, ErrInjected) {
		t.Errorf("CreateUser() error = %v, want ErrInjected", err)
	}
	s.SetCreateError(nil)
	u, _ := s.CreateUser("bob", domain.UserTypeFull, 0)
	s.SetRemoveError(ErrInjected)
	if err := s.RemoveUser(u.ID); !errors.Is(err, ErrInjected) {
		t.Errorf("RemoveUser() error = %v, want ErrInjected", err)
	}
}

func TestSessionManager_SwitchEmitsEvents(t *testing.T) {
	m := NewSessionManager(domain.SystemUser)
	var got []domain.EventType
	m.SetEventSink(func(e domain.LifecycleEvent) { got = append(got, e.Type) })

	if err := m.SwitchUser(10); err != nil {
		t.Fatalf("SwitchUser() error = %v", err)
	}
	want := []domain.EventType{
		domain.EventStarting,
		domain.EventSwitching,
		domain.EventUnlocking,
		domain.EventUnlocked,
		domain.EventPostUnlocked,
	}
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if m.CurrentUser() != 10 {
		t.Errorf("CurrentUser() = %d, want 10", m.CurrentUser())
	}

	// Switching back to an unlocked user only emits Switching.
	got = nil
	if err := m.SwitchUser(domain.SystemUser); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != domain.EventSwitching {
		t.Errorf("events = %v, want [Switching]", got)
	}
}

func TestSessionManager_BackgroundLifecycle(t *testing.T) {
	m := NewSessionManager(10)

	if err := m.StopUser(10); err == nil {
		t.Error("StopUser(foreground) should fail")
	}
	if err := m.UnlockUser(11); err == nil {
		t.Error("UnlockUser(not running) should fail")
	}
	if err := m.StartUserInBackground(11); err != nil {
		t.Fatal(err)
	}
	if !m.IsUserRunning(11) || m.IsUserUnlockingOrUnlocked(11) {
		t.Error("user 11 should be running and locked")
	}
	if err := m.UnlockUser(11); err != nil {
		t.Fatal(err)
	}
	if !m.IsUserUnlockingOrUnlocked(11) {
		t.Error("user 11 should be unlocked")
	}
	if err := m.StopUser(11); err != nil {
		t.Fatal(err)
	}
	if m.IsUserRunning(11) {
		t.Error("user 11 should be stopped")
	}
}
