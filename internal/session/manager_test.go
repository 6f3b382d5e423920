package session

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"mediaDownloader/internal/poller"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	p := poller.New(testLogger(), newScriptedFetcher(), poller.Options{Interval: time.Millisecond})
	return NewManager(testLogger(), func(id string) *Coordinator {
		return NewCoordinator(context.Background(), testLogger(), &stubConverter{fn: jobWith(id, "")}, p, nil)
	})
}

func TestManager_Get(t *testing.T) {
	m := newTestManager(t)

	id, c := m.Get("")
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("Expected a uuid session id, got %q", id)
	}
	if c == nil {
		t.Fatal("Expected a coordinator")
	}

	sameID, same := m.Get(id)
	if sameID != id || same != c {
		t.Error("Expected the same session to be returned")
	}

	junkID, _ := m.Get("not-a-uuid")
	if junkID == "not-a-uuid" {
		t.Error("Invalid ids should be replaced")
	}

	chosen := uuid.NewString()
	mintedID, _ := m.Get(chosen)
	if mintedID == chosen {
		t.Error("Unknown ids must not be adopted, even when well formed")
	}

	if m.Len() != 3 {
		t.Errorf("Expected 3 sessions, got %d", m.Len())
	}
}

func TestManager_Lookup(t *testing.T) {
	m := newTestManager(t)

	if _, ok := m.Lookup("missing"); ok {
		t.Error("Lookup should not create sessions")
	}

	id, c := m.Get("")
	found, ok := m.Lookup(id)
	if !ok || found != c {
		t.Error("Expected Lookup to find the session")
	}
}

func TestManager_Cleanup(t *testing.T) {
	m := newTestManager(t)
	now := time.Now()
	m.now = func() time.Time { return now }

	oldID, _ := m.Get("")
	now = now.Add(time.Hour)
	freshID, _ := m.Get("")

	removed := m.cleanup(30 * time.Minute)
	if removed != 1 {
		t.Errorf("Expected 1 removed session, got %d", removed)
	}
	if _, ok := m.Lookup(oldID); ok {
		t.Error("Idle session should be evicted")
	}
	if _, ok := m.Lookup(freshID); !ok {
		t.Error("Fresh session should survive")
	}
}

func TestManager_CloseAll(t *testing.T) {
	m := newTestManager(t)
	m.Get("")
	m.Get("")

	m.CloseAll()
	if m.Len() != 0 {
		t.Errorf("Expected no sessions after CloseAll, got %d", m.Len())
	}
}

func TestManager_CleanupKeepsPollingSessions(t *testing.T) {
	m := newTestManager(t)
	now := time.Now()
	m.now = func() time.Time { return now }

	id, c := m.Get("")
	if _, err := c.Submit(context.Background(), "https://example.com/v", "720"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	defer c.Close()

	now = now.Add(time.Hour)
	if removed := m.cleanup(time.Minute); removed != 0 {
		t.Errorf("Expected polling session to survive, %d removed", removed)
	}
	if _, ok := m.Lookup(id); !ok {
		t.Fatal("Expected polling session to still exist")
	}

	c.CancelPolling()
	now = now.Add(time.Hour)
	if removed := m.cleanup(time.Minute); removed != 1 {
		t.Errorf("Expected idle session to be evicted once polling stopped, %d removed", removed)
	}
}

func TestManager_CleanupKeepsHeldSessions(t *testing.T) {
	m := newTestManager(t)
	now := time.Now()
	m.now = func() time.Time { return now }

	id, _ := m.Get("")
	release := m.Hold(id)

	now = now.Add(time.Hour)
	if removed := m.cleanup(time.Minute); removed != 0 {
		t.Errorf("Expected held session to survive, %d removed", removed)
	}

	release()
	release()
	if removed := m.cleanup(time.Minute); removed != 0 {
		t.Errorf("Release should refresh the session, %d removed", removed)
	}

	now = now.Add(time.Hour)
	if removed := m.cleanup(time.Minute); removed != 1 {
		t.Errorf("Expected released session to expire, %d removed", removed)
	}
}

func TestManager_HoldUnknownSession(t *testing.T) {
	m := newTestManager(t)
	release := m.Hold("missing")
	release()
	if m.Len() != 0 {
		t.Errorf("Hold should not create sessions, got %d", m.Len())
	}
}
