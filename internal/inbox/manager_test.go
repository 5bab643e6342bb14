package inbox

import (
	"sync"
	"testing"
	"time"

	"canvasmind/internal/models"
)

// manualClock collects armed timers and fires them on demand.
type manualClock struct {
	mu      sync.Mutex
	pending []func()
}

type manualTimer struct{}

func (manualTimer) Stop() bool { return true }

func (c *manualClock) factory(_ time.Duration, fn func()) Timer {
	c.mu.Lock()
	c.pending = append(c.pending, fn)
	c.mu.Unlock()
	return manualTimer{}
}

func (c *manualClock) fire(t *testing.T) {
	t.Helper()
	c.mu.Lock()
	if len(c.pending) == 0 {
		c.mu.Unlock()
		t.Fatal("no timer armed")
	}
	fn := c.pending[0]
	c.pending = c.pending[1:]
	c.mu.Unlock()
	fn()
}

func suggestion(text string) models.ProactiveSuggestion {
	return models.ProactiveSuggestion{
		Text:        text,
		TargetBlock: models.BlockChannels,
		Confidence:  0.9,
	}
}

func TestOfferDisplaysImmediately(t *testing.T) {
	clock := &manualClock{}
	m := NewManager(30*time.Second, clock.factory, nil)

	id := m.Offer(suggestion("A"))
	item, ok := m.Displayed()
	if !ok || item.ID != id || item.State != StateDisplayed {
		t.Fatalf("expected offered item displayed, got %+v (ok=%v)", item, ok)
	}
	if m.BadgeCount() != 1 {
		t.Errorf("badge = %d, want 1", m.BadgeCount())
	}
}

func TestArrivalSupersedesDisplayed(t *testing.T) {
	clock := &manualClock{}
	m := NewManager(30*time.Second, clock.factory, nil)

	idA := m.Offer(suggestion("A"))
	idB := m.Offer(suggestion("B"))

	a, _ := m.Lookup(idA)
	if a.State != StateCollapsed {
		t.Errorf("A should collapse on B's arrival, got %v", a.State)
	}
	displayed, ok := m.Displayed()
	if !ok || displayed.ID != idB {
		t.Error("B should own the popup")
	}
	// A collapsed plus B displayed, both unresolved.
	if m.BadgeCount() != 2 {
		t.Errorf("badge = %d, want 2", m.BadgeCount())
	}
	if inbox := m.Inbox(); len(inbox) != 2 || inbox[0].ID != idA || inbox[1].ID != idB {
		t.Errorf("inbox = %+v", inbox)
	}
}

func TestTimerCollapseBuildsBadge(t *testing.T) {
	clock := &manualClock{}
	m := NewManager(30*time.Second, clock.factory, nil)

	m.Offer(suggestion("A"))
	m.Offer(suggestion("B")) // A collapses, B displays with a fresh timer

	clock.fire(t) // A's stale timer, must not touch B
	if displayed, ok := m.Displayed(); !ok || displayed.Suggestion.Text != "B" {
		t.Fatal("stale timer collapsed the successor popup")
	}

	clock.fire(t) // B's own timer
	if _, ok := m.Displayed(); ok {
		t.Error("popup should be free after B's timer")
	}
	if m.BadgeCount() != 2 {
		t.Errorf("badge = %d, want 2", m.BadgeCount())
	}
}

func TestExplicitCollapse(t *testing.T) {
	clock := &manualClock{}
	m := NewManager(30*time.Second, clock.factory, nil)

	id := m.Offer(suggestion("A"))
	if !m.Collapse(id) {
		t.Fatal("explicit collapse of displayed item failed")
	}
	if m.Collapse(id) {
		t.Error("collapsing twice should be a no-op")
	}
	if m.BadgeCount() != 1 {
		t.Errorf("badge = %d, want 1", m.BadgeCount())
	}
}

func TestReopenRedisplaysCollapsed(t *testing.T) {
	clock := &manualClock{}
	m := NewManager(30*time.Second, clock.factory, nil)

	id := m.Offer(suggestion("A"))
	clock.fire(t)
	if _, ok := m.Displayed(); ok {
		t.Fatal("popup should be free before reopen")
	}

	if !m.Reopen(id) {
		t.Fatal("reopening collapsed item failed")
	}
	item, ok := m.Displayed()
	if !ok || item.ID != id || item.State != StateDisplayed {
		t.Fatalf("reopened item not displayed: %+v (ok=%v)", item, ok)
	}
	if len(m.Collapsed()) != 0 {
		t.Error("reopened item should leave the badge")
	}
	if m.BadgeCount() != 1 {
		t.Errorf("badge = %d, want 1", m.BadgeCount())
	}

	clock.fire(t) // fresh timer armed by the reopen
	if _, ok := m.Displayed(); ok {
		t.Error("reopened popup should collapse again on its new timer")
	}
}

func TestReopenSwapsWithDisplayed(t *testing.T) {
	clock := &manualClock{}
	m := NewManager(30*time.Second, clock.factory, nil)

	idA := m.Offer(suggestion("A"))
	idB := m.Offer(suggestion("B")) // A collapses

	if !m.Reopen(idA) {
		t.Fatal("reopening A failed")
	}
	displayed, ok := m.Displayed()
	if !ok || displayed.ID != idA {
		t.Error("A should own the popup after reopen")
	}
	b, _ := m.Lookup(idB)
	if b.State != StateCollapsed {
		t.Errorf("B should collapse when A reopens, got %v", b.State)
	}
	if badge := m.Collapsed(); len(badge) != 1 || badge[0].ID != idB {
		t.Errorf("badge contents = %+v, want just B", badge)
	}
	if m.BadgeCount() != 2 {
		t.Errorf("badge = %d, want 2", m.BadgeCount())
	}
}

func TestReopenNonCollapsedIsNoOp(t *testing.T) {
	clock := &manualClock{}
	m := NewManager(30*time.Second, clock.factory, nil)

	id := m.Offer(suggestion("A"))
	if m.Reopen(id) {
		t.Error("reopening the displayed item should report false")
	}
	m.Resolve(id, VerdictDismissed)
	if m.Reopen(id) {
		t.Error("reopening a resolved item should report false")
	}
	if m.Reopen("missing") {
		t.Error("reopening an unknown ID should report false")
	}
}

func TestResolveDisplayed(t *testing.T) {
	clock := &manualClock{}
	m := NewManager(30*time.Second, clock.factory, nil)

	id := m.Offer(suggestion("A"))
	item, ok := m.Resolve(id, VerdictAccepted)
	if !ok || item.State != StateResolved || item.Verdict != VerdictAccepted {
		t.Fatalf("resolve failed: %+v (ok=%v)", item, ok)
	}
	if _, ok := m.Displayed(); ok {
		t.Error("popup should be free after resolve")
	}

	clock.fire(t) // stale timer after resolve
	if m.BadgeCount() != 0 {
		t.Error("stale timer must not resurrect a resolved popup")
	}
}

func TestResolveCollapsedShrinksBadge(t *testing.T) {
	clock := &manualClock{}
	m := NewManager(30*time.Second, clock.factory, nil)

	id := m.Offer(suggestion("A"))
	clock.fire(t)
	if m.BadgeCount() != 1 {
		t.Fatalf("badge = %d, want 1", m.BadgeCount())
	}

	if _, ok := m.Resolve(id, VerdictDismissed); !ok {
		t.Fatal("resolving collapsed item failed")
	}
	if m.BadgeCount() != 0 {
		t.Errorf("badge = %d, want 0", m.BadgeCount())
	}
}

func TestResolveUnknownIDIsNoOp(t *testing.T) {
	m := NewManager(30*time.Second, (&manualClock{}).factory, nil)
	if _, ok := m.Resolve("missing", VerdictDismissed); ok {
		t.Error("resolving unknown ID should report false")
	}
}

func TestResolveIsTerminal(t *testing.T) {
	m := NewManager(30*time.Second, (&manualClock{}).factory, nil)
	id := m.Offer(suggestion("A"))
	m.Resolve(id, VerdictAccepted)

	if _, ok := m.Resolve(id, VerdictDismissed); ok {
		t.Error("resolved item must not resolve again")
	}
	item, ok := m.Lookup(id)
	if !ok || item.Verdict != VerdictAccepted {
		t.Errorf("verdict changed after terminal state: %+v", item)
	}
}

func TestOnChangeNotifications(t *testing.T) {
	clock := &manualClock{}
	var mu sync.Mutex
	var states []State
	m := NewManager(30*time.Second, clock.factory, func(item Item) {
		mu.Lock()
		states = append(states, item.State)
		mu.Unlock()
	})

	id := m.Offer(suggestion("A"))
	clock.fire(t)
	m.Resolve(id, VerdictAccepted)

	mu.Lock()
	defer mu.Unlock()
	want := []State{StateDisplayed, StateCollapsed, StateResolved}
	if len(states) != len(want) {
		t.Fatalf("got %d notifications, want %d: %v", len(states), len(want), states)
	}
	for i, s := range want {
		if states[i] != s {
			t.Errorf("notification %d = %v, want %v", i, states[i], s)
		}
	}
}
