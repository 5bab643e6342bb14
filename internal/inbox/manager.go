package inbox

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"canvasmind/internal/models"
)

// State of a suggestion in the client inbox.
type State int

const (
	// StateQueued is the entry state before the suggestion reaches the
	// popup.
	StateQueued State = iota
	// StateDisplayed means the suggestion currently owns the popup.
	StateDisplayed
	// StateCollapsed means the popup closed or timed out into the badge.
	StateCollapsed
	// StateResolved is terminal.
	StateResolved
)

func (s State) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateDisplayed:
		return "displayed"
	case StateCollapsed:
		return "collapsed"
	case StateResolved:
		return "resolved"
	default:
		return "unknown"
	}
}

// Verdict records how a resolved suggestion ended.
type Verdict string

const (
	VerdictAccepted  Verdict = "accepted"
	VerdictDismissed Verdict = "dismissed"
)

// Item is one suggestion tracked by the inbox.
type Item struct {
	ID         string
	Suggestion models.ProactiveSuggestion
	State      State
	Verdict    Verdict
}

// Timer is the injectable collapse timer handle.
type Timer interface {
	Stop() bool
}

// TimerFactory schedules fn after d and returns a cancelable handle. Tests
// inject a manual factory; production uses time.AfterFunc.
type TimerFactory func(d time.Duration, fn func()) Timer

type realTimer struct{ t *time.Timer }

func (r realTimer) Stop() bool { return r.t.Stop() }

// RealTimers is the production TimerFactory.
func RealTimers(d time.Duration, fn func()) Timer {
	return realTimer{t: time.AfterFunc(d, fn)}
}

// Manager runs the suggestion popup lifecycle for one client connection. At
// most one suggestion is displayed at a time; a new arrival pushes the
// current popup into the badge. An undisturbed popup collapses on its own
// after the collapse delay. Suggestions in the badge can be reopened into
// the popup or resolved in place; the badge counts every unresolved
// suggestion and hides at zero.
type Manager struct {
	mu sync.Mutex

	collapseDelay time.Duration
	newTimer      TimerFactory
	onChange      func(Item)

	displayed *Item
	collapsed []*Item
	resolved  map[string]*Item

	timer Timer
}

// NewManager builds a manager. onChange fires, without the lock held, for
// every state transition; pass nil to disable notifications.
func NewManager(collapseDelay time.Duration, newTimer TimerFactory, onChange func(Item)) *Manager {
	if newTimer == nil {
		newTimer = RealTimers
	}
	return &Manager{
		collapseDelay: collapseDelay,
		newTimer:      newTimer,
		onChange:      onChange,
		resolved:      make(map[string]*Item),
	}
}

// Offer hands a new suggestion to the inbox and returns its item ID. The
// new suggestion takes the popup immediately; whatever was displayed moves
// into the badge.
func (m *Manager) Offer(s models.ProactiveSuggestion) string {
	m.mu.Lock()
	item := &Item{
		ID:         uuid.NewString(),
		Suggestion: s,
		State:      StateQueued,
	}

	var notify []Item
	if old := m.collapseDisplayedLocked(); old != nil {
		notify = append(notify, *old)
	}
	notify = append(notify, m.displayLocked(item))
	m.mu.Unlock()

	m.notifyAll(notify)
	return item.ID
}

// Collapse closes the displayed popup into the badge, either because the
// user closed it or the inactivity timer fired. Collapsing anything other
// than the current popup is a no-op.
func (m *Manager) Collapse(id string) bool {
	m.mu.Lock()
	if m.displayed == nil || m.displayed.ID != id {
		m.mu.Unlock()
		return false
	}
	item := m.collapseDisplayedLocked()
	m.mu.Unlock()

	m.notifyAll([]Item{*item})
	return true
}

// Reopen promotes a collapsed suggestion back into the popup. Whatever
// currently owns the popup moves into the badge, and the reopened item gets
// a fresh collapse timer. Reopening an ID that is not collapsed is a no-op.
func (m *Manager) Reopen(id string) bool {
	m.mu.Lock()
	var item *Item
	for i, c := range m.collapsed {
		if c.ID == id {
			item = c
			m.collapsed = append(m.collapsed[:i], m.collapsed[i+1:]...)
			break
		}
	}
	if item == nil {
		m.mu.Unlock()
		return false
	}

	var notify []Item
	if old := m.collapseDisplayedLocked(); old != nil {
		notify = append(notify, *old)
	}
	notify = append(notify, m.displayLocked(item))
	m.mu.Unlock()

	m.notifyAll(notify)
	return true
}

// Resolve applies the user's verdict to a displayed or collapsed item.
// Returns the item and true when the transition happened; resolving an
// unknown or already resolved ID is a no-op.
func (m *Manager) Resolve(id string, verdict Verdict) (Item, bool) {
	m.mu.Lock()
	var item *Item

	switch {
	case m.displayed != nil && m.displayed.ID == id:
		item = m.displayed
		m.displayed = nil
		if m.timer != nil {
			m.timer.Stop()
		}
	default:
		for i, c := range m.collapsed {
			if c.ID == id {
				item = c
				m.collapsed = append(m.collapsed[:i], m.collapsed[i+1:]...)
				break
			}
		}
	}

	if item == nil {
		m.mu.Unlock()
		return Item{}, false
	}

	item.State = StateResolved
	item.Verdict = verdict
	m.resolved[item.ID] = item
	snapshot := *item
	m.mu.Unlock()

	m.notifyAll([]Item{snapshot})
	return snapshot, true
}

// displayLocked gives item the popup slot and arms the collapse timer.
func (m *Manager) displayLocked(item *Item) Item {
	item.State = StateDisplayed
	m.displayed = item
	id := item.ID
	m.timer = m.newTimer(m.collapseDelay, func() { m.Collapse(id) })
	return *item
}

// collapseDisplayedLocked moves the current popup into the badge.
func (m *Manager) collapseDisplayedLocked() *Item {
	if m.displayed == nil {
		return nil
	}
	if m.timer != nil {
		m.timer.Stop()
	}
	item := m.displayed
	item.State = StateCollapsed
	m.collapsed = append(m.collapsed, item)
	m.displayed = nil
	return item
}

// BadgeCount returns how many suggestions remain unresolved. The badge
// hides at zero.
func (m *Manager) BadgeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := len(m.collapsed)
	if m.displayed != nil {
		count++
	}
	return count
}

// Inbox lists every unresolved suggestion, oldest collapsed first, the
// displayed one last.
func (m *Manager) Inbox() []Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Item, 0, len(m.collapsed)+1)
	for _, c := range m.collapsed {
		out = append(out, *c)
	}
	if m.displayed != nil {
		out = append(out, *m.displayed)
	}
	return out
}

// Displayed returns the item currently owning the popup, if any.
func (m *Manager) Displayed() (Item, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.displayed == nil {
		return Item{}, false
	}
	return *m.displayed, true
}

// Collapsed returns a snapshot of the badge contents, oldest first.
func (m *Manager) Collapsed() []Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Item, len(m.collapsed))
	for i, c := range m.collapsed {
		out[i] = *c
	}
	return out
}

// Lookup finds an item by ID in any state.
func (m *Manager) Lookup(id string) (Item, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.displayed != nil && m.displayed.ID == id {
		return *m.displayed, true
	}
	for _, c := range m.collapsed {
		if c.ID == id {
			return *c, true
		}
	}
	if r, ok := m.resolved[id]; ok {
		return *r, true
	}
	return Item{}, false
}

func (m *Manager) notifyAll(items []Item) {
	if m.onChange == nil {
		return
	}
	for _, item := range items {
		m.onChange(item)
	}
}
