package models

// Non-canvas delta categories.
const (
	CategoryConstraints   = "constraints"
	CategoryPreferences   = "preferences"
	CategoryPendingTopics = "pending_topics"
)

// DeltaCategories lists every valid delta category in canonical order: the
// nine canvas blocks followed by the three auxiliary lists.
var DeltaCategories = append(append([]string{}, CanvasBlocks...),
	CategoryConstraints, CategoryPreferences, CategoryPendingTopics)

// IsDeltaCategory reports whether key names a canvas block or auxiliary list.
func IsDeltaCategory(key string) bool {
	switch key {
	case CategoryConstraints, CategoryPreferences, CategoryPendingTopics:
		return true
	}
	return IsCanvasBlock(key)
}

// MemoryDelta records per-category additions and removals computed for a
// single turn. A removal is only meaningful when the same turn added a
// replacement fact to the category; bare removals are discarded upstream.
type MemoryDelta struct {
	Added   map[string][]string `json:"added"`
	Removed map[string][]string `json:"removed"`
}

// NewMemoryDelta returns an empty delta.
func NewMemoryDelta() MemoryDelta {
	return MemoryDelta{
		Added:   make(map[string][]string),
		Removed: make(map[string][]string),
	}
}

// Empty reports whether the delta carries no changes at all.
func (d MemoryDelta) Empty() bool {
	for _, facts := range d.Added {
		if len(facts) > 0 {
			return false
		}
	}
	for _, facts := range d.Removed {
		if len(facts) > 0 {
			return false
		}
	}
	return true
}

// Add records fact as an addition to category, skipping duplicates. Unknown
// categories are dropped so a hallucinated key can never reach the store.
func (d *MemoryDelta) Add(category, fact string) {
	if !IsDeltaCategory(category) {
		return
	}
	if d.Added == nil {
		d.Added = make(map[string][]string)
	}
	if facts, grew := AppendFact(d.Added[category], fact); grew {
		d.Added[category] = facts
	}
}

// Remove records fact as a removal from category, skipping duplicates.
// Unknown categories are dropped.
func (d *MemoryDelta) Remove(category, fact string) {
	if !IsDeltaCategory(category) {
		return
	}
	if d.Removed == nil {
		d.Removed = make(map[string][]string)
	}
	if facts, grew := AppendFact(d.Removed[category], fact); grew {
		d.Removed[category] = facts
	}
}

// TouchesCanvas reports whether any canvas block gains or loses a fact.
func (d MemoryDelta) TouchesCanvas() bool {
	for _, block := range CanvasBlocks {
		if len(d.Added[block]) > 0 || len(d.Removed[block]) > 0 {
			return true
		}
	}
	return false
}
