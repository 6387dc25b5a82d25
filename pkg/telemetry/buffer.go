package telemetry

import (
	"sync"
	"unicode/utf8"

	"github.com/modoterra/gatewatch/pkg/core"
)

// Capacity is the number of entries the retention buffer holds.
const Capacity = 500

// dedupPrefixLen is how much of the message takes part in the dedup key.
const dedupPrefixLen = 100

// Buffer is the bounded, insertion-ordered store of retained records.
// Inserting beyond capacity evicts the oldest entry. A record whose
// timestamp and message prefix match an entry still held is a duplicate.
type Buffer struct {
	mu       sync.RWMutex
	capacity int
	entries  []core.RetainedEntry
	keys     map[string]struct{}
	lastID   int64
	paused   bool
}

// NewBuffer creates a buffer holding at most capacity entries. A capacity
// below one selects Capacity.
func NewBuffer(capacity int) *Buffer {
	if capacity < 1 {
		capacity = Capacity
	}
	return &Buffer{
		capacity: capacity,
		keys:     make(map[string]struct{}, capacity),
	}
}

// dedupKey is the timestamp plus the first runes of the message.
func dedupKey(rec core.LogRecord) string {
	msg := rec.Message
	if utf8.RuneCountInString(msg) > dedupPrefixLen {
		msg = truncateRunes(msg, dedupPrefixLen)
	}
	return rec.Timestamp + "\x00" + msg
}

// Insert stores rec under the next id. It returns false, storing nothing,
// when rec duplicates an entry currently held.
func (b *Buffer) Insert(rec core.LogRecord) (core.RetainedEntry, bool) {
	key := dedupKey(rec)

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, dup := b.keys[key]; dup {
		return core.RetainedEntry{}, false
	}

	b.lastID++
	entry := core.RetainedEntry{ID: b.lastID, LogRecord: rec}
	b.entries = append(b.entries, entry)
	b.keys[key] = struct{}{}

	if over := len(b.entries) - b.capacity; over > 0 {
		for _, old := range b.entries[:over] {
			delete(b.keys, dedupKey(old.LogRecord))
		}
		b.entries = b.entries[over:]
	}
	return entry, true
}

// Clear drops every entry. The id counter keeps its value.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = nil
	b.keys = make(map[string]struct{}, b.capacity)
}

// ListSince returns entries with an id greater than minID, oldest first,
// keeping only the most recent limit of them. A limit of zero or less
// returns them all.
func (b *Buffer) ListSince(minID int64, limit int) []core.RetainedEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	// Ids are ascending in insertion order.
	start := len(b.entries)
	for start > 0 && b.entries[start-1].ID > minID {
		start--
	}
	matched := b.entries[start:]
	if limit > 0 && len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return append([]core.RetainedEntry{}, matched...)
}

// Snapshot returns a copy of every held entry, oldest first.
func (b *Buffer) Snapshot() []core.RetainedEntry {
	return b.ListSince(0, 0)
}

// Len returns the number of held entries.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// LastID returns the most recently issued id, or zero if none was issued.
func (b *Buffer) LastID() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastID
}

// Paused reports whether insertion from the tail poller is suspended.
func (b *Buffer) Paused() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.paused
}

// TogglePause flips the pause flag and returns the new value.
func (b *Buffer) TogglePause() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.paused = !b.paused
	return b.paused
}

// SetPaused sets the pause flag and returns it.
func (b *Buffer) SetPaused(paused bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.paused = paused
	return b.paused
}
