// Package season tracks cumulative growing degree days per field and crop
// across a stream of daily observations.
package season

import (
	"sync"
	"time"

	"github.com/couchcryptid/crop-kc-etl/internal/domain"
)

// DefaultMaxEntries bounds the number of field seasons held in memory.
const DefaultMaxEntries = 10000

// Tracker accumulates daily GDD for each field season in a bounded LRU.
// The least recently observed season is evicted when the bound is reached.
// It is safe for concurrent use.
type Tracker struct {
	maxEntries int
	onEvict    func()

	mu      sync.Mutex
	entries map[string]*entry
	head    *entry // most recently used
	tail    *entry // least recently used
}

type state struct {
	planting time.Time
	last     time.Time
	total    domain.HeatUnits
}

type entry struct {
	key   string
	value state
	prev  *entry
	next  *entry
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithEvictionHook registers fn to be called whenever a season is evicted.
func WithEvictionHook(fn func()) Option {
	return func(t *Tracker) { t.onEvict = fn }
}

// NewTracker creates a tracker holding at most maxEntries seasons. A
// non-positive bound uses DefaultMaxEntries.
func NewTracker(maxEntries int, opts ...Option) *Tracker {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	t := &Tracker{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func seasonKey(fieldID, crop string) string {
	return fieldID + "|" + crop
}

// Advance adds daily to the field's season total for date and returns the
// cumulative GDD through date. Days on or before planting contribute
// nothing. A new planting date starts a new season. A date at or before the
// last one seen returns the running total unchanged, so replays do not double
// count.
func (t *Tracker) Advance(fieldID, crop string, planting, date time.Time, daily float64) domain.HeatUnits {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := seasonKey(fieldID, crop)
	e, ok := t.entries[key]
	if !ok || !e.value.planting.Equal(planting) {
		if !ok {
			e = &entry{key: key}
			t.entries[key] = e
			t.addToFront(e)
			t.evictOverflow()
		}
		e.value = state{planting: planting, last: planting}
	}
	t.moveToFront(e)

	if date.After(e.value.last) {
		e.value.total += domain.HeatUnits(daily)
		e.value.last = date
	}
	return e.value.total
}

// Total returns the running total for a field season without touching its
// recency.
func (t *Tracker) Total(fieldID, crop string) (domain.HeatUnits, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[seasonKey(fieldID, crop)]
	if !ok {
		return 0, false
	}
	return e.value.total, true
}

// Len returns the number of tracked seasons.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *Tracker) moveToFront(e *entry) {
	if e == t.head {
		return
	}
	t.remove(e)
	t.addToFront(e)
}

func (t *Tracker) addToFront(e *entry) {
	e.next = t.head
	e.prev = nil
	if t.head != nil {
		t.head.prev = e
	}
	t.head = e
	if t.tail == nil {
		t.tail = e
	}
}

func (t *Tracker) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		t.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		t.tail = e.prev
	}
}

func (t *Tracker) evictOverflow() {
	for len(t.entries) > t.maxEntries && t.tail != nil {
		delete(t.entries, t.tail.key)
		t.remove(t.tail)
		if t.onEvict != nil {
			t.onEvict()
		}
	}
}
