package proto

import "sync"

// TurnLog is the append-only conversation log. Entries are never removed or
// edited in place: a rewrite appends a replacement and records which entry it
// supersedes, and summarization collapses a range behind a summary marker.
// The visible view is derived, so the audit trail always retains what was
// originally appended.
//
// The zero value is ready to use.
type TurnLog struct {
	mu         sync.Mutex
	entries    []Turn
	superseded map[int]int  // original index -> replacement index
	collapsed  map[int]bool // indices hidden behind a summary marker
	markers    map[int]int  // marker index -> start of the range it replaces
	boundary   int          // first index not covered by the latest summary
}

// NewTurnLog creates an empty turn log.
func NewTurnLog() *TurnLog {
	l := &TurnLog{}
	l.init()
	return l
}

// init allocates the bookkeeping maps. Callers hold l.mu.
func (l *TurnLog) init() {
	if l.superseded == nil {
		l.superseded = make(map[int]int)
	}
	if l.collapsed == nil {
		l.collapsed = make(map[int]bool)
	}
	if l.markers == nil {
		l.markers = make(map[int]int)
	}
}

// Append adds a turn to the log and returns its index.
func (l *TurnLog) Append(t Turn) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, t)
	return len(l.entries) - 1
}

// Supersede appends replacement and records that it replaces the entry at
// index. The original stays in the log for audit; only the replacement shows
// up in the visible view. Returns the replacement's index, or -1 when index
// is out of range.
func (l *TurnLog) Supersede(index int, replacement Turn) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.init()
	if index < 0 || index >= len(l.entries) {
		return -1
	}
	l.entries = append(l.entries, replacement)
	ri := len(l.entries) - 1
	l.superseded[index] = ri
	return ri
}

// Collapse hides entries in [start, end) behind the given summary marker,
// appends the marker and advances the summary boundary to end. Earlier
// summary markers in the range stay visible; collapsed entries stay in the
// log for audit but leave every derived view. The marker appears at the
// start of the range in the visible view.
func (l *TurnLog) Collapse(start, end int, marker Turn) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.init()
	if start < 0 {
		start = 0
	}
	if end > len(l.entries) {
		end = len(l.entries)
	}
	for i := start; i < end; i++ {
		if _, isMarker := l.markers[i]; isMarker {
			continue
		}
		l.collapsed[i] = true
	}
	l.entries = append(l.entries, marker)
	mi := len(l.entries) - 1
	l.markers[mi] = start
	if end > l.boundary {
		l.boundary = end
	}
	return mi
}

// SummaryBoundary returns the first index not covered by the latest
// summarization. Turns before it are either collapsed or summary markers.
func (l *TurnLog) SummaryBoundary() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.boundary
}

// Len returns the total number of appended entries, including superseded and
// collapsed ones.
func (l *TurnLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// At returns the entry at index from the raw log.
func (l *TurnLog) At(index int) (Turn, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if index < 0 || index >= len(l.entries) {
		return Turn{}, false
	}
	return l.entries[index], true
}

// LiveIndices returns, in append order, the raw indices of entries that a
// summarization pass may still extract: not collapsed, not a summary
// marker, and not an original that has been superseded (its replacement
// carries the content at its own index).
func (l *TurnLog) LiveIndices() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]int, 0, len(l.entries))
	for i := range l.entries {
		if l.collapsed[i] {
			continue
		}
		if _, isMarker := l.markers[i]; isMarker {
			continue
		}
		if _, ok := l.superseded[i]; ok {
			continue
		}
		out = append(out, i)
	}
	return out
}

// Audit returns a copy of every entry ever appended, in append order.
func (l *TurnLog) Audit() []Turn {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Turn, len(l.entries))
	copy(out, l.entries)
	return out
}

// Visible returns the derived view: superseded originals are replaced by
// their replacements in place, collapsed entries are dropped, and summary
// markers stand at the start of the range they replace. Hidden turns are
// included; callers that do budget or diagnosis accounting filter them via
// the Hidden flag.
func (l *TurnLog) Visible() []Turn {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Markers render at the start of their collapsed range, not where
	// they were appended.
	markerAt := make(map[int][]int, len(l.markers))
	for mi := range l.entries {
		if start, ok := l.markers[mi]; ok {
			markerAt[start] = append(markerAt[start], mi)
		}
	}

	// Replacements appear at the position of the turn they supersede,
	// unless that original was itself collapsed; then the replacement
	// stands at its own appended position.
	replacement := make(map[int]bool, len(l.superseded))
	for oi, ri := range l.superseded {
		if !l.collapsed[oi] {
			replacement[ri] = true
		}
	}

	out := make([]Turn, 0, len(l.entries))
	for i := 0; i <= len(l.entries); i++ {
		for _, mi := range markerAt[i] {
			out = append(out, l.entries[mi])
		}
		if i == len(l.entries) {
			break
		}
		if l.collapsed[i] {
			continue
		}
		if _, isMarker := l.markers[i]; isMarker {
			continue // shown at the range start instead
		}
		if replacement[i] {
			continue // shown at the superseded entry's position instead
		}
		if ri, ok := l.superseded[i]; ok {
			// Follow the chain in case the replacement was itself rewritten.
			for {
				next, more := l.superseded[ri]
				if !more {
					break
				}
				ri = next
			}
			out = append(out, l.entries[ri])
			continue
		}
		out = append(out, l.entries[i])
	}
	return out
}
