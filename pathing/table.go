package pathing

import (
	"fmt"
	"sync"

	"github.com/wangfu91/usn-journal-go/usn"
)

// Lookup supplies the live parent link of a file reference: the parent
// directory's reference and the file's name under that parent. It is the
// collaborator the resolver falls back to on every cache miss.
//
// A lookup must report [ErrStaleReference] when the queried reference's
// sequence number no longer matches the live record, never silently
// substitute the slot's new occupant.
type Lookup interface {
	Link(ref usn.FileRef) (parent usn.FileRef, name string, err error)
}

type tableLink struct {
	ref    usn.FileRef
	parent usn.FileRef
	name   string
}

// Table is an in-memory link table, typically populated from an MFT
// enumeration pass. It is keyed by record index but stores the full
// reference, so queries with an outdated sequence number are detected as
// stale instead of resolving against the slot's reuse.
//
// Table is safe for concurrent use.
type Table struct {
	mu    sync.RWMutex
	links map[uint64]tableLink
}

// NewTable returns an empty link table.
func NewTable() *Table {
	return &Table{links: make(map[uint64]tableLink)}
}

// Insert records the parent link of ref, replacing any previous link stored
// for the same record index.
func (t *Table) Insert(ref, parent usn.FileRef, name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.links[ref.Index()] = tableLink{ref: ref, parent: parent, name: name}
}

// Remove drops the link stored for ref's record index, if any. Callers
// tailing the journal use it to keep a table current across deletions.
func (t *Table) Remove(ref usn.FileRef) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.links, ref.Index())
}

// Len returns the number of stored links.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.links)
}

// Link implements [Lookup].
func (t *Table) Link(ref usn.FileRef) (usn.FileRef, string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	l, ok := t.links[ref.Index()]
	if !ok {
		return 0, "", fmt.Errorf("ref %#x: %w", uint64(ref), ErrLinkNotFound)
	}

	if l.ref.Sequence() != ref.Sequence() {
		return 0, "", fmt.Errorf("ref %#x reused as %#x: %w", uint64(ref), uint64(l.ref), ErrStaleReference)
	}

	return l.parent, l.name, nil
}
