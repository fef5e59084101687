// Package pathing resolves file references to full paths by walking
// parent-directory links up to the volume root, amortizing repeated walks
// with a bounded least-recently-used cache in front of a pluggable link
// lookup.
package pathing

import (
	"fmt"
	"path/filepath"
	"slices"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/wangfu91/usn-journal-go/usn"
)

const (
	// DefaultCacheSize is the link cache capacity used when Options leaves
	// it zero.
	DefaultCacheSize = 4096

	// maxWalkHops bounds a parent-chain walk. NTFS path depth is limited
	// well below this by the 32767-character path bound, so exceeding it
	// means the chain loops.
	maxWalkHops = 4096
)

type cachedLink struct {
	parent usn.FileRef
	name   string
}

// Options configures a resolver.
type Options struct {
	// CacheSize is the capacity of the link cache. Zero selects
	// DefaultCacheSize.
	CacheSize int

	// Prefix, when set, is placed in front of every resolved path,
	// e.g. "C:" to produce drive-absolute paths.
	Prefix string
}

// Resolver resolves file references to paths. The cache is never
// authoritative: a miss or an evicted entry falls back to the live lookup,
// and only successful lookups are cached.
//
// Resolver is safe for concurrent use; one exclusive lock guards the cache
// and walk together, which keeps miss-then-insert sequences atomic with
// respect to concurrent walks.
type Resolver struct {
	mu     sync.Mutex
	lookup Lookup
	cache  *lru.Cache[usn.FileRef, cachedLink]
	prefix string
}

// NewResolver returns a resolver walking links from lookup.
func NewResolver(lookup Lookup, opts Options) *Resolver {
	size := opts.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}

	// lru.New only fails on a non-positive size, which is excluded above.
	cache, _ := lru.New[usn.FileRef, cachedLink](size)

	return &Resolver{
		lookup: lookup,
		cache:  cache,
		prefix: opts.Prefix,
	}
}

// Resolve returns the full path of ref, walking parent links up to the
// volume root. The walk is iterative and bounded: a chain that exceeds the
// maximum plausible nesting depth without reaching the root surfaces
// [ErrCycleDetected]. Lookup failures, including [ErrStaleReference] and
// [ErrLinkNotFound], propagate without retry.
func (r *Resolver) Resolve(ref usn.FileRef) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var parts []string
	cur := ref

	for hops := 0; ; hops++ {
		if hops >= maxWalkHops {
			return "", fmt.Errorf("resolve ref %#x: %w", uint64(ref), ErrCycleDetected)
		}

		if cur.Index() == usn.RootIndex {
			break
		}

		parent, name, err := r.link(cur)
		if err != nil {
			return "", err
		}

		// The volume root is its own parent; the walk ends there without
		// taking the root's self-name.
		if parent == cur {
			break
		}

		parts = append(parts, name)
		cur = parent
	}

	slices.Reverse(parts)
	path := filepath.Join(parts...)

	if r.prefix != "" {
		path = r.prefix + string(filepath.Separator) + path
	}

	return path, nil
}

// link returns the parent link of ref, from cache when present (touching
// recency) or from the live lookup, caching the result.
func (r *Resolver) link(ref usn.FileRef) (usn.FileRef, string, error) {
	if l, ok := r.cache.Get(ref); ok {
		return l.parent, l.name, nil
	}

	parent, name, err := r.lookup.Link(ref)
	if err != nil {
		return 0, "", err
	}

	r.cache.Add(ref, cachedLink{parent: parent, name: name})

	return parent, name, nil
}
