// Package cache memoizes aggregation results. Keys embed the document
// revision, so an entry never goes stale: a new revision simply misses.
package cache

import (
	"strconv"
	"strings"

	"golang.org/x/sync/singleflight"
)

// Key builds a cache key from a revision, a view name and its parameters.
func Key(revision uint64, view string, params ...string) string {
	var b strings.Builder
	b.WriteString(strconv.FormatUint(revision, 10))
	b.WriteByte('|')
	b.WriteString(view)
	for _, p := range params {
		b.WriteByte('|')
		b.WriteString(p)
	}
	return b.String()
}

// Memo computes values at most once per key, collapsing concurrent
// computations of the same key into one call.
type Memo struct {
	lru   *LRU[any]
	group singleflight.Group
}

func NewMemo(size int) *Memo {
	return &Memo{lru: NewLRU[any](size)}
}

// Do returns the cached value for key or computes it with fn. Errors are
// not cached.
func (m *Memo) Do(key string, fn func() (any, error)) (any, error) {
	if v, ok := m.lru.Get(key); ok {
		return v, nil
	}
	v, err, _ := m.group.Do(key, func() (any, error) {
		v, err := fn()
		if err != nil {
			return nil, err
		}
		m.lru.Set(key, v)
		return v, nil
	})
	return v, err
}

func (m *Memo) Stats() (hits, misses uint64) {
	return m.lru.Stats()
}

func (m *Memo) Len() int {
	return m.lru.Len()
}
