// Package idgen implements the monotonic identifier generator each
// column family uses to name its SSTable files. Ids are never reused,
// even across compactions that delete the files they named, so a
// generator seeded from the highest id found on disk at load time is
// enough to guarantee that property across restarts.
package idgen

import "sync/atomic"

// Generator hands out strictly increasing uint64 ids.
type Generator struct {
	next uint64
}

// New creates a Generator that will hand out start, start+1, start+2...
func New(start uint64) *Generator {
	return &Generator{next: start}
}

// Next returns the next id and advances the generator.
func (g *Generator) Next() uint64 {
	return atomic.AddUint64(&g.next, 1) - 1
}

// Observe advances the generator so that future ids are guaranteed
// greater than id, without itself returning an id. Used while loading
// existing SSTable files from disk to seed the generator past whatever
// the highest on-disk id already is.
func (g *Generator) Observe(id uint64) {
	for {
		cur := atomic.LoadUint64(&g.next)
		if id < cur {
			return
		}
		if atomic.CompareAndSwapUint64(&g.next, cur, id+1) {
			return
		}
	}
}
