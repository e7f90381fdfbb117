// Package prob provides constant-memory probabilistic set membership,
// backed by a cuckoo filter. Used on transport receive paths to
// dedupe by (source_id, message_id) without an unbounded map, and by the
// handle registry to fast-reject alias chains that are almost certainly
// not cyclic before paying for the exact bounded-hop walk.
package prob

import (
	"encoding/binary"
	"sync"

	cuckoo "github.com/seiflotfy/cuckoofilter"
)

// Filter wraps a cuckoo filter with a mutex: the underlying structure is
// not safe for concurrent Insert/Lookup, and both the dispatcher (writer)
// and API-thread reads (e.g. diagnostics) touch it.
type Filter struct {
	mu sync.Mutex
	cf *cuckoo.Filter
}

func NewFilter(capacity uint) *Filter {
	return &Filter{cf: cuckoo.NewFilter(capacity)}
}

// InsertUnique inserts key and reports whether it was newly inserted -
// true means "this is the first time we've seen it", false means it was
// already present.
func (f *Filter) InsertUnique(key []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cf.Lookup(key) {
		return false
	}
	f.cf.Insert(key)
	return true
}

func (f *Filter) Lookup(key []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cf.Lookup(key)
}

func (f *Filter) Delete(key []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cf.Delete(key)
}

func (f *Filter) Reset() {
	f.mu.Lock()
	f.cf.Reset()
	f.mu.Unlock()
}

// MsgKey packs (source_id, message_id) into a dedupe key, as used by
// transport's receive-side dedupe filter.
func MsgKey(sourceID uint32, messageID uint64) []byte {
	b := make([]byte, 12)
	binary.LittleEndian.PutUint32(b[0:4], sourceID)
	binary.LittleEndian.PutUint64(b[4:12], messageID)
	return b
}
