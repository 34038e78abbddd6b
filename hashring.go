package reactor

import (
	"hash/fnv"
	"sort"
	"strconv"
	"sync"
)

// HashFunc computes an unsigned hash for a virtual-node or lookup key.
type HashFunc func(string) uint64

// defaultHash is the ring's default hash function, FNV-1a 64-bit. It has no
// cryptographic properties and needs none; it only needs to distribute
// virtual-node keys evenly around the ring.
func defaultHash(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

// hashRing is a consistent-hash ring mapping opaque keys onto a set of named
// physical nodes via virtual-node replicas, grounded on
// original_source/include/ConsistenHash.h.
//
// Two bugs present in that source are fixed here, per spec.md §9 /
// SPEC_FULL.md §9:
//
//  1. addNode and removeNode built virtual-node keys asymmetrically
//     ("name_0i" vs "namei"), so removeNode could never find what addNode
//     inserted. This implementation uses one canonical key form for both.
//  2. getNode returned the raw virtual-node hash, which the caller then
//     used as a slice index — correct only by coincidence. getNode here
//     returns the owning node's name instead, and the caller (loopPool)
//     keeps its own name-to-index map.
type hashRing struct {
	mu       sync.Mutex
	replicas int
	hash     HashFunc
	sorted   []uint64
	nodes    map[uint64]string
}

// newHashRing constructs an empty ring with the given replica count per
// physical node. A nil hash func defaults to FNV-1a.
func newHashRing(replicas int, hash HashFunc) *hashRing {
	if hash == nil {
		hash = defaultHash
	}
	return &hashRing{
		replicas: replicas,
		hash:     hash,
		nodes:    make(map[uint64]string),
	}
}

func virtualKey(name string, i int) string {
	return name + "#" + strconv.Itoa(i)
}

// addNode inserts replicas virtual nodes for name.
func (r *hashRing) addNode(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := 0; i < r.replicas; i++ {
		h := r.hash(virtualKey(name, i))
		r.nodes[h] = name
		r.sorted = append(r.sorted, h)
	}
	sort.Slice(r.sorted, func(i, j int) bool { return r.sorted[i] < r.sorted[j] })
}

// removeNode removes all virtual nodes for name.
func (r *hashRing) removeNode(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := 0; i < r.replicas; i++ {
		h := r.hash(virtualKey(name, i))
		delete(r.nodes, h)
		if idx := sort.Search(len(r.sorted), func(j int) bool { return r.sorted[j] >= h }); idx < len(r.sorted) && r.sorted[idx] == h {
			r.sorted = append(r.sorted[:idx], r.sorted[idx+1:]...)
		}
	}
}

// getNode returns the name of the node owning key: the node at the first
// ring position strictly greater than hash(key), wrapping around to the
// first position if hash(key) exceeds every entry.
func (r *hashRing) getNode(key string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sorted) == 0 {
		return "", ErrRingEmpty
	}
	h := r.hash(key)
	idx := sort.Search(len(r.sorted), func(i int) bool { return r.sorted[i] > h })
	if idx == len(r.sorted) {
		idx = 0
	}
	return r.nodes[r.sorted[idx]], nil
}
