// Copyright (c) 2016-2019 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package dht

import (
	"math/big"

	"github.com/kraken-torrent/peercore/core"
)

// MaxNodesPerBucket is the maximum number of live nodes a bucket may hold
// before it must split or reject further inserts.
const MaxNodesPerBucket = 8

// MaxReplacementsPerBucket is the maximum size of a bucket's replacement
// cache.
const MaxReplacementsPerBucket = 8

// idToBig converts a NodeID to its big-endian unsigned integer value.
func idToBig(id core.NodeID) *big.Int {
	return new(big.Int).SetBytes(id[:])
}

// bucket is a half-open id range [lo, hi) holding up to MaxNodesPerBucket
// live nodes, in LRU-by-last-seen order (index 0 is least recently seen),
// plus a replacement cache of candidates awaiting promotion.
type bucket struct {
	lo, hi *big.Int // hi is exclusive; may equal 2^160.

	nodes        []*Node
	replacements []*Node
}

func newBucket(lo, hi *big.Int) *bucket {
	return &bucket{lo: lo, hi: hi}
}

// contains returns whether id lies within [lo, hi).
func (b *bucket) contains(id core.NodeID) bool {
	v := idToBig(id)
	return v.Cmp(b.lo) >= 0 && v.Cmp(b.hi) < 0
}

// full returns whether the bucket already holds the maximum live nodes.
func (b *bucket) full() bool {
	return len(b.nodes) >= MaxNodesPerBucket
}

// find returns the live node with the given id, if present.
func (b *bucket) find(id core.NodeID) (*Node, int) {
	for i, n := range b.nodes {
		if n.ID.Equal(id) {
			return n, i
		}
	}
	return nil, -1
}

// append adds n to the end of the live node list (most recently seen).
func (b *bucket) append(n *Node) {
	b.nodes = append(b.nodes, n)
}

// touch moves the node at index i to the end of the live list, marking it
// most recently seen.
func (b *bucket) touch(i int) {
	n := b.nodes[i]
	b.nodes = append(b.nodes[:i], b.nodes[i+1:]...)
	b.nodes = append(b.nodes, n)
}

// addReplacement inserts n into the replacement cache, evicting the oldest
// replacement if the cache is already full.
func (b *bucket) addReplacement(n *Node) {
	if len(b.replacements) >= MaxReplacementsPerBucket {
		b.replacements = b.replacements[1:]
	}
	b.replacements = append(b.replacements, n)
}

// mid returns the midpoint lo + (hi-lo)/2 used to split this bucket.
func (b *bucket) mid() *big.Int {
	span := new(big.Int).Sub(b.hi, b.lo)
	half := new(big.Int).Rsh(span, 1)
	return new(big.Int).Add(b.lo, half)
}

// split divides the bucket into two half-open ranges [lo, mid) and
// [mid, hi), redistributing live nodes and replacements by which half
// contains their id.
func (b *bucket) split() (*bucket, *bucket) {
	mid := b.mid()
	lower := newBucket(b.lo, mid)
	upper := newBucket(mid, b.hi)

	for _, n := range b.nodes {
		if lower.contains(n.ID) {
			lower.append(n)
		} else {
			upper.append(n)
		}
	}
	for _, n := range b.replacements {
		if lower.contains(n.ID) {
			lower.addReplacement(n)
		} else {
			upper.addReplacement(n)
		}
	}
	return lower, upper
}
