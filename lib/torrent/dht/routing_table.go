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
	"sort"

	"github.com/kraken-torrent/peercore/core"
	"github.com/kraken-torrent/peercore/lib/torrent/networkevent"

	"github.com/andres-erbsen/clock"
	"github.com/uber-go/tally"
	"go.uber.org/zap"
)

// AddResult describes the outcome of RoutingTable.Add.
type AddResult int

// Possible AddResults.
const (
	// Added means the node was inserted into a bucket with space.
	Added AddResult = iota
	// AlreadyPresent means a node with this id already existed; its
	// last-seen timestamp was refreshed.
	AlreadyPresent
	// Rejected means the bucket was full, not splittable, and held no stale
	// node to evict; the node was placed in the replacement cache instead.
	Rejected
	// Replaced means the bucket was full and not splittable, but a stale
	// node (exceeding MaxFailedRPCs) was evicted to make room.
	Replaced
)

func (r AddResult) String() string {
	switch r {
	case Added:
		return "Added"
	case AlreadyPresent:
		return "AlreadyPresent"
	case Rejected:
		return "Rejected"
	case Replaced:
		return "Replaced"
	default:
		return "Unknown"
	}
}

// fullSpaceHi is one past the maximum 160-bit value, i.e. 2^160.
func fullSpaceHi() *big.Int {
	return new(big.Int).Lsh(big.NewInt(1), 160)
}

// RoutingTable is a Kademlia-style routing table: an ordered, gapless,
// non-overlapping partition of the 160-bit id space into buckets, each
// holding up to MaxNodesPerBucket live nodes. Exactly one bucket -- the one
// whose range contains the local id -- is eligible to split on overflow.
//
// RoutingTable is NOT thread-safe; a DHT subsystem sharing one across
// goroutines must provide its own synchronization.
type RoutingTable struct {
	local core.NodeID

	buckets []*bucket

	clk      clock.Clock
	logger   *zap.SugaredLogger
	stats    tally.Scope
	netevent networkevent.Producer
}

// Option configures a RoutingTable at construction.
type Option func(*RoutingTable)

// WithClock overrides the table's clock, primarily for tests.
func WithClock(clk clock.Clock) Option {
	return func(t *RoutingTable) { t.clk = clk }
}

// WithLogger overrides the table's logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(t *RoutingTable) { t.logger = logger }
}

// WithStats overrides the table's metrics scope.
func WithStats(stats tally.Scope) Option {
	return func(t *RoutingTable) { t.stats = stats }
}

// WithEventProducer overrides the table's event producer.
func WithEventProducer(p networkevent.Producer) Option {
	return func(t *RoutingTable) { t.netevent = p }
}

// New creates a new RoutingTable for local, initially a single bucket
// spanning the entire 160-bit space.
func New(local core.NodeID, opts ...Option) *RoutingTable {
	t := &RoutingTable{
		local:   local,
		buckets: []*bucket{newBucket(big.NewInt(0), fullSpaceHi())},
		clk:     clock.New(),
		logger:  zap.NewNop().Sugar(),
		stats:   tally.NoopScope,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// bucketIndex returns the index of the unique bucket whose range contains id.
func (t *RoutingTable) bucketIndex(id core.NodeID) int {
	v := idToBig(id)
	// Buckets are kept sorted by lo, so a linear scan suffices; DHT routing
	// tables are shallow (a handful of buckets) in practice.
	for i, b := range t.buckets {
		if v.Cmp(b.lo) >= 0 && v.Cmp(b.hi) < 0 {
			return i
		}
	}
	return len(t.buckets) - 1
}

// splittable returns whether the bucket at idx contains the local id.
func (t *RoutingTable) splittable(idx int) bool {
	return t.buckets[idx].contains(t.local)
}

// Add inserts node into the table, splitting the local bucket as needed.
func (t *RoutingTable) Add(node *Node) AddResult {
	node.LastSeen = t.clk.Now()

	for {
		idx := t.bucketIndex(node.ID)
		b := t.buckets[idx]

		if existing, i := b.find(node.ID); existing != nil {
			existing.LastSeen = node.LastSeen
			existing.Endpoint = node.Endpoint
			existing.FailedRPCCount = 0
			b.touch(i)
			return AlreadyPresent
		}

		if !b.full() {
			b.append(node)
			t.stats.Counter("routing_table.nodes_added").Inc(1)
			t.logger.With("node", node.ID.String()).Info("added node to routing table")
			t.publish(networkevent.NodeAddedEvent(node.ID))
			return Added
		}

		if t.splittable(idx) {
			lower, upper := b.split()
			t.buckets = append(t.buckets[:idx], append([]*bucket{lower, upper}, t.buckets[idx+1:]...)...)
			t.stats.Counter("routing_table.buckets_split").Inc(1)
			t.logger.Info("split routing table bucket")
			continue
		}

		if stale, i := staleNode(b.nodes); stale != nil {
			b.nodes = append(b.nodes[:i], b.nodes[i+1:]...)
			b.append(node)
			t.stats.Counter("routing_table.nodes_added").Inc(1)
			t.logger.With("node", node.ID.String(), "evicted", stale.ID.String()).
				Info("replaced stale node in routing table")
			t.publish(networkevent.NodeAddedEvent(node.ID))
			return Replaced
		}

		b.addReplacement(node)
		t.stats.Counter("routing_table.rejected").Inc(1)
		return Rejected
	}
}

func staleNode(nodes []*Node) (*Node, int) {
	for i, n := range nodes {
		if n.Stale() {
			return n, i
		}
	}
	return nil, -1
}

func (t *RoutingTable) publish(e *networkevent.Event) {
	if t.netevent == nil {
		return
	}
	t.netevent.Produce(e)
}

// closestPair pairs a node with its distance to target, for sorting.
type closestPair struct {
	node *Node
	dist core.Distance
}

// Closest returns up to k nodes with smallest XOR distance to target, sorted
// ascending by distance; ties are broken by lexicographic id order.
func (t *RoutingTable) Closest(target core.NodeID, k int) []*Node {
	var all []closestPair
	for _, b := range t.buckets {
		for _, n := range b.nodes {
			all = append(all, closestPair{n, n.ID.Distance(target)})
		}
	}
	sort.Slice(all, func(i, j int) bool {
		c := all[i].dist.Cmp(all[j].dist)
		if c != 0 {
			return c < 0
		}
		return all[i].node.ID.LessThan(all[j].node.ID)
	})
	if k > len(all) {
		k = len(all)
	}
	result := make([]*Node, k)
	for i := 0; i < k; i++ {
		result[i] = all[i].node
	}
	return result
}

// Clear removes every node and resets the table to a single bucket spanning
// the entire id space.
func (t *RoutingTable) Clear() {
	t.buckets = []*bucket{newBucket(big.NewInt(0), fullSpaceHi())}
}

// BucketView is a read-only snapshot of one bucket's range and contents.
type BucketView struct {
	Lo, Hi *big.Int
	Nodes  []*Node
}

// Buckets returns a read-only view of the table's current buckets, ordered
// by range.
func (t *RoutingTable) Buckets() []BucketView {
	views := make([]BucketView, len(t.buckets))
	for i, b := range t.buckets {
		nodes := make([]*Node, len(b.nodes))
		copy(nodes, b.nodes)
		views[i] = BucketView{Lo: b.lo, Hi: b.hi, Nodes: nodes}
	}
	return views
}
