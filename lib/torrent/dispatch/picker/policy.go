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

// Package picker supplies a concrete ports.Picker: selection policy is an
// explicit Non-goal, but the dispatcher and tick loop need a real
// implementation to exercise, so this carries a reservoir and a
// rarest-first policy forward.
package picker

import (
	"math/rand"

	"github.com/willf/bitset"

	"github.com/kraken-torrent/peercore/utils/heap"
	"github.com/kraken-torrent/peercore/utils/syncutil"
)

// selectionPolicy picks which candidate pieces to request, given a validity
// predicate and each piece's rarity across connected peers.
type selectionPolicy interface {
	selectPieces(limit int, valid func(int) bool, candidates *bitset.BitSet, numPeersByPiece syncutil.Counters) []int
}

// ReservoirPolicy selects pieces uniformly at random among valid candidates.
const ReservoirPolicy = "reservoir"

// RarestFirstPolicy selects the pieces held by the fewest known peers first.
const RarestFirstPolicy = "rarest_first"

type reservoirPolicy struct{}

func (reservoirPolicy) selectPieces(
	limit int,
	valid func(int) bool,
	candidates *bitset.BitSet,
	numPeersByPiece syncutil.Counters) []int {

	pieces := make([]int, 0, limit)
	if limit == 0 {
		return pieces
	}
	var k int
	for i, ok := candidates.NextSet(0); ok; i, ok = candidates.NextSet(i + 1) {
		if !valid(int(i)) {
			continue
		}
		if len(pieces) < limit {
			pieces = append(pieces, int(i))
		} else {
			j := rand.Intn(k + 1)
			if j < limit {
				pieces[j] = int(i)
			}
		}
		k++
	}
	return pieces
}

type rarestFirstPolicy struct{}

func (rarestFirstPolicy) selectPieces(
	limit int,
	valid func(int) bool,
	candidates *bitset.BitSet,
	numPeersByPiece syncutil.Counters) []int {

	q := heap.NewPriorityQueue()
	for i, ok := candidates.NextSet(0); ok; i, ok = candidates.NextSet(i + 1) {
		q.Push(&heap.Item{Value: int(i), Priority: numPeersByPiece.Get(int(i))})
	}

	pieces := make([]int, 0, limit)
	for len(pieces) < limit && q.Len() > 0 {
		item, err := q.Pop()
		if err != nil {
			break
		}
		i := item.Value.(int)
		if valid(i) {
			pieces = append(pieces, i)
		}
	}
	return pieces
}

func newPolicy(name string) selectionPolicy {
	if name == RarestFirstPolicy {
		return rarestFirstPolicy{}
	}
	return reservoirPolicy{}
}
