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
package session

import (
	"testing"

	"github.com/andres-erbsen/clock"
	"github.com/stretchr/testify/require"

	"github.com/kraken-torrent/peercore/core"
	"github.com/kraken-torrent/peercore/lib/torrent/bitfield"
	"github.com/kraken-torrent/peercore/lib/torrent/wire"
)

func TestNewSessionInitialFlags(t *testing.T) {
	require := require.New(t)

	s := New(core.PeerIDFixture(), core.InfoHashFixture(), 10, clock.New())
	require.True(s.AmChoking)
	require.True(s.PeerChoking)
	require.False(s.AmInterested)
	require.False(s.PeerInterested)
	require.Equal(10, s.Bitfield.Len())
}

// TestEnqueueCancelPieceLaw checks the enqueue/cancel pairing: after
// enqueue(Piece(p,o,l)) then Cancel(p,o,l), the queue contains no
// Piece(p,o,l) and requesting_count is unchanged from before the enqueue.
func TestEnqueueCancelPieceLaw(t *testing.T) {
	require := require.New(t)

	s := New(core.PeerIDFixture(), core.InfoHashFixture(), 10, clock.New())
	before := s.RequestingCount

	s.EnqueuePiece(wire.PieceMsg{Index: 3, Begin: 0, Data: make([]byte, 16)})
	require.Equal(before+1, s.RequestingCount)

	ok := s.Cancel(3, 0, 16)
	require.True(ok)
	require.Equal(before, s.RequestingCount)

	for _, m := range s.outbound {
		if p, isPiece := m.(wire.PieceMsg); isPiece {
			require.NotEqual(3, p.Index)
		}
	}
}

func TestCancelPendingRead(t *testing.T) {
	require := require.New(t)

	s := New(core.PeerIDFixture(), core.InfoHashFixture(), 10, clock.New())
	before := s.RequestingCount

	s.QueueRead(5, 0, 16)
	require.Equal(before+1, s.RequestingCount)

	ok := s.Cancel(5, 0, 16)
	require.True(ok)
	require.Equal(before, s.RequestingCount)
	require.Empty(s.pendingReads)
}

func TestCancelNoMatchReturnsFalse(t *testing.T) {
	require := require.New(t)

	s := New(core.PeerIDFixture(), core.InfoHashFixture(), 10, clock.New())
	require.False(s.Cancel(1, 0, 16))
}

func TestCancelRemovesAtMostOne(t *testing.T) {
	require := require.New(t)

	s := New(core.PeerIDFixture(), core.InfoHashFixture(), 10, clock.New())
	s.EnqueuePiece(wire.PieceMsg{Index: 2, Begin: 0, Data: make([]byte, 16)})
	s.EnqueuePiece(wire.PieceMsg{Index: 2, Begin: 16, Data: make([]byte, 16)})

	require.True(s.Cancel(2, 0, 16))

	var remaining int
	for _, m := range s.outbound {
		if p, ok := m.(wire.PieceMsg); ok && p.Index == 2 {
			remaining++
		}
	}
	require.Equal(1, remaining)
}

func TestRecomputeInterest(t *testing.T) {
	require := require.New(t)

	s := New(core.PeerIDFixture(), core.InfoHashFixture(), 4, clock.New())
	ours := bitfield.New(4)

	require.False(s.RecomputeInterest(ours))
	require.False(s.AmInterested)

	s.Bitfield.Set(2)
	became := s.RecomputeInterest(ours)
	require.True(became)
	require.True(s.AmInterested)

	// Calling again with no new state transitions to report.
	require.False(s.RecomputeInterest(ours))
}

func TestAllowedFastSets(t *testing.T) {
	require := require.New(t)

	s := New(core.PeerIDFixture(), core.InfoHashFixture(), 10, clock.New())

	s.AllowFastFromPeer(1)
	require.True(s.AllowedFromPeer(1))
	require.False(s.AllowedFromPeer(2))

	s.SetAllowedToPeer([]int{3, 1, 2})
	require.Equal([]int{1, 2, 3}, s.AllowedToPeerSet())
}

func TestHasQueuedMessage(t *testing.T) {
	require := require.New(t)

	s := New(core.PeerIDFixture(), core.InfoHashFixture(), 10, clock.New())
	require.False(s.HasQueuedMessage(wire.Interested))

	s.Enqueue(wire.InterestedMsg{})
	require.True(s.HasQueuedMessage(wire.Interested))
}

func TestCancelOutgoingRequestsKeepsServingObligations(t *testing.T) {
	require := require.New(t)

	s := New(core.PeerIDFixture(), core.InfoHashFixture(), 10, clock.New())

	// Two of our own requests, one queued Piece owed to the peer, one
	// pending read.
	s.Enqueue(wire.RequestMsg{Index: 1, Begin: 0, Length: 16384})
	s.RequestingCount++
	s.Enqueue(wire.RequestMsg{Index: 2, Begin: 0, Length: 16384})
	s.RequestingCount++
	s.EnqueuePiece(wire.PieceMsg{Index: 5, Begin: 0, Data: make([]byte, 16)})
	s.QueueRead(6, 0, 16)
	require.Equal(4, s.RequestingCount)

	s.CancelOutgoingRequests()

	require.Equal(2, s.RequestingCount)
	require.False(s.HasQueuedMessage(wire.Request))
	require.True(s.HasQueuedMessage(wire.PieceID))
}

func TestDrainOutboundStampsLastPieceSent(t *testing.T) {
	require := require.New(t)

	clk := clock.NewMock()
	s := New(core.PeerIDFixture(), core.InfoHashFixture(), 10, clk)
	s.EnqueuePiece(wire.PieceMsg{Index: 1, Begin: 0, Data: make([]byte, 16)})

	clk.Add(1)
	s.DrainOutbound()
	require.Equal(clk.Now(), s.LastPieceSent)
}

func TestDrainOutboundDecrementsPieceCount(t *testing.T) {
	require := require.New(t)

	s := New(core.PeerIDFixture(), core.InfoHashFixture(), 10, clock.New())
	s.EnqueuePiece(wire.PieceMsg{Index: 1, Begin: 0, Data: make([]byte, 16)})
	require.Equal(1, s.RequestingCount)

	drained := s.DrainOutbound()
	require.Len(drained, 1)
	require.Equal(0, s.RequestingCount)
	require.Equal(0, s.QueueLen())
}
