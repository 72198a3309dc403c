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
package picker

import (
	"testing"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kraken-torrent/peercore/core"
	"github.com/kraken-torrent/peercore/lib/torrent/engine"
	"github.com/kraken-torrent/peercore/lib/torrent/ports"
	"github.com/kraken-torrent/peercore/lib/torrent/session"
)

func newTestPicker(numPieces, pipeline int, timeout time.Duration, clk clock.Clock) (*Picker, *engine.TorrentContext) {
	ctx := engine.New(
		core.InfoHashFixture(),
		core.PeerIDFixture(),
		numPieces,
		ports.Settings{},
		nil, nil, nil, nil,
		clk,
		zap.NewNop().Sugar(),
		nil,
		nil)
	lengths := make([]int, numPieces)
	for i := range lengths {
		lengths[i] = 1024
	}
	p := New(ctx, lengths, ReservoirPolicy, pipeline, timeout)
	ctx.Picker = p
	return p, ctx
}

func addSessionWithFullBitfield(ctx *engine.TorrentContext) *session.PeerSession {
	s := session.New(core.PeerIDFixture(), ctx.InfoHash, ctx.NumPieces, ctx.Clk)
	for i := 0; i < ctx.NumPieces; i++ {
		s.Bitfield.Set(i)
	}
	ctx.AddSession(s)
	return s
}

func TestPickRequestsOnlyPicksPiecesPeerHasAndWeLack(t *testing.T) {
	require := require.New(t)

	p, ctx := newTestPicker(4, 10, time.Minute, clock.New())
	s := addSessionWithFullBitfield(ctx)
	ctx.Bitfield.Set(1)

	reqs := p.PickRequests(s.PeerID, 10)
	require.Len(reqs, 3)
	for _, r := range reqs {
		require.NotEqual(1, r.Piece)
	}
}

func TestPickRequestsRespectsPipelineQuota(t *testing.T) {
	require := require.New(t)

	p, ctx := newTestPicker(10, 2, time.Minute, clock.New())
	s := addSessionWithFullBitfield(ctx)

	first := p.PickRequests(s.PeerID, 10)
	require.Len(first, 2)

	second := p.PickRequests(s.PeerID, 10)
	require.Empty(second)
}

func TestPickRequestsUnknownPeerReturnsNil(t *testing.T) {
	require := require.New(t)

	p, _ := newTestPicker(4, 10, time.Minute, clock.New())
	reqs := p.PickRequests(core.PeerIDFixture(), 10)
	require.Nil(reqs)
}

func TestExpiredRequestBecomesAvailableAgain(t *testing.T) {
	require := require.New(t)

	clk := clock.NewMock()
	p, ctx := newTestPicker(1, 10, time.Minute, clk)
	s := addSessionWithFullBitfield(ctx)

	first := p.PickRequests(s.PeerID, 1)
	require.Len(first, 1)

	clk.Add(2 * time.Minute)

	second := p.PickRequests(s.PeerID, 1)
	require.Len(second, 1)
	require.Equal(first[0].Piece, second[0].Piece)
}

func TestCancelRequestFreesPieceForReassignment(t *testing.T) {
	require := require.New(t)

	p, ctx := newTestPicker(1, 1, time.Minute, clock.New())
	s := addSessionWithFullBitfield(ctx)

	reqs := p.PickRequests(s.PeerID, 1)
	require.Len(reqs, 1)

	p.CancelRequest(s.PeerID, reqs[0].Piece, reqs[0].Begin, reqs[0].Length)

	again := p.PickRequests(s.PeerID, 1)
	require.Len(again, 1)
}

func TestCancelAllClearsEveryRequestForPeer(t *testing.T) {
	require := require.New(t)

	p, ctx := newTestPicker(3, 10, time.Minute, clock.New())
	s := addSessionWithFullBitfield(ctx)

	p.PickRequests(s.PeerID, 10)
	require.Len(p.requests, 3)

	p.CancelAll(s.PeerID)
	require.Empty(p.requests)
}

func TestPieceReceivedMarksBitfieldAndQueuesFinishedPiece(t *testing.T) {
	require := require.New(t)

	p, ctx := newTestPicker(3, 10, time.Minute, clock.New())
	s := addSessionWithFullBitfield(ctx)
	p.PickRequests(s.PeerID, 10)

	p.PieceReceived(s.PeerID, ports.Piece{Index: 0})

	require.True(ctx.Bitfield.Has(0))
	require.Contains(ctx.FinishedPieces.DrainSnapshot(), 0)
	_, stillPending := p.requests[0]
	require.False(stillPending)
}

func TestPieceReceivedTwiceIsIdempotent(t *testing.T) {
	require := require.New(t)

	p, ctx := newTestPicker(1, 10, time.Minute, clock.New())
	s := addSessionWithFullBitfield(ctx)

	p.PieceReceived(s.PeerID, ports.Piece{Index: 0})
	ctx.FinishedPieces.DrainSnapshot()

	p.PieceReceived(s.PeerID, ports.Piece{Index: 0})
	require.Empty(ctx.FinishedPieces.DrainSnapshot())
}

func TestIsInterestingReflectsMissingPieces(t *testing.T) {
	require := require.New(t)

	p, ctx := newTestPicker(2, 10, time.Minute, clock.New())
	s := addSessionWithFullBitfield(ctx)

	require.True(p.IsInteresting(s.PeerID))

	ctx.Bitfield.Set(0)
	ctx.Bitfield.Set(1)
	require.False(p.IsInteresting(s.PeerID))
}
