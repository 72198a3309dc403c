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
package mode

import (
	"testing"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kraken-torrent/peercore/core"
	"github.com/kraken-torrent/peercore/lib/torrent/connmgr"
	"github.com/kraken-torrent/peercore/lib/torrent/dispatch"
	"github.com/kraken-torrent/peercore/lib/torrent/engine"
	"github.com/kraken-torrent/peercore/lib/torrent/ports"
	"github.com/kraken-torrent/peercore/lib/torrent/session"
	"github.com/kraken-torrent/peercore/lib/torrent/wire"
	"github.com/kraken-torrent/peercore/utils/bandwidth"
	"github.com/kraken-torrent/peercore/utils/memsize"
)

type mockPicker struct {
	cancelAllCalls []core.PeerID
}

func (p *mockPicker) PickRequests(peerID core.PeerID, upTo int) []ports.Request { return nil }
func (p *mockPicker) CancelRequest(peerID core.PeerID, piece, begin, length int) {}
func (p *mockPicker) CancelAll(peerID core.PeerID) {
	p.cancelAllCalls = append(p.cancelAllCalls, peerID)
}
func (p *mockPicker) PieceReceived(peerID core.PeerID, piece ports.Piece) {}
func (p *mockPicker) IsInteresting(peerID core.PeerID) bool               { return false }

func newTickFixture(numPieces int, clk clock.Clock) (*engine.TorrentContext, *stubMonitor, *stubReciprocity, *stubTracker, *mockPicker) {
	monitor := &stubMonitor{}
	recip := &stubReciprocity{}
	tracker := &stubTracker{}
	picker := &mockPicker{}
	ctx := engine.New(
		core.InfoHashFixture(),
		core.PeerIDFixture(),
		numPieces,
		ports.Settings{TickInterval: 500 * time.Millisecond},
		picker, recip, monitor, tracker,
		clk,
		zap.NewNop().Sugar(),
		nil,
		nil)
	return ctx, monitor, recip, tracker, picker
}

func addConnectedSession(ctx *engine.TorrentContext, deps Deps, clk clock.Clock) (*session.PeerSession, *stubTransport) {
	s := session.New(core.PeerIDFixture(), ctx.InfoHash, ctx.NumPieces, clk)
	now := clk.Now()
	s.LastMessageSent = now
	s.LastMessageReceived = now
	ctx.AddSession(s)
	tr := &stubTransport{}
	deps.Transports[s.PeerID] = tr
	return s, tr
}

func TestTickGatesCadenceWorkByCounter(t *testing.T) {
	require := require.New(t)

	ctx, monitor, _, _, _ := newTickFixture(4, clock.New())
	deps := Deps{Transports: map[core.PeerID]ports.Transport{}}

	Tick(ctx, deps, 1)
	require.Equal(0, monitor.ticks)

	Tick(ctx, deps, 2)
	require.Equal(1, monitor.ticks)
}

func TestTickBroadcastsFinishedPieces(t *testing.T) {
	require := require.New(t)

	ctx, _, _, _, _ := newTickFixture(4, clock.New())
	deps := Deps{Transports: map[core.PeerID]ports.Transport{}}
	s, _ := addConnectedSession(ctx, deps, ctx.Clk)

	ctx.FinishedPieces.Push(2)
	Tick(ctx, deps, 0)

	require.True(s.HasQueuedMessage(wire.Have))
}

func TestTickSuppressesHaveToPeerThatHasPiece(t *testing.T) {
	require := require.New(t)

	ctx, _, _, _, _ := newTickFixture(4, clock.New())
	ctx.Settings.HaveSuppressionEnabled = true
	deps := Deps{Transports: map[core.PeerID]ports.Transport{}}
	s, _ := addConnectedSession(ctx, deps, ctx.Clk)
	s.Bitfield.Set(2)

	ctx.FinishedPieces.Push(2)
	Tick(ctx, deps, 0)

	require.False(s.HasQueuedMessage(wire.Have))
}

func TestTickBroadcastsHaveToPeerThatHasPieceWithoutSuppression(t *testing.T) {
	require := require.New(t)

	ctx, _, _, _, _ := newTickFixture(4, clock.New())
	deps := Deps{Transports: map[core.PeerID]ports.Transport{}}
	s, _ := addConnectedSession(ctx, deps, ctx.Clk)
	s.Bitfield.Set(2)

	ctx.FinishedPieces.Push(2)
	Tick(ctx, deps, 0)

	require.True(s.HasQueuedMessage(wire.Have))
}

func TestTickReviewsReciprocityWhileDownloading(t *testing.T) {
	require := require.New(t)

	ctx, _, recip, _, _ := newTickFixture(4, clock.New())
	deps := Deps{Transports: map[core.PeerID]ports.Transport{}}

	Tick(ctx, deps, 0)
	require.Equal(1, recip.reviews)
}

func TestTickSkipsReciprocityReviewWithinMinInterval(t *testing.T) {
	require := require.New(t)

	clk := clock.NewMock()
	ctx, _, recip, _, _ := newTickFixture(4, clk)
	ctx.Settings.MinTimeBetweenReviews = 10 * time.Second
	deps := Deps{Transports: map[core.PeerID]ports.Transport{}}

	Tick(ctx, deps, 0)
	require.Equal(1, recip.reviews)

	clk.Add(time.Second)
	Tick(ctx, deps, 1)
	require.Equal(1, recip.reviews)

	clk.Add(10 * time.Second)
	Tick(ctx, deps, 2)
	require.Equal(2, recip.reviews)
}

func TestTickRebalancesBandwidthLimiterAcrossSessions(t *testing.T) {
	require := require.New(t)

	clk := clock.New()
	ctx := engine.New(
		core.InfoHashFixture(),
		core.PeerIDFixture(),
		4,
		ports.Settings{
			TickInterval: time.Second,
			Bandwidth: bandwidth.Config{
				Enable:            true,
				EgressBitsPerSec:  8 * memsize.Mbit,
				IngressBitsPerSec: 8 * memsize.Mbit,
			},
		},
		&mockPicker{}, &stubReciprocity{}, &stubMonitor{}, &stubTracker{},
		clk,
		zap.NewNop().Sugar(),
		nil,
		nil)
	require.NotNil(ctx.Limiter)
	deps := Deps{Transports: map[core.PeerID]ports.Transport{}}

	addConnectedSession(ctx, deps, clk)
	addConnectedSession(ctx, deps, clk)

	Tick(ctx, deps, 0)

	require.Equal(ctx.Limiter.EgressLimit(), ctx.Limiter.IngressLimit())
	require.Less(ctx.Limiter.EgressLimit(), int64(1000))
}

func TestTickSendsKeepAliveAfterInterval(t *testing.T) {
	require := require.New(t)

	clk := clock.NewMock()
	ctx, _, _, _, _ := newTickFixture(4, clk)
	deps := Deps{Transports: map[core.PeerID]ports.Transport{}}
	s, _ := addConnectedSession(ctx, deps, clk)

	clk.Add(ports.KeepAliveInterval + time.Second)
	Tick(ctx, deps, 0)

	require.True(s.HasQueuedMessage(wire.ID(0xFF)))
}

func TestTickClosesSessionOnHardInactivity(t *testing.T) {
	require := require.New(t)

	clk := clock.NewMock()
	ctx, _, _, _, picker := newTickFixture(4, clk)
	conns := connmgr.New(connmgr.Config{MaxOpenConnections: 5}, clk, zap.NewNop().Sugar())
	deps := Deps{Transports: map[core.PeerID]ports.Transport{}, Conns: conns}
	s, tr := addConnectedSession(ctx, deps, clk)
	require.NoError(conns.AddPending(s.PeerID, nil))
	require.NoError(conns.MovePendingToActive(s.PeerID))

	clk.Add(ports.InactivityTimeout + time.Second)
	Tick(ctx, deps, 0)

	require.True(tr.closed)
	require.Equal("Inactivity", tr.closeMsg)
	_, stillThere := ctx.Session(s.PeerID)
	require.False(stillThere)
	require.Len(picker.cancelAllCalls, 1)
	require.Equal(0, conns.Len())
}

func TestTickClosesSessionOnRequestStall(t *testing.T) {
	require := require.New(t)

	clk := clock.NewMock()
	ctx, _, _, _, _ := newTickFixture(4, clk)
	deps := Deps{Transports: map[core.PeerID]ports.Transport{}}
	s, tr := addConnectedSession(ctx, deps, clk)
	s.RequestingCount = 1

	clk.Add(ports.RequestStallTimeout + time.Second)
	Tick(ctx, deps, 0)

	require.True(tr.closed)
	require.Equal("Didn't send pieces", tr.closeMsg)
}

func TestCloseOnProtocolErrorBlacklistsPeer(t *testing.T) {
	require := require.New(t)

	clk := clock.NewMock()
	ctx, _, _, _, picker := newTickFixture(4, clk)
	conns := connmgr.New(connmgr.Config{MaxOpenConnections: 5}, clk, zap.NewNop().Sugar())
	deps := Deps{Transports: map[core.PeerID]ports.Transport{}, Conns: conns}
	s, tr := addConnectedSession(ctx, deps, clk)
	require.NoError(conns.AddPending(s.PeerID, nil))
	require.NoError(conns.MovePendingToActive(s.PeerID))

	protoErr := &dispatch.ProtocolError{Kind: dispatch.KindMalformedRequest, Reason: "bad request"}
	CloseOnProtocolError(ctx, deps, s, protoErr)

	require.True(tr.closed)
	require.Contains(tr.closeMsg, "bad request")
	require.Len(picker.cancelAllCalls, 1)
	require.True(conns.Blacklisted(s.PeerID))
	require.Equal(connmgr.ErrBlacklisted, conns.AddPending(s.PeerID, nil))
}

func TestTickDoesNotCloseActiveSession(t *testing.T) {
	require := require.New(t)

	clk := clock.NewMock()
	ctx, _, _, _, _ := newTickFixture(4, clk)
	deps := Deps{Transports: map[core.PeerID]ports.Transport{}}
	s, tr := addConnectedSession(ctx, deps, clk)

	Tick(ctx, deps, 0)

	require.False(tr.closed)
	_, stillThere := ctx.Session(s.PeerID)
	require.True(stillThere)
}

func TestTickAnnouncesAndTransitionsToSeedingWhenComplete(t *testing.T) {
	require := require.New(t)

	clk := clock.NewMock()
	ctx, _, _, tracker, _ := newTickFixture(2, clk)
	tracker.current = &ports.Tracker{URL: "http://tracker.example"}
	tracker.succeeded = true
	ctx.Bitfield.Set(0)
	ctx.Bitfield.Set(1)
	deps := Deps{Transports: map[core.PeerID]ports.Transport{}}

	Tick(ctx, deps, 0)

	require.Equal([]string{"completed"}, tracker.announced)
	require.Equal(engine.Seeding, ctx.Phase)
}

func TestTickClearsBlacklistOnTransitionToSeeding(t *testing.T) {
	require := require.New(t)

	clk := clock.NewMock()
	ctx, _, _, tracker, _ := newTickFixture(2, clk)
	tracker.current = &ports.Tracker{URL: "http://tracker.example"}
	tracker.succeeded = true
	ctx.Bitfield.Set(0)
	ctx.Bitfield.Set(1)
	conns := connmgr.New(connmgr.Config{MaxOpenConnections: 5}, clk, nil)
	blacklisted := core.PeerIDFixture()
	conns.Blacklist(blacklisted)
	deps := Deps{Transports: map[core.PeerID]ports.Transport{}, Conns: conns}

	Tick(ctx, deps, 0)

	require.Equal(engine.Seeding, ctx.Phase)
	require.False(conns.Blacklisted(blacklisted))
}

func TestTickSkipsAnnounceBeforeIntervalElapses(t *testing.T) {
	require := require.New(t)

	clk := clock.NewMock()
	ctx, _, _, tracker, _ := newTickFixture(2, clk)
	tracker.current = &ports.Tracker{URL: "http://tracker.example"}
	tracker.succeeded = true
	deps := Deps{Transports: map[core.PeerID]ports.Transport{}}

	Tick(ctx, deps, 0)
	require.Len(tracker.announced, 1)

	Tick(ctx, deps, 1)
	require.Len(tracker.announced, 1)
}
