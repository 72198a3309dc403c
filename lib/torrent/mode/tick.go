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

// Package mode advances one TorrentContext by a single tick: pre-logic,
// phase-specific logic, post-logic, and a final tracker-reannounce check.
// tick() is invoked by an external fixed-cadence scheduler rather than
// owning its own goroutine, so one call here advances one TorrentContext
// rather than a whole process's worth of torrents.
package mode

import (
	"time"

	"github.com/kraken-torrent/peercore/core"
	"github.com/kraken-torrent/peercore/lib/torrent/connmgr"
	"github.com/kraken-torrent/peercore/lib/torrent/dispatch"
	"github.com/kraken-torrent/peercore/lib/torrent/engine"
	"github.com/kraken-torrent/peercore/lib/torrent/networkevent"
	"github.com/kraken-torrent/peercore/lib/torrent/ports"
	"github.com/kraken-torrent/peercore/lib/torrent/session"
	"github.com/kraken-torrent/peercore/lib/torrent/wire"
)

// Deps bundles the collaborators Tick needs beyond what TorrentContext
// already carries: the connection manager (closing a session releases its
// active slot here) and each session's Transport.
type Deps struct {
	Conns      *connmgr.Manager
	Transports map[core.PeerID]ports.Transport
}

// Tick advances ctx by one tick, per the pre-logic / state-specific /
// post-logic / tracker-reannounce phases. counter is the caller's
// monotonically increasing tick counter, used to gate the ~1-second cadence
// work against ctx.Settings.TickInterval.
func Tick(ctx *engine.TorrentContext, deps Deps, counter uint64) {
	now := ctx.Clk.Now()

	ticksPerSecond := uint64(time.Second / ctx.Settings.TickInterval)
	if ticksPerSecond == 0 {
		ticksPerSecond = 1
	}
	if counter%ticksPerSecond == 0 {
		refreshMonitors(ctx, now)
		refreshBandwidthLimiter(ctx)
	}
	broadcastHaves(ctx)
	recomputeMaxPendingRequests(ctx)

	switch ctx.Phase {
	case engine.Downloading:
		maybeAttachWebseeds(ctx, now)
		if now.Sub(ctx.LastInactivePeerSweep) >= ports.InactivePeerPollInterval {
			ctx.LastInactivePeerSweep = now
			evictInactivePeers(ctx, deps, now)
		}
		maybeReviewReciprocity(ctx, now)
	case engine.Seeding:
		maybeReviewReciprocity(ctx, now)
	}

	postLogic(ctx, deps, now)
	maybeAnnounce(ctx, deps, now)
}

func refreshMonitors(ctx *engine.TorrentContext, now time.Time) {
	if ctx.Monitor != nil {
		ctx.Monitor.Tick()
	}
}

// refreshBandwidthLimiter rebalances ctx.Limiter evenly across however many
// sessions are currently connected to this torrent.
func refreshBandwidthLimiter(ctx *engine.TorrentContext) {
	if ctx.Limiter == nil {
		return
	}
	n := ctx.SessionCount()
	if n == 0 {
		n = 1
	}
	ctx.Limiter.Adjust(n)
}

// broadcastHaves implements the "Have broadcasts observe the finished_pieces
// snapshot at the start of the tick" ordering guarantee: drained once here,
// nowhere else in the tick.
func broadcastHaves(ctx *engine.TorrentContext) {
	finished := ctx.FinishedPieces.DrainSnapshot()
	if len(finished) == 0 {
		return
	}
	for _, s := range ctx.Sessions() {
		for _, piece := range finished {
			hasAlready := s.Bitfield.Has(piece)
			if hasAlready {
				s.RecomputeInterest(ctx.Bitfield)
			}
			if !hasAlready || !ctx.Settings.HaveSuppressionEnabled {
				s.Enqueue(wire.HaveMsg{Index: piece})
			}
		}
	}
}

func recomputeMaxPendingRequests(ctx *engine.TorrentContext) {
	var downloadKBPS float64
	if ctx.Monitor != nil {
		downloadKBPS = ctx.Monitor.DownloadSpeedBPS() / 1024
	}
	bonus := ctx.Settings.BonusPerKBPS
	if bonus == 0 {
		bonus = 1
	}
	for _, s := range ctx.Sessions() {
		peerAdvertised := s.PeerMaxRequests
		if peerAdvertised <= 0 {
			peerAdvertised = ctx.Settings.NormalMaxPendingRequests
		}
		upper := ctx.Settings.NormalMaxPendingRequests + int(downloadKBPS/bonus)
		max := min(peerAdvertised, s.RequestingCount+2)
		max = min(max, upper)
		s.MaxPendingRequests = clamp(2, max)
	}
}

func clamp(lo, v int) int {
	if v < lo {
		return lo
	}
	return v
}

func maybeAttachWebseeds(ctx *engine.TorrentContext, now time.Time) {
	if ctx.WebseedsAttached {
		return
	}
	if ctx.DownloadingSince.IsZero() {
		ctx.DownloadingSince = now
		return
	}
	if now.Sub(ctx.DownloadingSince) < ports.WebseedAttachDelay {
		return
	}
	if ctx.Settings.AddWebseedsSpeedLimit > 0 && ctx.Monitor != nil {
		if ctx.Monitor.DownloadSpeedBPS()/1024 >= ctx.Settings.AddWebseedsSpeedLimit {
			return
		}
	}
	// Webseed injection itself is driven by a host-level HTTP transport, an
	// explicit collaborator outside this core; this only latches the
	// once-per-lifetime decision.
	ctx.WebseedsAttached = true
}

// maybeReviewReciprocity invokes ReciprocityController.Review at most once
// per ctx.Settings.MinTimeBetweenReviews. ctx.Settings.PercentOfMaxRateToSkipReview
// is accepted and threaded through Settings but left unconsumed here: no
// collaborator interface in this core exposes the "configured max rate" it
// would need to compare against (Monitor only reports current throughput,
// never a cap), so that additional skip condition is a host-level decision,
// not this loop's.
func maybeReviewReciprocity(ctx *engine.TorrentContext, now time.Time) {
	if now.Sub(ctx.LastReciprocityReview) < ctx.Settings.MinTimeBetweenReviews {
		return
	}
	ctx.LastReciprocityReview = now
	ctx.Reciprocity.Review()
}

func evictInactivePeers(ctx *engine.TorrentContext, deps Deps, now time.Time) {
	for _, s := range ctx.Sessions() {
		if now.Sub(s.LastMessageReceived) > ports.InactivityTimeout {
			closeSession(ctx, deps, s, "Inactivity")
		}
	}
}

func postLogic(ctx *engine.TorrentContext, deps Deps, now time.Time) {
	for _, s := range ctx.Sessions() {
		if s.QueueLen() > 0 {
			if t, ok := deps.Transports[s.PeerID]; ok {
				t.ProcessQueue()
			}
		}
		if now.Sub(s.LastMessageSent) > ports.KeepAliveInterval {
			s.Enqueue(wire.KeepAlive{})
			s.LastMessageSent = now
		}
		if now.Sub(s.LastMessageReceived) > ports.InactivityTimeout {
			closeSession(ctx, deps, s, "Inactivity")
			continue
		}
		if now.Sub(s.LastMessageReceived) > ports.RequestStallTimeout && s.RequestingCount > 0 {
			closeSession(ctx, deps, s, "Didn't send pieces")
		}
	}
}

// CloseOnProtocolError tears a session down the same way an inactivity or
// stall close does, and additionally blacklists the peer via deps.Conns so
// a protocol violator is not re-accepted on the very next connection
// attempt, per connmgr's blacklist-with-expiry bookkeeping.
func CloseOnProtocolError(ctx *engine.TorrentContext, deps Deps, s *session.PeerSession, protoErr *dispatch.ProtocolError) {
	if deps.Conns != nil {
		deps.Conns.Blacklist(s.PeerID)
	}
	closeSession(ctx, deps, s, protoErr.Error())
}

// closeSession implements the Cancellation contract: drop the outbound
// queue, cancel all outstanding requests in the Picker, tear down the
// transport, and emit peer_disconnected.
func closeSession(ctx *engine.TorrentContext, deps Deps, s *session.PeerSession, reason string) {
	ctx.Stats.Tagged(map[string]string{"reason": reason}).Counter("sessions_closed").Inc(1)
	s.DrainOutbound()
	ctx.Picker.CancelAll(s.PeerID)
	if t, ok := deps.Transports[s.PeerID]; ok {
		t.Close(reason)
		delete(deps.Transports, s.PeerID)
	}
	if deps.Conns != nil {
		deps.Conns.DeleteActive(s.PeerID)
	}
	ctx.RemoveSession(s.PeerID)
	if ctx.NetEvents != nil {
		ctx.NetEvents.Produce(networkevent.PeerDisconnectedEvent(ctx.InfoHash, ctx.LocalPeerID, s.PeerID))
	}
}

func maybeAnnounce(ctx *engine.TorrentContext, deps Deps, now time.Time) {
	if ctx.Tracker == nil || ctx.Tracker.Current() == nil {
		return
	}
	wait := announceInterval
	if !ctx.Tracker.UpdateSucceeded() {
		wait = minAnnounceInterval
	}
	if now.Sub(ctx.LastAnnounceAttempt) < wait {
		return
	}
	ctx.LastAnnounceAttempt = now
	event := ""
	if ctx.Bitfield.AllTrue() && ctx.Phase == engine.Downloading {
		event = "completed"
		ctx.Phase = engine.Seeding
		// Now seeding: peers blacklisted for protocol violations while we
		// were downloading are no longer disqualified.
		if deps.Conns != nil {
			deps.Conns.ClearBlacklist()
		}
	}
	ctx.Tracker.Announce(event)
}

// announceInterval and minAnnounceInterval bound tracker re-announce
// cadence; actual interval negotiation with the tracker is an explicit
// Non-goal, so these are conservative fixed defaults rather than values
// read from a tracker response.
const (
	announceInterval    = 30 * time.Minute
	minAnnounceInterval = 3 * time.Minute
)
