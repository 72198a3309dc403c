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

// Package engine owns the TorrentContext arena: the table of per-torrent
// state keyed by info hash that PeerSessions reference indirectly. This
// breaks the PeerSession <-> TorrentContext reference cycle a naive design
// would otherwise have: a PeerSession holds only an InfoHash key and
// borrows its TorrentContext from the Registry per operation.
package engine

import (
	"sync"
	"time"

	"github.com/kraken-torrent/peercore/core"
	"github.com/kraken-torrent/peercore/lib/torrent/bitfield"
	"github.com/kraken-torrent/peercore/lib/torrent/networkevent"
	"github.com/kraken-torrent/peercore/lib/torrent/ports"
	"github.com/kraken-torrent/peercore/lib/torrent/session"
	"github.com/kraken-torrent/peercore/utils/bandwidth"

	"github.com/andres-erbsen/clock"
	"github.com/uber-go/tally"
	"go.uber.org/zap"
)

// Phase is the torrent's high-level lifecycle state, driving which branch of
// a tick's state-specific logic applies.
type Phase int

// Possible Phases.
const (
	Downloading Phase = iota
	Seeding
)

func (p Phase) String() string {
	if p == Seeding {
		return "Seeding"
	}
	return "Downloading"
}

// FinishedPieceQueue is the single-producer (piece verifier, external to
// this core) / single-consumer (tick loop) queue of pieces verified since
// the last tick.
type FinishedPieceQueue struct {
	mu     sync.Mutex
	pieces []int
}

// Push enqueues a newly verified piece index. Called by the external
// hashing/verification subsystem.
func (q *FinishedPieceQueue) Push(i int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pieces = append(q.pieces, i)
}

// DrainSnapshot returns every piece pushed since the last drain and clears
// the queue. Have broadcasts observe this snapshot once, at the start of
// the tick, and nowhere else in it.
func (q *FinishedPieceQueue) DrainSnapshot() []int {
	q.mu.Lock()
	defer q.mu.Unlock()
	drained := q.pieces
	q.pieces = nil
	return drained
}

// ExtendedHandler receives the payload of an extension message whose sub-id
// has no built-in decoding, keyed by the sub-id the local handshake
// advertised for it. Registered on TorrentContext.ExtendedHandlers.
type ExtendedHandler func(peerID core.PeerID, payload []byte)

// TorrentContext is the consumed collaborator one torrent's dispatch and
// tick operations share: info-hash, piece count, our own bitfield, the
// finished-pieces queue, settings, and references to the
// Picker/ReciprocityController/Monitor/TrackerManager collaborators, plus
// the sessions the torrent owns. TorrentContext owns its PeerSessions;
// sessions hold the reverse reference only by InfoHash.
type TorrentContext struct {
	InfoHash    core.InfoHash
	NumPieces   int
	LocalPeerID core.PeerID

	Bitfield       *bitfield.Bitfield
	FinishedPieces FinishedPieceQueue

	Settings ports.Settings

	Picker      ports.Picker
	Reciprocity ports.ReciprocityController
	Monitor     ports.Monitor
	Tracker     ports.TrackerManager

	// Metadata is the raw bencoded info dictionary, once known. Non-nil
	// metadata lets the dispatcher serve ut_metadata piece requests; nil
	// makes it reject them.
	Metadata []byte

	// ExtendedHandlers routes extension messages with no built-in decoding
	// to host-registered handlers, keyed by locally advertised sub-id.
	// Unregistered sub-ids are dropped silently.
	ExtendedHandlers map[uint8]ExtendedHandler

	// Limiter throttles this torrent's aggregate egress/ingress; the tick
	// loop's pre-logic phase rebalances it across however many sessions are
	// currently connected. Nil disables throttling, the host's choice to
	// make via Settings.Bandwidth.Enable.
	Limiter *bandwidth.Limiter

	Phase Phase

	// WebseedsAttached records whether webseed injection has already fired
	// once; it may only fire once per torrent lifetime.
	WebseedsAttached bool

	// DownloadingSince marks when the torrent entered Downloading, used to
	// gate webseed attachment behind ports.WebseedAttachDelay.
	DownloadingSince time.Time

	// LastAnnounceAttempt and LastInactivePeerSweep throttle the
	// once-per-tick announce and the 5s inactive-peer sweep.
	LastAnnounceAttempt   time.Time
	LastInactivePeerSweep time.Time
	LastReciprocityReview time.Time

	sessions map[core.PeerID]*session.PeerSession

	Clk       clock.Clock
	Logger    *zap.SugaredLogger
	NetEvents networkevent.Producer

	// Stats is this torrent's tagged metrics scope. Never nil: New
	// substitutes tally.NoopScope when the caller passes nil.
	Stats tally.Scope

	// Poisoned marks that an InvariantViolation was observed;
	// once true, the torrent refuses new connections and is a candidate for
	// host-driven shutdown.
	Poisoned bool
}

// New creates a TorrentContext for infoHash with numPieces total pieces, all
// initially unheld.
func New(
	infoHash core.InfoHash,
	localPeerID core.PeerID,
	numPieces int,
	settings ports.Settings,
	picker ports.Picker,
	reciprocity ports.ReciprocityController,
	monitor ports.Monitor,
	tracker ports.TrackerManager,
	clk clock.Clock,
	logger *zap.SugaredLogger,
	netevents networkevent.Producer,
	stats tally.Scope) *TorrentContext {

	settings = settings.ApplyDefaults()

	if stats == nil {
		stats = tally.NoopScope
	}

	ctx := &TorrentContext{
		InfoHash:    infoHash,
		NumPieces:   numPieces,
		LocalPeerID: localPeerID,
		Bitfield:    bitfield.New(numPieces),
		Settings:    settings,
		Picker:      picker,
		Reciprocity: reciprocity,
		Monitor:     monitor,
		Tracker:     tracker,
		Phase:       Downloading,
		sessions:    make(map[core.PeerID]*session.PeerSession),
		Clk:         clk,
		Logger:      logger,
		NetEvents:   netevents,
		Stats:       stats,
	}

	if settings.Bandwidth.Enable {
		limiter, err := bandwidth.NewLimiter(settings.Bandwidth)
		if err != nil {
			if logger != nil {
				logger.Errorw("bandwidth limiter misconfigured, throttling disabled",
					"hash", infoHash, "error", err)
			}
		} else {
			ctx.Limiter = limiter
		}
	}

	return ctx
}

// AddSession registers a newly handshaked session, taking ownership of it.
func (t *TorrentContext) AddSession(s *session.PeerSession) {
	t.sessions[s.PeerID] = s
}

// RemoveSession drops peerID's session from the torrent. No-ops if absent.
func (t *TorrentContext) RemoveSession(peerID core.PeerID) {
	delete(t.sessions, peerID)
}

// Session returns peerID's session and whether it exists.
func (t *TorrentContext) Session(peerID core.PeerID) (*session.PeerSession, bool) {
	s, ok := t.sessions[peerID]
	return s, ok
}

// Sessions returns every currently connected session. The returned slice is
// a snapshot; mutating it does not affect the torrent's session set.
func (t *TorrentContext) Sessions() []*session.PeerSession {
	out := make([]*session.PeerSession, 0, len(t.sessions))
	for _, s := range t.sessions {
		out = append(out, s)
	}
	return out
}

// SessionCount returns the number of connected sessions.
func (t *TorrentContext) SessionCount() int {
	return len(t.sessions)
}

// Poison marks the torrent as poisoned following an InvariantViolation:
// refuse new connections and mark for host-driven shutdown. Never silently
// continues.
func (t *TorrentContext) Poison(err error) {
	t.Poisoned = true
	if t.Logger != nil {
		t.Logger.Errorw("torrent context poisoned by invariant violation",
			"hash", t.InfoHash, "error", err)
	}
}
