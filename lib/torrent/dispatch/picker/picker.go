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
	"sync"
	"time"

	"github.com/willf/bitset"

	"github.com/kraken-torrent/peercore/core"
	"github.com/kraken-torrent/peercore/lib/torrent/engine"
	"github.com/kraken-torrent/peercore/lib/torrent/ports"
	"github.com/kraken-torrent/peercore/utils/syncutil"
)

type pendingRequest struct {
	peerID core.PeerID
	sentAt time.Time
}

// Picker is the default ports.Picker: one whole piece per outstanding
// request, selected by a pluggable selectionPolicy. It borrows ctx for the
// duration of each call rather than holding it across calls, matching the
// arena+index pattern the rest of this core uses.
type Picker struct {
	mu sync.Mutex

	ctx          *engine.TorrentContext
	pieceLengths []int
	policy       selectionPolicy
	pipeline     int
	timeout      time.Duration

	// requests maps piece index to the peer currently holding it, if any.
	requests map[int]*pendingRequest
}

// New creates a Picker for ctx. pieceLengths must have ctx.NumPieces
// entries, the last of which may be shorter than the rest. policyName
// selects ReservoirPolicy or RarestFirstPolicy; any other value falls back
// to ReservoirPolicy. pipeline bounds how many requests a single peer may
// hold at once; timeout marks a request expired (and retriable) if it has
// gone unanswered that long.
func New(ctx *engine.TorrentContext, pieceLengths []int, policyName string, pipeline int, timeout time.Duration) *Picker {
	return &Picker{
		ctx:          ctx,
		pieceLengths: pieceLengths,
		policy:       newPolicy(policyName),
		pipeline:     pipeline,
		timeout:      timeout,
		requests:     make(map[int]*pendingRequest),
	}
}

// PickRequests implements ports.Picker.
func (p *Picker) PickRequests(peerID core.PeerID, upTo int) []ports.Request {
	p.mu.Lock()
	defer p.mu.Unlock()

	if upTo <= 0 {
		return nil
	}
	quota := p.quotaFor(peerID)
	if quota < upTo {
		upTo = quota
	}
	if upTo <= 0 {
		return nil
	}

	s, ok := p.ctx.Session(peerID)
	if !ok {
		return nil
	}

	candidates := bitset.New(uint(p.ctx.NumPieces))
	numPeersByPiece := syncutil.NewCounters(p.ctx.NumPieces)
	for i := 0; i < p.ctx.NumPieces; i++ {
		if s.Bitfield.Has(i) && !p.ctx.Bitfield.Has(i) {
			candidates.Set(uint(i))
		}
	}
	for _, other := range p.ctx.Sessions() {
		for i := 0; i < p.ctx.NumPieces; i++ {
			if other.Bitfield.Has(i) {
				numPeersByPiece.Increment(i)
			}
		}
	}

	valid := func(i int) bool { return p.validLocked(peerID, i) }
	pieces := p.policy.selectPieces(upTo, valid, candidates, numPeersByPiece)

	now := p.ctx.Clk.Now()
	reqs := make([]ports.Request, 0, len(pieces))
	for _, i := range pieces {
		p.requests[i] = &pendingRequest{peerID: peerID, sentAt: now}
		reqs = append(reqs, ports.Request{Piece: i, Begin: 0, Length: p.pieceLengths[i]})
	}
	return reqs
}

// CancelRequest implements ports.Picker.
func (p *Picker) CancelRequest(peerID core.PeerID, piece, begin, length int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if r, ok := p.requests[piece]; ok && r.peerID == peerID {
		delete(p.requests, piece)
	}
}

// CancelAll implements ports.Picker.
func (p *Picker) CancelAll(peerID core.PeerID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, r := range p.requests {
		if r.peerID == peerID {
			delete(p.requests, i)
		}
	}
}

// PieceReceived implements ports.Picker: clears the piece's pending request
// and marks it held. Hash verification is out of scope here, so receipt of
// the final block is treated as completion -- standing in for the external
// disk-writer/verifier that would normally push to FinishedPieces.
func (p *Picker) PieceReceived(peerID core.PeerID, piece ports.Piece) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.requests, piece.Index)
	if !p.ctx.Bitfield.Has(piece.Index) {
		p.ctx.Bitfield.Set(piece.Index)
		p.ctx.FinishedPieces.Push(piece.Index)
	}
}

// IsInteresting implements ports.Picker.
func (p *Picker) IsInteresting(peerID core.PeerID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.ctx.Session(peerID)
	if !ok {
		return false
	}
	for i := 0; i < p.ctx.NumPieces; i++ {
		if s.Bitfield.Has(i) && !p.ctx.Bitfield.Has(i) {
			return true
		}
	}
	return false
}

func (p *Picker) quotaFor(peerID core.PeerID) int {
	quota := p.pipeline
	for _, r := range p.requests {
		if r.peerID == peerID && !p.expired(r) {
			quota--
			if quota <= 0 {
				return 0
			}
		}
	}
	return quota
}

func (p *Picker) validLocked(peerID core.PeerID, piece int) bool {
	r, ok := p.requests[piece]
	if !ok {
		return true
	}
	return p.expired(r)
}

func (p *Picker) expired(r *pendingRequest) bool {
	return p.ctx.Clk.Now().After(r.sentAt.Add(p.timeout))
}
