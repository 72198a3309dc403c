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
	"github.com/kraken-torrent/peercore/core"
	"github.com/kraken-torrent/peercore/lib/torrent/connmgr"
	"github.com/kraken-torrent/peercore/lib/torrent/engine"
	"github.com/kraken-torrent/peercore/lib/torrent/networkevent"
	"github.com/kraken-torrent/peercore/lib/torrent/ports"
	"github.com/kraken-torrent/peercore/lib/torrent/session"
	"github.com/kraken-torrent/peercore/lib/torrent/wire"
)

// PeerPending reserves connmgr capacity for a not-yet-handshaked dial or
// accept involving peerID, ahead of the handshake itself -- rejecting
// blacklisted peers, over-capacity torrents, and peers sharing too many
// neighbors with existing connections. A nil conns disables the check.
func PeerPending(conns *connmgr.Manager, peerID core.PeerID, neighbors []core.PeerID) error {
	if conns == nil {
		return nil
	}
	return conns.AddPending(peerID, neighbors)
}

// PeerHandshakeFailed releases peerID's pending connmgr reservation after a
// failed or abandoned handshake, so the slot it held is free for the next
// dial. A nil conns disables the check.
func PeerHandshakeFailed(conns *connmgr.Manager, peerID core.PeerID) {
	if conns != nil {
		conns.DeletePending(peerID)
	}
}

// PeerConnected promotes s's connmgr reservation from pending to active,
// builds the fixed-order message bundle a newly handshaked session must
// receive -- the bitfield-class message, the extended handshake if
// negotiated, then one AllowedFast per piece granted to the peer -- and
// registers s on ctx before handing the bundle to transport. A nil conns
// disables the pending->active transition. dir records which side initiated
// the connection, carried on the published peer_connected event.
func PeerConnected(
	ctx *engine.TorrentContext,
	conns *connmgr.Manager,
	s *session.PeerSession,
	transport ports.Transport,
	dir networkevent.Direction) error {

	if conns != nil {
		if err := conns.MovePendingToActive(s.PeerID); err != nil {
			return err
		}
	}
	ctx.AddSession(s)
	if ctx.NetEvents != nil {
		ctx.NetEvents.Produce(networkevent.PeerConnectedEvent(ctx.InfoHash, ctx.LocalPeerID, s.PeerID, dir))
	}

	var bundle ports.MessageBundle
	bundle = append(bundle, bitfieldClassMessage(ctx, s))

	if s.SupportsExtended {
		bundle = append(bundle, wire.ExtendedHandshakeMsg{
			M:           wire.DefaultExtendedIDs(),
			MaxRequests: ctx.Settings.NormalMaxPendingRequests,
		})
	}

	if s.SupportsFast {
		for _, i := range s.AllowedToPeerSet() {
			bundle = append(bundle, wire.AllowedFastMsg{Index: i})
		}
	}

	transport.Enqueue(bundle)
	return nil
}

func bitfieldClassMessage(ctx *engine.TorrentContext, s *session.PeerSession) wire.Message {
	if s.SupportsFast {
		if ctx.Bitfield.AllFalse() {
			return wire.HaveNoneMsg{}
		}
		if ctx.Bitfield.AllTrue() {
			return wire.HaveAllMsg{}
		}
	}
	return wire.BitfieldMsg{Raw: ctx.Bitfield.ToBytes()}
}
