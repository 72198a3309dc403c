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

// Package dispatch turns one decoded wire.Message plus the PeerSession and
// TorrentContext it arrived on into state transitions and outbound
// messages. Handshake negotiation and the per-message-kind handlers live
// here; nothing about transport framing or disk I/O does.
package dispatch

import (
	"fmt"
	"net"

	"github.com/kraken-torrent/peercore/core"
	"github.com/kraken-torrent/peercore/lib/torrent/bitfield"
	"github.com/kraken-torrent/peercore/lib/torrent/engine"
	"github.com/kraken-torrent/peercore/lib/torrent/networkevent"
	"github.com/kraken-torrent/peercore/lib/torrent/ports"
	"github.com/kraken-torrent/peercore/lib/torrent/session"
	"github.com/kraken-torrent/peercore/lib/torrent/wire"
)

// HandleHandshake validates an inbound Handshake against the torrent we
// expect it for, checking protocol identifier (parsed before this is
// reached, by wire.DecodeHandshake itself), info hash, then peer id (when a
// remote peer id was already known, e.g. for an outgoing dial). On success
// it creates and returns a new PeerSession seeded with the negotiated
// capabilities and the BEP 6 allowed-fast set we grant the peer.
func HandleHandshake(
	ctx *engine.TorrentContext,
	remoteIP net.IP,
	h wire.Handshake,
	expectedPeerID *core.PeerID) (*session.PeerSession, *ProtocolError) {

	if h.InfoHash != ctx.InfoHash {
		return nil, newProtocolError(KindInfoHashMismatch,
			fmt.Sprintf("handshake info hash %s does not match torrent %s", h.InfoHash, ctx.InfoHash))
	}
	if expectedPeerID != nil && h.PeerID != *expectedPeerID {
		return nil, newProtocolError(KindPeerIDMismatch,
			fmt.Sprintf("handshake peer id %s does not match expected %s", h.PeerID, *expectedPeerID))
	}

	s := session.New(h.PeerID, ctx.InfoHash, ctx.NumPieces, ctx.Clk)
	s.SupportsFast = h.SupportsFast
	s.SupportsExtended = h.SupportsExtended
	s.HandshakeComplete = true

	if h.SupportsFast {
		allowed := wire.AllowedFastSet(remoteIP, ctx.InfoHash, ctx.NumPieces, ctx.Settings.FastAllowedSetSize)
		s.SetAllowedToPeer(allowed)
	}

	return s, nil
}

// ExtensionResolverFor builds the wire.ExtensionResolver that decodes s's
// inbound Extended sub-ids, per wire.ExtensionResolver's contract: resolved
// against the sub-id dict the peer advertised about itself, not the one we
// advertised about ourselves.
func ExtensionResolverFor(s *session.PeerSession) wire.ExtensionResolver {
	return func(id uint8) (string, bool) {
		for name, sub := range s.ExtendedIDs {
			if sub == id {
				return name, true
			}
		}
		return "", false
	}
}

// Dispatch applies one decoded message to s within ctx, mutating session and
// torrent state and enqueuing any resulting outbound messages via transport.
// A returned *ProtocolError is always fatal to the connection; the caller is
// responsible for invoking transport.Close and tearing down the session.
func Dispatch(
	ctx *engine.TorrentContext,
	s *session.PeerSession,
	transport ports.Transport,
	msg wire.Message) *ProtocolError {

	protoErr := dispatchMessage(ctx, s, transport, msg)
	if protoErr != nil {
		ctx.Stats.Tagged(map[string]string{"kind": protoErr.Kind.String()}).Counter("protocol_errors").Inc(1)
	}
	return protoErr
}

func dispatchMessage(
	ctx *engine.TorrentContext,
	s *session.PeerSession,
	transport ports.Transport,
	msg wire.Message) *ProtocolError {

	s.LastMessageReceived = ctx.Clk.Now()

	switch m := msg.(type) {
	case wire.KeepAlive:
		return nil

	case wire.ChokeMsg:
		s.PeerChoking = true
		if !s.SupportsFast {
			ctx.Picker.CancelAll(s.PeerID)
			s.CancelOutgoingRequests()
		}
		return nil

	case wire.UnchokeMsg:
		s.PeerChoking = false
		requestMore(ctx, s)
		return nil

	case wire.InterestedMsg:
		s.PeerInterested = true
		return nil

	case wire.NotInterestedMsg:
		s.PeerInterested = false
		return nil

	case wire.HaveMsg:
		if m.Index < 0 || m.Index >= s.Bitfield.Len() {
			return newProtocolError(KindMalformedRequest,
				fmt.Sprintf("have index %d out of range [0,%d)", m.Index, s.Bitfield.Len()))
		}
		s.Bitfield.Set(m.Index)
		s.HaveMessagesReceived++
		return dispatchInterest(ctx, s)

	case wire.HaveAllMsg:
		if !s.SupportsFast {
			return newProtocolError(KindCapabilityViolation, "HaveAll from peer without fast-peer support")
		}
		s.Bitfield.SetAll()
		return dispatchInterest(ctx, s)

	case wire.HaveNoneMsg:
		if !s.SupportsFast {
			return newProtocolError(KindCapabilityViolation, "HaveNone from peer without fast-peer support")
		}
		s.Bitfield.ClearAll()
		return dispatchInterest(ctx, s)

	case wire.BitfieldMsg:
		decoded, err := bitfield.FromBytes(s.Bitfield.Len(), m.Raw)
		if err != nil {
			return newProtocolError(KindMalformedRequest, err.Error())
		}
		s.Bitfield = decoded
		return dispatchInterest(ctx, s)

	case wire.RequestMsg:
		return handleRequest(ctx, s, m.Index, m.Begin, m.Length)

	case wire.PieceMsg:
		return handlePiece(ctx, s, m)

	case wire.CancelMsg:
		s.Cancel(m.Index, m.Begin, m.Length)
		return nil

	case wire.PortMsg:
		s.PeerDHTPort = m.Port
		return nil

	case wire.SuggestPieceMsg:
		if !s.SupportsFast {
			return newProtocolError(KindCapabilityViolation, "SuggestPiece from peer without fast-peer support")
		}
		s.SuggestPiece(m.Index)
		return nil

	case wire.RejectRequestMsg:
		if !s.SupportsFast {
			return newProtocolError(KindCapabilityViolation, "RejectRequest from peer without fast-peer support")
		}
		ctx.Picker.CancelRequest(s.PeerID, m.Index, m.Begin, m.Length)
		if s.RequestingCount > 0 {
			s.RequestingCount--
		}
		return nil

	case wire.AllowedFastMsg:
		if !s.SupportsFast {
			return newProtocolError(KindCapabilityViolation, "AllowedFast from peer without fast-peer support")
		}
		s.AllowFastFromPeer(m.Index)
		return nil

	case wire.ExtendedHandshakeMsg:
		if !s.SupportsExtended {
			return newProtocolError(KindCapabilityViolation, "ExtendedHandshake from peer without extended support")
		}
		s.ExtendedIDs = m.M
		s.PeerMaxRequests = m.MaxRequests
		if s.PeerMaxRequests < 1 {
			s.PeerMaxRequests = 1
		}
		if m.Port > 0 {
			s.PeerListenPort = m.Port
		}
		s.PeerHasPex = hasExtension(m.M, wire.ExtensionPeerExchange)
		return nil

	case wire.PeerExchangeMsg:
		if !s.SupportsExtended || ctx.Settings.Private || !ctx.Settings.EnablePeerExchange {
			return nil
		}
		handlePex(ctx, m)
		return nil

	case wire.LTMetadataMsg:
		if !s.SupportsExtended {
			return newProtocolError(KindCapabilityViolation, "LTMetadata from peer without extended support")
		}
		if m.MsgType == wire.MetadataRequest {
			handleMetadataRequest(ctx, s, m.Piece)
		}
		// Data and Reject replies belong to a metadata fetcher this layer
		// does not implement; they are dropped here.
		return nil

	case wire.LTChatMsg:
		return nil

	case wire.UnknownExtendedMsg:
		if handler, ok := ctx.ExtendedHandlers[m.SubID]; ok {
			handler(s.PeerID, m.Payload)
		}
		return nil

	default:
		return newProtocolError(KindUnknownMessage, fmt.Sprintf("unrecognized message type %T", msg))
	}
}

func dispatchInterest(ctx *engine.TorrentContext, s *session.PeerSession) *ProtocolError {
	becameInterested := s.RecomputeInterest(ctx.Bitfield)
	if becameInterested && !s.HasQueuedMessage(wire.Interested) {
		s.Enqueue(wire.InterestedMsg{})
	}
	return nil
}

func handleRequest(ctx *engine.TorrentContext, s *session.PeerSession, index, begin, length int) *ProtocolError {
	// The final piece may legitimately be shorter than a full block, but no
	// request is ever empty or larger than MaxRequestLength.
	if length < ports.MinRequestLength || length > ports.MaxRequestLength {
		return newProtocolError(KindMalformedRequest,
			fmt.Sprintf("request length %d out of bounds [%d,%d]", length, ports.MinRequestLength, ports.MaxRequestLength))
	}
	if s.AmChoking && !s.AllowedToPeer(index) {
		if s.SupportsFast {
			s.Enqueue(wire.RejectRequestMsg{Index: index, Begin: begin, Length: length})
		}
		return nil
	}
	s.QueueRead(index, begin, length)
	return nil
}

func handlePiece(ctx *engine.TorrentContext, s *session.PeerSession, m wire.PieceMsg) *ProtocolError {
	s.PiecesReceived++
	s.LastGoodPieceReceived = ctx.Clk.Now()
	if s.RequestingCount > 0 {
		s.RequestingCount--
	}
	ctx.Picker.PieceReceived(s.PeerID, ports.Piece{Index: m.Index, Begin: m.Begin, Data: m.Data})
	requestMore(ctx, s)
	return nil
}

// handleMetadataRequest answers a ut_metadata Request with a Data reply
// carrying the requested 16 KiB block, or a Reject when metadata is unknown
// or the index is out of range. The reply is addressed with the sub-id the
// peer assigned to ut_metadata in its own extended handshake; without one
// the peer cannot decode a reply, so none is sent.
func handleMetadataRequest(ctx *engine.TorrentContext, s *session.PeerSession, piece int) {
	subID, ok := s.ExtendedIDs[wire.ExtensionMetadata]
	if !ok {
		return
	}
	total := len(ctx.Metadata)
	begin := piece * wire.MetadataPieceSize
	if total == 0 || piece < 0 || begin >= total {
		s.Enqueue(wire.LTMetadataMsg{SubID: subID, MsgType: wire.MetadataReject, Piece: piece})
		return
	}
	end := begin + wire.MetadataPieceSize
	if end > total {
		end = total
	}
	s.Enqueue(wire.LTMetadataMsg{
		SubID:     subID,
		MsgType:   wire.MetadataData,
		Piece:     piece,
		TotalSize: total,
		Data:      ctx.Metadata[begin:end],
	})
}

// requestMore asks the Picker for as many new requests as s has room for and
// enqueues each as a RequestMsg, per Piece/Unchoke handling.
func requestMore(ctx *engine.TorrentContext, s *session.PeerSession) {
	upTo := s.MaxPendingRequests - s.RequestingCount
	if upTo <= 0 {
		return
	}
	for _, r := range ctx.Picker.PickRequests(s.PeerID, upTo) {
		s.Enqueue(wire.RequestMsg{Index: r.Piece, Begin: r.Begin, Length: r.Length})
		s.RequestingCount++
	}
}

func hasExtension(m wire.ExtendedIDs, name string) bool {
	_, ok := m[name]
	return ok
}

// handlePex admits a batch of PeX-offered peers when the torrent's
// connection pool has room. Actually enqueueing a dial for each added peer
// is the host's connection layer's job, an explicit collaborator; this only
// decides admission and publishes the peers_found event the host's layer
// reacts to.
func handlePex(ctx *engine.TorrentContext, m wire.PeerExchangeMsg) {
	if len(m.Added) == 0 {
		return
	}
	room := ctx.Settings.MaxConnections - ctx.SessionCount()
	if room <= 0 {
		return
	}
	countAdded := len(m.Added)
	if countAdded > room {
		countAdded = room
	}
	ctx.Stats.Counter("pex_peers_added").Inc(int64(countAdded))
	ctx.Stats.Counter("pex_peers_offered").Inc(int64(len(m.Added)))
	if ctx.NetEvents != nil {
		ctx.NetEvents.Produce(networkevent.PeersFoundEvent(
			ctx.InfoHash, ctx.LocalPeerID, countAdded, len(m.Added), "pex"))
	}
}
