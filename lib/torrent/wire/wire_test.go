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
package wire

import (
	"bytes"
	"net"
	"testing"

	"github.com/kraken-torrent/peercore/core"

	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, m Message) Message {
	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, m))
	got, err := ReadMessage(&buf, DefaultExtendedIDs().Resolver())
	require.NoError(t, err)
	return got
}

// Resolver builds an ExtensionResolver from an ExtendedIDs map, inverting
// name->id into id->name.
func (ids ExtendedIDs) Resolver() ExtensionResolver {
	inv := make(map[uint8]string, len(ids))
	for name, id := range ids {
		inv[id] = name
	}
	return func(id uint8) (string, bool) {
		name, ok := inv[id]
		return name, ok
	}
}

// Encoding then decoding any message variant yields the original.
func TestMessageRoundTrips(t *testing.T) {
	tests := []Message{
		KeepAlive{},
		ChokeMsg{},
		UnchokeMsg{},
		InterestedMsg{},
		NotInterestedMsg{},
		HaveMsg{Index: 7},
		BitfieldMsg{Raw: []byte{0xff, 0x00, 0x80}},
		RequestMsg{Index: 3, Begin: 16384, Length: 16384},
		PieceMsg{Index: 3, Begin: 0, Data: []byte("some piece bytes")},
		CancelMsg{Index: 3, Begin: 16384, Length: 16384},
		PortMsg{Port: 6881},
		SuggestPieceMsg{Index: 9},
		HaveAllMsg{},
		HaveNoneMsg{},
		RejectRequestMsg{Index: 3, Begin: 16384, Length: 16384},
		AllowedFastMsg{Index: 5},
		ExtendedHandshakeMsg{M: DefaultExtendedIDs(), MaxRequests: 250, Port: 6881},
		PeerExchangeMsg{
			SubID: DefaultExtendedIDs()[ExtensionPeerExchange],
			Added: []PeerAddr{{IP: "10.0.0.1", Port: 6881}, {IP: "10.0.0.2", Port: 6882}},
		},
		LTMetadataMsg{SubID: DefaultExtendedIDs()[ExtensionMetadata], MsgType: MetadataRequest, Piece: 2},
		LTMetadataMsg{SubID: DefaultExtendedIDs()[ExtensionMetadata], MsgType: MetadataData, Piece: 2, TotalSize: 1 << 20, Data: []byte("metadata piece bytes")},
		LTChatMsg{SubID: DefaultExtendedIDs()[ExtensionChat], Text: "hello"},
	}

	for _, want := range tests {
		got := roundTrip(t, want)
		require.Equal(t, want, got, "round trip of %T", want)
	}
}

func TestReadMessageUnknownID(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, rawMsg{id: 99}))
	_, err := ReadMessage(&buf, nil)
	require.ErrorIs(t, err, ErrUnknownMessage)
}

// rawMsg lets tests construct a message with an arbitrary wire id.
type rawMsg struct {
	id ID
	p  []byte
}

func (m rawMsg) ID() ID        { return m.id }
func (m rawMsg) payload() []byte { return m.p }

func TestDecodeExtendedUnresolvedSubID(t *testing.T) {
	msg := PeerExchangeMsg{SubID: 42, Added: []PeerAddr{{IP: "1.2.3.4", Port: 80}}}
	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, msg))

	got, err := ReadMessage(&buf, nil)
	require.NoError(t, err)
	unknown, ok := got.(UnknownExtendedMsg)
	require.True(t, ok)
	require.Equal(t, uint8(42), unknown.SubID)
}

func TestHandshakeRoundTrip(t *testing.T) {
	h := Handshake{
		InfoHash:         core.InfoHashFixture(),
		PeerID:           core.PeerIDFixture(),
		SupportsDHT:      true,
		SupportsFast:     true,
		SupportsExtended: true,
	}
	encoded := h.Encode()
	require.Len(t, encoded, HandshakeLen)

	decoded, err := DecodeHandshake(bytes.NewReader(encoded))
	require.NoError(t, err)
	require.Equal(t, h, decoded)
}

// A handshake whose protocol identifier is corrupted is rejected outright.
func TestHandshakeBadProtocolID(t *testing.T) {
	h := Handshake{InfoHash: core.InfoHashFixture(), PeerID: core.PeerIDFixture()}
	encoded := h.Encode()
	encoded[5] ^= 0xff // corrupt a byte inside "BitTorrent protocol"

	_, err := DecodeHandshake(bytes.NewReader(encoded))
	require.ErrorIs(t, err, ErrBadProtocolID)
}

func TestHandshakeReservedBits(t *testing.T) {
	h := Handshake{SupportsFast: true}
	encoded := h.Encode()
	require.Equal(t, byte(1<<2), encoded[1+len(protocolID)+7])
}

func TestAllowedFastSetDeterministicAndBounded(t *testing.T) {
	ip := net.ParseIP("80.4.4.200")
	ih := core.InfoHashFixture()

	a := AllowedFastSet(ip, ih, 100, 9)
	b := AllowedFastSet(ip, ih, 100, 9)
	require.Equal(t, a, b)
	require.Len(t, a, 9)

	seen := make(map[int]bool)
	for _, idx := range a {
		require.False(t, seen[idx], "duplicate index %d", idx)
		require.True(t, idx >= 0 && idx < 100)
		seen[idx] = true
	}
}

func TestAllowedFastSetDiffersByIP(t *testing.T) {
	ih := core.InfoHashFixture()
	a := AllowedFastSet(net.ParseIP("1.2.3.4"), ih, 1000, 9)
	b := AllowedFastSet(net.ParseIP("5.6.7.8"), ih, 1000, 9)
	require.NotEqual(t, a, b)
}
