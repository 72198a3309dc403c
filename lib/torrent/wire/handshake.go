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
	"errors"
	"fmt"
	"io"

	"github.com/kraken-torrent/peercore/core"
)

// protocolID is the fixed protocol identifier string, per BEP 3.
const protocolID = "BitTorrent protocol"

// HandshakeLen is the length in bytes of the fixed handshake form.
const HandshakeLen = 1 + len(protocolID) + 8 + 20 + 20

// Reserved bit positions within the handshake's 8 reserved bytes.
const (
	reservedByteDHT      = 7 // bit 0 (low bit) of byte 7: DHT port (BEP 5)
	reservedBitDHT       = 0
	reservedByteFast     = 7 // bit 2 of byte 7: fast-peer (BEP 6)
	reservedBitFast      = 2
	reservedByteExtended = 5 // bit 0 of byte 5: extended messaging (BEP 10)
	reservedBitExtended  = 0
)

// ErrBadProtocolID is returned when a handshake's protocol identifier does
// not match the fixed BEP 3 string.
var ErrBadProtocolID = errors.New("wire: handshake protocol identifier mismatch")

// Handshake is the fixed 68-byte form that begins a peer connection.
type Handshake struct {
	InfoHash core.InfoHash
	PeerID   core.PeerID

	SupportsDHT      bool
	SupportsFast     bool
	SupportsExtended bool
}

// Encode renders h as the 68-byte wire form.
func (h Handshake) Encode() []byte {
	b := make([]byte, 0, HandshakeLen)
	b = append(b, byte(len(protocolID)))
	b = append(b, protocolID...)

	reserved := make([]byte, 8)
	if h.SupportsDHT {
		reserved[reservedByteDHT] |= 1 << reservedBitDHT
	}
	if h.SupportsFast {
		reserved[reservedByteFast] |= 1 << reservedBitFast
	}
	if h.SupportsExtended {
		reserved[reservedByteExtended] |= 1 << reservedBitExtended
	}
	b = append(b, reserved...)
	b = append(b, h.InfoHash.Bytes()...)
	b = append(b, h.PeerID[:]...)
	return b
}

// DecodeHandshake reads and parses a 68-byte handshake from r.
func DecodeHandshake(r io.Reader) (Handshake, error) {
	buf := make([]byte, HandshakeLen)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Handshake{}, err
	}
	return decodeHandshake(buf)
}

func decodeHandshake(buf []byte) (Handshake, error) {
	if len(buf) != HandshakeLen {
		return Handshake{}, fmt.Errorf("wire: malformed handshake: want %d bytes, got %d", HandshakeLen, len(buf))
	}
	plen := int(buf[0])
	if plen != len(protocolID) || string(buf[1:1+plen]) != protocolID {
		return Handshake{}, ErrBadProtocolID
	}
	reserved := buf[1+plen : 1+plen+8]

	var h Handshake
	h.SupportsDHT = reserved[reservedByteDHT]&(1<<reservedBitDHT) != 0
	h.SupportsFast = reserved[reservedByteFast]&(1<<reservedBitFast) != 0
	h.SupportsExtended = reserved[reservedByteExtended]&(1<<reservedBitExtended) != 0

	rest := buf[1+plen+8:]
	copy(h.InfoHash[:], rest[0:20])
	copy(h.PeerID[:], rest[20:40])
	return h, nil
}
