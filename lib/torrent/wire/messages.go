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
	"encoding/binary"
	"fmt"
)

// ChokeMsg signals that the sender will no longer serve piece data.
type ChokeMsg struct{}

// ID implements Message.
func (ChokeMsg) ID() ID { return Choke }

func (ChokeMsg) payload() []byte { return nil }

// UnchokeMsg signals that the sender will serve piece data again.
type UnchokeMsg struct{}

// ID implements Message.
func (UnchokeMsg) ID() ID { return Unchoke }

func (UnchokeMsg) payload() []byte { return nil }

// InterestedMsg declares that the sender wants pieces the recipient has.
type InterestedMsg struct{}

// ID implements Message.
func (InterestedMsg) ID() ID { return Interested }

func (InterestedMsg) payload() []byte { return nil }

// NotInterestedMsg withdraws a prior InterestedMsg.
type NotInterestedMsg struct{}

// ID implements Message.
func (NotInterestedMsg) ID() ID { return NotInterested }

func (NotInterestedMsg) payload() []byte { return nil }

// HaveMsg announces that the sender now possesses piece Index.
type HaveMsg struct {
	Index int
}

// ID implements Message.
func (HaveMsg) ID() ID { return Have }

func (m HaveMsg) payload() []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(m.Index))
	return b
}

func decodeHave(payload []byte) (Message, error) {
	if len(payload) != 4 {
		return nil, fmt.Errorf("wire: malformed Have: want 4 bytes, got %d", len(payload))
	}
	return HaveMsg{Index: int(binary.BigEndian.Uint32(payload))}, nil
}

// BitfieldMsg carries the sender's complete piece bitfield, high bit of the
// first byte representing piece 0.
type BitfieldMsg struct {
	Raw []byte
}

// ID implements Message.
func (BitfieldMsg) ID() ID { return BitfieldID }

func (m BitfieldMsg) payload() []byte { return m.Raw }

// RequestMsg asks the recipient to send a block of piece data.
type RequestMsg struct {
	Index, Begin, Length int
}

// ID implements Message.
func (RequestMsg) ID() ID { return Request }

func (m RequestMsg) payload() []byte { return encodeRequestLike(m.Index, m.Begin, m.Length) }

func encodeRequestLike(index, begin, length int) []byte {
	b := make([]byte, 12)
	binary.BigEndian.PutUint32(b[0:4], uint32(index))
	binary.BigEndian.PutUint32(b[4:8], uint32(begin))
	binary.BigEndian.PutUint32(b[8:12], uint32(length))
	return b
}

// PieceMsg carries a block of piece data requested via RequestMsg.
type PieceMsg struct {
	Index, Begin int
	Data         []byte
}

// ID implements Message.
func (PieceMsg) ID() ID { return PieceID }

func (m PieceMsg) payload() []byte {
	b := make([]byte, 8+len(m.Data))
	binary.BigEndian.PutUint32(b[0:4], uint32(m.Index))
	binary.BigEndian.PutUint32(b[4:8], uint32(m.Begin))
	copy(b[8:], m.Data)
	return b
}

func decodePiece(payload []byte) (Message, error) {
	if len(payload) < 8 {
		return nil, fmt.Errorf("wire: malformed Piece: want at least 8 bytes, got %d", len(payload))
	}
	return PieceMsg{
		Index: int(binary.BigEndian.Uint32(payload[0:4])),
		Begin: int(binary.BigEndian.Uint32(payload[4:8])),
		Data:  append([]byte(nil), payload[8:]...),
	}, nil
}

// CancelMsg withdraws a previously sent RequestMsg.
type CancelMsg struct {
	Index, Begin, Length int
}

// ID implements Message.
func (CancelMsg) ID() ID { return Cancel }

func (m CancelMsg) payload() []byte { return encodeRequestLike(m.Index, m.Begin, m.Length) }

// PortMsg announces the sender's DHT listen port (BEP 5).
type PortMsg struct {
	Port int
}

// ID implements Message.
func (PortMsg) ID() ID { return Port }

func (m PortMsg) payload() []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, uint16(m.Port))
	return b
}

func decodePort(payload []byte) (Message, error) {
	if len(payload) != 2 {
		return nil, fmt.Errorf("wire: malformed Port: want 2 bytes, got %d", len(payload))
	}
	return PortMsg{Port: int(binary.BigEndian.Uint16(payload))}, nil
}

// SuggestPieceMsg suggests a piece the recipient might want to request next
// (BEP 6).
type SuggestPieceMsg struct {
	Index int
}

// ID implements Message.
func (SuggestPieceMsg) ID() ID { return SuggestPieceID }

func (m SuggestPieceMsg) payload() []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(m.Index))
	return b
}

func decodeSuggestPiece(payload []byte) (Message, error) {
	if len(payload) != 4 {
		return nil, fmt.Errorf("wire: malformed SuggestPiece: want 4 bytes, got %d", len(payload))
	}
	return SuggestPieceMsg{Index: int(binary.BigEndian.Uint32(payload))}, nil
}

// HaveAllMsg declares that the sender has every piece (BEP 6), replacing a
// full BitfieldMsg when the bitfield is all-true.
type HaveAllMsg struct{}

// ID implements Message.
func (HaveAllMsg) ID() ID { return HaveAllID }

func (HaveAllMsg) payload() []byte { return nil }

// HaveNoneMsg declares that the sender has no pieces (BEP 6), replacing a
// full BitfieldMsg when the bitfield is all-false.
type HaveNoneMsg struct{}

// ID implements Message.
func (HaveNoneMsg) ID() ID { return HaveNoneID }

func (HaveNoneMsg) payload() []byte { return nil }

// RejectRequestMsg rejects an outstanding RequestMsg (BEP 6).
type RejectRequestMsg struct {
	Index, Begin, Length int
}

// ID implements Message.
func (RejectRequestMsg) ID() ID { return RejectRequestID }

func (m RejectRequestMsg) payload() []byte { return encodeRequestLike(m.Index, m.Begin, m.Length) }

// AllowedFastMsg grants the recipient permission to request Index while
// choked (BEP 6).
type AllowedFastMsg struct {
	Index int
}

// ID implements Message.
func (AllowedFastMsg) ID() ID { return AllowedFastID }

func (m AllowedFastMsg) payload() []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(m.Index))
	return b
}

func decodeAllowedFast(payload []byte) (Message, error) {
	if len(payload) != 4 {
		return nil, fmt.Errorf("wire: malformed AllowedFast: want 4 bytes, got %d", len(payload))
	}
	return AllowedFastMsg{Index: int(binary.BigEndian.Uint32(payload))}, nil
}
