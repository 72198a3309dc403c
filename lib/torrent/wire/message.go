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

// Package wire implements the BitTorrent peer wire protocol (BEP 3) message
// vocabulary, plus the BEP 6 fast-peer, BEP 10 extended messaging, BEP 11 PeX
// and BEP 9 metadata extensions layered on top of it.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ID identifies a message's wire type.
type ID uint8

// Message ids, per BEP 3 and the BEP 6 fast-peer extension. KeepAlive has no
// wire id of its own -- it is the zero-length message -- so it is given the
// sentinel value 0xFF, outside the range of assigned message ids.
const (
	Choke         ID = 0
	Unchoke       ID = 1
	Interested    ID = 2
	NotInterested ID = 3
	Have          ID = 4
	BitfieldID    ID = 5
	Request       ID = 6
	PieceID       ID = 7
	Cancel        ID = 8
	Port          ID = 9

	SuggestPieceID  ID = 13
	HaveAllID       ID = 14
	HaveNoneID      ID = 15
	RejectRequestID ID = 16
	AllowedFastID   ID = 17

	ExtendedID ID = 20

	keepAliveID ID = 0xFF
)

func (id ID) String() string {
	switch id {
	case Choke:
		return "Choke"
	case Unchoke:
		return "Unchoke"
	case Interested:
		return "Interested"
	case NotInterested:
		return "NotInterested"
	case Have:
		return "Have"
	case BitfieldID:
		return "Bitfield"
	case Request:
		return "Request"
	case PieceID:
		return "Piece"
	case Cancel:
		return "Cancel"
	case Port:
		return "Port"
	case SuggestPieceID:
		return "SuggestPiece"
	case HaveAllID:
		return "HaveAll"
	case HaveNoneID:
		return "HaveNone"
	case RejectRequestID:
		return "RejectRequest"
	case AllowedFastID:
		return "AllowedFast"
	case ExtendedID:
		return "Extended"
	case keepAliveID:
		return "KeepAlive"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(id))
	}
}

// Message is a single decoded peer protocol message.
type Message interface {
	ID() ID

	// payload encodes the message body, excluding the length prefix and id
	// byte added by WriteMessage.
	payload() []byte
}

// ErrUnknownMessage is returned by ReadMessage when the wire id does not
// match any known message type.
var ErrUnknownMessage = errors.New("wire: unknown message id")

// MaxRequestLength is the largest request/piece payload this protocol
// permits. The final piece of a torrent may be shorter than this, but a
// request is never longer.
const MaxRequestLength = 128 * 1024

// MinRequestLength is the smallest permitted request/piece payload.
const MinRequestLength = 1

// KeepAlive is the zero-length message sent to hold a connection open.
type KeepAlive struct{}

// ID implements Message.
func (KeepAlive) ID() ID { return keepAliveID }

func (KeepAlive) payload() []byte { return nil }

// WriteMessage frames and writes m to w: a 4-byte big-endian length prefix
// (of the id byte plus payload, zero for KeepAlive), the id byte, then the
// payload.
func WriteMessage(w io.Writer, m Message) error {
	if m.ID() == keepAliveID {
		return binary.Write(w, binary.BigEndian, uint32(0))
	}
	p := m.payload()
	if err := binary.Write(w, binary.BigEndian, uint32(len(p)+1)); err != nil {
		return err
	}
	if _, err := w.Write([]byte{byte(m.ID())}); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	_, err := w.Write(p)
	return err
}

// ExtensionResolver maps an extended-message id, as assigned by the local
// peer's own handshake and used by the remote peer when addressing us, to
// the extension name it identifies (e.g. "ut_pex"). Sessions populate this
// from the ExtendedHandshake they sent.
type ExtensionResolver func(id uint8) (name string, ok bool)

// ReadMessage reads one length-prefixed message from r. resolver is
// consulted to interpret any Extended message's sub-id; it may be nil, in
// which case Extended messages other than the extended handshake (sub-id 0)
// decode to an UnknownExtendedMsg.
func ReadMessage(r io.Reader, resolver ExtensionResolver) (Message, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, err
	}
	if length == 0 {
		return KeepAlive{}, nil
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return decodeByID(ID(buf[0]), buf[1:], resolver)
}

func decodeByID(id ID, payload []byte, resolver ExtensionResolver) (Message, error) {
	switch id {
	case Choke:
		return ChokeMsg{}, nil
	case Unchoke:
		return UnchokeMsg{}, nil
	case Interested:
		return InterestedMsg{}, nil
	case NotInterested:
		return NotInterestedMsg{}, nil
	case Have:
		return decodeHave(payload)
	case BitfieldID:
		return BitfieldMsg{Raw: append([]byte(nil), payload...)}, nil
	case Request:
		return decodeRequestLike(payload, RequestMsg{})
	case PieceID:
		return decodePiece(payload)
	case Cancel:
		return decodeRequestLike(payload, CancelMsg{})
	case Port:
		return decodePort(payload)
	case SuggestPieceID:
		return decodeSuggestPiece(payload)
	case HaveAllID:
		return HaveAllMsg{}, nil
	case HaveNoneID:
		return HaveNoneMsg{}, nil
	case RejectRequestID:
		r, err := decodeRequestLike(payload, RejectRequestMsg{})
		return r, err
	case AllowedFastID:
		return decodeAllowedFast(payload)
	case ExtendedID:
		return decodeExtended(payload, resolver)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownMessage, id)
	}
}

func decodeRequestLike(payload []byte, shape Message) (Message, error) {
	if len(payload) != 12 {
		return nil, fmt.Errorf("wire: malformed %s: want 12 bytes, got %d", shape.ID(), len(payload))
	}
	index := int(binary.BigEndian.Uint32(payload[0:4]))
	begin := int(binary.BigEndian.Uint32(payload[4:8]))
	length := int(binary.BigEndian.Uint32(payload[8:12]))
	switch shape.(type) {
	case RequestMsg:
		return RequestMsg{Index: index, Begin: begin, Length: length}, nil
	case CancelMsg:
		return CancelMsg{Index: index, Begin: begin, Length: length}, nil
	case RejectRequestMsg:
		return RejectRequestMsg{Index: index, Begin: begin, Length: length}, nil
	default:
		return nil, fmt.Errorf("wire: unreachable request-like shape %T", shape)
	}
}
