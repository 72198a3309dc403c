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
	"errors"
	"fmt"
	"net"
)

// ExtendedHandshakeID is the fixed sub-id of an ExtendedHandshakeMsg, per
// BEP 10; every other extension sub-id is negotiated via its "m" dict.
const ExtendedHandshakeID uint8 = 0

// Well-known extension names, per BEP 10/11/9.
const (
	ExtensionPeerExchange = "ut_pex"
	ExtensionMetadata     = "ut_metadata"
	ExtensionChat         = "LT_chat"
)

// ExtendedIDs maps an extension name to the sub-id a peer uses to identify
// it, as advertised in that peer's own ExtendedHandshakeMsg.M.
type ExtendedIDs map[string]uint8

// DefaultExtendedIDs is the sub-id assignment a new session advertises in
// its own handshake.
func DefaultExtendedIDs() ExtendedIDs {
	return ExtendedIDs{
		ExtensionPeerExchange: 1,
		ExtensionMetadata:     2,
		ExtensionChat:         3,
	}
}

// ExtendedHandshakeMsg negotiates extension support and parameters, per
// BEP 10.
type ExtendedHandshakeMsg struct {
	M           ExtendedIDs
	MaxRequests int // "reqq": the sender's advertised max outstanding requests.
	Port        int // "p": the sender's listen port, if non-zero.
}

// ID implements Message.
func (ExtendedHandshakeMsg) ID() ID { return ExtendedID }

func (m ExtendedHandshakeMsg) payload() []byte {
	mdict := bDict{}
	for name, id := range m.M {
		mdict[name] = int64(id)
	}
	d := bDict{"m": mdict}
	if m.MaxRequests > 0 {
		d["reqq"] = int64(m.MaxRequests)
	}
	if m.Port > 0 {
		d["p"] = int64(m.Port)
	}
	return append([]byte{ExtendedHandshakeID}, bencodeEncode(d)...)
}

func decodeExtendedHandshake(body []byte) (ExtendedHandshakeMsg, error) {
	v, _, err := bencodeDecode(body)
	if err != nil {
		return ExtendedHandshakeMsg{}, fmt.Errorf("wire: malformed ExtendedHandshake: %s", err)
	}
	d, ok := v.(bDict)
	if !ok {
		return ExtendedHandshakeMsg{}, errors.New("wire: malformed ExtendedHandshake: not a dict")
	}
	msg := ExtendedHandshakeMsg{M: ExtendedIDs{}}
	if mdict, ok := dictDict(d, "m"); ok {
		for name, v := range mdict {
			if n, ok := v.(int64); ok {
				msg.M[name] = uint8(n)
			}
		}
	}
	if reqq, ok := dictInt(d, "reqq"); ok {
		msg.MaxRequests = int(reqq)
	}
	if p, ok := dictInt(d, "p"); ok {
		msg.Port = int(p)
	}
	return msg, nil
}

// PeerAddr is an IPv4 endpoint in BEP 11's compact peer format.
type PeerAddr struct {
	IP   string
	Port int
}

func encodeCompactPeers(peers []PeerAddr) []byte {
	b := make([]byte, 0, 6*len(peers))
	for _, p := range peers {
		ip := net.ParseIP(p.IP).To4()
		if ip == nil {
			ip = make(net.IP, 4)
		}
		b = append(b, ip...)
		var port [2]byte
		binary.BigEndian.PutUint16(port[:], uint16(p.Port))
		b = append(b, port[:]...)
	}
	return b
}

func decodeCompactPeers(raw []byte) []PeerAddr {
	var peers []PeerAddr
	for i := 0; i+6 <= len(raw); i += 6 {
		ip := net.IP(raw[i : i+4]).String()
		port := int(binary.BigEndian.Uint16(raw[i+4 : i+6]))
		peers = append(peers, PeerAddr{IP: ip, Port: port})
	}
	return peers
}

// PeerExchangeMsg carries a batch of added/dropped peers, per BEP 11.
type PeerExchangeMsg struct {
	SubID      uint8
	Added      []PeerAddr
	AddedFlags []byte
	Dropped    []PeerAddr
}

// ID implements Message.
func (PeerExchangeMsg) ID() ID { return ExtendedID }

func (m PeerExchangeMsg) payload() []byte {
	d := bDict{}
	if len(m.Added) > 0 {
		d["added"] = encodeCompactPeers(m.Added)
	}
	if len(m.AddedFlags) > 0 {
		d["added.f"] = append([]byte(nil), m.AddedFlags...)
	}
	if len(m.Dropped) > 0 {
		d["dropped"] = encodeCompactPeers(m.Dropped)
	}
	return append([]byte{m.SubID}, bencodeEncode(d)...)
}

func decodePex(body []byte) (PeerExchangeMsg, error) {
	v, _, err := bencodeDecode(body)
	if err != nil {
		return PeerExchangeMsg{}, fmt.Errorf("wire: malformed PeerExchange: %s", err)
	}
	d, ok := v.(bDict)
	if !ok {
		return PeerExchangeMsg{}, errors.New("wire: malformed PeerExchange: not a dict")
	}
	var m PeerExchangeMsg
	if raw, ok := dictBytes(d, "added"); ok {
		m.Added = decodeCompactPeers(raw)
	}
	if flags, ok := dictBytes(d, "added.f"); ok {
		m.AddedFlags = flags
	}
	if raw, ok := dictBytes(d, "dropped"); ok {
		m.Dropped = decodeCompactPeers(raw)
	}
	return m, nil
}

// Metadata sub-message kinds, per BEP 9.
const (
	MetadataRequest = 0
	MetadataData    = 1
	MetadataReject  = 2
)

// MetadataPieceSize is the fixed block size metadata is transferred in, per
// BEP 9; the final piece may be shorter.
const MetadataPieceSize = 16 * 1024

// LTMetadataMsg is a BEP 9 metadata extension sub-message: a Request for a
// metadata piece, a Data reply carrying one, or a Reject.
type LTMetadataMsg struct {
	SubID     uint8
	MsgType   int
	Piece     int
	TotalSize int
	Data      []byte
}

// ID implements Message.
func (LTMetadataMsg) ID() ID { return ExtendedID }

func (m LTMetadataMsg) payload() []byte {
	d := bDict{"msg_type": int64(m.MsgType), "piece": int64(m.Piece)}
	if m.MsgType == MetadataData {
		d["total_size"] = int64(m.TotalSize)
	}
	body := bencodeEncode(d)
	if m.MsgType == MetadataData {
		body = append(body, m.Data...)
	}
	return append([]byte{m.SubID}, body...)
}

func decodeMetadata(body []byte) (LTMetadataMsg, error) {
	v, n, err := bencodeDecode(body)
	if err != nil {
		return LTMetadataMsg{}, fmt.Errorf("wire: malformed LTMetadata: %s", err)
	}
	d, ok := v.(bDict)
	if !ok {
		return LTMetadataMsg{}, errors.New("wire: malformed LTMetadata: not a dict")
	}
	var m LTMetadataMsg
	if t, ok := dictInt(d, "msg_type"); ok {
		m.MsgType = int(t)
	}
	if p, ok := dictInt(d, "piece"); ok {
		m.Piece = int(p)
	}
	if ts, ok := dictInt(d, "total_size"); ok {
		m.TotalSize = int(ts)
	}
	if m.MsgType == MetadataData && n < len(body) {
		m.Data = append([]byte(nil), body[n:]...)
	}
	return m, nil
}

// LTChatMsg is an informal chat extension message; the dispatcher ignores
// it at the protocol layer.
type LTChatMsg struct {
	SubID uint8
	Text  string
}

// ID implements Message.
func (LTChatMsg) ID() ID { return ExtendedID }

func (m LTChatMsg) payload() []byte {
	return append([]byte{m.SubID}, bencodeEncode(bDict{"msg": []byte(m.Text)})...)
}

func decodeChat(body []byte) (LTChatMsg, error) {
	v, _, err := bencodeDecode(body)
	if err != nil {
		return LTChatMsg{}, fmt.Errorf("wire: malformed LTChat: %s", err)
	}
	d, ok := v.(bDict)
	if !ok {
		return LTChatMsg{}, errors.New("wire: malformed LTChat: not a dict")
	}
	txt, _ := dictBytes(d, "msg")
	return LTChatMsg{Text: string(txt)}, nil
}

// UnknownExtendedMsg is an extension message whose sub-id did not resolve
// to a known extension name. The dispatcher delivers it to a registered
// local handler if one exists, otherwise drops it silently.
type UnknownExtendedMsg struct {
	SubID   uint8
	Payload []byte
}

// ID implements Message.
func (UnknownExtendedMsg) ID() ID { return ExtendedID }

func (m UnknownExtendedMsg) payload() []byte {
	return append([]byte{m.SubID}, m.Payload...)
}

func decodeExtended(payload []byte, resolver ExtensionResolver) (Message, error) {
	if len(payload) < 1 {
		return nil, errors.New("wire: malformed Extended: empty payload")
	}
	subID := payload[0]
	body := payload[1:]

	if subID == ExtendedHandshakeID {
		return decodeExtendedHandshake(body)
	}
	if resolver == nil {
		return UnknownExtendedMsg{SubID: subID, Payload: append([]byte(nil), body...)}, nil
	}
	name, ok := resolver(subID)
	if !ok {
		return UnknownExtendedMsg{SubID: subID, Payload: append([]byte(nil), body...)}, nil
	}
	switch name {
	case ExtensionPeerExchange:
		m, err := decodePex(body)
		m.SubID = subID
		return m, err
	case ExtensionMetadata:
		m, err := decodeMetadata(body)
		m.SubID = subID
		return m, err
	case ExtensionChat:
		m, err := decodeChat(body)
		m.SubID = subID
		return m, err
	default:
		return UnknownExtendedMsg{SubID: subID, Payload: append([]byte(nil), body...)}, nil
	}
}
