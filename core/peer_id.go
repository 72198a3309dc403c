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
package core

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/rand"
)

// ErrInvalidPeerIDLength returns when a string peer id does not decode into 20 bytes.
var ErrInvalidPeerIDLength = errors.New("peer id has invalid length")

// PeerID represents a fixed size peer id.
type PeerID [20]byte

// NewPeerID parses a PeerID from the given string. Must be in hexadecimal notation,
// encoding exactly 20 bytes.
func NewPeerID(s string) (PeerID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return PeerID{}, err
	}
	if len(b) != 20 {
		return PeerID{}, ErrInvalidPeerIDLength
	}
	var p PeerID
	copy(p[:], b)
	return p, nil
}

// String encodes the PeerID in hexadecimal notation.
func (p PeerID) String() string {
	return hex.EncodeToString(p[:])
}

// LessThan returns whether p is less than o.
func (p PeerID) LessThan(o PeerID) bool {
	return bytes.Compare(p[:], o[:]) == -1
}

// RandomPeerID returns a randomly generated PeerID.
func RandomPeerID() (PeerID, error) {
	var p PeerID
	_, err := rand.Read(p[:])
	return p, err
}

// HashedPeerID returns a PeerID derived from the hash of s.
func HashedPeerID(s string) (PeerID, error) {
	var p PeerID
	if s == "" {
		return p, errors.New("cannot generate peer id from empty string")
	}
	h := sha1.New()
	io.WriteString(h, s)
	copy(p[:], h.Sum(nil))
	return p, nil
}

// ErrInvalidClientTag returns when a client tag passed to NewClientPeerID
// isn't exactly two characters.
var ErrInvalidClientTag = errors.New("client tag must be exactly 2 characters")

// NewClientPeerID builds a peer id in the Azureus-style convention most
// BitTorrent clients use (BEP 20): a literal '-', a 2-character client tag,
// a 4-digit zero-padded version, a trailing '-', followed by 12 random
// bytes. tag identifies the client implementation (e.g. "KT" for this
// engine); version is a 4-digit client version number such as 1000 for
// v1.0.0.0.
func NewClientPeerID(tag string, version int) (PeerID, error) {
	if len(tag) != 2 {
		return PeerID{}, ErrInvalidClientTag
	}
	var p PeerID
	prefix := fmt.Sprintf("-%s%04d-", tag, version%10000)
	n := copy(p[:], prefix)
	if _, err := rand.Read(p[n:]); err != nil {
		return PeerID{}, err
	}
	return p, nil
}
