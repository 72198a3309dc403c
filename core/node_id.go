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
	"crypto/rand"
	"encoding/hex"
	"errors"
)

// ErrInvalidNodeIDLength returns when a string node id does not decode into 20 bytes.
var ErrInvalidNodeIDLength = errors.New("node id has invalid length")

// NodeID represents a fixed size DHT node identifier, drawn from the same
// 160-bit space as info hashes.
type NodeID [20]byte

// NewNodeID parses a NodeID from the given string. Must be in hexadecimal
// notation, encoding exactly 20 bytes.
func NewNodeID(s string) (NodeID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return NodeID{}, err
	}
	if len(b) != 20 {
		return NodeID{}, ErrInvalidNodeIDLength
	}
	var n NodeID
	copy(n[:], b)
	return n, nil
}

// NewNodeIDFromBytes parses a NodeID from the given 20 byte slice.
func NewNodeIDFromBytes(b []byte) (NodeID, error) {
	if len(b) != 20 {
		return NodeID{}, ErrInvalidNodeIDLength
	}
	var n NodeID
	copy(n[:], b)
	return n, nil
}

// RandomNodeID returns a randomly generated NodeID, suitable for seeding a
// routing table during DHT bootstrap.
func RandomNodeID() (NodeID, error) {
	var n NodeID
	_, err := rand.Read(n[:])
	return n, err
}

// String encodes the NodeID in hexadecimal notation.
func (n NodeID) String() string {
	return hex.EncodeToString(n[:])
}

// Bytes returns the raw bytes of n.
func (n NodeID) Bytes() []byte {
	return n[:]
}

// LessThan returns whether n is less than o, treating both as big-endian
// unsigned integers.
func (n NodeID) LessThan(o NodeID) bool {
	return bytes.Compare(n[:], o[:]) == -1
}

// Equal returns whether n and o identify the same node.
func (n NodeID) Equal(o NodeID) bool {
	return n == o
}

// Distance computes the XOR metric distance between n and o, as defined by
// Kademlia.
func (n NodeID) Distance(o NodeID) Distance {
	var d Distance
	for i := range n {
		d[i] = n[i] ^ o[i]
	}
	return d
}

// Distance represents the XOR distance between two NodeIDs. Smaller values,
// compared as big-endian unsigned integers, are closer.
type Distance [20]byte

// String encodes the Distance in hexadecimal notation.
func (d Distance) String() string {
	return hex.EncodeToString(d[:])
}

// Cmp compares d against o, returning -1, 0, or 1.
func (d Distance) Cmp(o Distance) int {
	return bytes.Compare(d[:], o[:])
}

// LessThan returns whether d is less than (closer than) o.
func (d Distance) LessThan(o Distance) bool {
	return d.Cmp(o) == -1
}

// PrefixLen returns the length of the common prefix, in bits, shared by the
// two NodeIDs that produced this distance -- i.e. the number of leading zero
// bits in d. A PrefixLen of 160 means the distance is zero (identical ids).
func (d Distance) PrefixLen() int {
	for i, b := range d {
		if b == 0 {
			continue
		}
		for bit := 0; bit < 8; bit++ {
			if b&(0x80>>uint(bit)) != 0 {
				return i*8 + bit
			}
		}
	}
	return len(d) * 8
}
