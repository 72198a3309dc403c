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
	"crypto/sha1"
	"encoding/binary"
	"net"

	"github.com/kraken-torrent/peercore/core"
)

// AllowedFastSet computes the BEP 6 allowed-fast set for a peer at ip on a
// torrent with the given info hash and piece count: mask ip to its /24,
// concatenate with the info hash, then repeatedly SHA-1 the running digest,
// taking each result modulo numPieces as a candidate index until size
// distinct indices have been collected (or every piece has been tried).
func AllowedFastSet(ip net.IP, infoHash core.InfoHash, numPieces, size int) []int {
	if numPieces <= 0 || size <= 0 {
		return nil
	}

	ip4 := ip.To4()
	if ip4 == nil {
		ip4 = make(net.IP, 4)
	}
	masked := make([]byte, 4)
	copy(masked, ip4)
	masked[3] = 0

	seed := append(append([]byte{}, masked...), infoHash.Bytes()...)
	digest := sha1.Sum(seed)

	seen := make(map[int]struct{}, size)
	var result []int
	for len(result) < size && len(seen) < numPieces {
		digest = sha1.Sum(digest[:])
		idx := int(binary.BigEndian.Uint32(digest[0:4]) % uint32(numPieces))
		if _, ok := seen[idx]; ok {
			continue
		}
		seen[idx] = struct{}{}
		result = append(result, idx)
	}
	return result
}
