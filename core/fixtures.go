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
	"fmt"
	"math/rand"
)

// fixtureIP returns a randomly generated loopback-range IP string, for test use only.
func fixtureIP() string {
	return fmt.Sprintf("127.0.0.%d", rand.Intn(254)+1)
}

// fixturePort returns a randomly generated ephemeral port, for test use only.
func fixturePort() int {
	return rand.Intn(65000-1024) + 1024
}

// PeerIDFixture returns a randomly generated PeerID.
func PeerIDFixture() PeerID {
	p, err := RandomPeerID()
	if err != nil {
		panic(err)
	}
	return p
}

// InfoHashFixture returns a randomly generated InfoHash.
func InfoHashFixture() InfoHash {
	return NewInfoHashFromBytes([]byte(fmt.Sprintf("%d-%d", rand.Int63(), rand.Int63())))
}

// NodeIDFixture returns a randomly generated NodeID.
func NodeIDFixture() NodeID {
	n, err := RandomNodeID()
	if err != nil {
		panic(err)
	}
	return n
}

// ClientPeerIDFixture returns a randomly generated client-style PeerID, for
// test use only.
func ClientPeerIDFixture() PeerID {
	p, err := NewClientPeerID("KT", 1000)
	if err != nil {
		panic(err)
	}
	return p
}
