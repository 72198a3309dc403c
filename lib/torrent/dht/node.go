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

// Package dht implements a Kademlia-style routing table: a set of buckets
// partitioning the 160-bit id space, used by a DHT subsystem to locate peers
// by info-hash.
package dht

import (
	"time"

	"github.com/kraken-torrent/peercore/core"
)

// Endpoint is the network address a Node can be reached at.
type Endpoint struct {
	IP   string
	Port int
}

// Node is a single entry in the routing table: an id paired with the
// endpoint it was last observed at, plus liveness bookkeeping maintained by
// the DHT subsystem's ping RPCs.
type Node struct {
	ID       core.NodeID
	Endpoint Endpoint

	LastSeen       time.Time
	FailedRPCCount int
}

// MaxFailedRPCs is the number of consecutive failed RPCs after which a node
// becomes eligible for eviction in favor of a replacement.
const MaxFailedRPCs = 3

// Stale returns whether n has failed enough consecutive RPCs to be evicted
// when a replacement is available.
func (n *Node) Stale() bool {
	return n.FailedRPCCount > MaxFailedRPCs
}
