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

// Package networkevent publishes the observer-list events the engine emits
// during normal operation: connections forming and dropping, peers
// discovered, and routing table growth.
package networkevent

import (
	"encoding/json"
	"time"

	"github.com/kraken-torrent/peercore/core"
	"github.com/kraken-torrent/peercore/utils/log"
)

// Name defines event names.
type Name string

// Possible event names.
const (
	PeerConnected    Name = "peer_connected"
	PeerDisconnected Name = "peer_disconnected"
	PeersFound       Name = "peers_found"
	NodeAdded        Name = "node_added"
)

// Direction describes which side initiated a peer connection.
type Direction string

// Possible directions.
const (
	Outgoing Direction = "outgoing"
	Incoming Direction = "incoming"
)

// Event consolidates all possible event fields.
type Event struct {
	Name    Name      `json:"event"`
	Torrent string    `json:"torrent,omitempty"`
	Self    string    `json:"self,omitempty"`
	Time    time.Time `json:"ts"`

	// Optional fields.
	Peer         string    `json:"peer,omitempty"`
	Direction    Direction `json:"direction,omitempty"`
	CountAdded   int       `json:"count_added,omitempty"`
	CountOffered int       `json:"count_offered,omitempty"`
	Source       string    `json:"source,omitempty"`
	Node         string    `json:"node,omitempty"`
}

func baseEvent(name Name, h core.InfoHash, self core.PeerID) *Event {
	return &Event{
		Name:    name,
		Torrent: h.String(),
		Self:    self.String(),
		Time:    time.Now(),
	}
}

// JSON converts event into a json string primarily for logging purposes.
func (e *Event) JSON() string {
	b, err := json.Marshal(e)
	if err != nil {
		log.Errorf("json marshal error %s", err)
		return ""
	}
	return string(b)
}

// PeerConnectedEvent returns an event for a newly established peer connection.
func PeerConnectedEvent(h core.InfoHash, self core.PeerID, peer core.PeerID, dir Direction) *Event {
	e := baseEvent(PeerConnected, h, self)
	e.Peer = peer.String()
	e.Direction = dir
	return e
}

// PeerDisconnectedEvent returns an event for a torn down peer connection.
func PeerDisconnectedEvent(h core.InfoHash, self core.PeerID, peer core.PeerID) *Event {
	e := baseEvent(PeerDisconnected, h, self)
	e.Peer = peer.String()
	return e
}

// PeersFoundEvent returns an event recording the result of merging a batch of
// candidate peers (from a tracker announce or a PeX message) into the
// torrent's peer pool.
func PeersFoundEvent(h core.InfoHash, self core.PeerID, countAdded, countOffered int, source string) *Event {
	e := baseEvent(PeersFound, h, self)
	e.CountAdded = countAdded
	e.CountOffered = countOffered
	e.Source = source
	return e
}

// NodeAddedEvent returns an event for a node inserted into a DHT routing table.
func NodeAddedEvent(node core.NodeID) *Event {
	return &Event{
		Name: NodeAdded,
		Node: node.String(),
		Time: time.Now(),
	}
}
