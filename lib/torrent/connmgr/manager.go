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

// Package connmgr tracks connection capacity and peer blacklisting for one
// torrent. A Manager belongs to a single TorrentContext, so it is keyed by
// peer id alone rather than by (info hash, peer id).
package connmgr

import (
	"errors"
	"time"

	"github.com/andres-erbsen/clock"
	"go.uber.org/zap"

	"github.com/kraken-torrent/peercore/core"
)

// Manager errors.
var (
	ErrAtCapacity         = errors.New("connmgr: torrent is at connection capacity")
	ErrAlreadyPending     = errors.New("connmgr: conn is already pending")
	ErrAlreadyActive      = errors.New("connmgr: conn is already active")
	ErrInvalidTransition  = errors.New("connmgr: conn must be pending to become active")
	ErrTooManyMutualConns = errors.New("connmgr: conn has too many mutual connections")
	ErrBlacklisted        = errors.New("connmgr: peer is blacklisted")
)

type status int

const (
	uninit status = iota
	pending
	active
)

type blacklistEntry struct {
	expiration time.Time
}

func (e *blacklistEntry) blacklisted(now time.Time) bool {
	return e.expiration.After(now)
}

// Manager enforces per-torrent connection-count limits and blacklisting of
// repeatedly failing peers. Not thread-safe: like the rest of this core's
// per-torrent state, a Manager is only ever touched by the single logical
// task owning its TorrentContext at a time.
type Manager struct {
	config Config
	clk    clock.Clock
	logger *zap.SugaredLogger

	conns     map[core.PeerID]status
	blacklist map[core.PeerID]*blacklistEntry
}

// New creates a Manager.
func New(config Config, clk clock.Clock, logger *zap.SugaredLogger) *Manager {
	return &Manager{
		config:    config.applyDefaults(),
		clk:       clk,
		logger:    logger,
		conns:     make(map[core.PeerID]status),
		blacklist: make(map[core.PeerID]*blacklistEntry),
	}
}

// Len returns the number of pending plus active connections.
func (m *Manager) Len() int {
	return len(m.conns)
}

// Blacklist blacklists peerID for the configured duration.
func (m *Manager) Blacklist(peerID core.PeerID) {
	if m.config.DisableBlacklist {
		return
	}
	m.blacklist[peerID] = &blacklistEntry{m.clk.Now().Add(m.config.BlacklistDuration)}
	if m.logger != nil {
		m.logger.Infow("peer blacklisted", "peer", peerID, "duration", m.config.BlacklistDuration)
	}
}

// Blacklisted reports whether peerID is currently blacklisted.
func (m *Manager) Blacklisted(peerID core.PeerID) bool {
	e, ok := m.blacklist[peerID]
	return ok && e.blacklisted(m.clk.Now())
}

// ClearBlacklist removes every blacklist entry.
func (m *Manager) ClearBlacklist() {
	m.blacklist = make(map[core.PeerID]*blacklistEntry)
}

// AddPending reserves capacity for a not-yet-handshaked connection to
// peerID, rejecting it if peerID is currently blacklisted, the torrent is
// at capacity, already has a conn for peerID, or peerID shares too many
// neighbors with existing connections.
func (m *Manager) AddPending(peerID core.PeerID, neighbors []core.PeerID) error {
	if m.Blacklisted(peerID) {
		return ErrBlacklisted
	}
	if len(m.conns) >= m.config.MaxOpenConnections {
		return ErrAtCapacity
	}
	switch m.conns[peerID] {
	case uninit:
		if m.numMutualConns(neighbors) > m.config.MaxMutualConnections {
			return ErrTooManyMutualConns
		}
		m.conns[peerID] = pending
		return nil
	case pending:
		return ErrAlreadyPending
	default:
		return ErrAlreadyActive
	}
}

// DeletePending releases a pending reservation for peerID. No-op if peerID
// has no pending connection.
func (m *Manager) DeletePending(peerID core.PeerID) {
	if m.conns[peerID] == pending {
		delete(m.conns, peerID)
	}
}

// MovePendingToActive transitions peerID's connection from pending to
// active, failing if it was not pending.
func (m *Manager) MovePendingToActive(peerID core.PeerID) error {
	if m.conns[peerID] != pending {
		return ErrInvalidTransition
	}
	m.conns[peerID] = active
	return nil
}

// DeleteActive releases peerID's active connection slot. No-op if peerID has
// no active connection.
func (m *Manager) DeleteActive(peerID core.PeerID) {
	if m.conns[peerID] == active {
		delete(m.conns, peerID)
	}
}

// Saturated reports whether every reserved slot is filled by an active
// connection.
func (m *Manager) Saturated() bool {
	if len(m.conns) != m.config.MaxOpenConnections {
		return false
	}
	for _, st := range m.conns {
		if st != active {
			return false
		}
	}
	return true
}

func (m *Manager) numMutualConns(neighbors []core.PeerID) int {
	var n int
	for _, id := range neighbors {
		if st := m.conns[id]; st == pending || st == active {
			n++
		}
	}
	return n
}
