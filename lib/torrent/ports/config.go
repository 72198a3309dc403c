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
package ports

import (
	"time"

	"github.com/kraken-torrent/peercore/utils/bandwidth"
)

// Settings is every tunable the tick loop and dispatcher read at runtime:
// tick cadence, have-suppression, peer exchange, reciprocity review cadence,
// webseed attachment, and the max_pending_requests formula's inputs. One
// yaml-tagged Config struct per subsystem, with the subsystem-specific
// Configs (picker, connmgr) nested the same way.
type Settings struct {
	// TickInterval is the cadence tick() is invoked at. Defaults to 50ms.
	TickInterval time.Duration `yaml:"tick_interval"`

	// MaxConnections bounds how many peers a torrent will keep open at once.
	MaxConnections int `yaml:"max_connections"`

	// HaveSuppressionEnabled, when true, skips emitting a Have to a peer that
	// already reports having that piece.
	HaveSuppressionEnabled bool `yaml:"have_suppression_enabled"`

	// EnablePeerExchange gates whether inbound PeerExchange messages are
	// honored; always disabled for private torrents regardless of this
	// setting.
	EnablePeerExchange bool `yaml:"enable_peer_exchange"`

	// MinTimeBetweenReviews bounds how often ReciprocityController.Review is
	// invoked
	MinTimeBetweenReviews time.Duration `yaml:"min_time_between_reviews"`

	// PercentOfMaxRateToSkipReview is accepted from configuration but not
	// read by the tick loop, which gates Review only on
	// MinTimeBetweenReviews.
	PercentOfMaxRateToSkipReview float64 `yaml:"percent_of_max_rate_to_skip_review"`

	// AddWebseedsSpeedLimit is the download-speed threshold, in KB/s, below
	// which webseeds are attached; zero disables speed-gating entirely and
	// always attaches.
	AddWebseedsSpeedLimit float64 `yaml:"add_webseeds_speed_limit"`

	// BonusPerKBPS is the divisor applied to download_kbps when computing a
	// peer's max_pending_requests. Units are pieces-per-(KB/s) of sustained
	// download rate.
	BonusPerKBPS float64 `yaml:"bonus_per_kbps"`

	// NormalMaxPendingRequests is the "normal" term in the max_pending_requests
	// clamp formula.
	NormalMaxPendingRequests int `yaml:"normal_max_pending_requests"`

	// FastAllowedSetSize is the number of pieces computed by the BEP 6
	// allowed-fast algorithm during handshake.
	FastAllowedSetSize int `yaml:"fast_allowed_set_size"`

	// Private marks the torrent as private, disabling PeX handling
	// regardless of EnablePeerExchange. Nothing else in this core reads it.
	Private bool `yaml:"private"`

	// Bandwidth configures the torrent's aggregate egress/ingress limiter,
	// rebalanced across connected sessions by the tick loop's ~1s
	// pre-logic phase. Disabled (the zero value) imposes no throttling.
	Bandwidth bandwidth.Config `yaml:"bandwidth"`
}

// ApplyDefaults fills in the zero-valued fields of s with this core's
// defaults.
func (s Settings) ApplyDefaults() Settings {
	if s.TickInterval == 0 {
		s.TickInterval = 50 * time.Millisecond
	}
	if s.MaxConnections == 0 {
		s.MaxConnections = 50
	}
	if s.MinTimeBetweenReviews == 0 {
		s.MinTimeBetweenReviews = 10 * time.Second
	}
	if s.BonusPerKBPS == 0 {
		s.BonusPerKBPS = 1
	}
	if s.NormalMaxPendingRequests == 0 {
		s.NormalMaxPendingRequests = 2
	}
	if s.FastAllowedSetSize == 0 {
		s.FastAllowedSetSize = 10
	}
	return s
}

// Timing constants, fixed rather than configurable per torrent.
const (
	// KeepAliveInterval is how long a session may go without sending before
	// the tick loop emits a KeepAlive.
	KeepAliveInterval = 90 * time.Second

	// RequestStallTimeout is how long a session may go without receiving,
	// while we have outstanding requests to it, before it is closed.
	RequestStallTimeout = 50 * time.Second

	// InactivityTimeout is how long a session may go without receiving
	// anything before it is closed outright.
	InactivityTimeout = 180 * time.Second

	// InactivePeerPollInterval is how often the tick loop advances
	// inactive-peer eviction while Downloading.
	InactivePeerPollInterval = 5 * time.Second

	// MonitorRefreshInterval is how often the tick loop refreshes rate
	// monitors and limiters.
	MonitorRefreshInterval = 1 * time.Second

	// WebseedAttachDelay is how long a torrent must be Downloading before
	// webseeds are considered for attachment.
	WebseedAttachDelay = 60 * time.Second

	// MinRequestLength and MaxRequestLength bound the length of every
	// Request, the final piece of a torrent included.
	MinRequestLength = 1
	MaxRequestLength = 128 * 1024
)
