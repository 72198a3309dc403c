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

// Package bandwidth provides a token-bucket egress/ingress rate limiter used
// to throttle piece transfer, built on golang.org/x/time/rate.
package bandwidth

import (
	"errors"
	"fmt"
	"time"

	"github.com/kraken-torrent/peercore/utils/memsize"

	"golang.org/x/time/rate"
)

// Config defines Limiter configuration.
type Config struct {
	EgressBitsPerSec  uint64 `yaml:"egress_bits_per_sec"`
	IngressBitsPerSec uint64 `yaml:"ingress_bits_per_sec"`

	// TokenSize defines the granularity of a token in the bucket, in bits. It
	// is used to avoid integer overflow errors that would occur if we mapped
	// each bit to a token.
	TokenSize uint64 `yaml:"token_size"`

	Enable bool `yaml:"enable"`
}

func (c Config) applyDefaults() Config {
	if c.TokenSize == 0 {
		c.TokenSize = memsize.Mbit
	}
	return c
}

// Limiter limits egress and ingress bandwidth via a token-bucket rate
// limiter. When disabled, every reservation is a noop.
type Limiter struct {
	config Config

	baseEgressTokensPerSec  int64
	baseIngressTokensPerSec int64

	egress  *rate.Limiter
	ingress *rate.Limiter
}

// NewLimiter creates a new Limiter.
func NewLimiter(config Config) (*Limiter, error) {
	config = config.applyDefaults()

	if !config.Enable {
		return &Limiter{config: config}, nil
	}
	if config.EgressBitsPerSec == 0 {
		return nil, errors.New("egress_bits_per_sec must be set when bandwidth limiting is enabled")
	}
	if config.IngressBitsPerSec == 0 {
		return nil, errors.New("ingress_bits_per_sec must be set when bandwidth limiting is enabled")
	}

	etps := int64(config.EgressBitsPerSec / config.TokenSize)
	itps := int64(config.IngressBitsPerSec / config.TokenSize)

	return &Limiter{
		config:                  config,
		baseEgressTokensPerSec:  etps,
		baseIngressTokensPerSec: itps,
		egress:                  rate.NewLimiter(rate.Limit(etps), int(etps)),
		ingress:                 rate.NewLimiter(rate.Limit(itps), int(itps)),
	}, nil
}

func (l *Limiter) reserve(rl *rate.Limiter, nbytes int64) error {
	if rl == nil {
		return nil
	}
	tokens := int(uint64(nbytes*8) / l.config.TokenSize)
	if tokens == 0 {
		tokens = 1
	}
	r := rl.ReserveN(time.Now(), tokens)
	if !r.OK() {
		return fmt.Errorf(
			"cannot reserve %s of bandwidth, max is %s",
			memsize.Format(uint64(nbytes)),
			memsize.BitFormat(l.config.TokenSize*uint64(rl.Burst())))
	}
	time.Sleep(r.Delay())
	return nil
}

// ReserveEgress blocks until egress bandwidth for nbytes is available.
// Returns error if nbytes is larger than the maximum egress bandwidth.
func (l *Limiter) ReserveEgress(nbytes int64) error {
	return l.reserve(l.egress, nbytes)
}

// ReserveIngress blocks until ingress bandwidth for nbytes is available.
// Returns error if nbytes is larger than the maximum ingress bandwidth.
func (l *Limiter) ReserveIngress(nbytes int64) error {
	return l.reserve(l.ingress, nbytes)
}

// Adjust scales the configured bandwidth limits down by denom, leaving a
// floor of 1 token/sec so the limiter never stalls completely. Used to
// divide a torrent's available bandwidth evenly across its connected peers.
func (l *Limiter) Adjust(denom int) error {
	if denom == 0 {
		return errors.New("denom must be non-zero")
	}
	if l.egress == nil || l.ingress == nil {
		return nil
	}
	e := l.baseEgressTokensPerSec / int64(denom)
	if e < 1 {
		e = 1
	}
	i := l.baseIngressTokensPerSec / int64(denom)
	if i < 1 {
		i = 1
	}
	l.egress.SetLimit(rate.Limit(e))
	l.ingress.SetLimit(rate.Limit(i))
	return nil
}

// EgressLimit returns the current egress limit in tokens/sec.
func (l *Limiter) EgressLimit() int64 {
	if l.egress == nil {
		return 0
	}
	return int64(l.egress.Limit())
}

// IngressLimit returns the current ingress limit in tokens/sec.
func (l *Limiter) IngressLimit() int64 {
	if l.ingress == nil {
		return 0
	}
	return int64(l.ingress.Limit())
}
