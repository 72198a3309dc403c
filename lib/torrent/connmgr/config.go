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
package connmgr

import "time"

// Config governs how many connections one torrent may hold open and how
// long a misbehaving peer is kept out after being blacklisted.
type Config struct {
	MaxOpenConnections   int           `yaml:"max_open_connections"`
	MaxMutualConnections int           `yaml:"max_mutual_connections"`
	BlacklistDuration    time.Duration `yaml:"blacklist_duration"`
	DisableBlacklist     bool          `yaml:"disable_blacklist"`
}

func (c Config) applyDefaults() Config {
	if c.MaxOpenConnections == 0 {
		c.MaxOpenConnections = 50
	}
	if c.MaxMutualConnections == 0 {
		c.MaxMutualConnections = 20
	}
	if c.BlacklistDuration == 0 {
		c.BlacklistDuration = 10 * time.Minute
	}
	return c
}
