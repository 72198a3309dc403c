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

// Package syncutil provides small thread-safe primitives shared across the
// dispatcher and piece picker, such as a fixed-size array of counters keyed
// by piece index.
package syncutil

import "go.uber.org/atomic"

// Counters is a fixed-size array of thread-safe counters, indexed by piece
// index, used to track how many connected peers have each piece.
type Counters []*atomic.Int64

// NewCounters creates a new Counters of length n, all initialized to 0.
func NewCounters(n int) Counters {
	c := make(Counters, n)
	for i := range c {
		c[i] = atomic.NewInt64(0)
	}
	return c
}

// Increment increments the counter at index k.
func (c Counters) Increment(k int) {
	c[k].Inc()
}

// Decrement decrements the counter at index k.
func (c Counters) Decrement(k int) {
	c[k].Dec()
}

// Set sets the counter at index k to v.
func (c Counters) Set(k int, v int) {
	c[k].Store(int64(v))
}

// Get returns the current value of the counter at index k.
func (c Counters) Get(k int) int {
	return int(c[k].Load())
}

// Len returns the number of counters.
func (c Counters) Len() int {
	return len(c)
}
