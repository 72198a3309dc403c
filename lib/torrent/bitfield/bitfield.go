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

// Package bitfield provides a thread-safe, fixed-length bit vector used to
// track which pieces of a torrent a peer has.
package bitfield

import (
	"fmt"
	"sync"

	"github.com/willf/bitset"
)

// Bitfield is a thread-safe fixed-length bit vector, one bit per piece.
type Bitfield struct {
	sync.RWMutex
	b    *bitset.BitSet
	size uint
}

// New creates a new Bitfield of length n with all bits unset.
func New(n int) *Bitfield {
	return &Bitfield{b: bitset.New(uint(n)), size: uint(n)}
}

// FromBools creates a new Bitfield from the given bools, where true means the
// piece at that index is held.
func FromBools(bools []bool) *Bitfield {
	f := New(len(bools))
	for i, b := range bools {
		if b {
			f.b.Set(uint(i))
		}
	}
	return f
}

// FromBytes creates a new Bitfield of length n from a BEP 3 "bitfield"
// message payload, where bit i of byte 0 (high bit first) corresponds to
// piece i.
func FromBytes(n int, raw []byte) (*Bitfield, error) {
	want := (n + 7) / 8
	if len(raw) != want {
		return nil, fmt.Errorf("bitfield: expected %d bytes for %d pieces, got %d", want, n, len(raw))
	}
	f := New(n)
	for i := 0; i < n; i++ {
		byteIdx := i / 8
		bitIdx := 7 - uint(i%8)
		if raw[byteIdx]&(1<<bitIdx) != 0 {
			f.b.Set(uint(i))
		}
	}
	return f, nil
}

// AllTrue creates a new Bitfield of length n with all bits set.
func AllTrue(n int) *Bitfield {
	f := New(n)
	for i := 0; i < n; i++ {
		f.b.Set(uint(i))
	}
	return f
}

// Len returns the number of bits in f.
func (f *Bitfield) Len() int {
	return int(f.size)
}

// Has returns whether piece i is set. Returns false if i is out of range.
func (f *Bitfield) Has(i int) bool {
	f.RLock()
	defer f.RUnlock()

	if i < 0 || uint(i) >= f.size {
		return false
	}
	return f.b.Test(uint(i))
}

// Set marks piece i as held.
func (f *Bitfield) Set(i int) {
	f.Lock()
	defer f.Unlock()

	if i < 0 || uint(i) >= f.size {
		return
	}
	f.b.Set(uint(i))
}

// Unset marks piece i as not held.
func (f *Bitfield) Unset(i int) {
	f.Lock()
	defer f.Unlock()

	if i < 0 || uint(i) >= f.size {
		return
	}
	f.b.Clear(uint(i))
}

// SetAll sets every bit, used when a peer sends "have_all" (BEP 6) or a full
// bitfield of all 1s.
func (f *Bitfield) SetAll() {
	f.Lock()
	defer f.Unlock()

	for i := uint(0); i < f.size; i++ {
		f.b.Set(i)
	}
}

// ClearAll unsets every bit, used when a peer sends "have_none" (BEP 6).
func (f *Bitfield) ClearAll() {
	f.Lock()
	defer f.Unlock()

	f.b.ClearAll()
}

// Complete returns whether every bit is set.
func (f *Bitfield) Complete() bool {
	f.RLock()
	defer f.RUnlock()

	return f.b.Count() == f.size
}

// Empty returns whether no bits are set.
func (f *Bitfield) Empty() bool {
	f.RLock()
	defer f.RUnlock()

	return f.b.Count() == 0
}

// AllTrue is an alias for Complete, naming a fully-set bitfield the way
// callers that think in Have/HaveAll/HaveNone terms expect.
func (f *Bitfield) AllTrue() bool { return f.Complete() }

// AllFalse is an alias for Empty, naming a fully-unset bitfield the way
// callers that think in Have/HaveAll/HaveNone terms expect.
func (f *Bitfield) AllFalse() bool { return f.Empty() }

// Count returns the number of set bits.
func (f *Bitfield) Count() int {
	f.RLock()
	defer f.RUnlock()

	return int(f.b.Count())
}

// Copy returns a deep copy of f.
func (f *Bitfield) Copy() *Bitfield {
	f.RLock()
	defer f.RUnlock()

	return &Bitfield{b: f.b.Clone(), size: f.size}
}

// Intersection returns a new Bitfield representing the bits set in both f
// and o, used to find pieces a remote peer has that we are missing.
func (f *Bitfield) Intersection(o *Bitfield) *Bitfield {
	f.RLock()
	o.RLock()
	defer f.RUnlock()
	defer o.RUnlock()

	return &Bitfield{b: f.b.Intersection(o.b), size: f.size}
}

// Missing returns the indices of pieces f does not have, out of n total
// pieces.
func (f *Bitfield) Missing() []int {
	f.RLock()
	defer f.RUnlock()

	var missing []int
	for i := uint(0); i < f.size; i++ {
		if !f.b.Test(i) {
			missing = append(missing, int(i))
		}
	}
	return missing
}

// ToBytes encodes f as a BEP 3 "bitfield" message payload.
func (f *Bitfield) ToBytes() []byte {
	f.RLock()
	defer f.RUnlock()

	raw := make([]byte, (f.size+7)/8)
	for i := uint(0); i < f.size; i++ {
		if f.b.Test(i) {
			raw[i/8] |= 1 << (7 - i%8)
		}
	}
	return raw
}

// String returns a human readable summary of f.
func (f *Bitfield) String() string {
	f.RLock()
	defer f.RUnlock()

	return fmt.Sprintf("%d/%d", f.b.Count(), f.size)
}
