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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewNodeIDErrors(t *testing.T) {
	tests := []struct {
		desc  string
		input string
	}{
		{"empty", ""},
		{"invalid hex", "invalid"},
		{"too short", "beef"},
	}
	for _, test := range tests {
		t.Run(test.desc, func(t *testing.T) {
			_, err := NewNodeID(test.input)
			require.Error(t, err)
		})
	}
}

func TestNodeIDDistanceSelfIsZero(t *testing.T) {
	n := NodeIDFixture()
	d := n.Distance(n)
	require.Equal(t, Distance{}, d)
	require.Equal(t, 160, d.PrefixLen())
}

func TestNodeIDDistanceSymmetric(t *testing.T) {
	a := NodeIDFixture()
	b := NodeIDFixture()
	require.Equal(t, a.Distance(b), b.Distance(a))
}

func TestDistanceLessThan(t *testing.T) {
	var a, b Distance
	a[19] = 1
	b[19] = 2
	require.True(t, a.LessThan(b))
	require.False(t, b.LessThan(a))
}

func TestDistancePrefixLen(t *testing.T) {
	var d Distance
	require.Equal(t, 160, d.PrefixLen())

	d[0] = 0x80
	require.Equal(t, 0, d.PrefixLen())

	d = Distance{}
	d[0] = 0x01
	require.Equal(t, 7, d.PrefixLen())

	d = Distance{}
	d[2] = 0x10
	require.Equal(t, 2*8+3, d.PrefixLen())
}
