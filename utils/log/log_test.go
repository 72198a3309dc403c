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
package log

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewDisabled(t *testing.T) {
	l, err := New(Config{Disable: true}, nil)
	require.NoError(t, err)
	require.NotNil(t, l)
}

func TestNewWithFields(t *testing.T) {
	l, err := New(Config{Level: "debug"}, map[string]interface{}{"module": "test"})
	require.NoError(t, err)
	require.NotNil(t, l)
}

func TestGlobalConvenienceFunctionsDoNotPanic(t *testing.T) {
	SetGlobalLogger(zap.NewNop())
	Debug("hello")
	Infof("hello %s", "world")
	Warn("careful")
	Errorf("bad: %d", 1)
	With("k", "v").Info("structured")
}
