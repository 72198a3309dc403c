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
package mode

import (
	"time"

	"github.com/kraken-torrent/peercore/lib/torrent/ports"
)

type stubMonitor struct {
	downloadBPS float64
	uploadBPS   float64
	ticks       int
}

func (m *stubMonitor) Tick()                    { m.ticks++ }
func (m *stubMonitor) DownloadSpeedBPS() float64 { return m.downloadBPS }
func (m *stubMonitor) UploadSpeedBPS() float64   { return m.uploadBPS }

type stubReciprocity struct {
	reviews int
}

func (r *stubReciprocity) Review() { r.reviews++ }

type stubTracker struct {
	current     *ports.Tracker
	succeeded   bool
	lastUpdated time.Time
	announced   []string
}

func (t *stubTracker) Current() *ports.Tracker { return t.current }
func (t *stubTracker) Announce(event string) error {
	t.announced = append(t.announced, event)
	return nil
}
func (t *stubTracker) LastUpdated() time.Time { return t.lastUpdated }
func (t *stubTracker) UpdateSucceeded() bool  { return t.succeeded }

type stubTransport struct {
	enqueued []ports.MessageBundle
	closed   bool
	closeMsg string
	flushes  int
}

func (tr *stubTransport) Enqueue(bundle ports.MessageBundle) {
	tr.enqueued = append(tr.enqueued, bundle)
}
func (tr *stubTransport) Close(reason string) {
	tr.closed = true
	tr.closeMsg = reason
}
func (tr *stubTransport) ProcessQueue() { tr.flushes++ }
