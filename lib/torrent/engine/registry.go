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
package engine

import (
	"errors"

	"golang.org/x/sync/syncmap"

	"github.com/kraken-torrent/peercore/core"
)

// ErrNotFound is returned by Registry.Get when no TorrentContext is
// registered under the given info hash.
var ErrNotFound = errors.New("engine: torrent context not found")

// Registry is the arena of live TorrentContexts, keyed by info hash. A
// PeerSession holding only an InfoHash borrows its TorrentContext from a
// Registry for the duration of one dispatch or tick operation, then drops
// the reference, rather than holding a direct back-pointer.
//
// Multiple torrents may run on different workers, so Registry itself is
// safe for concurrent Add/Remove/Get from different goroutines; it does not
// protect the TorrentContexts it hands out, which remain
// single-threaded-cooperative.
type Registry struct {
	byKey syncmap.Map // core.InfoHash -> *TorrentContext
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add registers ctx under its InfoHash, replacing any prior entry.
func (r *Registry) Add(ctx *TorrentContext) {
	r.byKey.Store(ctx.InfoHash, ctx)
}

// Remove drops the TorrentContext for h, if any.
func (r *Registry) Remove(h core.InfoHash) {
	r.byKey.Delete(h)
}

// Get borrows the TorrentContext registered for h.
func (r *Registry) Get(h core.InfoHash) (*TorrentContext, error) {
	v, ok := r.byKey.Load(h)
	if !ok {
		return nil, ErrNotFound
	}
	return v.(*TorrentContext), nil
}

// All returns every registered TorrentContext, for the tick scheduler to
// iterate over.
func (r *Registry) All() []*TorrentContext {
	var out []*TorrentContext
	r.byKey.Range(func(k, v interface{}) bool {
		out = append(out, v.(*TorrentContext))
		return true
	})
	return out
}
