// Copyright 2025 Alexander Alten (novatechflow), NovaTechflow (novatechflow.com).
// This project is supported and financed by Scalytics, Inc. (www.scalytics.io).
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

package proxy

import (
	"log/slog"
	"sync"

	"github.com/novatechflow/kafgate/pkg/filter"
	"github.com/novatechflow/kafgate/pkg/protocol"
)

// Correlation is one outstanding upstream request awaiting its response.
// Responses do not repeat the api key or version on the wire, so both are
// recorded here when the request is sent. Reply is nil for client traffic;
// a non-nil Reply marks a proxy-originated request whose response is
// consumed in-proxy and never reaches the client.
type Correlation struct {
	APIKey     int16
	APIVersion int16
	Decode     bool
	Reply      chan<- filter.UpstreamReply
}

// correlationTable maps outstanding correlation ids to their records. It is
// scoped to one session; the request path records and the response path
// resolves, on different goroutines, so access is mutex-guarded. Entries
// are never expired here: session teardown drains them.
type correlationTable struct {
	log      *slog.Logger
	mu       sync.Mutex
	inflight map[int32]Correlation
}

func newCorrelationTable(log *slog.Logger) *correlationTable {
	return &correlationTable{log: log, inflight: make(map[int32]Correlation)}
}

// Record registers an in-flight request. A duplicate id while the prior
// request is still outstanding violates the protocol's id-reuse rules; it
// is logged and the prior entry is overwritten, best effort.
func (t *correlationTable) Record(id int32, c Correlation) {
	t.mu.Lock()
	prior, dup := t.inflight[id]
	t.inflight[id] = c
	t.mu.Unlock()
	if dup {
		t.log.Warn("correlation id reused while outstanding",
			"correlation", id, "api", protocol.APIKeyName(prior.APIKey))
	}
}

// Resolve removes and returns the record for id. The second return is
// false when the id was never recorded or was already resolved; the caller
// treats that as a protocol anomaly.
func (t *correlationTable) Resolve(id int32) (Correlation, bool) {
	t.mu.Lock()
	c, ok := t.inflight[id]
	if ok {
		delete(t.inflight, id)
	}
	t.mu.Unlock()
	return c, ok
}

// Drain removes and returns every outstanding record so teardown can fail
// proxy-originated waiters.
func (t *correlationTable) Drain() []Correlation {
	t.mu.Lock()
	out := make([]Correlation, 0, len(t.inflight))
	for _, c := range t.inflight {
		out = append(out, c)
	}
	t.inflight = make(map[int32]Correlation)
	t.mu.Unlock()
	return out
}

// Outstanding reports the number of in-flight entries.
func (t *correlationTable) Outstanding() int {
	t.mu.Lock()
	n := len(t.inflight)
	t.mu.Unlock()
	return n
}
