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

// Package filter defines the interceptor contract the proxy runs traffic
// through. A filter implementation satisfies exactly one of three capability
// shapes: specific-rpc (one api key), generic (opts into arbitrary api
// keys), or composite (an ordered group expanded at chain construction).
// An implementation with none of the shapes is an inert placeholder that is
// never invoked. Mixing shapes on one instance is a configuration error
// caught when the chain is built, before any traffic is processed.
package filter

// Filter is the base contract shared by every shape.
type Filter interface {
	Name() string
}

// APIRequestFilter handles requests of exactly one api key, every version.
type APIRequestFilter interface {
	Filter
	APIKey() int16
	OnAPIRequest(*RequestContext) (*RequestOutcome, error)
}

// APIResponseFilter handles responses of exactly one api key, every version.
// A filter may combine it with APIRequestFilter for the same key.
type APIResponseFilter interface {
	Filter
	APIKey() int16
	OnAPIResponse(*ResponseContext) (*ResponseOutcome, error)
}

// RequestFilter handles requests of whichever api keys and versions it opts
// into. ShouldHandleRequest must be pure: the answer for a given pair is
// folded into the connection's decode predicate at chain construction.
type RequestFilter interface {
	Filter
	ShouldHandleRequest(apiKey, apiVersion int16) bool
	OnRequest(*RequestContext) (*RequestOutcome, error)
}

// ResponseFilter is the response-side counterpart of RequestFilter.
type ResponseFilter interface {
	Filter
	ShouldHandleResponse(apiKey, apiVersion int16) bool
	OnResponse(*ResponseContext) (*ResponseOutcome, error)
}

// CompositeFilter declares an ordered group of filters. Composites exist
// only at configuration time; chain construction expands them depth-first
// into their leaves.
type CompositeFilter interface {
	Filter
	Filters() []Filter
}

// Group builds a composite filter from an ordered list.
func Group(name string, filters ...Filter) Filter {
	return &group{name: name, filters: filters}
}

type group struct {
	name    string
	filters []Filter
}

func (g *group) Name() string      { return g.name }
func (g *group) Filters() []Filter { return g.filters }
