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

package filter

// Entry pairs one leaf filter with its invoker.
type Entry struct {
	Filter  Filter
	Invoker Invoker
}

// Chain is the frozen, ordered list of invokers one connection runs its
// traffic through. Construction validates every filter; the entry list and
// the decode predicate never change afterwards.
type Chain struct {
	entries []Entry
}

// NewChain expands composites, classifies each leaf, and freezes the entry
// order. Every configuration error surfaces here, before any traffic.
func NewChain(filters ...Filter) (*Chain, error) {
	var entries []Entry
	for _, f := range filters {
		leaves, err := expand(f)
		if err != nil {
			return nil, err
		}
		for _, leaf := range leaves {
			invoker, err := buildInvoker(leaf)
			if err != nil {
				return nil, err
			}
			entries = append(entries, Entry{Filter: leaf, Invoker: invoker})
		}
	}
	return &Chain{entries: entries}, nil
}

// Entries returns the chain in execution order for requests. Responses
// traverse the same entries in reverse.
func (c *Chain) Entries() []Entry { return c.entries }

func (c *Chain) Len() int { return len(c.entries) }

// WantsRequest is the request-side decode predicate: whether any entry
// opted into this api key and version. Messages nobody wants stay opaque.
func (c *Chain) WantsRequest(apiKey, apiVersion int16) bool {
	for _, e := range c.entries {
		if e.Invoker.ShouldHandleRequest(apiKey, apiVersion) {
			return true
		}
	}
	return false
}

// WantsResponse is the response-side decode predicate.
func (c *Chain) WantsResponse(apiKey, apiVersion int16) bool {
	for _, e := range c.entries {
		if e.Invoker.ShouldHandleResponse(apiKey, apiVersion) {
			return true
		}
	}
	return false
}
