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

package builtin

import (
	"github.com/twmb/franz-go/pkg/kmsg"

	"github.com/novatechflow/kafgate/pkg/filter"
	"github.com/novatechflow/kafgate/pkg/protocol"
)

// APIVersionsClamp rewrites a broker's ApiVersions advertisement down to
// what the proxy codec can decode: known keys are capped at the codec's max
// version, keys the codec has no schema for are removed. Without it a
// client may negotiate a key or version the decode path does not
// understand yet.
type APIVersionsClamp struct{}

func NewAPIVersionsClamp() *APIVersionsClamp { return &APIVersionsClamp{} }

func (f *APIVersionsClamp) Name() string  { return "clamp" }
func (f *APIVersionsClamp) APIKey() int16 { return protocol.APIKeyApiVersions }

func (f *APIVersionsClamp) OnAPIResponse(ctx *filter.ResponseContext) (*filter.ResponseOutcome, error) {
	resp, ok := ctx.Body.(*kmsg.ApiVersionsResponse)
	if !ok {
		return ctx.Forward(), nil
	}
	mutated := false
	kept := resp.ApiKeys[:0]
	for _, k := range resp.ApiKeys {
		_, max, known := protocol.SupportedVersions(k.ApiKey)
		if !known {
			// A generic filter may opt in on any advertised key, which
			// puts it on the decode path. Keys without a schema must not
			// be advertised at all.
			mutated = true
			continue
		}
		if k.MaxVersion > max {
			k.MaxVersion = max
			mutated = true
		}
		kept = append(kept, k)
	}
	resp.ApiKeys = kept
	if !mutated {
		return ctx.Forward(), nil
	}
	return ctx.ForwardMutated(resp), nil
}
