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
	"testing"

	"github.com/twmb/franz-go/pkg/kmsg"

	"github.com/novatechflow/kafgate/pkg/filter"
	"github.com/novatechflow/kafgate/pkg/protocol"
)

func TestAPIVersionsClampCapsAdvertisedRanges(t *testing.T) {
	_, produceMax, ok := protocol.SupportedVersions(protocol.APIKeyProduce)
	if !ok {
		t.Fatalf("codec does not know Produce")
	}

	resp := kmsg.NewPtrApiVersionsResponse()
	resp.SetVersion(3)
	resp.ApiKeys = []kmsg.ApiVersionsResponseApiKey{
		{ApiKey: protocol.APIKeyProduce, MinVersion: 0, MaxVersion: produceMax + 5},
		{ApiKey: 999, MinVersion: 0, MaxVersion: 7},
	}

	f := NewAPIVersionsClamp()
	ctx := filter.NewResponseContext(protocol.APIKeyApiVersions, 3, 9, resp, filter.ResponseHooks{})
	out, err := f.OnAPIResponse(ctx)
	if err != nil {
		t.Fatalf("OnAPIResponse: %v", err)
	}
	if out.Action() != filter.ActionForwardMutated {
		t.Fatalf("expected mutation, got %v", out.Action())
	}
	mutated := out.Body().(*kmsg.ApiVersionsResponse)
	if len(mutated.ApiKeys) != 1 {
		t.Fatalf("unknown key must be dropped from the advertisement: %+v", mutated.ApiKeys)
	}
	if mutated.ApiKeys[0].ApiKey != protocol.APIKeyProduce {
		t.Fatalf("wrong key survived: %d", mutated.ApiKeys[0].ApiKey)
	}
	if mutated.ApiKeys[0].MaxVersion != produceMax {
		t.Fatalf("Produce max not clamped: %d", mutated.ApiKeys[0].MaxVersion)
	}
}

// The default chain carries filters that opt in generically; none of them
// may claim a key or version the codec cannot decode, or the session would
// put that frame on the decode path and tear down on it.
func TestDefaultChainNeverClaimsUndecodableTraffic(t *testing.T) {
	chain, err := filter.NewChain(NewAPIVersionsClamp(), NewAudit(testLogger()))
	if err != nil {
		t.Fatalf("NewChain: %v", err)
	}
	if chain.WantsRequest(999, 0) {
		t.Fatalf("chain claims a request key the codec has no schema for")
	}
	if chain.WantsResponse(999, 0) {
		t.Fatalf("chain claims a response key the codec has no schema for")
	}
	_, produceMax, ok := protocol.SupportedVersions(protocol.APIKeyProduce)
	if !ok {
		t.Fatalf("codec does not know Produce")
	}
	if chain.WantsRequest(protocol.APIKeyProduce, produceMax+1) {
		t.Fatalf("chain claims a Produce version past the codec's max")
	}
	if !chain.WantsRequest(protocol.APIKeyProduce, produceMax) {
		t.Fatalf("chain must still claim a decodable Produce version")
	}
}

func TestAPIVersionsClampLeavesConformingResponse(t *testing.T) {
	resp := kmsg.NewPtrApiVersionsResponse()
	resp.SetVersion(3)
	resp.ApiKeys = []kmsg.ApiVersionsResponseApiKey{
		{ApiKey: protocol.APIKeyProduce, MinVersion: 0, MaxVersion: 3},
	}

	f := NewAPIVersionsClamp()
	ctx := filter.NewResponseContext(protocol.APIKeyApiVersions, 3, 9, resp, filter.ResponseHooks{})
	out, err := f.OnAPIResponse(ctx)
	if err != nil {
		t.Fatalf("OnAPIResponse: %v", err)
	}
	if out.Action() != filter.ActionForward {
		t.Fatalf("expected plain forward, got %v", out.Action())
	}
}
