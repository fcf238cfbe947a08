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

func strPtr(s string) *string { return &s }

func TestDenyShortCircuitsWithPolicyViolation(t *testing.T) {
	f, err := NewDeny([]int16{protocol.APIKeyDeleteTopics})
	if err != nil {
		t.Fatalf("NewDeny: %v", err)
	}
	if !f.ShouldHandleRequest(protocol.APIKeyDeleteTopics, 6) {
		t.Fatalf("deny must handle DeleteTopics")
	}
	if f.ShouldHandleRequest(protocol.APIKeyProduce, 9) {
		t.Fatalf("deny must not handle Produce")
	}

	req := kmsg.NewPtrDeleteTopicsRequest()
	req.SetVersion(6)
	req.Topics = []kmsg.DeleteTopicsRequestTopic{{Topic: strPtr("orders")}}

	header := &protocol.RequestHeader{
		APIKey:        protocol.APIKeyDeleteTopics,
		APIVersion:    6,
		CorrelationID: 12,
	}
	ctx := filter.NewRequestContext(header, req, filter.RequestHooks{})
	out, err := f.OnRequest(ctx)
	if err != nil {
		t.Fatalf("OnRequest: %v", err)
	}
	if out.Action() != filter.ActionShortCircuit {
		t.Fatalf("expected short circuit, got %v", out.Action())
	}
	resp, ok := out.Response().(*kmsg.DeleteTopicsResponse)
	if !ok {
		t.Fatalf("unexpected response type %T", out.Response())
	}
	if len(resp.Topics) != 1 || resp.Topics[0].ErrorCode != protocol.POLICY_VIOLATION {
		t.Fatalf("topic error not set: %+v", resp.Topics)
	}
	if resp.Topics[0].Topic == nil || *resp.Topics[0].Topic != "orders" {
		t.Fatalf("topic name not mirrored: %+v", resp.Topics[0])
	}
}

func TestDenyRequiresAPIKeys(t *testing.T) {
	if _, err := NewDeny(nil); err == nil {
		t.Fatalf("expected error for empty api list")
	}
}
