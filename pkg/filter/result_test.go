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

import (
	"errors"
	"testing"

	"github.com/twmb/franz-go/pkg/kmsg"

	"github.com/novatechflow/kafgate/pkg/protocol"
)

func TestDeferredCompletionDeliversOnce(t *testing.T) {
	type delivery struct {
		outcome *RequestOutcome
		err     error
	}
	var deliveries []delivery

	ctx := NewRequestContext(&protocol.RequestHeader{APIKey: protocol.APIKeyProduce, APIVersion: 9, CorrelationID: 3}, nil, RequestHooks{
		Deliver: func(o *RequestOutcome, err error) {
			deliveries = append(deliveries, delivery{o, err})
		},
	})

	if ctx.Deferred() {
		t.Fatalf("context deferred before Defer was called")
	}
	comp := ctx.Defer()
	if !ctx.Deferred() {
		t.Fatalf("context not deferred after Defer")
	}
	if ctx.Defer() != comp {
		t.Fatalf("Defer must hand out one completion per invocation")
	}

	comp.ForwardMutated(nil, kmsg.NewPtrProduceRequest())
	if len(deliveries) != 1 || deliveries[0].err != nil {
		t.Fatalf("unexpected deliveries: %+v", deliveries)
	}
	if deliveries[0].outcome.Action() != ActionForwardMutated {
		t.Fatalf("unexpected action: %v", deliveries[0].outcome.Action())
	}

	// A second resolve is a filter failure, surfaced as an error delivery.
	comp.Forward()
	if len(deliveries) != 2 {
		t.Fatalf("second resolve not delivered: %+v", deliveries)
	}
	if !errors.Is(deliveries[1].err, errResolvedTwice) {
		t.Fatalf("expected double-resolve error, got %v", deliveries[1].err)
	}
}

func TestCompletionFail(t *testing.T) {
	var gotErr error
	ctx := NewRequestContext(&protocol.RequestHeader{APIKey: protocol.APIKeyFetch, APIVersion: 12}, nil, RequestHooks{
		Deliver: func(_ *RequestOutcome, err error) { gotErr = err },
	})

	boom := errors.New("kms unreachable")
	ctx.Defer().Fail(boom)
	if !errors.Is(gotErr, boom) {
		t.Fatalf("expected %v, got %v", boom, gotErr)
	}
}

func TestResponseCompletionMutates(t *testing.T) {
	var got *ResponseOutcome
	ctx := NewResponseContext(protocol.APIKeyMetadata, 12, 8, kmsg.NewPtrMetadataResponse(), ResponseHooks{
		Deliver: func(o *ResponseOutcome, _ error) { got = o },
	})

	replacement := kmsg.NewPtrMetadataResponse()
	ctx.Defer().ForwardMutated(replacement)
	if got == nil || got.Action() != ActionForwardMutated {
		t.Fatalf("unexpected outcome: %+v", got)
	}
	if got.Body() != kmsg.Response(replacement) {
		t.Fatalf("replacement body lost")
	}
}

func TestSendUpstreamWithoutSender(t *testing.T) {
	ctx := NewRequestContext(&protocol.RequestHeader{APIKey: protocol.APIKeyProduce, APIVersion: 9}, nil, RequestHooks{})
	reply := <-ctx.SendUpstream(3, kmsg.NewPtrMetadataRequest())
	if reply.Err == nil {
		t.Fatalf("expected error when no upstream sender is bound")
	}
}

func TestOutcomeActions(t *testing.T) {
	ctx := requestCtx(protocol.APIKeyProduce, 9)

	if got := ctx.Forward().Action(); got != ActionForward {
		t.Fatalf("Forward action: %v", got)
	}
	if got := ctx.Pending().Action(); got != ActionPending {
		t.Fatalf("Pending action: %v", got)
	}
	if got := ctx.CloseConnection().Action(); got != ActionClose {
		t.Fatalf("CloseConnection action: %v", got)
	}

	synthetic := kmsg.NewPtrProduceResponse()
	sc := ctx.ShortCircuit(synthetic)
	if sc.Action() != ActionShortCircuit || sc.Response() != kmsg.Response(synthetic) {
		t.Fatalf("unexpected short-circuit outcome: %+v", sc)
	}

	header := &protocol.RequestHeader{APIKey: protocol.APIKeyProduce, APIVersion: 9, CorrelationID: 5}
	body := kmsg.NewPtrProduceRequest()
	fm := ctx.ForwardMutated(header, body)
	if fm.Action() != ActionForwardMutated || fm.Header() != header || fm.Body() != kmsg.Request(body) {
		t.Fatalf("unexpected mutated outcome: %+v", fm)
	}
}
