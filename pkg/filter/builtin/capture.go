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
	"errors"
	"time"

	"github.com/novatechflow/kafgate/pkg/capture"
	"github.com/novatechflow/kafgate/pkg/filter"
	"github.com/novatechflow/kafgate/pkg/protocol"
)

// Capture records a summary line for every decoded frame into the capture
// sink. Like Audit it opts in only on key/version pairs the codec can
// decode. The sink batches uploads off the hot path.
type Capture struct {
	sink *capture.Sink
}

func NewCapture(sink *capture.Sink) (*Capture, error) {
	if sink == nil {
		return nil, errors.New("capture requires a sink")
	}
	return &Capture{sink: sink}, nil
}

func (f *Capture) Name() string { return "capture" }

func (f *Capture) ShouldHandleRequest(apiKey, apiVersion int16) bool {
	return protocol.Decodable(apiKey, apiVersion)
}

func (f *Capture) ShouldHandleResponse(apiKey, apiVersion int16) bool {
	return protocol.Decodable(apiKey, apiVersion)
}

func (f *Capture) OnRequest(ctx *filter.RequestContext) (*filter.RequestOutcome, error) {
	size, err := (&protocol.DecodedRequest{Header: ctx.Header, Body: ctx.Body}).EncodedSize()
	if err != nil {
		size = 0
	}
	clientID := ""
	if ctx.ClientID != nil {
		clientID = *ctx.ClientID
	}
	f.sink.Record(capture.Record{
		Time:          time.Now(),
		Direction:     "request",
		API:           protocol.APIKeyName(ctx.APIKey),
		APIVersion:    ctx.APIVersion,
		CorrelationID: ctx.CorrelationID,
		ClientID:      clientID,
		SizeBytes:     size,
	})
	return ctx.Forward(), nil
}

func (f *Capture) OnResponse(ctx *filter.ResponseContext) (*filter.ResponseOutcome, error) {
	size, err := (&protocol.DecodedResponse{
		APIKey:        ctx.APIKey,
		APIVersion:    ctx.APIVersion,
		CorrelationID: ctx.CorrelationID,
		Body:          ctx.Body,
	}).EncodedSize()
	if err != nil {
		size = 0
	}
	f.sink.Record(capture.Record{
		Time:          time.Now(),
		Direction:     "response",
		API:           protocol.APIKeyName(ctx.APIKey),
		APIVersion:    ctx.APIVersion,
		CorrelationID: ctx.CorrelationID,
		SizeBytes:     size,
	})
	return ctx.Forward(), nil
}
