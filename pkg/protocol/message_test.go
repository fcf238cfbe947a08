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

package protocol

import (
	"errors"
	"testing"

	"github.com/twmb/franz-go/pkg/kmsg"
)

func TestDecodeRequestFrameProduce(t *testing.T) {
	req := kmsg.NewPtrProduceRequest()
	req.Version = 9
	req.Acks = -1
	req.TimeoutMillis = 30000

	formatter := kmsg.NewRequestFormatter(kmsg.FormatterClientID("kgo"))
	payload := formatter.AppendRequest(nil, req, 15)[4:]

	decoded, err := DecodeRequestFrame(payload)
	if err != nil {
		t.Fatalf("DecodeRequestFrame: %v", err)
	}
	if decoded.Header.APIKey != APIKeyProduce || decoded.Header.APIVersion != 9 || decoded.Header.CorrelationID != 15 {
		t.Fatalf("unexpected header: %#v", decoded.Header)
	}
	body, ok := decoded.Body.(*kmsg.ProduceRequest)
	if !ok {
		t.Fatalf("expected ProduceRequest got %T", decoded.Body)
	}
	if body.Acks != -1 || body.TimeoutMillis != 30000 {
		t.Fatalf("unexpected body: acks=%d timeout=%d", body.Acks, body.TimeoutMillis)
	}
}

func TestDecodeRequestFrameUnknownKey(t *testing.T) {
	w := newByteWriter(16)
	w.Int16(999)
	w.Int16(0)
	w.Int32(1)
	w.NullableString(nil)

	if _, err := DecodeRequestFrame(w.Bytes()); !errors.Is(err, ErrUnknownAPI) {
		t.Fatalf("expected ErrUnknownAPI, got %v", err)
	}
}

func TestDecodeRequestFrameVersionAboveMax(t *testing.T) {
	w := newByteWriter(16)
	w.Int16(APIKeyApiVersions)
	w.Int16(127)
	w.Int32(2)
	w.NullableString(nil)

	if _, err := DecodeRequestFrame(w.Bytes()); !errors.Is(err, ErrUnknownAPI) {
		t.Fatalf("expected ErrUnknownAPI, got %v", err)
	}
}

func TestDecodeResponseRejectsGarbageBody(t *testing.T) {
	if _, err := DecodeResponse(APIKeyMetadata, 5, []byte{0x01}); err == nil {
		t.Fatalf("expected decode error for truncated body")
	}
}

func TestApiVersionsResponseHeaderStaysV0(t *testing.T) {
	body := kmsg.NewPtrApiVersionsResponse()
	body.Version = 3
	body.ErrorCode = NONE
	body.ApiKeys = []kmsg.ApiVersionsResponseApiKey{
		{ApiKey: APIKeyProduce, MinVersion: 0, MaxVersion: 9},
	}

	frame := &DecodedResponse{
		APIKey:        APIKeyApiVersions,
		APIVersion:    3,
		CorrelationID: 33,
		Body:          body,
	}
	payload, err := frame.Payload()
	if err != nil {
		t.Fatalf("Payload: %v", err)
	}

	// v3 bodies are flexible but the header must remain correlation id
	// only, so the body starts at byte 4.
	check := kmsg.NewPtrApiVersionsResponse()
	check.SetVersion(3)
	if err := check.ReadFrom(payload[4:]); err != nil {
		t.Fatalf("body not at offset 4: %v", err)
	}
	if len(check.ApiKeys) != 1 || check.ApiKeys[0].ApiKey != APIKeyProduce {
		t.Fatalf("unexpected api keys: %#v", check.ApiKeys)
	}

	decoded, err := DecodeResponseFrame(payload, APIKeyApiVersions, 3)
	if err != nil {
		t.Fatalf("DecodeResponseFrame: %v", err)
	}
	if decoded.CorrelationID != 33 {
		t.Fatalf("unexpected correlation id: %d", decoded.CorrelationID)
	}
}

func TestSupportedVersions(t *testing.T) {
	min, max, ok := SupportedVersions(APIKeyProduce)
	if !ok {
		t.Fatalf("expected Produce to be supported")
	}
	if min != 0 || max < 9 {
		t.Fatalf("unexpected Produce range: %d..%d", min, max)
	}

	if _, _, ok := SupportedVersions(999); ok {
		t.Fatalf("expected key 999 to be unsupported")
	}
}
