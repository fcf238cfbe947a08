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
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/twmb/franz-go/pkg/kmsg"
)

func TestFrameReadWrite(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x03}
	var buf bytes.Buffer

	if err := WriteFrame(&buf, payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	frame, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}

	if frame.Length != int32(len(payload)) {
		t.Fatalf("unexpected frame length: %d", frame.Length)
	}
	if !bytes.Equal(frame.Payload, payload) {
		t.Fatalf("payload mismatch: %v vs %v", frame.Payload, payload)
	}
}

// oneByteReader hands out a single byte per Read call so frames arrive in
// the smallest possible chunks.
type oneByteReader struct {
	r io.Reader
}

func (o oneByteReader) Read(p []byte) (int, error) {
	if len(p) > 1 {
		p = p[:1]
	}
	return o.r.Read(p)
}

func TestReadFrameChunkedDelivery(t *testing.T) {
	payload := []byte("chunked-frame-payload")
	var buf bytes.Buffer
	if err := WriteFrame(&buf, payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	frame, err := ReadFrame(oneByteReader{&buf})
	if err != nil {
		t.Fatalf("ReadFrame over chunked reader: %v", err)
	}
	if !bytes.Equal(frame.Payload, payload) {
		t.Fatalf("payload mismatch: %q vs %q", frame.Payload, payload)
	}
}

func TestReadFramePartialInputYieldsNoFrame(t *testing.T) {
	payload := []byte("incomplete")
	var buf bytes.Buffer
	if err := WriteFrame(&buf, payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	wire := buf.Bytes()

	for n := 0; n < len(wire); n++ {
		frame, err := ReadFrame(bytes.NewReader(wire[:n]))
		if err == nil {
			t.Fatalf("expected error for %d of %d bytes, got frame %+v", n, len(wire), frame)
		}
		if frame != nil {
			t.Fatalf("partial input of %d bytes produced a frame", n)
		}
	}
}

func TestReadFrameRejectsBadLengths(t *testing.T) {
	var negative [4]byte
	binary.BigEndian.PutUint32(negative[:], 0x80000000)
	if _, err := ReadFrame(bytes.NewReader(negative[:])); err == nil {
		t.Fatalf("expected error for negative length")
	}

	var huge [4]byte
	binary.BigEndian.PutUint32(huge[:], uint32(MaxFrameSize)+1)
	if _, err := ReadFrame(bytes.NewReader(huge[:])); err == nil {
		t.Fatalf("expected error for oversized length")
	}
}

func TestOpaqueFrameRoundTripsVerbatim(t *testing.T) {
	name := "orders"
	req := kmsg.NewPtrMetadataRequest()
	req.Version = 9
	req.Topics = []kmsg.MetadataRequestTopic{{Topic: &name}}

	formatter := kmsg.NewRequestFormatter(kmsg.FormatterClientID("kgo"))
	wire := formatter.AppendRequest(nil, req, 7)

	frame, err := ReadFrame(bytes.NewReader(wire))
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}

	var out bytes.Buffer
	if err := WriteFrame(&out, frame.Payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if !bytes.Equal(out.Bytes(), wire) {
		t.Fatalf("opaque round trip not byte-identical")
	}
}

func TestDecodedRequestPayloadCacheInvalidation(t *testing.T) {
	req := kmsg.NewPtrProduceRequest()
	req.Version = 9
	req.Acks = -1
	req.TimeoutMillis = 3000

	clientID := "cache-test"
	frame := &DecodedRequest{
		Header: &RequestHeader{
			APIKey:        APIKeyProduce,
			APIVersion:    9,
			CorrelationID: 11,
			ClientID:      &clientID,
		},
		Body: req,
	}

	first, err := frame.Payload()
	if err != nil {
		t.Fatalf("Payload: %v", err)
	}
	size, err := frame.EncodedSize()
	if err != nil {
		t.Fatalf("EncodedSize: %v", err)
	}
	if size != len(first)+4 {
		t.Fatalf("size %d does not match payload %d + prefix", size, len(first))
	}

	// Without invalidation the stale cache must keep being served; with it,
	// the mutation must be visible.
	req.TimeoutMillis = 9999
	cached, err := frame.Payload()
	if err != nil {
		t.Fatalf("Payload cached: %v", err)
	}
	if !bytes.Equal(cached, first) {
		t.Fatalf("cache was recomputed without invalidation")
	}

	frame.Invalidate()
	fresh, err := frame.Payload()
	if err != nil {
		t.Fatalf("Payload after invalidate: %v", err)
	}
	if bytes.Equal(fresh, first) {
		t.Fatalf("invalidate did not refresh encoding")
	}

	decoded, err := DecodeRequestFrame(fresh)
	if err != nil {
		t.Fatalf("DecodeRequestFrame: %v", err)
	}
	if decoded.Body.(*kmsg.ProduceRequest).TimeoutMillis != 9999 {
		t.Fatalf("mutation lost across re-encode")
	}
}

func TestDecodedResponsePayloadMatchesDecode(t *testing.T) {
	body := kmsg.NewPtrFindCoordinatorResponse()
	body.Version = 3
	body.ErrorCode = NONE
	body.NodeID = 4
	body.Host = "proxy.internal"
	body.Port = 9092

	frame := &DecodedResponse{
		APIKey:        APIKeyFindCoordinator,
		APIVersion:    3,
		CorrelationID: 21,
		Body:          body,
	}
	payload, err := frame.Payload()
	if err != nil {
		t.Fatalf("Payload: %v", err)
	}

	decoded, err := DecodeResponseFrame(payload, APIKeyFindCoordinator, 3)
	if err != nil {
		t.Fatalf("DecodeResponseFrame: %v", err)
	}
	if decoded.CorrelationID != 21 {
		t.Fatalf("correlation id %d, want 21", decoded.CorrelationID)
	}
	got := decoded.Body.(*kmsg.FindCoordinatorResponse)
	if got.Host != "proxy.internal" || got.Port != 9092 || got.NodeID != 4 {
		t.Fatalf("unexpected coordinator response: %+v", got)
	}
}
