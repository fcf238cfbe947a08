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
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/twmb/franz-go/pkg/kmsg"

	"github.com/novatechflow/kafgate/pkg/capture"
	"github.com/novatechflow/kafgate/pkg/filter"
	"github.com/novatechflow/kafgate/pkg/protocol"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildConstructsInOrder(t *testing.T) {
	cfg := Config{
		Log:            testLogger(),
		AdvertisedHost: "proxy.internal",
		AdvertisedPort: 19092,
		DeniedAPIs:     []int16{protocol.APIKeyDeleteTopics},
	}
	filters, err := Build([]string{"deny", "clamp", "rewrite", "audit"}, cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	got := make([]string, len(filters))
	for i, f := range filters {
		got[i] = f.Name()
	}
	want := []string{"deny", "clamp", "rewrite", "audit"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("filter order mismatch: got %v, want %v", got, want)
		}
	}
	if _, err := filter.NewChain(filters...); err != nil {
		t.Fatalf("built filters must form a chain: %v", err)
	}
}

func TestBuildRejectsUnknownName(t *testing.T) {
	_, err := Build([]string{"nonexistent"}, Config{})
	if err == nil || !strings.Contains(err.Error(), "unknown filter") {
		t.Fatalf("expected unknown filter error, got %v", err)
	}
}

func TestBuildSurfacesFilterConfigErrors(t *testing.T) {
	if _, err := Build([]string{"rewrite"}, Config{}); err == nil {
		t.Fatalf("rewrite without advertised address must fail")
	}
	if _, err := Build([]string{"deny"}, Config{}); err == nil {
		t.Fatalf("deny without api keys must fail")
	}
	if _, err := Build([]string{"capture"}, Config{}); err == nil {
		t.Fatalf("capture without sink must fail")
	}
}

func TestCaptureRecordsBothDirections(t *testing.T) {
	store := capture.NewMemoryStore()
	sink, err := capture.NewSink(context.Background(), testLogger(), store, capture.SinkConfig{FlushInterval: time.Hour})
	if err != nil {
		t.Fatalf("NewSink: %v", err)
	}
	f, err := NewCapture(sink)
	if err != nil {
		t.Fatalf("NewCapture: %v", err)
	}

	req := kmsg.NewPtrMetadataRequest()
	req.SetVersion(12)
	clientID := "orders-app"
	header := &protocol.RequestHeader{
		APIKey:        protocol.APIKeyMetadata,
		APIVersion:    12,
		CorrelationID: 3,
		ClientID:      &clientID,
	}
	reqCtx := filter.NewRequestContext(header, req, filter.RequestHooks{})
	reqOut, err := f.OnRequest(reqCtx)
	if err != nil {
		t.Fatalf("OnRequest: %v", err)
	}
	if reqOut.Action() != filter.ActionForward {
		t.Fatalf("OnRequest action: %v", reqOut.Action())
	}

	resp := kmsg.NewPtrMetadataResponse()
	resp.SetVersion(12)
	respCtx := filter.NewResponseContext(protocol.APIKeyMetadata, 12, 3, resp, filter.ResponseHooks{})
	respOut, err := f.OnResponse(respCtx)
	if err != nil {
		t.Fatalf("OnResponse: %v", err)
	}
	if respOut.Action() != filter.ActionForward {
		t.Fatalf("OnResponse action: %v", respOut.Action())
	}

	if err := sink.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	keys := store.Keys()
	if len(keys) != 1 {
		t.Fatalf("expected 1 capture object, got %v", keys)
	}
	body, _ := store.Object(keys[0])
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 capture lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], `"direction":"request"`) || !strings.Contains(lines[0], `"client_id":"orders-app"`) {
		t.Fatalf("unexpected request line: %s", lines[0])
	}
	if !strings.Contains(lines[1], `"direction":"response"`) {
		t.Fatalf("unexpected response line: %s", lines[1])
	}
}
