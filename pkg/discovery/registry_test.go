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

package discovery

import (
	"context"
	"errors"
	"testing"
)

func TestStaticRoundRobin(t *testing.T) {
	reg, err := NewStatic([]string{"broker-0:9092", " broker-1:9092 ", ""})
	if err != nil {
		t.Fatalf("NewStatic: %v", err)
	}
	ctx := context.Background()
	want := []string{"broker-0:9092", "broker-1:9092", "broker-0:9092", "broker-1:9092"}
	for i, expected := range want {
		addr, err := reg.Pick(ctx)
		if err != nil {
			t.Fatalf("Pick %d: %v", i, err)
		}
		if addr != expected {
			t.Fatalf("Pick %d: got %s, want %s", i, addr, expected)
		}
	}
}

func TestStaticRequiresAddresses(t *testing.T) {
	if _, err := NewStatic([]string{"", "  "}); !errors.Is(err, ErrNoUpstreams) {
		t.Fatalf("expected ErrNoUpstreams, got %v", err)
	}
}
