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

// Package discovery resolves upstream broker addresses for the proxy,
// either from a fixed list or from live registrations in etcd.
package discovery

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
)

// ErrNoUpstreams is returned by Pick when no broker address is known.
var ErrNoUpstreams = errors.New("no upstream brokers available")

// Registry yields an upstream broker address for each new client connection.
type Registry interface {
	Pick(ctx context.Context) (string, error)
	Close() error
}

// Static round-robins over a fixed address list.
type Static struct {
	addrs []string
	next  uint32
}

// NewStatic builds a registry from host:port strings. Blank entries are
// dropped so CSV config with trailing commas still works.
func NewStatic(addrs []string) (*Static, error) {
	cleaned := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		cleaned = append(cleaned, addr)
	}
	if len(cleaned) == 0 {
		return nil, ErrNoUpstreams
	}
	return &Static{addrs: cleaned}, nil
}

func (s *Static) Pick(ctx context.Context) (string, error) {
	n := atomic.AddUint32(&s.next, 1)
	return s.addrs[(n-1)%uint32(len(s.addrs))], nil
}

func (s *Static) Close() error { return nil }
