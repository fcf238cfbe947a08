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

package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// SinkConfig controls batching thresholds.
type SinkConfig struct {
	Prefix        string
	MaxRecords    int
	FlushInterval time.Duration
}

const (
	defaultPrefix        = "captures"
	defaultMaxRecords    = 512
	defaultFlushInterval = 5 * time.Second
)

// Sink accumulates records and uploads them in batches. Record never
// blocks on the store; uploads happen on the flush goroutine, and a failed
// upload requeues its records for the next attempt.
type Sink struct {
	log   *slog.Logger
	store ObjectStore
	cfg   SinkConfig

	mu      sync.Mutex
	pending []Record
	seq     uint64

	flushCh   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewSink verifies the bucket and starts the flush goroutine.
func NewSink(ctx context.Context, log *slog.Logger, store ObjectStore, cfg SinkConfig) (*Sink, error) {
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}
	if cfg.MaxRecords <= 0 {
		cfg.MaxRecords = defaultMaxRecords
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure capture bucket: %w", err)
	}
	s := &Sink{
		log:     log,
		store:   store,
		cfg:     cfg,
		flushCh: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	s.wg.Add(1)
	go s.flushLoop()
	return s, nil
}

// Record queues one capture record.
func (s *Sink) Record(rec Record) {
	s.mu.Lock()
	s.pending = append(s.pending, rec)
	full := len(s.pending) >= s.cfg.MaxRecords
	s.mu.Unlock()
	if full {
		select {
		case s.flushCh <- struct{}{}:
		default:
		}
	}
}

// Close stops the flush goroutine and uploads whatever is still pending.
func (s *Sink) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	s.wg.Wait()
	return s.Flush(ctx)
}

func (s *Sink) flushLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
		case <-s.flushCh:
		}
		if err := s.Flush(context.Background()); err != nil {
			s.log.Warn("flush captures", "error", err)
		}
	}
}

// Flush uploads all pending records as one object.
func (s *Sink) Flush(ctx context.Context) error {
	s.mu.Lock()
	if len(s.pending) == 0 {
		s.mu.Unlock()
		return nil
	}
	records := s.pending
	s.pending = nil
	seq := s.seq
	s.seq++
	s.mu.Unlock()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("encode capture record: %w", err)
		}
	}
	key := s.objectKey(records[0].Time, seq)
	if err := s.store.Put(ctx, key, buf.Bytes()); err != nil {
		s.mu.Lock()
		s.pending = append(records, s.pending...)
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Sink) objectKey(ts time.Time, seq uint64) string {
	return fmt.Sprintf("%s/%s-%06d.ndjson", s.cfg.Prefix, ts.UTC().Format("20060102T150405"), seq)
}
