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

package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/novatechflow/kafgate/pkg/filter"
	"github.com/novatechflow/kafgate/pkg/protocol"
)

// session ties one client connection to one upstream connection and runs
// the filter chain between them. Three goroutines cooperate: the two
// reader loops and the engine sequencer. Any of them can trigger teardown;
// the first one wins and the rest unwind through closed sockets and the
// done channel.
type session struct {
	log      *slog.Logger
	client   net.Conn
	upstream net.Conn
	chain    *filter.Chain
	corr     *correlationTable
	engine   *engine

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func newSession(log *slog.Logger, client, upstream net.Conn, chain *filter.Chain) *session {
	s := &session{
		log:      log,
		client:   client,
		upstream: upstream,
		chain:    chain,
		done:     make(chan struct{}),
	}
	s.corr = newCorrelationTable(log)
	s.engine = newEngine(log, chain, s.corr, client, upstream, s.done, s.teardown)
	return s
}

func (s *session) run(ctx context.Context) {
	proxyConnectionsActive.Inc()
	defer proxyConnectionsActive.Dec()

	go func() {
		select {
		case <-ctx.Done():
			s.teardown(ctx.Err())
		case <-s.done:
		}
	}()

	s.wg.Add(3)
	go func() {
		defer s.wg.Done()
		s.engine.run()
	}()
	go func() {
		defer s.wg.Done()
		s.clientLoop()
	}()
	go func() {
		defer s.wg.Done()
		s.upstreamLoop()
	}()
	s.wg.Wait()
}

// teardown closes both sockets, wakes the sequencer, and answers every
// pending in-process reply with ErrSessionClosed. Safe to call from any
// goroutine, any number of times.
func (s *session) teardown(err error) {
	s.once.Do(func() {
		s.engine.closed.Store(true)
		close(s.done)
		s.client.Close()
		s.upstream.Close()
		for _, c := range s.corr.Drain() {
			if c.Reply != nil {
				c.Reply <- filter.UpstreamReply{Err: ErrSessionClosed}
			}
		}
		switch {
		case err == nil, errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed), errors.Is(err, context.Canceled):
			s.log.Debug("connection closed", "client", s.client.RemoteAddr().String())
			proxyConnectionErrors.WithLabelValues("eof").Inc()
		case errors.Is(err, errFilterRequestedClose):
			s.log.Info("filter closed connection", "client", s.client.RemoteAddr().String(), "error", err)
			proxyConnectionErrors.WithLabelValues("filter_close").Inc()
		default:
			s.log.Warn("connection failed", "client", s.client.RemoteAddr().String(), "error", err)
			proxyConnectionErrors.WithLabelValues("error").Inc()
		}
	})
}

// clientLoop reads request frames, decides the decode-or-opaque path per
// frame, and hands each one to the sequencer in arrival order.
func (s *session) clientLoop() {
	for {
		frame, err := protocol.ReadFrame(s.client)
		if err != nil {
			s.teardown(err)
			return
		}
		apiKey, apiVersion, corrID, err := protocol.PeekRequestMeta(frame.Payload)
		if err != nil {
			s.teardown(fmt.Errorf("malformed request frame: %w", err))
			return
		}
		var m *inflightRequest
		if s.chain.WantsRequest(apiKey, apiVersion) {
			req, err := protocol.DecodeRequestFrame(frame.Payload)
			if err != nil {
				s.teardown(fmt.Errorf("decode %s v%d request: %w", protocol.APIKeyName(apiKey), apiVersion, err))
				return
			}
			m = &inflightRequest{
				header:     req.Header,
				body:       req.Body,
				apiKey:     apiKey,
				apiVersion: apiVersion,
				corrID:     corrID,
			}
			proxyFrames.WithLabelValues("request", "decoded").Inc()
		} else {
			m = &inflightRequest{
				opaque:     frame,
				apiKey:     apiKey,
				apiVersion: apiVersion,
				corrID:     corrID,
			}
			proxyFrames.WithLabelValues("request", "opaque").Inc()
		}
		if !s.engine.submitRequest(m) {
			return
		}
	}
}

// upstreamLoop reads response frames and routes them by correlation id.
// Replies to proxy-injected requests are decoded and handed straight to
// the waiting filter; everything else enters the response chain on the
// path chosen when the request went out.
func (s *session) upstreamLoop() {
	for {
		frame, err := protocol.ReadFrame(s.upstream)
		if err != nil {
			s.teardown(err)
			return
		}
		corrID, err := protocol.PeekCorrelationID(frame.Payload)
		if err != nil {
			s.teardown(fmt.Errorf("malformed response frame: %w", err))
			return
		}
		c, ok := s.corr.Resolve(corrID)
		if !ok {
			s.teardown(fmt.Errorf("response with unknown correlation id %d", corrID))
			return
		}
		if c.Reply != nil {
			resp, err := protocol.DecodeResponseFrame(frame.Payload, c.APIKey, c.APIVersion)
			if err != nil {
				c.Reply <- filter.UpstreamReply{Err: err}
				s.teardown(fmt.Errorf("decode %s v%d response: %w", protocol.APIKeyName(c.APIKey), c.APIVersion, err))
				return
			}
			c.Reply <- filter.UpstreamReply{Response: resp.Body}
			continue
		}
		var m *inflightResponse
		if c.Decode {
			resp, err := protocol.DecodeResponseFrame(frame.Payload, c.APIKey, c.APIVersion)
			if err != nil {
				s.teardown(fmt.Errorf("decode %s v%d response: %w", protocol.APIKeyName(c.APIKey), c.APIVersion, err))
				return
			}
			m = &inflightResponse{
				apiKey:     c.APIKey,
				apiVersion: c.APIVersion,
				corrID:     corrID,
				body:       resp.Body,
			}
			proxyFrames.WithLabelValues("response", "decoded").Inc()
		} else {
			m = &inflightResponse{
				opaque:     frame,
				apiKey:     c.APIKey,
				apiVersion: c.APIVersion,
				corrID:     corrID,
			}
			proxyFrames.WithLabelValues("response", "opaque").Inc()
		}
		if !s.engine.submitResponse(m) {
			return
		}
	}
}
