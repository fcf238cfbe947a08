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
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/novatechflow/kafgate/pkg/discovery"
	"github.com/novatechflow/kafgate/pkg/filter"
	"github.com/novatechflow/kafgate/pkg/protocol"
)

const defaultDialTimeout = 5 * time.Second

// Server accepts Kafka client connections and proxies each one to an
// upstream broker through a fresh filter chain. Filters keep per-connection
// state, so NewChain is called once per accepted connection.
type Server struct {
	Addr        string
	Registry    discovery.Registry
	NewChain    func() (*filter.Chain, error)
	Logger      *slog.Logger
	DialTimeout time.Duration

	listener net.Listener
	wg       sync.WaitGroup
}

// ListenAndServe starts accepting client connections. It returns when the
// context is cancelled or the listener fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.Registry == nil {
		return errors.New("proxy.Server requires a Registry")
	}
	if s.NewChain == nil {
		return errors.New("proxy.Server requires a NewChain factory")
	}
	log := s.logger()
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	s.listener = ln
	log.Info("proxy listening", "addr", ln.Addr().String())

	go func() {
		<-ctx.Done()
		_ = s.listener.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if ne, ok := err.(net.Error); ok && ne.Temporary() {
				log.Warn("accept temporary error", "error", err)
				continue
			}
			return err
		}
		s.wg.Add(1)
		go func(c net.Conn) {
			defer s.wg.Done()
			s.handleConnection(ctx, c)
		}(conn)
	}
}

// Wait blocks until all connection goroutines exit.
func (s *Server) Wait() {
	s.wg.Wait()
}

// ListenAddress returns the actual listener address if the server has started.
func (s *Server) ListenAddress() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.Addr
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	log := s.logger()
	chain, err := s.NewChain()
	if err != nil {
		log.Error("build filter chain", "error", err)
		conn.Close()
		return
	}
	upstream, err := s.dialUpstream(ctx)
	if err != nil {
		log.Warn("dial upstream", "client", conn.RemoteAddr().String(), "error", err)
		proxyUpstreamErrors.Inc()
		s.refuse(conn)
		return
	}
	newSession(log, conn, upstream, chain).run(ctx)
}

func (s *Server) dialUpstream(ctx context.Context) (net.Conn, error) {
	addr, err := s.Registry.Pick(ctx)
	if err != nil {
		return nil, err
	}
	timeout := s.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	dialer := net.Dialer{Timeout: timeout}
	return dialer.DialContext(ctx, "tcp", addr)
}

// refuse answers the client's first request with REQUEST_TIMED_OUT and
// closes. Clients treat the code as retriable, so a proxy that briefly has
// no upstream degrades into client-side retries instead of hard failures.
func (s *Server) refuse(conn net.Conn) {
	defer conn.Close()
	frame, err := protocol.ReadFrame(conn)
	if err != nil {
		return
	}
	req, err := protocol.DecodeRequestFrame(frame.Payload)
	if err != nil {
		return
	}
	body, err := ErrorResponse(req.Body, protocol.REQUEST_TIMED_OUT)
	if err != nil {
		return
	}
	payload, err := (&protocol.DecodedResponse{
		APIKey:        req.Header.APIKey,
		APIVersion:    req.Header.APIVersion,
		CorrelationID: req.Header.CorrelationID,
		Body:          body,
	}).Payload()
	if err != nil {
		return
	}
	_ = protocol.WriteFrame(conn, payload)
}
