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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/twmb/franz-go/pkg/kmsg"

	"github.com/novatechflow/kafgate/pkg/filter"
	"github.com/novatechflow/kafgate/pkg/protocol"
)

// ErrSessionClosed is delivered to pending upstream replies when the
// connection tears down before the broker answers.
var ErrSessionClosed = errors.New("session closed")

var (
	errFilterRequestedClose = errors.New("filter requested connection close")
	errPendingWithoutDefer  = errors.New("filter returned pending result without deferring")
)

// proxyClientID marks requests the proxy itself injects upstream.
const proxyClientID = "kafgate"

type eventKind int

const (
	evRequest eventKind = iota
	evResponse
	evRequestDone
	evResponseDone
)

type event struct {
	kind        eventKind
	req         *inflightRequest
	resp        *inflightResponse
	outcome     *filter.RequestOutcome
	respOutcome *filter.ResponseOutcome
	err         error
}

// inflightRequest is a client request somewhere between arrival and the
// upstream socket. Opaque frames carry only the raw payload; decoded ones
// carry the parsed header and body. A request parks in one per-filter queue
// at a time and moves forward only from the queue head, so frames leave
// every filter position in the order they arrived.
type inflightRequest struct {
	opaque *protocol.Frame

	header *protocol.RequestHeader
	body   kmsg.Request

	apiKey     int16
	apiVersion int16
	corrID     int32

	station int
	ready   bool
	outcome *filter.RequestOutcome
	err     error
}

type inflightResponse struct {
	opaque *protocol.Frame

	apiKey     int16
	apiVersion int16
	corrID     int32
	body       kmsg.Response

	station int
	ready   bool
	outcome *filter.ResponseOutcome
	err     error
}

// engine runs a connection's filter chain. A single sequencer goroutine
// owns all queue state; reader loops and deferred filter completions hand
// it work through the events channel. Writes to the upstream socket are
// mutex guarded because proxy-injected requests bypass the sequencer.
type engine struct {
	log     *slog.Logger
	chain   *filter.Chain
	entries []filter.Entry
	corr    *correlationTable

	client   io.Writer
	upstream io.Writer
	upMu     sync.Mutex

	events chan event
	done   chan struct{}
	fatal  func(error)
	closed atomic.Bool

	// proxyID hands out negative correlation ids for injected requests so
	// they can never collide with client-chosen ids, which Kafka clients
	// allocate counting up from zero.
	proxyID atomic.Int32

	reqQueues  [][]*inflightRequest
	respQueues [][]*inflightResponse
}

func newEngine(log *slog.Logger, chain *filter.Chain, corr *correlationTable, client, upstream io.Writer, done chan struct{}, fatal func(error)) *engine {
	entries := chain.Entries()
	return &engine{
		log:        log,
		chain:      chain,
		entries:    entries,
		corr:       corr,
		client:     client,
		upstream:   upstream,
		events:     make(chan event, 64),
		done:       done,
		fatal:      fatal,
		reqQueues:  make([][]*inflightRequest, len(entries)),
		respQueues: make([][]*inflightResponse, len(entries)),
	}
}

// respEntry maps a response station to its chain entry. Responses traverse
// the chain in reverse, so station 0 is the last filter.
func (e *engine) respEntry(station int) filter.Entry {
	return e.entries[len(e.entries)-1-station]
}

func (e *engine) run() {
	for {
		select {
		case <-e.done:
			return
		case ev := <-e.events:
			e.handle(ev)
		}
	}
}

func (e *engine) handle(ev event) {
	if e.closed.Load() {
		return
	}
	switch ev.kind {
	case evRequest:
		e.arriveRequest(ev.req, 0)
	case evResponse:
		e.arriveResponse(ev.resp, 0)
	case evRequestDone:
		ev.req.ready = true
		ev.req.outcome = ev.outcome
		ev.req.err = ev.err
		e.drainRequests(ev.req.station)
	case evResponseDone:
		ev.resp.ready = true
		ev.resp.outcome = ev.respOutcome
		ev.resp.err = ev.err
		e.drainResponses(ev.resp.station)
	}
}

func (e *engine) submitRequest(m *inflightRequest) bool {
	select {
	case e.events <- event{kind: evRequest, req: m}:
		return true
	case <-e.done:
		return false
	}
}

func (e *engine) submitResponse(m *inflightResponse) bool {
	select {
	case e.events <- event{kind: evResponse, resp: m}:
		return true
	case <-e.done:
		return false
	}
}

// deliver posts a completion event without blocking the sequencer. Filters
// that resolve synchronously call this from inside an invocation, where a
// blocking send on the events channel would deadlock.
func (e *engine) deliver(ev event) {
	select {
	case e.events <- ev:
	case <-e.done:
	default:
		go func() {
			select {
			case e.events <- ev:
			case <-e.done:
			}
		}()
	}
}

func (e *engine) arriveRequest(m *inflightRequest, station int) {
	if station >= len(e.entries) {
		e.finishRequest(m)
		return
	}
	m.station = station
	m.ready = false
	m.outcome = nil
	m.err = nil
	e.reqQueues[station] = append(e.reqQueues[station], m)
	e.invokeRequest(m)
	e.drainRequests(station)
}

func (e *engine) invokeRequest(m *inflightRequest) {
	if m.opaque != nil {
		// Opaque frames hold their queue slot but see no filter.
		m.ready = true
		return
	}
	ctx := filter.NewRequestContext(m.header, m.body, filter.RequestHooks{
		Deliver: func(out *filter.RequestOutcome, err error) {
			e.deliver(event{kind: evRequestDone, req: m, outcome: out, err: err})
		},
		SendUpstream: e.sendUpstream,
	})
	out, err := e.entries[m.station].Invoker.InvokeRequest(ctx)
	switch {
	case err != nil:
		m.ready = true
		m.err = err
	case out == nil:
		m.ready = true
		m.err = fmt.Errorf("filter %q returned no result", e.entries[m.station].Filter.Name())
	case out.Action() == filter.ActionPending:
		if !ctx.Deferred() {
			m.ready = true
			m.err = errPendingWithoutDefer
		}
		// Deferred: the completion delivers evRequestDone later.
	default:
		m.ready = true
		m.outcome = out
	}
}

func (e *engine) drainRequests(station int) {
	q := e.reqQueues[station]
	for len(q) > 0 && q[0].ready && !e.closed.Load() {
		m := q[0]
		q = q[1:]
		e.reqQueues[station] = q
		e.applyRequest(m)
		q = e.reqQueues[station]
	}
}

func (e *engine) applyRequest(m *inflightRequest) {
	station := m.station
	if m.err != nil {
		e.fail(fmt.Errorf("filter %q: request %s: %w", e.entries[station].Filter.Name(), protocol.APIKeyName(m.apiKey), m.err))
		return
	}
	if m.outcome == nil {
		// Opaque pass-through.
		e.arriveRequest(m, station+1)
		return
	}
	out := m.outcome
	name := e.entries[station].Filter.Name()
	proxyFilterOutcomes.WithLabelValues(name, out.Action().String()).Inc()
	switch out.Action() {
	case filter.ActionForward:
		e.arriveRequest(m, station+1)
	case filter.ActionForwardMutated:
		if h := out.Header(); h != nil {
			m.header = h
		}
		if b := out.Body(); b != nil {
			m.body = b
		}
		e.arriveRequest(m, station+1)
	case filter.ActionShortCircuit:
		e.shortCircuit(m, out.Response())
	case filter.ActionClose:
		e.fail(fmt.Errorf("filter %q: %w", name, errFilterRequestedClose))
	default:
		e.fail(fmt.Errorf("filter %q returned invalid request action %v", name, out.Action()))
	}
}

// finishRequest records the correlation and writes the request upstream.
// The decode decision for the eventual response is taken here, against the
// chain as a whole, so pipelined responses know their path before they
// arrive.
func (e *engine) finishRequest(m *inflightRequest) {
	var payload []byte
	if m.opaque != nil {
		payload = m.opaque.Payload
	} else {
		var err error
		payload, err = (&protocol.DecodedRequest{Header: m.header, Body: m.body}).Payload()
		if err != nil {
			e.fail(fmt.Errorf("re-encode %s request: %w", protocol.APIKeyName(m.apiKey), err))
			return
		}
	}
	e.corr.Record(m.corrID, Correlation{
		APIKey:     m.apiKey,
		APIVersion: m.apiVersion,
		Decode:     e.chain.WantsResponse(m.apiKey, m.apiVersion),
	})
	if err := e.writeUpstream(payload); err != nil {
		e.corr.Resolve(m.corrID)
		e.fail(fmt.Errorf("write upstream: %w", err))
	}
}

// shortCircuit answers the client directly. The request never reaches the
// upstream and no correlation is recorded, so later filters never see it
// as a response either.
func (e *engine) shortCircuit(m *inflightRequest, body kmsg.Response) {
	if body == nil {
		e.fail(errors.New("short-circuit outcome carried no response"))
		return
	}
	body.SetVersion(m.apiVersion)
	payload, err := (&protocol.DecodedResponse{
		APIKey:        m.apiKey,
		APIVersion:    m.apiVersion,
		CorrelationID: m.corrID,
		Body:          body,
	}).Payload()
	if err != nil {
		e.fail(fmt.Errorf("encode short-circuit %s response: %w", protocol.APIKeyName(m.apiKey), err))
		return
	}
	if err := protocol.WriteFrame(e.client, payload); err != nil {
		e.fail(fmt.Errorf("write client: %w", err))
		return
	}
	proxyShortCircuits.Inc()
}

func (e *engine) arriveResponse(m *inflightResponse, station int) {
	if station >= len(e.entries) {
		e.finishResponse(m)
		return
	}
	m.station = station
	m.ready = false
	m.outcome = nil
	m.err = nil
	e.respQueues[station] = append(e.respQueues[station], m)
	e.invokeResponse(m)
	e.drainResponses(station)
}

func (e *engine) invokeResponse(m *inflightResponse) {
	if m.opaque != nil {
		m.ready = true
		return
	}
	ctx := filter.NewResponseContext(m.apiKey, m.apiVersion, m.corrID, m.body, filter.ResponseHooks{
		Deliver: func(out *filter.ResponseOutcome, err error) {
			e.deliver(event{kind: evResponseDone, resp: m, respOutcome: out, err: err})
		},
		SendUpstream: e.sendUpstream,
	})
	out, err := e.respEntry(m.station).Invoker.InvokeResponse(ctx)
	switch {
	case err != nil:
		m.ready = true
		m.err = err
	case out == nil:
		m.ready = true
		m.err = fmt.Errorf("filter %q returned no result", e.respEntry(m.station).Filter.Name())
	case out.Action() == filter.ActionPending:
		if !ctx.Deferred() {
			m.ready = true
			m.err = errPendingWithoutDefer
		}
	default:
		m.ready = true
		m.outcome = out
	}
}

func (e *engine) drainResponses(station int) {
	q := e.respQueues[station]
	for len(q) > 0 && q[0].ready && !e.closed.Load() {
		m := q[0]
		q = q[1:]
		e.respQueues[station] = q
		e.applyResponse(m)
		q = e.respQueues[station]
	}
}

func (e *engine) applyResponse(m *inflightResponse) {
	station := m.station
	if m.err != nil {
		e.fail(fmt.Errorf("filter %q: response %s: %w", e.respEntry(station).Filter.Name(), protocol.APIKeyName(m.apiKey), m.err))
		return
	}
	if m.outcome == nil {
		e.arriveResponse(m, station+1)
		return
	}
	out := m.outcome
	name := e.respEntry(station).Filter.Name()
	proxyFilterOutcomes.WithLabelValues(name, out.Action().String()).Inc()
	switch out.Action() {
	case filter.ActionForward:
		e.arriveResponse(m, station+1)
	case filter.ActionForwardMutated:
		if b := out.Body(); b != nil {
			m.body = b
		}
		e.arriveResponse(m, station+1)
	case filter.ActionClose:
		e.fail(fmt.Errorf("filter %q: %w", name, errFilterRequestedClose))
	default:
		e.fail(fmt.Errorf("filter %q returned invalid response action %v", name, out.Action()))
	}
}

func (e *engine) finishResponse(m *inflightResponse) {
	var payload []byte
	if m.opaque != nil {
		payload = m.opaque.Payload
	} else {
		var err error
		payload, err = (&protocol.DecodedResponse{
			APIKey:        m.apiKey,
			APIVersion:    m.apiVersion,
			CorrelationID: m.corrID,
			Body:          m.body,
		}).Payload()
		if err != nil {
			e.fail(fmt.Errorf("re-encode %s response: %w", protocol.APIKeyName(m.apiKey), err))
			return
		}
	}
	if err := protocol.WriteFrame(e.client, payload); err != nil {
		e.fail(fmt.Errorf("write client: %w", err))
	}
}

// sendUpstream injects a proxy-originated request and returns a channel
// carrying the decoded reply. Safe from any goroutine, including filter
// invocations on the sequencer itself. The reply never enters the filter
// chain.
func (e *engine) sendUpstream(apiVersion int16, req kmsg.Request) <-chan filter.UpstreamReply {
	reply := make(chan filter.UpstreamReply, 1)
	if e.closed.Load() {
		reply <- filter.UpstreamReply{Err: ErrSessionClosed}
		return reply
	}
	req.SetVersion(apiVersion)
	id := e.proxyID.Add(-1)
	clientID := proxyClientID
	payload, err := (&protocol.DecodedRequest{
		Header: &protocol.RequestHeader{
			APIKey:        req.Key(),
			APIVersion:    apiVersion,
			CorrelationID: id,
			ClientID:      &clientID,
		},
		Body: req,
	}).Payload()
	if err != nil {
		reply <- filter.UpstreamReply{Err: fmt.Errorf("encode %s request: %w", protocol.APIKeyName(req.Key()), err)}
		return reply
	}
	e.corr.Record(id, Correlation{
		APIKey:     req.Key(),
		APIVersion: apiVersion,
		Decode:     true,
		Reply:      reply,
	})
	// Teardown drains the table exactly once; if it ran between the
	// closed check and the record, nobody else will answer this entry.
	if e.closed.Load() {
		if _, ok := e.corr.Resolve(id); ok {
			reply <- filter.UpstreamReply{Err: ErrSessionClosed}
		}
		return reply
	}
	if err := e.writeUpstream(payload); err != nil {
		e.corr.Resolve(id)
		reply <- filter.UpstreamReply{Err: err}
		e.fail(fmt.Errorf("write upstream: %w", err))
	}
	return reply
}

func (e *engine) writeUpstream(payload []byte) error {
	e.upMu.Lock()
	defer e.upMu.Unlock()
	return protocol.WriteFrame(e.upstream, payload)
}

// fail tears the connection down exactly once.
func (e *engine) fail(err error) {
	if e.closed.CompareAndSwap(false, true) {
		e.fatal(err)
	}
}
