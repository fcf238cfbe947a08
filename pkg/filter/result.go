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

package filter

import (
	"errors"
	"sync"

	"github.com/twmb/franz-go/pkg/kmsg"

	"github.com/novatechflow/kafgate/pkg/protocol"
)

// Action names what the chain engine should do with a message after one
// filter invocation.
type Action int

const (
	// ActionForward passes the message on unchanged.
	ActionForward Action = iota
	// ActionForwardMutated passes the message on with a replacement
	// header and/or body.
	ActionForwardMutated
	// ActionShortCircuit answers the client directly with a synthetic
	// response. Request side only; the upstream and all later filters
	// never see the message.
	ActionShortCircuit
	// ActionClose terminates the connection after flushing committed
	// writes.
	ActionClose
	// ActionPending marks the invocation as deferred; the outcome
	// arrives later through the completion handle.
	ActionPending
)

func (a Action) String() string {
	switch a {
	case ActionForward:
		return "forward"
	case ActionForwardMutated:
		return "forward_mutated"
	case ActionShortCircuit:
		return "short_circuit"
	case ActionClose:
		return "close"
	case ActionPending:
		return "pending"
	default:
		return "unknown"
	}
}

// RequestOutcome is the result of one filter invocation on one request.
// Build outcomes through RequestContext or Completion methods; the zero
// value is not meaningful.
type RequestOutcome struct {
	action   Action
	header   *protocol.RequestHeader
	body     kmsg.Request
	response kmsg.Response
}

func (o *RequestOutcome) Action() Action { return o.action }

// Header returns the replacement header for ActionForwardMutated, nil to
// keep the current one.
func (o *RequestOutcome) Header() *protocol.RequestHeader { return o.header }

// Body returns the replacement body for ActionForwardMutated, nil to keep
// the current one.
func (o *RequestOutcome) Body() kmsg.Request { return o.body }

// Response returns the synthetic response for ActionShortCircuit.
func (o *RequestOutcome) Response() kmsg.Response { return o.response }

// ResponseOutcome is the result of one filter invocation on one response.
// Responses cannot short-circuit: the upstream call already happened.
type ResponseOutcome struct {
	action Action
	body   kmsg.Response
}

func (o *ResponseOutcome) Action() Action { return o.action }

// Body returns the replacement body for ActionForwardMutated.
func (o *ResponseOutcome) Body() kmsg.Response { return o.body }

// UpstreamReply delivers the decoded response (or the failure) of a
// proxy-originated upstream request issued via SendUpstream.
type UpstreamReply struct {
	Response kmsg.Response
	Err      error
}

var errResolvedTwice = errors.New("completion resolved more than once")

// Completion resolves one deferred request invocation. Exactly one resolve
// call is allowed, from any goroutine; a second resolve is a filter failure
// that closes the connection.
type Completion struct {
	mu       sync.Mutex
	resolved bool
	deliver  func(*RequestOutcome, error)
}

func (c *Completion) resolve(outcome *RequestOutcome, err error) {
	c.mu.Lock()
	already := c.resolved
	c.resolved = true
	c.mu.Unlock()
	if already {
		c.deliver(nil, errResolvedTwice)
		return
	}
	c.deliver(outcome, err)
}

func (c *Completion) Forward() {
	c.resolve(&RequestOutcome{action: ActionForward}, nil)
}

func (c *Completion) ForwardMutated(header *protocol.RequestHeader, body kmsg.Request) {
	c.resolve(&RequestOutcome{action: ActionForwardMutated, header: header, body: body}, nil)
}

func (c *Completion) ShortCircuit(body kmsg.Response) {
	c.resolve(&RequestOutcome{action: ActionShortCircuit, response: body}, nil)
}

func (c *Completion) CloseConnection() {
	c.resolve(&RequestOutcome{action: ActionClose}, nil)
}

// Fail reports a filter-local failure; the connection closes.
func (c *Completion) Fail(err error) {
	c.resolve(nil, err)
}

// ResponseCompletion resolves one deferred response invocation.
type ResponseCompletion struct {
	mu       sync.Mutex
	resolved bool
	deliver  func(*ResponseOutcome, error)
}

func (c *ResponseCompletion) resolve(outcome *ResponseOutcome, err error) {
	c.mu.Lock()
	already := c.resolved
	c.resolved = true
	c.mu.Unlock()
	if already {
		c.deliver(nil, errResolvedTwice)
		return
	}
	c.deliver(outcome, err)
}

func (c *ResponseCompletion) Forward() {
	c.resolve(&ResponseOutcome{action: ActionForward}, nil)
}

func (c *ResponseCompletion) ForwardMutated(body kmsg.Response) {
	c.resolve(&ResponseOutcome{action: ActionForwardMutated, body: body}, nil)
}

func (c *ResponseCompletion) CloseConnection() {
	c.resolve(&ResponseOutcome{action: ActionClose}, nil)
}

func (c *ResponseCompletion) Fail(err error) {
	c.resolve(nil, err)
}
