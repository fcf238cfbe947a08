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

	"github.com/twmb/franz-go/pkg/kmsg"

	"github.com/novatechflow/kafgate/pkg/protocol"
)

// RequestHooks binds a RequestContext to the engine driving it. Deliver
// receives the outcome of a deferred invocation; SendUpstream issues a
// proxy-originated request on the session's upstream connection.
type RequestHooks struct {
	Deliver      func(*RequestOutcome, error)
	SendUpstream func(apiVersion int16, req kmsg.Request) <-chan UpstreamReply
}

// RequestContext is handed to a filter for one invocation on one request.
// It is single-use: valid only until the invocation's outcome is applied.
type RequestContext struct {
	APIKey        int16
	APIVersion    int16
	CorrelationID int32
	ClientID      *string
	Header        *protocol.RequestHeader
	Body          kmsg.Request

	hooks    RequestHooks
	deferred *Completion
}

// NewRequestContext builds an invocation context. The engine calls this per
// filter invocation; tests may call it directly with their own hooks.
func NewRequestContext(header *protocol.RequestHeader, body kmsg.Request, hooks RequestHooks) *RequestContext {
	return &RequestContext{
		APIKey:        header.APIKey,
		APIVersion:    header.APIVersion,
		CorrelationID: header.CorrelationID,
		ClientID:      header.ClientID,
		Header:        header,
		Body:          body,
		hooks:         hooks,
	}
}

// Forward passes the message on unchanged. The filter must not have mutated
// the header or body in place; mutation goes through ForwardMutated so the
// frame's cached encoding is rebuilt.
func (c *RequestContext) Forward() *RequestOutcome {
	return &RequestOutcome{action: ActionForward}
}

// ForwardMutated passes the message on with a replacement header and/or
// body. A nil header or body keeps the current one.
func (c *RequestContext) ForwardMutated(header *protocol.RequestHeader, body kmsg.Request) *RequestOutcome {
	return &RequestOutcome{action: ActionForwardMutated, header: header, body: body}
}

// ShortCircuit answers the client with a synthetic response body. The
// upstream and all filters after this one never see the request. The
// response version and correlation id are taken from the request.
func (c *RequestContext) ShortCircuit(body kmsg.Response) *RequestOutcome {
	return &RequestOutcome{action: ActionShortCircuit, response: body}
}

// CloseConnection terminates the session after flushing committed writes.
func (c *RequestContext) CloseConnection() *RequestOutcome {
	return &RequestOutcome{action: ActionClose}
}

// Pending tells the engine the outcome arrives later through the handle
// taken with Defer. Pending without Defer is a filter failure.
func (c *RequestContext) Pending() *RequestOutcome {
	return &RequestOutcome{action: ActionPending}
}

// Defer hands the filter a completion it may resolve from any goroutine
// after returning Pending.
func (c *RequestContext) Defer() *Completion {
	if c.deferred == nil {
		c.deferred = &Completion{deliver: c.hooks.Deliver}
	}
	return c.deferred
}

// Deferred reports whether the filter took a completion handle.
func (c *RequestContext) Deferred() bool { return c.deferred != nil }

// SendUpstream issues a proxy-originated request on the upstream connection
// and delivers the decoded response on the returned channel. The reply
// never reaches the client.
func (c *RequestContext) SendUpstream(apiVersion int16, req kmsg.Request) <-chan UpstreamReply {
	if c.hooks.SendUpstream == nil {
		ch := make(chan UpstreamReply, 1)
		ch <- UpstreamReply{Err: errors.New("no upstream sender bound")}
		return ch
	}
	return c.hooks.SendUpstream(apiVersion, req)
}

// ResponseHooks binds a ResponseContext to the engine driving it.
type ResponseHooks struct {
	Deliver      func(*ResponseOutcome, error)
	SendUpstream func(apiVersion int16, req kmsg.Request) <-chan UpstreamReply
}

// ResponseContext is handed to a filter for one invocation on one response.
// Responses do not carry api key or version on the wire; both come from the
// correlation record of the originating request.
type ResponseContext struct {
	APIKey        int16
	APIVersion    int16
	CorrelationID int32
	Body          kmsg.Response

	hooks    ResponseHooks
	deferred *ResponseCompletion
}

func NewResponseContext(apiKey, apiVersion int16, correlationID int32, body kmsg.Response, hooks ResponseHooks) *ResponseContext {
	return &ResponseContext{
		APIKey:        apiKey,
		APIVersion:    apiVersion,
		CorrelationID: correlationID,
		Body:          body,
		hooks:         hooks,
	}
}

func (c *ResponseContext) Forward() *ResponseOutcome {
	return &ResponseOutcome{action: ActionForward}
}

// ForwardMutated passes the response on with a replacement body. The
// response header holds only the correlation id, which filters cannot
// change.
func (c *ResponseContext) ForwardMutated(body kmsg.Response) *ResponseOutcome {
	return &ResponseOutcome{action: ActionForwardMutated, body: body}
}

func (c *ResponseContext) CloseConnection() *ResponseOutcome {
	return &ResponseOutcome{action: ActionClose}
}

func (c *ResponseContext) Pending() *ResponseOutcome {
	return &ResponseOutcome{action: ActionPending}
}

func (c *ResponseContext) Defer() *ResponseCompletion {
	if c.deferred == nil {
		c.deferred = &ResponseCompletion{deliver: c.hooks.Deliver}
	}
	return c.deferred
}

func (c *ResponseContext) Deferred() bool { return c.deferred != nil }

// SendUpstream issues a proxy-originated request on the upstream connection
// and delivers the decoded response on the returned channel. The reply
// never reaches the client.
func (c *ResponseContext) SendUpstream(apiVersion int16, req kmsg.Request) <-chan UpstreamReply {
	if c.hooks.SendUpstream == nil {
		ch := make(chan UpstreamReply, 1)
		ch <- UpstreamReply{Err: errors.New("no upstream sender bound")}
		return ch
	}
	return c.hooks.SendUpstream(apiVersion, req)
}
