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

import "fmt"

// ConfigError reports a filter whose declared capabilities cannot form a
// valid chain. It is raised at construction time, never mid-traffic.
type ConfigError struct {
	Filter string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("filter %q: %s", e.Filter, e.Reason)
}

// Invoker is the uniform invocation surface one chain entry exposes,
// whatever shape the wrapped filter implements. The engine invokes every
// entry unconditionally; the safe wrapper turns invocations the filter did
// not opt into in pass-throughs.
type Invoker interface {
	ShouldHandleRequest(apiKey, apiVersion int16) bool
	ShouldHandleResponse(apiKey, apiVersion int16) bool
	InvokeRequest(*RequestContext) (*RequestOutcome, error)
	InvokeResponse(*ResponseContext) (*ResponseOutcome, error)
}

// buildInvoker classifies one non-composite filter into exactly one shape.
// Ambiguous combinations are configuration errors; guessing a precedence
// would silently drop half the filter's logic.
func buildInvoker(f Filter) (Invoker, error) {
	if _, ok := f.(CompositeFilter); ok {
		return nil, &ConfigError{Filter: f.Name(), Reason: "composite filters must be expanded before invoker construction"}
	}

	apiReq, hasAPIReq := f.(APIRequestFilter)
	apiResp, hasAPIResp := f.(APIResponseFilter)
	genReq, hasGenReq := f.(RequestFilter)
	genResp, hasGenResp := f.(ResponseFilter)

	specific := hasAPIReq || hasAPIResp
	generic := hasGenReq || hasGenResp

	switch {
	case specific && generic:
		return nil, &ConfigError{Filter: f.Name(), Reason: "implements both the specific-rpc and the generic filter shapes"}
	case specific:
		return &safeInvoker{inner: &apiInvoker{request: apiReq, response: apiResp}}, nil
	case generic:
		return &safeInvoker{inner: &genericInvoker{request: genReq, response: genResp}}, nil
	default:
		// Inert placeholder: present in the chain, never invoked.
		return &safeInvoker{inner: noopInvoker{}}, nil
	}
}

// apiInvoker adapts the specific-rpc shape: one api key, every version.
type apiInvoker struct {
	request  APIRequestFilter
	response APIResponseFilter
}

func (i *apiInvoker) ShouldHandleRequest(apiKey, apiVersion int16) bool {
	return i.request != nil && apiKey == i.request.APIKey()
}

func (i *apiInvoker) ShouldHandleResponse(apiKey, apiVersion int16) bool {
	return i.response != nil && apiKey == i.response.APIKey()
}

func (i *apiInvoker) InvokeRequest(ctx *RequestContext) (*RequestOutcome, error) {
	return i.request.OnAPIRequest(ctx)
}

func (i *apiInvoker) InvokeResponse(ctx *ResponseContext) (*ResponseOutcome, error) {
	return i.response.OnAPIResponse(ctx)
}

// genericInvoker adapts the generic shape.
type genericInvoker struct {
	request  RequestFilter
	response ResponseFilter
}

func (i *genericInvoker) ShouldHandleRequest(apiKey, apiVersion int16) bool {
	return i.request != nil && i.request.ShouldHandleRequest(apiKey, apiVersion)
}

func (i *genericInvoker) ShouldHandleResponse(apiKey, apiVersion int16) bool {
	return i.response != nil && i.response.ShouldHandleResponse(apiKey, apiVersion)
}

func (i *genericInvoker) InvokeRequest(ctx *RequestContext) (*RequestOutcome, error) {
	return i.request.OnRequest(ctx)
}

func (i *genericInvoker) InvokeResponse(ctx *ResponseContext) (*ResponseOutcome, error) {
	return i.response.OnResponse(ctx)
}

// noopInvoker handles nothing.
type noopInvoker struct{}

func (noopInvoker) ShouldHandleRequest(apiKey, apiVersion int16) bool  { return false }
func (noopInvoker) ShouldHandleResponse(apiKey, apiVersion int16) bool { return false }

func (noopInvoker) InvokeRequest(ctx *RequestContext) (*RequestOutcome, error) {
	return ctx.Forward(), nil
}

func (noopInvoker) InvokeResponse(ctx *ResponseContext) (*ResponseOutcome, error) {
	return ctx.Forward(), nil
}

// safeInvoker forwards unchanged whenever the wrapped filter did not opt
// into the message at hand. Filter logic only ever sees messages it asked
// for, and the engine needs no per-entry branching.
type safeInvoker struct {
	inner Invoker
}

func (s *safeInvoker) ShouldHandleRequest(apiKey, apiVersion int16) bool {
	return s.inner.ShouldHandleRequest(apiKey, apiVersion)
}

func (s *safeInvoker) ShouldHandleResponse(apiKey, apiVersion int16) bool {
	return s.inner.ShouldHandleResponse(apiKey, apiVersion)
}

func (s *safeInvoker) InvokeRequest(ctx *RequestContext) (*RequestOutcome, error) {
	if !s.inner.ShouldHandleRequest(ctx.APIKey, ctx.APIVersion) {
		return ctx.Forward(), nil
	}
	return s.inner.InvokeRequest(ctx)
}

func (s *safeInvoker) InvokeResponse(ctx *ResponseContext) (*ResponseOutcome, error) {
	if !s.inner.ShouldHandleResponse(ctx.APIKey, ctx.APIVersion) {
		return ctx.Forward(), nil
	}
	return s.inner.InvokeResponse(ctx)
}
