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
	"log/slog"

	"github.com/novatechflow/kafgate/pkg/filter"
	"github.com/novatechflow/kafgate/pkg/protocol"
)

// Audit logs every decoded frame at debug level and counts frames per API.
// It opts in on every key/version the codec can decode, which forces all of
// that traffic onto the decode path; enable it for inspection, not for raw
// throughput. Undecodable pairs keep travelling opaque.
type Audit struct {
	log *slog.Logger
}

func NewAudit(log *slog.Logger) *Audit { return &Audit{log: log} }

func (f *Audit) Name() string { return "audit" }

func (f *Audit) ShouldHandleRequest(apiKey, apiVersion int16) bool {
	return protocol.Decodable(apiKey, apiVersion)
}

func (f *Audit) ShouldHandleResponse(apiKey, apiVersion int16) bool {
	return protocol.Decodable(apiKey, apiVersion)
}

func (f *Audit) OnRequest(ctx *filter.RequestContext) (*filter.RequestOutcome, error) {
	api := protocol.APIKeyName(ctx.APIKey)
	clientID := ""
	if ctx.ClientID != nil {
		clientID = *ctx.ClientID
	}
	f.log.Debug("request",
		"api", api,
		"version", ctx.APIVersion,
		"correlation_id", ctx.CorrelationID,
		"client_id", clientID,
	)
	auditFrames.WithLabelValues(api, "request").Inc()
	return ctx.Forward(), nil
}

func (f *Audit) OnResponse(ctx *filter.ResponseContext) (*filter.ResponseOutcome, error) {
	api := protocol.APIKeyName(ctx.APIKey)
	f.log.Debug("response",
		"api", api,
		"version", ctx.APIVersion,
		"correlation_id", ctx.CorrelationID,
	)
	auditFrames.WithLabelValues(api, "response").Inc()
	return ctx.Forward(), nil
}
