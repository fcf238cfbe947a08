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
	"errors"

	"github.com/twmb/franz-go/pkg/kmsg"

	"github.com/novatechflow/kafgate/pkg/filter"
	"github.com/novatechflow/kafgate/pkg/protocol"
)

// AddressRewrite replaces broker addresses in Metadata and FindCoordinator
// responses with the proxy's advertised address, so clients keep all their
// connections on the proxy instead of dialing brokers directly.
type AddressRewrite struct {
	host string
	port int32
}

func NewAddressRewrite(host string, port int32) (*AddressRewrite, error) {
	if host == "" || port <= 0 {
		return nil, errors.New("address rewrite requires an advertised host and port")
	}
	return &AddressRewrite{host: host, port: port}, nil
}

func (f *AddressRewrite) Name() string { return "rewrite" }

func (f *AddressRewrite) ShouldHandleResponse(apiKey, apiVersion int16) bool {
	return apiKey == protocol.APIKeyMetadata || apiKey == protocol.APIKeyFindCoordinator
}

func (f *AddressRewrite) OnResponse(ctx *filter.ResponseContext) (*filter.ResponseOutcome, error) {
	switch resp := ctx.Body.(type) {
	case *kmsg.MetadataResponse:
		for i := range resp.Brokers {
			resp.Brokers[i].Host = f.host
			resp.Brokers[i].Port = f.port
		}
		return ctx.ForwardMutated(resp), nil
	case *kmsg.FindCoordinatorResponse:
		resp.Host = f.host
		resp.Port = f.port
		for i := range resp.Coordinators {
			resp.Coordinators[i].Host = f.host
			resp.Coordinators[i].Port = f.port
		}
		return ctx.ForwardMutated(resp), nil
	}
	return ctx.Forward(), nil
}
