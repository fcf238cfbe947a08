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

	"github.com/novatechflow/kafgate/pkg/filter"
	"github.com/novatechflow/kafgate/pkg/protocol"
	"github.com/novatechflow/kafgate/pkg/proxy"
)

// Deny answers configured APIs with POLICY_VIOLATION without forwarding
// them. Denied requests never reach the broker.
type Deny struct {
	apis map[int16]bool
}

func NewDeny(apis []int16) (*Deny, error) {
	if len(apis) == 0 {
		return nil, errors.New("deny requires at least one api key")
	}
	denied := make(map[int16]bool, len(apis))
	for _, key := range apis {
		denied[key] = true
	}
	return &Deny{apis: denied}, nil
}

func (f *Deny) Name() string { return "deny" }

func (f *Deny) ShouldHandleRequest(apiKey, apiVersion int16) bool {
	return f.apis[apiKey]
}

func (f *Deny) OnRequest(ctx *filter.RequestContext) (*filter.RequestOutcome, error) {
	body, err := proxy.ErrorResponse(ctx.Body, protocol.POLICY_VIOLATION)
	if err != nil {
		// No mirrorable error shape for this API, refuse the hard way.
		return ctx.CloseConnection(), nil
	}
	return ctx.ShortCircuit(body), nil
}
