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
	"time"

	"github.com/novatechflow/kafgate/pkg/filter"
	"github.com/novatechflow/kafgate/pkg/protocol"
)

// ProduceDelay holds every Produce request for a fixed duration before
// forwarding it. Useful for rehearsing client timeout and retry behavior
// against an otherwise healthy cluster.
type ProduceDelay struct {
	delay time.Duration
}

func NewProduceDelay(delay time.Duration) (*ProduceDelay, error) {
	if delay <= 0 {
		return nil, errors.New("produce delay must be positive")
	}
	return &ProduceDelay{delay: delay}, nil
}

func (f *ProduceDelay) Name() string  { return "delay" }
func (f *ProduceDelay) APIKey() int16 { return protocol.APIKeyProduce }

func (f *ProduceDelay) OnAPIRequest(ctx *filter.RequestContext) (*filter.RequestOutcome, error) {
	completion := ctx.Defer()
	time.AfterFunc(f.delay, completion.Forward)
	return ctx.Pending(), nil
}
