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

// Package builtin provides the filters shipped with the proxy.
package builtin

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/novatechflow/kafgate/pkg/capture"
	"github.com/novatechflow/kafgate/pkg/filter"
)

// Config carries settings shared by the built-in filters. Each filter picks
// out what it needs; New reports which settings are missing.
type Config struct {
	Log            *slog.Logger
	AdvertisedHost string
	AdvertisedPort int32
	DeniedAPIs     []int16
	ProduceDelay   time.Duration
	Sink           *capture.Sink
}

func (c Config) logger() *slog.Logger {
	if c.Log != nil {
		return c.Log
	}
	return slog.Default()
}

// New builds a single built-in filter by name.
func New(name string, cfg Config) (filter.Filter, error) {
	switch name {
	case "clamp":
		return NewAPIVersionsClamp(), nil
	case "rewrite":
		return NewAddressRewrite(cfg.AdvertisedHost, cfg.AdvertisedPort)
	case "deny":
		return NewDeny(cfg.DeniedAPIs)
	case "audit":
		return NewAudit(cfg.logger()), nil
	case "delay":
		return NewProduceDelay(cfg.ProduceDelay)
	case "capture":
		return NewCapture(cfg.Sink)
	default:
		return nil, fmt.Errorf("unknown filter %q (known: %s)", name, strings.Join(Names(), ", "))
	}
}

// Names lists the built-in filter names.
func Names() []string {
	return []string{"audit", "capture", "clamp", "delay", "deny", "rewrite"}
}

// Build constructs the named filters in chain order.
func Build(names []string, cfg Config) ([]filter.Filter, error) {
	filters := make([]filter.Filter, 0, len(names))
	for _, name := range names {
		f, err := New(name, cfg)
		if err != nil {
			return nil, fmt.Errorf("filter %q: %w", name, err)
		}
		filters = append(filters, f)
	}
	return filters, nil
}
