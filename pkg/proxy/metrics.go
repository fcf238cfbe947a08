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

import "github.com/prometheus/client_golang/prometheus"

var (
	proxyConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "kafgate_connections_active",
		Help: "Number of client connections currently proxied.",
	})
	proxyFrames = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kafgate_frames_total",
		Help: "Count of frames handled, labeled by direction and decode path.",
	}, []string{"direction", "path"})
	proxyFilterOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kafgate_filter_outcomes_total",
		Help: "Count of filter invocation outcomes labeled by filter and action.",
	}, []string{"filter", "outcome"})
	proxyShortCircuits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kafgate_short_circuits_total",
		Help: "Count of requests answered by a filter without an upstream round trip.",
	})
	proxyUpstreamErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kafgate_upstream_errors_total",
		Help: "Count of upstream dial and write failures.",
	})
	proxyConnectionErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kafgate_connection_errors_total",
		Help: "Count of sessions torn down by an error, labeled by reason.",
	}, []string{"reason"})
)

func init() {
	prometheus.MustRegister(
		proxyConnectionsActive,
		proxyFrames,
		proxyFilterOutcomes,
		proxyShortCircuits,
		proxyUpstreamErrors,
		proxyConnectionErrors,
	)
}
