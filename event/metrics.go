// Copyright 2025 Govex DAO
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

package event

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type eventMetrics struct {
	eventsTotal   *prometheus.CounterVec
	droppedEvents *prometheus.CounterVec
	subscribers   *prometheus.GaugeVec
}

func (e *EventBus) initMetrics(promRegistry prometheus.Registerer) {
	promautoFactory := promauto.With(promRegistry)
	e.metrics = &eventMetrics{
		eventsTotal: promautoFactory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "futarchy_events_published_total",
				Help: "total events published per event type",
			},
			[]string{"type"},
		),
		droppedEvents: promautoFactory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "futarchy_events_dropped_total",
				Help: "async events dropped due to full queue per event type",
			},
			[]string{"type"},
		),
		subscribers: promautoFactory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "futarchy_event_subscribers",
				Help: "current count of event subscribers per event type",
			},
			[]string{"type"},
		),
	}
}
