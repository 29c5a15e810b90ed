// Copyright 2024 Ant Group Co., Ltd.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package isolator

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the engine-wide counters/gauges the agent scrapes; they are
// intentionally free-standing (not wired to any particular *Engine
// instance) so the agent process registers them once at startup the way
// any other prometheus collector is registered.
var (
	ContainersPrepared = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cgroups2_isolator",
		Name:      "containers_prepared_total",
		Help:      "Total number of containers successfully prepared.",
	})
	ContainersCleaned = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cgroups2_isolator",
		Name:      "containers_cleaned_total",
		Help:      "Total number of containers successfully cleaned up.",
	})
	OrphansRecovered = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cgroups2_isolator",
		Name:      "orphans_recovered_total",
		Help:      "Total number of orphan cgroups recovered at startup.",
	})
	LimitationsDelivered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cgroups2_isolator",
		Name:      "limitations_delivered_total",
		Help:      "Total number of Limitation events delivered to the agent, by controller.",
	}, []string{"controller"})
	DestroyFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cgroups2_isolator",
		Name:      "destroy_failures_total",
		Help:      "Total number of destroy attempts that timed out with pids remaining.",
	})
)

// RegisterMetrics registers every isolator metric on reg. Call once at
// process startup.
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		ContainersPrepared,
		ContainersCleaned,
		OrphansRecovered,
		LimitationsDelivered,
		DestroyFailures,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
