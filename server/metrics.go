/*
   pluginhost - plugin registry and dependency resolution host
   Copyright (C) 2012-2025  Casey Marshall and Hockeypuck Contributors

   This program is free software: you can redistribute it and/or modify
   it under the terms of the GNU Affero General Public License as published by
   the Free Software Foundation, version 3.

   This program is distributed in the hope that it will be useful,
   but WITHOUT ANY WARRANTY; without even the implied warranty of
   MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
   GNU Affero General Public License for more details.

   You should have received a copy of the GNU Affero General Public License
   along with this program.  If not, see <http://www.gnu.org/licenses/>.
*/

package server

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"pluginhost/plugin/events"
)

var buckets = append(prometheus.DefBuckets, 30, 60, 300, 600, 1800, 3600)

var serverMetrics = struct {
	httpRequestDuration *prometheus.HistogramVec
	pluginsLoaded       prometheus.Counter
	pluginsUnloaded     *prometheus.CounterVec
	pluginsUnsatisfied  prometheus.Counter
	pluginErrors        *prometheus.CounterVec
	pluginsActive       prometheus.Gauge
	loadPassDuration    prometheus.Histogram
	configUpdates       *prometheus.CounterVec
}{
	httpRequestDuration: prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pluginhost",
			Name:      "http_request_duration_seconds",
			Help:      "Time spent generating HTTP responses",
			Buckets:   buckets,
		},
		[]string{"method", "status_code"},
	),
	pluginsLoaded: prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pluginhost",
			Name:      "plugins_loaded",
			Help:      "Plugins loaded since startup",
		},
	),
	pluginsUnloaded: prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pluginhost",
			Name:      "plugins_unloaded",
			Help:      "Plugins unloaded since startup",
		},
		[]string{"reason"},
	),
	pluginsUnsatisfied: prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pluginhost",
			Name:      "plugins_unsatisfied",
			Help:      "Plugins unloaded for a missing dependency since startup",
		},
	),
	pluginErrors: prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pluginhost",
			Name:      "plugin_callback_errors",
			Help:      "Failed plugin load and unload callbacks since startup",
		},
		[]string{"callback"},
	),
	pluginsActive: prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pluginhost",
			Name:      "plugins_active",
			Help:      "Plugins currently loaded",
		},
	),
	loadPassDuration: prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "pluginhost",
			Name:      "load_pass_duration_seconds",
			Help:      "Time spent in plugin load passes",
			Buckets:   buckets,
		},
	),
	configUpdates: prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pluginhost",
			Name:      "config_updates",
			Help:      "Plugin config store changes since startup",
		},
		[]string{"op"},
	),
}

var metricsRegister sync.Once

func registerMetrics() {
	metricsRegister.Do(func() {
		prometheus.MustRegister(serverMetrics.httpRequestDuration)
		prometheus.MustRegister(serverMetrics.pluginsLoaded)
		prometheus.MustRegister(serverMetrics.pluginsUnloaded)
		prometheus.MustRegister(serverMetrics.pluginsUnsatisfied)
		prometheus.MustRegister(serverMetrics.pluginErrors)
		prometheus.MustRegister(serverMetrics.pluginsActive)
		prometheus.MustRegister(serverMetrics.loadPassDuration)
		prometheus.MustRegister(serverMetrics.configUpdates)
	})
}

func metricsEventNotifier(e events.PluginEvent) error {
	switch e.Type {
	case events.EventPluginLoaded:
		serverMetrics.pluginsLoaded.Inc()
		setActive(e.Data)
	case events.EventPluginUnloaded:
		reason, _ := e.Data["reason"].(string)
		serverMetrics.pluginsUnloaded.WithLabelValues(reason).Inc()
		setActive(e.Data)
	case events.EventPluginUnsatisfied:
		serverMetrics.pluginsUnsatisfied.Inc()
	case events.EventPluginError:
		callback, _ := e.Data["callback"].(string)
		serverMetrics.pluginErrors.WithLabelValues(callback).Inc()
	case events.EventLoadPassCompleted:
		if d, ok := e.Data["duration"].(time.Duration); ok {
			serverMetrics.loadPassDuration.Observe(d.Seconds())
		}
	case events.EventPluginConfigUpdated:
		op, _ := e.Data["op"].(string)
		serverMetrics.configUpdates.WithLabelValues(op).Inc()
	}
	return nil
}

func setActive(data map[string]interface{}) {
	if n, ok := data["registry"].(int); ok {
		serverMetrics.pluginsActive.Set(float64(n))
	}
}

func recordHTTPRequestDuration(method string, statusCode int, duration time.Duration) {
	serverMetrics.httpRequestDuration.WithLabelValues(method, strconv.Itoa(statusCode)).Observe(duration.Seconds())
}
