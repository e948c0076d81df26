package telemetry

import (
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mu       sync.Mutex
	counters = map[string]prometheus.Counter{}
	gauges   = map[string]prometheus.Gauge{}
)

// metricKey identifies a metric by its name and sorted label pairs.
func metricKey(metric string, labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(metric)
	for _, k := range keys {
		b.WriteString("/" + k + ":" + labels[k])
	}
	return b.String()
}

// NewCounter returns the counter registered for metric and labels, creating
// it on first use. Every call for a metric must use the same label names.
func NewCounter(metric string, labels map[string]string) prometheus.Counter {
	key := metricKey(metric, labels)

	mu.Lock()
	defer mu.Unlock()
	if _, ok := counters[key]; !ok {
		counters[key] = promauto.NewCounter(prometheus.CounterOpts{Name: metric, ConstLabels: labels})
	}
	return counters[key]
}

func NewGauge(metric string, labels map[string]string) prometheus.Gauge {
	key := metricKey(metric, labels)

	mu.Lock()
	defer mu.Unlock()
	if _, ok := gauges[key]; !ok {
		gauges[key] = promauto.NewGauge(prometheus.GaugeOpts{Name: metric, ConstLabels: labels})
	}
	return gauges[key]
}
