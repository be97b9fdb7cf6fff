// Package metrics provides a small Prometheus-compatible collector for the
// gateway. It renders text/plain exposition format directly, without pulling
// in the full prometheus client library.
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Collector is the process-wide metrics collector.
var Collector = NewCollector()

// MetricsCollector aggregates counters and gauges keyed by name+labels.
type MetricsCollector struct {
	counters  sync.Map // key -> *Counter
	gauges    sync.Map // key -> *Gauge
	startTime time.Time
}

func NewCollector() *MetricsCollector {
	return &MetricsCollector{startTime: time.Now()}
}

// Uptime returns how long the collector has been running.
func (c *MetricsCollector) Uptime() time.Duration {
	return time.Since(c.startTime)
}

// Counter is a monotonically increasing counter.
type Counter struct {
	name   string
	help   string
	labels string
	value  atomic.Int64
}

func (c *Counter) Inc()         { c.value.Add(1) }
func (c *Counter) Add(n int64)  { c.value.Add(n) }
func (c *Counter) Value() int64 { return c.value.Load() }

// Gauge is a value that can go up and down.
type Gauge struct {
	name   string
	help   string
	labels string
	value  atomic.Int64
}

func (g *Gauge) Set(v int64)  { g.value.Store(v) }
func (g *Gauge) Inc()         { g.value.Add(1) }
func (g *Gauge) Dec()         { g.value.Add(-1) }
func (g *Gauge) Value() int64 { return g.value.Load() }

// Counter returns or creates a counter. Labels are a literal label string
// like `reason="duplicate"`, or empty.
func (c *MetricsCollector) Counter(name, help, labels string) *Counter {
	key := name + "{" + labels + "}"
	if v, ok := c.counters.Load(key); ok {
		return v.(*Counter)
	}
	ctr := &Counter{name: name, help: help, labels: labels}
	actual, _ := c.counters.LoadOrStore(key, ctr)
	return actual.(*Counter)
}

// Gauge returns or creates a gauge.
func (c *MetricsCollector) Gauge(name, help, labels string) *Gauge {
	key := name + "{" + labels + "}"
	if v, ok := c.gauges.Load(key); ok {
		return v.(*Gauge)
	}
	g := &Gauge{name: name, help: help, labels: labels}
	actual, _ := c.gauges.LoadOrStore(key, g)
	return actual.(*Gauge)
}

// Handler renders all metrics in Prometheus text exposition format.
func (c *MetricsCollector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		var sb strings.Builder
		fmt.Fprintf(&sb, "# HELP chatgate_uptime_seconds Time since start in seconds\n")
		fmt.Fprintf(&sb, "# TYPE chatgate_uptime_seconds gauge\n")
		fmt.Fprintf(&sb, "chatgate_uptime_seconds %d\n\n", int64(c.Uptime().Seconds()))

		helpWritten := make(map[string]bool)

		var counterLines []string
		c.counters.Range(func(_, v any) bool {
			ctr := v.(*Counter)
			var line strings.Builder
			if !helpWritten[ctr.name] {
				fmt.Fprintf(&line, "# HELP %s %s\n# TYPE %s counter\n", ctr.name, ctr.help, ctr.name)
				helpWritten[ctr.name] = true
			}
			fmt.Fprintf(&line, "%s%s %d\n", ctr.name, renderLabels(ctr.labels), ctr.Value())
			counterLines = append(counterLines, line.String())
			return true
		})
		sort.Strings(counterLines)
		for _, l := range counterLines {
			sb.WriteString(l)
		}

		var gaugeLines []string
		c.gauges.Range(func(_, v any) bool {
			g := v.(*Gauge)
			var line strings.Builder
			if !helpWritten[g.name] {
				fmt.Fprintf(&line, "# HELP %s %s\n# TYPE %s gauge\n", g.name, g.help, g.name)
				helpWritten[g.name] = true
			}
			fmt.Fprintf(&line, "%s%s %d\n", g.name, renderLabels(g.labels), g.Value())
			gaugeLines = append(gaugeLines, line.String())
			return true
		})
		sort.Strings(gaugeLines)
		for _, l := range gaugeLines {
			sb.WriteString(l)
		}

		_, _ = w.Write([]byte(sb.String()))
	}
}

func renderLabels(labels string) string {
	if labels == "" {
		return ""
	}
	return "{" + labels + "}"
}
