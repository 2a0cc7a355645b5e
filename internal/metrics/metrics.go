// Package metrics exposes engine activity as Prometheus metrics. Counters are
// fed from the execution event log, so anything the runner records is counted
// exactly once, at the moment it is persisted.
package metrics

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rendis/autoforge/internal/engine"
	"github.com/rendis/autoforge/internal/store"
	"github.com/rendis/autoforge/pkg/schema"
)

const namespace = "autoforge"

// DispatcherSource reports dispatcher counters. Satisfied by *engine.Dispatcher.
type DispatcherSource interface {
	Metrics() engine.DispatcherMetrics
}

// Collector owns a private registry with the autoforge metrics.
type Collector struct {
	registry *prometheus.Registry

	events  *prometheus.CounterVec
	actions *prometheus.CounterVec
	billed  prometheus.Counter
}

// New creates a Collector with Go runtime and process collectors registered.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "execution_events_total",
				Help:      "Execution events appended to the audit log, by event type",
			},
			[]string{"event_type"},
		),
		actions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_total",
				Help:      "Actions run, by action type and result",
			},
			[]string{"action_type", "result"},
		),
		billed: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "billed_minor_units_total",
				Help:      "Total amount charged to owners, in minor currency units",
			},
		),
	}
}

// WatchDispatcher exports the dispatcher's counters as gauges read on scrape.
func (c *Collector) WatchDispatcher(src DispatcherSource) {
	gauge := func(name, help string, read func(engine.DispatcherMetrics) int64) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Namespace: namespace, Subsystem: "dispatcher", Name: name, Help: help},
			func() float64 { return float64(read(src.Metrics())) },
		)
	}
	c.registry.MustRegister(
		gauge("queued", "Execution IDs waiting for a worker", func(m engine.DispatcherMetrics) int64 { return m.Queued }),
		gauge("active", "Executions currently running", func(m engine.DispatcherMetrics) int64 { return m.Active }),
		gauge("completed", "Runs that returned a record", func(m engine.DispatcherMetrics) int64 { return m.Completed }),
		gauge("failed", "Runs that returned an error", func(m engine.DispatcherMetrics) int64 { return m.Failed }),
		gauge("panics", "Worker panics recovered", func(m engine.DispatcherMetrics) int64 { return m.Panics }),
	)
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Observe counts one persisted event.
func (c *Collector) Observe(event *store.Event) {
	c.events.WithLabelValues(event.Type).Inc()

	switch event.Type {
	case schema.EventActionSucceeded, schema.EventActionFailed:
		var p struct {
			ActionType string `json:"action_type"`
		}
		_ = json.Unmarshal(event.Payload, &p)
		result := "success"
		if event.Type == schema.EventActionFailed {
			result = "failed"
		}
		c.actions.WithLabelValues(p.ActionType, result).Inc()
	case schema.EventExecutionCharged:
		var p struct {
			Amount int64 `json:"amount"`
		}
		if err := json.Unmarshal(event.Payload, &p); err == nil && p.Amount > 0 {
			c.billed.Add(float64(p.Amount))
		}
	}
}

// Instrument wraps s so every successfully appended event is observed.
func (c *Collector) Instrument(s store.Store) store.Store {
	return &instrumentedStore{Store: s, collector: c}
}

type instrumentedStore struct {
	store.Store
	collector *Collector
}

func (s *instrumentedStore) AppendEvent(ctx context.Context, event *store.Event) error {
	if err := s.Store.AppendEvent(ctx, event); err != nil {
		return err
	}
	s.collector.Observe(event)
	return nil
}
