package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stageline/internal/domain"
	"stageline/internal/events"
)

const namespace = "stageline"

// Collector counts committed events. It implements events.Sink so the
// workspace can forward events to it after they are persisted.
type Collector struct {
	registry      *prometheus.Registry
	eventsTotal   *prometheus.CounterVec
	claimsBlocked prometheus.Counter
	finished      prometheus.Counter
}

var _ events.Sink = (*Collector)(nil)

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Committed events by type.",
		}, []string{"type"}),
		claimsBlocked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claims_blocked_total",
			Help:      "Claim attempts rejected because another actor holds the claim.",
		}),
		finished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activities_finished_total",
			Help:      "Activities that completed their final stage.",
		}),
	}
	c.registry.MustRegister(
		c.eventsTotal,
		c.claimsBlocked,
		c.finished,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) Append(_ context.Context, evt domain.Event) error {
	c.eventsTotal.WithLabelValues(evt.Type).Inc()
	switch evt.Type {
	case events.ActivityClaimBlocked:
		c.claimsBlocked.Inc()
	case events.ActivityFinished:
		c.finished.Inc()
	}
	return nil
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
