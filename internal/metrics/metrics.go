package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Collector holds the garment pipeline counters. A nil *Collector is valid
// and records nothing.
type Collector struct {
	registry       *prometheus.Registry
	imagesTotal    *prometheus.CounterVec
	fieldsNotFound *prometheus.CounterVec
	batchesTotal   *prometheus.CounterVec
	costUSD        prometheus.Counter
}

// New creates a Collector with its own registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		imagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "garment_images_total",
				Help: "Images processed, by extraction tier",
			},
			[]string{"tier"},
		),
		fieldsNotFound: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "garment_fields_not_found_total",
				Help: "Extracted fields that resolved to Not Found, by field",
			},
			[]string{"field"},
		),
		batchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "garment_batches_total",
				Help: "Batches processed, by outcome",
			},
			[]string{"outcome"},
		),
		costUSD: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "garment_llm_cost_usd_total",
				Help: "Estimated description service cost in USD",
			},
		),
	}
	c.registry.MustRegister(c.imagesTotal, c.fieldsNotFound, c.batchesTotal, c.costUSD)
	return c
}

// ObserveImage records one processed image.
func (c *Collector) ObserveImage(tier string, notFoundFields []string) {
	if c == nil {
		return
	}
	c.imagesTotal.WithLabelValues(tier).Inc()
	for _, f := range notFoundFields {
		c.fieldsNotFound.WithLabelValues(f).Inc()
	}
}

// ObserveBatch records a finished batch. outcome is "ok" or "failed".
func (c *Collector) ObserveBatch(outcome string, costUSD float64) {
	if c == nil {
		return
	}
	c.batchesTotal.WithLabelValues(outcome).Inc()
	if costUSD > 0 {
		c.costUSD.Add(costUSD)
	}
}

// Handler exposes the collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve runs a /metrics HTTP server on addr until ctx is cancelled.
func (c *Collector) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
