// Package monitor exposes instruction and measurement metrics over HTTP.
package monitor

import (
	"context"
	"errors"
	"net/http"
	"time"

	"lighttunnel-go/errcode"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Monitor owns a registry with the light tunnel collectors.
type Monitor struct {
	Registry *prometheus.Registry

	Instructions *prometheus.CounterVec
	Duration     *prometheus.HistogramVec
	Observations *prometheus.CounterVec

	log logrus.FieldLogger
}

func New(log logrus.FieldLogger) *Monitor {
	m := &Monitor{
		Registry: prometheus.NewRegistry(),
		Instructions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lighttunnel_instructions_total",
			Help: "Executed instructions by kind and result code.",
		}, []string{"kind", "code"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lighttunnel_instruction_duration_seconds",
			Help:    "Instruction execution time.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		Observations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lighttunnel_observations_total",
			Help: "Reported samples, split by whether the output read succeeded.",
		}, []string{"ok"}),
		log: log,
	}
	m.Registry.MustRegister(m.Instructions, m.Duration, m.Observations)
	return m
}

// Instruction records one executed instruction.
func (m *Monitor) Instruction(kind string, code errcode.Code, d time.Duration) {
	m.Instructions.WithLabelValues(kind, string(code)).Inc()
	m.Duration.WithLabelValues(kind).Observe(d.Seconds())
}

// Observation records one reported sample.
func (m *Monitor) Observation(ok bool) {
	label := "false"
	if ok {
		label = "true"
	}
	m.Observations.WithLabelValues(label).Inc()
}

// Handler serves /metrics and /health.
func (m *Monitor) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return mux
}

// Serve listens on addr until ctx is done.
func (m *Monitor) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: m.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()
	if m.log != nil {
		m.log.WithField("addr", addr).Info("metrics server listening")
	}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
