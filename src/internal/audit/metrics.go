package audit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/VectorBits/econaudit/src/internal/logger"
	"github.com/VectorBits/econaudit/src/internal/report"
)

type Metrics struct {
	ContractsAudited     *prometheus.CounterVec
	Findings             *prometheus.CounterVec
	AnalyzerErrors       *prometheus.CounterVec
	AnalyzerDuration     *prometheus.HistogramVec
	ArbitrageOpportunity *prometheus.CounterVec
	RiskScore            prometheus.Histogram
	ProfitPotentialUSD   prometheus.Gauge
}

func NewMetrics() *Metrics {
	return &Metrics{
		ContractsAudited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "econaudit_contracts_audited_total",
			Help: "Total number of contracts audited by outcome",
		}, []string{"status"}),
		Findings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "econaudit_findings_total",
			Help: "Total number of findings by severity and source",
		}, []string{"severity", "source"}),
		AnalyzerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "econaudit_analyzer_errors_total",
			Help: "Total number of failed analyzer runs",
		}, []string{"analyzer"}),
		AnalyzerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "econaudit_analyzer_duration_seconds",
			Help:    "Analyzer run time in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 600},
		}, []string{"analyzer"}),
		ArbitrageOpportunity: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "econaudit_arbitrage_opportunities_total",
			Help: "Total number of arbitrage opportunities by kind",
		}, []string{"kind"}),
		RiskScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "econaudit_risk_score",
			Help:    "Distribution of per-contract risk scores",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),
		ProfitPotentialUSD: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "econaudit_last_profit_potential_usd",
			Help: "Economic profit potential of the most recently audited contract",
		}),
	}
}

// Register adds every collector to reg.
func (m *Metrics) Register(reg prometheus.Registerer) {
	reg.MustRegister(
		m.ContractsAudited,
		m.Findings,
		m.AnalyzerErrors,
		m.AnalyzerDuration,
		m.ArbitrageOpportunity,
		m.RiskScore,
		m.ProfitPotentialUSD,
	)
}

// Observe records one finished contract.
func (m *Metrics) Observe(c *report.ContractResult) {
	if m == nil || c == nil {
		return
	}
	if c.Error != "" {
		m.ContractsAudited.WithLabelValues("failed").Inc()
		return
	}
	m.ContractsAudited.WithLabelValues("completed").Inc()

	for _, a := range c.Analyzers {
		m.AnalyzerDuration.WithLabelValues(a.Name).Observe(a.Duration.Seconds())
		if a.Failed() {
			m.AnalyzerErrors.WithLabelValues(a.Name).Inc()
		}
	}
	for _, f := range c.Findings {
		m.Findings.WithLabelValues(string(f.Severity), f.Source).Inc()
	}
	m.RiskScore.Observe(c.Summary.RiskScore)

	if c.Economic != nil {
		m.ProfitPotentialUSD.Set(c.Economic.TotalProfitPotentialUSD)
	}
	if c.Arbitrage != nil {
		for _, o := range c.Arbitrage.Opportunities {
			m.ArbitrageOpportunity.WithLabelValues(string(o.Kind)).Inc()
		}
	}
}

// NewRouter serves /metrics from gatherer and a plain /healthz.
func NewRouter(gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return r
}

// ServeMetrics listens on addr until ctx is cancelled.
func ServeMetrics(ctx context.Context, addr string, gatherer prometheus.Gatherer) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(gatherer),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Metrics server listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
