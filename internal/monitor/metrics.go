// internal/monitor/metrics.go
package monitor

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	ExchangesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "memtest_exchanges_total",
		Help: "Program exchanges sent to the controller",
	})

	ExchangeErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "memtest_exchange_errors_total",
		Help: "Program exchanges that failed",
	})

	SamplesParsed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "memtest_samples_parsed_total",
		Help: "ADC samples decoded from controller responses",
	})

	BlocksEmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "memtest_result_blocks_total",
		Help: "Result blocks emitted to the sink",
	})

	OperatorWaits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "memtest_operator_waits_total",
		Help: "Pauses waiting on a manual voltage change",
	})

	RunState = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "memtest_run_state",
		Help: "Current run state code",
	})
)

type Monitor struct {
	log *logrus.Entry
}

func NewMonitor(log *logrus.Entry) *Monitor {
	prometheus.MustRegister(
		ExchangesTotal,
		ExchangeErrors,
		SamplesParsed,
		BlocksEmitted,
		OperatorWaits,
		RunState,
	)
	return &Monitor{log: log}
}

// StartMetricsServer serves /metrics and /health in the background.
func (m *Monitor) StartMetricsServer(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	addr := fmt.Sprintf(":%d", port)
	m.log.Infof("metrics server listening on %s", addr)

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			m.log.Errorf("metrics server: %v", err)
		}
	}()
}
