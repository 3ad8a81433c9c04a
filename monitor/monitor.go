// monitor/monitor.go
package monitor

import (
	"expvar"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	OnlineSessions   prometheus.Gauge
	Machines         prometheus.Gauge
	Operations       *prometheus.CounterVec
	UnitsDispensed   prometheus.Counter
	UnitsRemaining   *prometheus.GaugeVec
	OperationLatency prometheus.Histogram
}

func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OnlineSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_sessions",
			Help:      "Number of connected sessions",
		}),
		Machines: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "machines",
			Help:      "Number of registered machines",
		}),
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Machine operations by action and result",
		}, []string{"action", "result"}),
		UnitsDispensed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_dispensed_total",
			Help:      "Total number of gumballs dispensed",
		}),
		UnitsRemaining: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "units_remaining",
			Help:      "Gumballs left per machine",
		}, []string{"machine"}),
		OperationLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_latency_seconds",
			Help:      "Machine operation latency",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 12),
		}),
	}

	reg.MustRegister(
		m.OnlineSessions,
		m.Machines,
		m.Operations,
		m.UnitsDispensed,
		m.UnitsRemaining,
		m.OperationLatency,
	)

	return m
}

type Monitor struct {
	metrics        *Metrics
	registry       *prometheus.Registry
	startTime      time.Time
	operationCount int64
	mutex          sync.Mutex
}

// expvar names are process wide, only the first served Monitor publishes them.
var expvarOnce sync.Once

// NewMonitor 创建监控, 每个 Monitor 使用独立的 registry
func NewMonitor(namespace string) *Monitor {
	reg := prometheus.NewRegistry()
	return &Monitor{
		metrics:   NewMetrics(namespace, reg),
		registry:  reg,
		startTime: time.Now(),
	}
}

func (m *Monitor) Metrics() *Metrics {
	return m.metrics
}

// Handler serves the monitor's registry in the Prometheus text format.
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer exposes /metrics and /debug/vars on addr in the background.
func (m *Monitor) StartServer(addr string) *http.Server {
	expvarOnce.Do(func() {
		expvar.Publish("uptime", expvar.Func(func() interface{} {
			return time.Since(m.startTime).Seconds()
		}))
		expvar.Publish("operations", expvar.Func(func() interface{} {
			m.mutex.Lock()
			defer m.mutex.Unlock()
			return m.operationCount
		}))
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.Handle("/debug/vars", expvar.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	go srv.ListenAndServe()
	return srv
}

func (m *Monitor) IncOnlineSessions() {
	m.metrics.OnlineSessions.Inc()
}

func (m *Monitor) DecOnlineSessions() {
	m.metrics.OnlineSessions.Dec()
}

func (m *Monitor) SetMachines(count int) {
	m.metrics.Machines.Set(float64(count))
}

// ObserveOperation 记录一次机器操作
func (m *Monitor) ObserveOperation(action, result string, duration time.Duration) {
	m.metrics.Operations.WithLabelValues(action, result).Inc()
	m.metrics.OperationLatency.Observe(duration.Seconds())
	m.mutex.Lock()
	m.operationCount++
	m.mutex.Unlock()
}

func (m *Monitor) IncDispensed() {
	m.metrics.UnitsDispensed.Inc()
}

func (m *Monitor) SetUnitsRemaining(machineID string, count uint) {
	m.metrics.UnitsRemaining.WithLabelValues(machineID).Set(float64(count))
}

func (m *Monitor) DeleteMachine(machineID string) {
	m.metrics.UnitsRemaining.DeleteLabelValues(machineID)
}
