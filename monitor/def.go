package monitor

import (
	"PushUpCounter/logger"
	"context"
	"math"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics is safe for concurrent use; a nil *Metrics records nothing.
type Metrics struct {
	Registry      *prometheus.Registry
	memUsage      prometheus.Gauge
	cpuUsage      prometheus.Gauge
	FramesTotal   prometheus.Counter
	FramesSkipped prometheus.Counter
	RepsTotal     prometheus.Counter
	Analyses      *prometheus.CounterVec
	RPCTotal      prometheus.Counter
	proc          *process.Process
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		Registry: registry,
		memUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "memory_usage_Megabytes",
			Help: "Memory usage in Megabytes",
		}),
		cpuUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cpu_usage_percent",
			Help: "CPU usage in percent",
		}),
		FramesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pushup_frames_total",
			Help: "Frames decoded and passed to the pose model",
		}),
		FramesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pushup_frames_skipped_total",
			Help: "Frames where no pose was detected",
		}),
		RepsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pushup_reps_total",
			Help: "Completed down-up cycles",
		}),
		Analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pushup_analyses_total",
			Help: "Counting runs by outcome",
		}, []string{"outcome"}),
		RPCTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "grpc_requests_total",
			Help: "Total number of gRPC requests processed",
		}),
	}
	registry.MustRegister(m.memUsage, m.cpuUsage, m.FramesTotal, m.FramesSkipped, m.RepsTotal, m.Analyses, m.RPCTotal)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

func (m *Metrics) Frame(detected bool) {
	if m == nil {
		return
	}
	m.FramesTotal.Inc()
	if !detected {
		m.FramesSkipped.Inc()
	}
}

func (m *Metrics) Rep() {
	if m == nil {
		return
	}
	m.RepsTotal.Inc()
}

func (m *Metrics) Analysis(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.Analyses.WithLabelValues(OutcomeFailure).Inc()
		return
	}
	m.Analyses.WithLabelValues(OutcomeSuccess).Inc()
}

func (m *Metrics) RPC() {
	if m == nil {
		return
	}
	m.RPCTotal.Inc()
}

func (m *Metrics) CheckProcessInfo() {
	if m.proc == nil {
		return
	}
	if memInfo, err := m.proc.MemoryInfo(); err == nil {
		m.memUsage.Set(float64(memInfo.RSS / 1024 / 1024))
	}
	if cpuPercent, err := m.proc.CPUPercent(); err == nil {
		m.cpuUsage.Set(math.Round(cpuPercent*100) / 100)
	}
}

// StartMon samples this process every interval until ctx is done.
func (m *Metrics) StartMon(ctx context.Context, interval time.Duration) {
	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		logger.Log().Warn("process sampling disabled", zap.Error(err))
		return
	}
	m.proc = proc
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckProcessInfo()
		}
	}
}
