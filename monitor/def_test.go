package monitor

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()
	m.Frame(true)
	m.Frame(false)
	m.Frame(false)
	m.Rep()
	m.Analysis(nil)
	m.Analysis(errors.New("boom"))
	m.Analysis(errors.New("boom"))
	m.RPC()

	assert.Equal(t, 3.0, testutil.ToFloat64(m.FramesTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FramesSkipped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RepsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Analyses.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Analyses.WithLabelValues(OutcomeFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RPCTotal))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Frame(true)
		m.Rep()
		m.Analysis(nil)
		m.RPC()
	})
}

func TestMetrics_HandlerAndSampling(t *testing.T) {
	m := New()
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	m.StartMon(ctx, 20*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "memory_usage_Megabytes"))
	assert.True(t, strings.Contains(body, "pushup_frames_total"))
	assert.Greater(t, testutil.ToFloat64(m.memUsage), 0.0)
}
