package server

import (
	"PushUpCounter/config"
	"PushUpCounter/counter"
	"PushUpCounter/engine"
	iface "PushUpCounter/interface"
	"PushUpCounter/monitor"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type frameSource struct{ n int }

func (f *frameSource) Next() (gocv.Mat, bool) {
	if f.n == 0 {
		return gocv.Mat{}, false
	}
	f.n--
	return gocv.NewMatWithSize(2, 2, gocv.MatTypeCV8UC3), true
}
func (f *frameSource) Close() error { return nil }

// MockBackend alternates elbow below / above the shoulder, starting below.
type MockBackend struct {
	mu    sync.Mutex
	calls int
}

func (m *MockBackend) LoadModel(cfg iface.EngineConfig) error { return nil }
func (m *MockBackend) Detect(gocv.Mat) (iface.LandmarkSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	elbow := float32(0.7)
	if m.calls%2 == 0 {
		elbow = 0.3
	}
	return iface.LandmarkSet{
		iface.LeftShoulder: {Y: 0.5},
		iface.LeftElbow:    {Y: elbow},
	}, nil
}
func (m *MockBackend) Destroy()                        {}
func (m *MockBackend) CheckConfig() iface.EngineConfig { return iface.EngineConfig{} }

type fixture struct {
	srv     *Server
	cfg     *config.Config
	metrics *monitor.Metrics
	openErr error
	opened  []string
	frames  int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{cfg: config.Default(), metrics: monitor.New(), frames: 4}
	f.cfg.Server.UploadDir = t.TempDir()
	pool, err := engine.NewPool(1, func() (iface.Backend, error) { return &MockBackend{}, nil })
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	runner, err := counter.NewPooledRunner(f.cfg, pool, f.metrics)
	require.NoError(t, err)
	runner.Open = func(_ context.Context, uri string) (counter.Source, error) {
		f.opened = append(f.opened, uri)
		if f.openErr != nil {
			return nil, f.openErr
		}
		// below, above, below, above: two reps; a negative count never ends
		return &frameSource{n: f.frames}, nil
	}
	f.srv = New(f.cfg, runner, pool, f.metrics)
	return f
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.srv.Router().ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, field string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile(field, "pushups.mp4")
	require.NoError(t, err)
	_, _ = part.Write([]byte("fake video bytes"))
	require.NoError(t, w.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) analyzeResponse {
	t.Helper()
	var resp analyzeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestPing(t *testing.T) {
	f := newFixture(t)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/ping", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"pong"}`, rec.Body.String())
}

func TestAnalyzeUpload(t *testing.T) {
	f := newFixture(t)
	rec := f.do(uploadRequest(t, "video"))
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode(t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, 2, resp.PushupCount)

	require.Len(t, f.opened, 1)
	assert.True(t, strings.HasSuffix(f.opened[0], ".mp4"))
	entries, err := os.ReadDir(f.cfg.Server.UploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "upload removed after counting")
}

func TestAnalyzeUpload_MissingField(t *testing.T) {
	f := newFixture(t)
	rec := f.do(uploadRequest(t, "file"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, decode(t, rec).Success)
	assert.Empty(t, f.opened)
}

func TestAnalyzeUpload_ProcessingFailure(t *testing.T) {
	f := newFixture(t)
	f.openErr = errors.New("unsupported codec")
	rec := f.do(uploadRequest(t, "video"))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decode(t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, 0, resp.PushupCount)
	assert.Contains(t, resp.Error, "unsupported codec")
}

func TestAnalyzeURL(t *testing.T) {
	f := newFixture(t)
	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/analyze/url", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		return f.do(req)
	}

	rec := post(`{"videoUrl":"https://storage.example.com/v.mp4"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decode(t, rec).PushupCount)
	assert.Equal(t, []string{"https://storage.example.com/v.mp4"}, f.opened)

	assert.Equal(t, http.StatusBadRequest, post(`{"videoUrl":"/etc/passwd"}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(`{}`).Code)
	assert.Len(t, f.opened, 1)
}

func TestWorkersAndMetrics(t *testing.T) {
	f := newFixture(t)
	f.do(uploadRequest(t, "video"))

	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/workers", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var workers struct {
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &workers))
	require.Len(t, workers.Data, 1)
	for _, state := range workers.Data {
		assert.Equal(t, "idle", state)
	}

	rec = f.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `pushup_analyses_total{outcome="success"} 1`)
	assert.Contains(t, rec.Body.String(), "pushup_reps_total 2")
}

func TestAnalyzeUpload_ClientPath(t *testing.T) {
	f := newFixture(t)
	req := uploadRequest(t, "video")
	req.URL.Path = "/analyze"
	rec := f.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode(t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, 2, resp.PushupCount)
}
