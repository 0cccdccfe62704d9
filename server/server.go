package server

import (
	"PushUpCounter/config"
	"PushUpCounter/counter"
	"PushUpCounter/engine"
	"PushUpCounter/logger"
	"PushUpCounter/monitor"
	"PushUpCounter/video"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	idleTimeout     = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

type Server struct {
	cfg      *config.Config
	runner   *counter.Runner
	pool     *engine.Pool
	metrics  *monitor.Metrics
	router   *gin.Engine
	upgrader websocket.Upgrader
	sessions sync.WaitGroup

	// grace period for in-flight requests before their context is cancelled
	shutdownTimeout time.Duration
}

type analyzeResponse struct {
	Success     bool   `json:"success"`
	PushupCount int    `json:"pushupCount"`
	Error       string `json:"error,omitempty"`
}

type analyzeURLRequest struct {
	VideoURL string `json:"videoUrl" binding:"required"`
}

func New(cfg *config.Config, runner *counter.Runner, pool *engine.Pool, metrics *monitor.Metrics) *Server {
	s := &Server{
		cfg:             cfg,
		runner:          runner,
		pool:            pool,
		metrics:         metrics,
		shutdownTimeout: shutdownTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	s.router = s.routes()
	return s
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), accessLog())
	r.GET("/api/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	r.POST("/api/analyze", s.analyzeUpload)
	// path used by the mobile client
	r.POST("/analyze", s.analyzeUpload)
	r.POST("/api/analyze/url", s.analyzeURL)
	r.GET("/api/workers", s.workers)
	r.GET("/ws/live", s.live)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
	return r
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Log().Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

func respond(c *gin.Context, res counter.Result) {
	if !res.OK() {
		c.JSON(http.StatusUnprocessableEntity, analyzeResponse{
			Success:     false,
			PushupCount: res.Output(),
			Error:       res.Err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, analyzeResponse{Success: true, PushupCount: res.Output()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, analyzeResponse{Success: false, Error: msg})
}

func (s *Server) analyzeUpload(c *gin.Context) {
	if limit := s.cfg.Server.MaxUploadMB; limit > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit<<20)
	}
	file, err := c.FormFile("video")
	if err != nil {
		badRequest(c, "No video uploaded: "+err.Error())
		return
	}
	dir := s.cfg.Server.UploadDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, analyzeResponse{Error: "Failed to prepare upload dir"})
		return
	}
	path := filepath.Join(dir, uuid.NewString()+filepath.Ext(file.Filename))
	if err := c.SaveUploadedFile(file, path); err != nil {
		c.JSON(http.StatusInternalServerError, analyzeResponse{Error: "Failed to save file: " + err.Error()})
		return
	}
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Log().Warn("failed to remove upload", zap.String("path", path), zap.Error(err))
		}
	}()
	logger.Log().Info("Video uploaded", zap.String("name", file.Filename), zap.Int64("size", file.Size))
	respond(c, s.runner.Run(c.Request.Context(), path))
}

func (s *Server) analyzeURL(c *gin.Context) {
	var req analyzeURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	// only remote sources; a local path here would read the server's disk
	if !video.IsRemote(req.VideoURL) {
		badRequest(c, "videoUrl must be an http(s) URL")
		return
	}
	respond(c, s.runner.Run(c.Request.Context(), req.VideoURL))
}

func (s *Server) workers(c *gin.Context) {
	if s.pool == nil {
		c.JSON(http.StatusOK, gin.H{"data": gin.H{}})
		return
	}
	data := make(map[string]string)
	for id, state := range s.pool.States() {
		switch state {
		case engine.IDLE:
			data[id] = "idle"
		case engine.BUSY:
			data[id] = "busy"
		default:
			data[id] = fmt.Sprintf("0x%04x", state)
		}
	}
	c.JSON(http.StatusOK, gin.H{"data": data})
}

// Run listens on port and serves until ctx is done.
func (s *Server) Run(ctx context.Context, port int) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", port, err)
	}
	return s.Serve(ctx, lis)
}

// Serve serves HTTP on lis until ctx is done, then shuts down gracefully.
// Requests still running after the grace period have their context
// cancelled, and live sessions are closed. Serve returns once every live
// session has given its backend back.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	srv := &http.Server{
		Handler: s.router,
		BaseContext: func(net.Listener) context.Context {
			return baseCtx
		},
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Log().Info("HTTP server listening", zap.String("addr", lis.Addr().String()))
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	var serveErr error
	select {
	case serveErr = <-errCh:
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log().Warn("HTTP shutdown grace period exceeded", zap.Error(err))
	}
	// counting runs stop at their next frame, live sessions at their next read
	cancelBase()
	s.sessions.Wait()
	return serveErr
}
