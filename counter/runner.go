package counter

import (
	"PushUpCounter/config"
	"PushUpCounter/engine"
	backend "PushUpCounter/gRPC"
	iface "PushUpCounter/interface"
	"PushUpCounter/logger"
	"PushUpCounter/monitor"
	"PushUpCounter/video"
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Source is a FrameSource that must be closed.
type Source interface {
	FrameSource
	Close() error
}

// AcquireFunc hands out a backend for one run and the func that gives it back.
type AcquireFunc func(ctx context.Context) (iface.Backend, func(), error)

type OpenFunc func(ctx context.Context, uri string) (Source, error)

// Runner performs one complete counting run per call: acquire the pose
// backend, open the video, count, release both.
type Runner struct {
	Counter *Counter
	Acquire AcquireFunc
	Open    OpenFunc
	Metrics *monitor.Metrics
}

// EngineConfig maps the config file onto the backend's load parameters.
func EngineConfig(cfg *config.Config) iface.EngineConfig {
	names := iface.NamesConf{Data: cfg.Engine.Names}
	if cfg.Engine.NamesFile != "" {
		names = iface.NamesConf{IsFile: true, Data: cfg.Engine.NamesFile}
	}
	return iface.EngineConfig{
		UseGPU:     cfg.Engine.UseGPU,
		ModelPath:  cfg.Engine.ModelPath,
		Names:      names,
		Conf:       cfg.Engine.Conf,
		InputSize:  cfg.Engine.InputSize,
		InputName:  cfg.Engine.InputName,
		OutputName: cfg.Engine.OutputName,
	}
}

// NewBackend builds the configured pose backend with its model loaded.
func NewBackend(cfg *config.Config) (iface.Backend, error) {
	ec := EngineConfig(cfg)
	switch cfg.Engine.Backend {
	case config.RemoteBackend:
		c := backend.NewClient(cfg.Remote.Address, time.Duration(cfg.Remote.TimeoutSeconds)*time.Second)
		if err := c.LoadModel(ec); err != nil {
			return nil, err
		}
		return c, nil
	case config.LocalBackend, "":
		return engine.NewDetector(ec)
	default:
		return nil, fmt.Errorf("unsupported backend: %s", cfg.Engine.Backend)
	}
}

func VideoOptions(cfg *config.Config) video.Options {
	return video.Options{
		DownloadRemote: cfg.Video.DownloadRemote,
		DownloadDir:    cfg.Video.DownloadDir,
		Timeout:        time.Duration(cfg.Video.TimeoutSeconds) * time.Second,
	}
}

func openVideo(opts video.Options) OpenFunc {
	return func(ctx context.Context, uri string) (Source, error) {
		return video.Open(ctx, uri, opts)
	}
}

// NewRunner builds a runner that creates a fresh backend for every run.
func NewRunner(cfg *config.Config, metrics *monitor.Metrics) (*Runner, error) {
	side, err := ParseSide(cfg.Counter.Side)
	if err != nil {
		return nil, err
	}
	return &Runner{
		Counter: &Counter{Side: side, Metrics: metrics},
		Acquire: func(ctx context.Context) (iface.Backend, func(), error) {
			b, err := NewBackend(cfg)
			if err != nil {
				return nil, nil, err
			}
			return b, b.Destroy, nil
		},
		Open:    openVideo(VideoOptions(cfg)),
		Metrics: metrics,
	}, nil
}

// NewPooledRunner shares pool's backends between concurrent runs.
func NewPooledRunner(cfg *config.Config, pool *engine.Pool, metrics *monitor.Metrics) (*Runner, error) {
	r, err := NewRunner(cfg, metrics)
	if err != nil {
		return nil, err
	}
	r.Acquire = func(ctx context.Context) (iface.Backend, func(), error) {
		id, b, err := pool.Acquire(ctx)
		if err != nil {
			return nil, nil, err
		}
		return b, func() { pool.Release(id) }, nil
	}
	return r, nil
}

func (r *Runner) Run(ctx context.Context, uri string) Result {
	res := r.run(ctx, uri)
	r.Metrics.Analysis(res.Err)
	if !res.OK() {
		logger.Log().Error("Counting failed", zap.String("video", uri), zap.Error(res.Err))
	}
	return res
}

func (r *Runner) run(ctx context.Context, uri string) Result {
	if uri == "" {
		return Failure(ErrUsage)
	}
	b, release, err := r.Acquire(ctx)
	if err != nil {
		return Failure(processing("load pose model", err))
	}
	defer release()

	src, err := r.Open(ctx, uri)
	if err != nil {
		return Failure(processing("open video", err))
	}
	defer func() {
		if err := src.Close(); err != nil {
			logger.Log().Warn("failed to release video", zap.String("video", uri), zap.Error(err))
		}
	}()

	count, err := r.Counter.Count(ctx, src, b)
	if err != nil {
		return Failure(processing("count", err))
	}
	return Success(count)
}
