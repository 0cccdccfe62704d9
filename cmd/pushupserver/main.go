package main

import (
	"PushUpCounter/config"
	"PushUpCounter/counter"
	"PushUpCounter/engine"
	backend "PushUpCounter/gRPC"
	iface "PushUpCounter/interface"
	"PushUpCounter/logger"
	"PushUpCounter/monitor"
	"PushUpCounter/server"
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	monInterval  = 5 * time.Second
	drainTimeout = 30 * time.Second
)

func newRootCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:           "pushupserver",
		Short:         "Serve push-up counting over HTTP, websocket and gRPC",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, explicit := config.Path(configPath)
			cfg, err := config.Load(path, explicit)
			if err != nil {
				return err
			}
			if err := logger.InitWithLevel(cfg.Logging.Level, cfg.Logging.Development); err != nil {
				return err
			}
			defer logger.Sync()
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file (default $"+config.EnvPath+" or "+config.DefaultPath+")")
	return cmd
}

// serve blocks until ctx is done or the HTTP server fails.
func serve(ctx context.Context, cfg *config.Config) error {
	cpuNum := runtime.NumCPU()
	logger.Log().Info("Starting",
		zap.Int("cpu", cpuNum),
		zap.Int("httpPort", cfg.Server.HTTPPort),
		zap.Int("rpcPort", cfg.Server.RPCPort),
		zap.Int("workers", cfg.Server.WorkersNum),
		zap.String("backend", cfg.Engine.Backend),
	)
	if cfg.Server.WorkersNum > cpuNum {
		logger.Log().Warn("workersNum exceeds CPU cores, which may lead to performance degradation")
	}
	if cfg.Engine.UseGPU {
		logger.Log().Info("GPU enabled, make sure the device has enough memory for every worker")
	}

	pool, err := engine.NewPool(cfg.Server.WorkersNum, func() (iface.Backend, error) {
		return counter.NewBackend(cfg)
	})
	if err != nil {
		return fmt.Errorf("failed to load workers: %w", err)
	}
	defer func() {
		// runs cancelled by the HTTP shutdown give their backend back within a frame
		drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		if err := pool.Shutdown(drainCtx); err != nil {
			logger.Log().Warn("Pose workers still busy at exit", zap.Error(err))
		}
	}()

	metrics := monitor.New()
	monCtx, cancelMon := context.WithCancel(ctx)
	defer cancelMon()
	go metrics.StartMon(monCtx, monInterval)

	runner, err := counter.NewPooledRunner(cfg, pool, metrics)
	if err != nil {
		return err
	}

	if cfg.Server.RPCPort > 0 {
		if cfg.Engine.Backend == config.RemoteBackend {
			logger.Log().Warn("Pose service forwards to another remote service", zap.String("address", cfg.Remote.Address))
		}
		ps := backend.NewServer(pool, counter.EngineConfig(cfg), metrics)
		ps.StartWorker(pool.Size())
		gs, err := backend.StartGRPCServer(cfg.Server.RPCPort, ps)
		if err != nil {
			ps.Stop()
			return err
		}
		defer ps.Stop()
		defer gs.GracefulStop()
	}

	err = server.New(cfg, runner, pool, metrics).Run(ctx, cfg.Server.HTTPPort)
	logger.Log().Info("Shutting down")
	return err
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "pushupserver:", err)
		stop()
		os.Exit(1)
	}
}
