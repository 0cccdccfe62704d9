package proto

import (
	"PushUpCounter/engine"
	iface "PushUpCounter/interface"
	"PushUpCounter/logger"
	"PushUpCounter/monitor"
	"context"
	"errors"
	"fmt"
	"net"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// BytesToMat decodes an encoded image into a BGR gocv.Mat.
func BytesToMat(data []byte) (gocv.Mat, error) {
	if len(data) == 0 {
		return gocv.NewMat(), errors.New("empty image")
	}
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return gocv.NewMat(), err
	}
	if mat.Empty() {
		_ = mat.Close()
		return gocv.NewMat(), errors.New("decoded image is empty or unsupported format")
	}
	return mat, nil
}

type JobPackage struct {
	ctx    context.Context
	image  []byte
	Result chan jobResult
}

type jobResult struct {
	Landmarks iface.LandmarkSet
	Err       error
}

// Server serves PoseService from a pool of loaded backends. Jobs go through
// a bounded queue so at most one decode+detect runs per pool worker.
type Server struct {
	pool     *engine.Pool
	info     EngineInfo
	metrics  *monitor.Metrics
	JobQueue chan JobPackage
	once     sync.Once
}

func NewServer(pool *engine.Pool, cfg iface.EngineConfig, metrics *monitor.Metrics) *Server {
	names, err := engine.ResolveNames(cfg.Names)
	if err != nil {
		logger.Log().Warn("Keypoint names unavailable for CheckEngine", zap.Error(err))
	}
	return &Server{
		pool: pool,
		info: EngineInfo{
			ModelPath:  cfg.ModelPath,
			Names:      names,
			Confidence: cfg.Conf,
			InputSize:  cfg.InputSize,
			UseGpu:     cfg.UseGPU,
			Workers:    pool.Size(),
		},
		metrics:  metrics,
		JobQueue: make(chan JobPackage, pool.Size()),
	}
}

func (s *Server) StartWorker(workerNum int) {
	for i := 0; i < workerNum; i++ {
		go s.runWorker(i)
	}
}

func (s *Server) runWorker(workerID int) {
	defer func() {
		if r := recover(); r != nil {
			logger.Log().Error("Worker panic, restarting in 1s", zap.Int("worker", workerID), zap.Any("panic", r))
			time.Sleep(1 * time.Second)
			go s.runWorker(workerID)
		}
	}()
	// OpenCV DNN keeps per-thread state
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	logger.Log().Debug("Worker created", zap.Int("worker", workerID))
	for job := range s.JobQueue {
		job.Result <- s.process(job)
	}
}

func (s *Server) process(job JobPackage) jobResult {
	img, err := BytesToMat(job.image)
	defer img.Close()
	if err != nil {
		return jobResult{Err: status.Error(codes.InvalidArgument, err.Error())}
	}
	id, backend, err := s.pool.Acquire(job.ctx)
	if err != nil {
		return jobResult{Err: status.FromContextError(err).Err()}
	}
	defer s.pool.Release(id)
	ls, err := backend.Detect(img)
	if err != nil {
		return jobResult{Err: status.Error(codes.Internal, err.Error())}
	}
	return jobResult{Landmarks: ls}
}

func (s *Server) Estimate(ctx context.Context, req *EstimateRequest) (*EstimateResponse, error) {
	s.metrics.RPC()
	result := make(chan jobResult, 1)
	job := JobPackage{ctx: ctx, image: req.Image, Result: result}
	select {
	case s.JobQueue <- job:
	case <-ctx.Done():
		return nil, status.FromContextError(ctx.Err()).Err()
	}
	var res jobResult
	select {
	case res = <-result:
	case <-ctx.Done():
		return nil, status.FromContextError(ctx.Err()).Err()
	}
	if res.Err != nil {
		logger.Log().Warn("Estimate failed", zap.Error(res.Err))
		return nil, res.Err
	}
	return &EstimateResponse{Found: res.Landmarks.Detected(), Landmarks: res.Landmarks}, nil
}

func (s *Server) CheckEngine(ctx context.Context, req *CheckEngineRequest) (*EngineInfo, error) {
	s.metrics.RPC()
	info := s.info
	return &info, nil
}

// Stop closes the job queue; workers exit once it drains.
func (s *Server) Stop() {
	s.once.Do(func() {
		close(s.JobQueue)
	})
}

// NewGRPCServer registers the pose service and the standard health service.
func NewGRPCServer(s *Server) *grpc.Server {
	gs := grpc.NewServer()
	RegisterPoseServiceServer(gs, s)
	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(gs, hs)
	return gs
}

func StartGRPCServer(port int, s *Server) (*grpc.Server, error) {
	addr := fmt.Sprintf(":%d", port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on port %s: %w", addr, err)
	}
	gs := NewGRPCServer(s)
	go func() {
		logger.Log().Info("gRPC server listening", zap.String("addr", addr))
		if err := gs.Serve(lis); err != nil {
			logger.Log().Error("gRPC server stopped", zap.Error(err))
		}
	}()
	return gs, nil
}
