package proto

import (
	iface "PushUpCounter/interface"
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "pushup.PoseService"

const (
	estimateMethod    = "/" + ServiceName + "/Estimate"
	checkEngineMethod = "/" + ServiceName + "/CheckEngine"
)

// EstimateRequest carries one encoded image (JPEG, PNG, ...).
type EstimateRequest struct {
	Image []byte `json:"image"`
}

type EstimateResponse struct {
	Found     bool              `json:"found"`
	Landmarks iface.LandmarkSet `json:"landmarks,omitempty"`
}

type CheckEngineRequest struct{}

type EngineInfo struct {
	ModelPath  string   `json:"modelPath"`
	Names      []string `json:"names"`
	Confidence float32  `json:"confidence"`
	InputSize  int      `json:"inputSize"`
	UseGpu     bool     `json:"useGpu"`
	Workers    int      `json:"workers"`
}

type PoseServiceServer interface {
	Estimate(context.Context, *EstimateRequest) (*EstimateResponse, error)
	CheckEngine(context.Context, *CheckEngineRequest) (*EngineInfo, error)
}

func _PoseService_Estimate_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(EstimateRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PoseServiceServer).Estimate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: estimateMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PoseServiceServer).Estimate(ctx, req.(*EstimateRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _PoseService_CheckEngine_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CheckEngineRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PoseServiceServer).CheckEngine(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: checkEngineMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PoseServiceServer).CheckEngine(ctx, req.(*CheckEngineRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var PoseService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PoseServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Estimate", Handler: _PoseService_Estimate_Handler},
		{MethodName: "CheckEngine", Handler: _PoseService_CheckEngine_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pose_service",
}

func RegisterPoseServiceServer(s grpc.ServiceRegistrar, srv PoseServiceServer) {
	s.RegisterService(&PoseService_ServiceDesc, srv)
}

type PoseServiceClient interface {
	Estimate(ctx context.Context, in *EstimateRequest, opts ...grpc.CallOption) (*EstimateResponse, error)
	CheckEngine(ctx context.Context, in *CheckEngineRequest, opts ...grpc.CallOption) (*EngineInfo, error)
}

type poseServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewPoseServiceClient(cc grpc.ClientConnInterface) PoseServiceClient {
	return &poseServiceClient{cc}
}

func (c *poseServiceClient) Estimate(ctx context.Context, in *EstimateRequest, opts ...grpc.CallOption) (*EstimateResponse, error) {
	out := new(EstimateResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, estimateMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *poseServiceClient) CheckEngine(ctx context.Context, in *CheckEngineRequest, opts ...grpc.CallOption) (*EngineInfo, error) {
	out := new(EngineInfo)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, checkEngineMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
