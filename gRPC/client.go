package proto

import (
	iface "PushUpCounter/interface"
	"context"
	"errors"
	"fmt"
	"time"

	"gocv.io/x/gocv"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Client is a pose backend served by a remote PoseService.
type Client struct {
	Address  string
	Timeout  time.Duration
	DialOpts []grpc.DialOption
	conn     *grpc.ClientConn
	client   PoseServiceClient
	cfg      iface.EngineConfig
}

func NewClient(address string, timeout time.Duration, opts ...grpc.DialOption) *Client {
	return &Client{Address: address, Timeout: timeout, DialOpts: opts}
}

func (c *Client) callCtx() (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), c.Timeout)
}

// LoadModel connects and checks the service is serving. The model itself is
// whatever the server loaded; cfg is ignored apart from being reported back
// when the server does not say.
func (c *Client) LoadModel(cfg iface.EngineConfig) error {
	opts := append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, c.DialOpts...)
	conn, err := grpc.NewClient(c.Address, opts...)
	if err != nil {
		return fmt.Errorf("dial pose service %s: %w", c.Address, err)
	}
	ctx, cancel := c.callCtx()
	defer cancel()
	hc, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("pose service %s health: %w", c.Address, err)
	}
	if hc.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		_ = conn.Close()
		return fmt.Errorf("pose service %s is %s", c.Address, hc.GetStatus())
	}
	client := NewPoseServiceClient(conn)
	info, err := client.CheckEngine(ctx, &CheckEngineRequest{})
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("pose service %s: %w", c.Address, err)
	}
	c.conn = conn
	c.client = client
	c.cfg = cfg
	c.cfg.ModelPath = info.ModelPath
	c.cfg.Conf = info.Confidence
	c.cfg.InputSize = info.InputSize
	c.cfg.UseGPU = info.UseGpu
	c.cfg.Names = iface.NamesConf{Data: info.Names}
	return nil
}

func (c *Client) Detect(image gocv.Mat) (iface.LandmarkSet, error) {
	if c.client == nil {
		return nil, errors.New("pose service not connected")
	}
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, image)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	data := append([]byte(nil), buf.GetBytes()...)
	buf.Close()

	ctx, cancel := c.callCtx()
	defer cancel()
	resp, err := c.client.Estimate(ctx, &EstimateRequest{Image: data})
	if err != nil {
		return nil, err
	}
	if !resp.Found {
		return iface.LandmarkSet{}, nil
	}
	return resp.Landmarks, nil
}

func (c *Client) Destroy() {
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = nil
	c.client = nil
	c.cfg = iface.EngineConfig{}
}

func (c *Client) CheckConfig() iface.EngineConfig {
	return c.cfg
}
