package counter

import (
	iface "PushUpCounter/interface"
	"PushUpCounter/logger"
	"PushUpCounter/monitor"
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

type Side string

const (
	Left  Side = "left"
	Right Side = "right"
)

func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(s)) {
	case Left, "":
		return Left, nil
	case Right:
		return Right, nil
	}
	return "", fmt.Errorf("unknown side %q", s)
}

func (s Side) joints() (elbow, shoulder string) {
	if s == Right {
		return iface.RightElbow, iface.RightShoulder
	}
	return iface.LeftElbow, iface.LeftShoulder
}

// FrameSource yields decoded frames until it is exhausted. Returned frames
// are owned by the caller.
type FrameSource interface {
	Next() (gocv.Mat, bool)
}

type Counter struct {
	Side    Side
	Metrics *monitor.Metrics
}

// Step feeds one frame's landmarks into state. Frames without a pose, or
// without both tracked joints, leave state untouched.
func (c *Counter) Step(state *State, ls iface.LandmarkSet) (counted, detected bool) {
	elbowName, shoulderName := c.Side.joints()
	elbow, okElbow := ls.Joint(elbowName)
	shoulder, okShoulder := ls.Joint(shoulderName)
	detected = okElbow && okShoulder
	c.Metrics.Frame(detected)
	if !detected {
		return false, false
	}
	counted = state.Observe(elbow.Y, shoulder.Y)
	if counted {
		c.Metrics.Rep()
	}
	return counted, true
}

// Count runs every frame of src through backend, strictly in sequence.
func (c *Counter) Count(ctx context.Context, src FrameSource, backend iface.Backend) (int, error) {
	var state State
	frames, skipped := 0, 0
	for {
		if err := ctx.Err(); err != nil {
			return state.Count(), err
		}
		frame, ok := src.Next()
		if !ok {
			break
		}
		frames++
		ls, err := backend.Detect(frame)
		_ = frame.Close()
		if err != nil {
			return state.Count(), fmt.Errorf("frame %d: %w", frames, err)
		}
		if counted, detected := c.Step(&state, ls); !detected {
			skipped++
		} else if counted {
			logger.Log().Debug("Repetition counted", zap.Int("frame", frames), zap.Int("count", state.Count()))
		}
	}
	logger.Log().Info("Video processed",
		zap.Int("frames", frames),
		zap.Int("skipped", skipped),
		zap.Int("count", state.Count()),
		zap.String("side", string(c.Side)))
	return state.Count(), nil
}
