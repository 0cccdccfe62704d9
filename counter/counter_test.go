package counter

import (
	iface "PushUpCounter/interface"
	"PushUpCounter/monitor"
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

const (
	above float32 = 0.3 // elbow higher in the image than the shoulder
	below float32 = 0.7
	level float32 = 0.5
)

// pose returns a left-side landmark set with the shoulder at y=0.5.
func pose(elbowY float32) iface.LandmarkSet {
	return iface.LandmarkSet{
		iface.LeftShoulder: {X: 0.5, Y: level, Visibility: 0.9},
		iface.LeftElbow:    {X: 0.5, Y: elbowY, Visibility: 0.9},
		iface.LeftWrist:    {X: 0.5, Y: 0.9, Visibility: 0.9},
	}
}

type fakeSource struct {
	n      int
	closed bool
}

func (f *fakeSource) Next() (gocv.Mat, bool) {
	if f.n == 0 {
		return gocv.Mat{}, false
	}
	f.n--
	return gocv.NewMatWithSize(2, 2, gocv.MatTypeCV8UC3), true
}

func (f *fakeSource) Close() error {
	f.closed = true
	return nil
}

// scriptedBackend returns one landmark set per frame, in order.
type scriptedBackend struct {
	frames    []iface.LandmarkSet
	failAt    int
	i         int
	destroyed bool
}

func (b *scriptedBackend) LoadModel(cfg iface.EngineConfig) error { return nil }
func (b *scriptedBackend) Detect(gocv.Mat) (iface.LandmarkSet, error) {
	b.i++
	if b.failAt > 0 && b.i == b.failAt {
		return nil, errors.New("inference failed")
	}
	return b.frames[b.i-1], nil
}
func (b *scriptedBackend) Destroy()                        { b.destroyed = true }
func (b *scriptedBackend) CheckConfig() iface.EngineConfig { return iface.EngineConfig{} }

func count(t *testing.T, frames ...iface.LandmarkSet) int {
	t.Helper()
	c := &Counter{Side: Left}
	n, err := c.Count(context.Background(), &fakeSource{n: len(frames)}, &scriptedBackend{frames: frames})
	require.NoError(t, err)
	return n
}

func TestState_Observe(t *testing.T) {
	var s State
	assert.False(t, s.Observe(above, level))
	assert.False(t, s.Down())
	assert.False(t, s.Observe(below, level))
	assert.True(t, s.Down())
	// staying down never counts twice
	assert.False(t, s.Observe(below, level))
	assert.False(t, s.Observe(level, level))
	assert.True(t, s.Down())
	assert.True(t, s.Observe(above, level))
	assert.False(t, s.Down())
	assert.Equal(t, 1, s.Count())

	s.Reset()
	assert.Equal(t, 0, s.Count())
	assert.False(t, s.Down())
}

func TestCount(t *testing.T) {
	empty := iface.LandmarkSet{}

	t.Run("no pose in any frame", func(t *testing.T) {
		assert.Equal(t, 0, count(t, empty, empty, empty))
	})

	t.Run("no frames", func(t *testing.T) {
		assert.Equal(t, 0, count(t))
	})

	t.Run("one cycle", func(t *testing.T) {
		assert.Equal(t, 1, count(t, pose(above), pose(below), pose(above)))
	})

	t.Run("one side only", func(t *testing.T) {
		assert.Equal(t, 0, count(t, pose(above), pose(above), pose(above)))
		assert.Equal(t, 0, count(t, pose(below), pose(below), pose(below)))
	})

	t.Run("three cycles", func(t *testing.T) {
		assert.Equal(t, 3, count(t,
			pose(below), pose(above),
			pose(below), pose(above),
			pose(below), pose(above)))
	})

	t.Run("skipped frames keep state", func(t *testing.T) {
		assert.Equal(t, 2, count(t,
			pose(below), empty, empty, pose(above),
			empty, pose(below), empty, pose(above), empty))
	})

	t.Run("missing joint is a skip", func(t *testing.T) {
		partial := iface.LandmarkSet{iface.LeftShoulder: {Y: level}}
		assert.Equal(t, 1, count(t, pose(below), partial, pose(above)))
	})

	t.Run("level elbow changes nothing", func(t *testing.T) {
		assert.Equal(t, 1, count(t, pose(below), pose(level), pose(level), pose(above)))
	})
}

func TestCount_RightSide(t *testing.T) {
	right := func(elbowY float32) iface.LandmarkSet {
		return iface.LandmarkSet{
			iface.RightShoulder: {Y: level},
			iface.RightElbow:    {Y: elbowY},
		}
	}
	c := &Counter{Side: Right}
	frames := []iface.LandmarkSet{right(below), right(above), pose(below), pose(above)}
	n, err := c.Count(context.Background(), &fakeSource{n: len(frames)}, &scriptedBackend{frames: frames})
	require.NoError(t, err)
	// left-side frames carry no right joints
	assert.Equal(t, 1, n)
}

func TestCount_BackendError(t *testing.T) {
	c := &Counter{Side: Left}
	frames := []iface.LandmarkSet{pose(below), pose(above), pose(below)}
	n, err := c.Count(context.Background(), &fakeSource{n: 3}, &scriptedBackend{frames: frames, failAt: 3})
	assert.Error(t, err)
	assert.Equal(t, 1, n)
}

func TestCount_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := &Counter{Side: Left}
	_, err := c.Count(ctx, &fakeSource{n: 1}, &scriptedBackend{frames: []iface.LandmarkSet{pose(below)}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCount_Metrics(t *testing.T) {
	m := monitor.New()
	c := &Counter{Side: Left, Metrics: m}
	frames := []iface.LandmarkSet{pose(below), {}, pose(above)}
	_, err := c.Count(context.Background(), &fakeSource{n: 3}, &scriptedBackend{frames: frames})
	require.NoError(t, err)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.FramesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesSkipped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RepsTotal))
}

func TestParseSide(t *testing.T) {
	s, err := ParseSide("")
	require.NoError(t, err)
	assert.Equal(t, Left, s)
	s, err = ParseSide("RIGHT")
	require.NoError(t, err)
	assert.Equal(t, Right, s)
	_, err = ParseSide("both")
	assert.Error(t, err)
}
