package video

import (
	"PushUpCounter/logger"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

type Options struct {
	// DownloadRemote fetches http(s) sources to a local file before decoding.
	DownloadRemote bool
	DownloadDir    string
	Timeout        time.Duration
}

// Capture is a finite, sequential stream of BGR frames.
type Capture struct {
	vc       *gocv.VideoCapture
	uri      string
	tempPath string
	frames   int
}

// Open opens a file path or URL for decoding.
func Open(ctx context.Context, uri string, opts Options) (*Capture, error) {
	if uri == "" {
		return nil, errors.New("empty video path")
	}
	c := &Capture{uri: uri}
	source := uri
	if IsRemote(uri) {
		if opts.DownloadRemote {
			client := resty.New().SetTimeout(opts.Timeout)
			path, err := Fetch(ctx, client, uri, opts.DownloadDir)
			if err != nil {
				return nil, err
			}
			c.tempPath = path
			source = path
		}
	} else if _, err := os.Stat(uri); err != nil {
		return nil, fmt.Errorf("video %s: %w", uri, err)
	}

	vc, err := gocv.VideoCaptureFile(source)
	if err != nil {
		c.removeTemp()
		return nil, fmt.Errorf("open video %s: %w", uri, err)
	}
	if !vc.IsOpened() {
		_ = vc.Close()
		c.removeTemp()
		return nil, fmt.Errorf("open video %s: capture not opened", uri)
	}
	c.vc = vc
	logger.Log().Debug("Video opened", zap.String("uri", uri), zap.String("source", source))
	return c, nil
}

// Next decodes the next frame. The caller owns and must close the returned Mat.
// ok is false once the stream is exhausted.
func (c *Capture) Next() (gocv.Mat, bool) {
	if c.vc == nil {
		return gocv.Mat{}, false
	}
	mat := gocv.NewMat()
	if ok := c.vc.Read(&mat); !ok || mat.Empty() {
		_ = mat.Close()
		return gocv.Mat{}, false
	}
	c.frames++
	return mat, true
}

func (c *Capture) Frames() int {
	return c.frames
}

func (c *Capture) removeTemp() {
	if c.tempPath == "" {
		return
	}
	if err := os.Remove(c.tempPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Log().Warn("failed to remove downloaded video", zap.String("path", c.tempPath), zap.Error(err))
	}
	c.tempPath = ""
}

// Close releases the capture and any downloaded copy. Safe to call twice.
func (c *Capture) Close() error {
	var err error
	if c.vc != nil {
		err = c.vc.Close()
		c.vc = nil
	}
	c.removeTemp()
	return err
}
