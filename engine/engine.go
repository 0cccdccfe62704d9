package engine

import (
	iface "PushUpCounter/interface"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gocv.io/x/gocv"
)

const UNREGISTERED = 0x0001
const REGISTERED = 0x0002
const IDLE = 0x0003
const BUSY = 0x0004

var (
	ErrNotRegistered  = errors.New("detector not registered")
	ErrModelNotLoaded = errors.New("model not loaded")
	ErrBusy           = errors.New("detector is busy")
)

func ReadLinesReadFile(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	// tolerate CRLF
	raw := strings.Split(string(b), "\n")
	var lines []string
	for _, l := range raw {
		l = strings.TrimSpace(l)
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines, nil
}

// Detector runs a keypoint model (YOLOv8-pose output layout: 4 box values,
// 1 score, then x/y/visibility per keypoint) through OpenCV's DNN module.
type Detector struct {
	mu     sync.Mutex
	cfg    iface.EngineConfig
	names  []string
	net    gocv.Net
	loaded bool
	State  int
}

func (d *Detector) New() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.State = REGISTERED
	return true
}

// ResolveNames returns the keypoint names a config refers to, reading the
// file when IsFile is set. No names means COCO-17.
func ResolveNames(names iface.NamesConf) ([]string, error) {
	if names.IsFile {
		path, ok := names.Data.(string)
		if !ok {
			return nil, fmt.Errorf("names file must be a path, got %T", names.Data)
		}
		return ReadLinesReadFile(path)
	}
	switch v := names.Data.(type) {
	case nil:
		return iface.CocoKeypoints, nil
	case []string:
		if len(v) == 0 {
			return iface.CocoKeypoints, nil
		}
		return v, nil
	default:
		return nil, fmt.Errorf("names must be a slice or a file path, got %T", v)
	}
}

func (d *Detector) LoadModel(cfg iface.EngineConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.State == UNREGISTERED || d.State == 0 {
		return ErrNotRegistered
	}
	if !strings.EqualFold(filepath.Ext(cfg.ModelPath), ".onnx") {
		return fmt.Errorf("LoadModel only supports .onnx, got %q", cfg.ModelPath)
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return fmt.Errorf("model file: %w", err)
	}
	if cfg.InputSize <= 0 {
		return fmt.Errorf("input size must be positive, got %d", cfg.InputSize)
	}
	names, err := ResolveNames(cfg.Names)
	if err != nil {
		return err
	}
	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return fmt.Errorf("failed to read model %s", cfg.ModelPath)
	}
	if cfg.UseGPU {
		net.SetPreferableBackend(gocv.NetBackendCUDA)
		net.SetPreferableTarget(gocv.NetTargetCUDA)
	} else {
		net.SetPreferableBackend(gocv.NetBackendDefault)
		net.SetPreferableTarget(gocv.NetTargetCPU)
	}
	if d.loaded {
		_ = d.net.Close()
	}
	d.net = net
	d.loaded = true
	d.names = names
	d.cfg = cfg
	d.State = IDLE
	return nil
}

func (d *Detector) CheckConfig() iface.EngineConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	retConfig := d.cfg
	retConfig.Names = iface.NamesConf{
		IsFile: false,
		Data:   d.names,
	}
	return retConfig
}

func (d *Detector) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loaded {
		_ = d.net.Close()
	}
	d.loaded = false
	d.cfg = iface.EngineConfig{}
	d.names = nil
	d.State = UNREGISTERED
}

func (d *Detector) acquire() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch d.State {
	case IDLE:
		d.State = BUSY
		return nil
	case REGISTERED:
		return ErrModelNotLoaded
	case BUSY:
		return ErrBusy
	default:
		return ErrNotRegistered
	}
}

func (d *Detector) release() {
	d.mu.Lock()
	if d.State == BUSY {
		d.State = IDLE
	}
	d.mu.Unlock()
}

// Detect takes a BGR frame as produced by VideoCapture and IMDecode.
func (d *Detector) Detect(img gocv.Mat) (iface.LandmarkSet, error) {
	if err := d.acquire(); err != nil {
		return nil, err
	}
	defer d.release()
	if img.Empty() {
		return nil, errors.New("empty frame")
	}
	size := d.cfg.InputSize

	// the model was trained on RGB input
	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(img, &rgb, gocv.ColorBGRToRGB)

	blob := gocv.BlobFromImage(rgb, 1.0/255.0, image.Pt(size, size), gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()
	d.net.SetInput(blob, d.cfg.InputName)
	out := d.net.Forward(d.cfg.OutputName)
	defer out.Close()

	dims := out.Size()
	if len(dims) != 3 {
		return nil, fmt.Errorf("unexpected output shape %v", dims)
	}
	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}
	return decodePose(data, dims[1], dims[2], size, d.cfg.Conf, d.names)
}

// NewDetector registers a detector and loads the model in one step.
func NewDetector(cfg iface.EngineConfig) (*Detector, error) {
	d := &Detector{}
	d.New()
	if err := d.LoadModel(cfg); err != nil {
		d.Destroy()
		return nil, err
	}
	return d, nil
}
