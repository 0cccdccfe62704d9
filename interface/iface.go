package iface

import "gocv.io/x/gocv"

type NamesConf struct {
	IsFile bool
	Data   any
}

type EngineConfig struct {
	UseGPU     bool
	ModelPath  string
	Names      NamesConf
	Conf       float32
	InputSize  int
	InputName  string
	OutputName string
}

// Landmark is one joint in normalized image coordinates, y growing downwards.
type Landmark struct {
	X          float32 `json:"x"`
	Y          float32 `json:"y"`
	Visibility float32 `json:"visibility"`
}

// LandmarkSet maps joint names to landmarks. An empty set means no pose was found.
type LandmarkSet map[string]Landmark

func (ls LandmarkSet) Detected() bool {
	return len(ls) > 0
}

// Joint returns the named landmark and whether it is present.
func (ls LandmarkSet) Joint(name string) (Landmark, bool) {
	l, ok := ls[name]
	return l, ok
}

const (
	Nose          = "nose"
	LeftEye       = "left_eye"
	RightEye      = "right_eye"
	LeftEar       = "left_ear"
	RightEar      = "right_ear"
	LeftShoulder  = "left_shoulder"
	RightShoulder = "right_shoulder"
	LeftElbow     = "left_elbow"
	RightElbow    = "right_elbow"
	LeftWrist     = "left_wrist"
	RightWrist    = "right_wrist"
	LeftHip       = "left_hip"
	RightHip      = "right_hip"
	LeftKnee      = "left_knee"
	RightKnee     = "right_knee"
	LeftAnkle     = "left_ankle"
	RightAnkle    = "right_ankle"
)

// CocoKeypoints is the keypoint order of COCO-trained pose models.
var CocoKeypoints = []string{
	Nose, LeftEye, RightEye, LeftEar, RightEar,
	LeftShoulder, RightShoulder, LeftElbow, RightElbow,
	LeftWrist, RightWrist, LeftHip, RightHip,
	LeftKnee, RightKnee, LeftAnkle, RightAnkle,
}

// Backend is a pose estimation provider. Implementations are not safe for
// concurrent Detect calls; callers hold one backend per goroutine.
type Backend interface {
	LoadModel(cfg EngineConfig) error
	Detect(image gocv.Mat) (LandmarkSet, error)
	Destroy()
	CheckConfig() EngineConfig
}
