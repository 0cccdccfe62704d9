package engine

import (
	iface "PushUpCounter/interface"
	"fmt"
)

// decodePose picks the highest scoring candidate from a [1, C, N] pose head
// (or its transposed [1, N, C] export) and maps its keypoints to joint names.
// Keypoint coordinates are in input pixels; the frame is resized without
// letterboxing, so dividing by the input size gives frame-normalized values.
func decodePose(data []float32, d1, d2 int, inputSize int, conf float32, names []string) (iface.LandmarkSet, error) {
	channels, anchors := d1, d2
	transposed := false
	if d1 > d2 {
		channels, anchors = d2, d1
		transposed = true
	}
	if channels < 8 || (channels-5)%3 != 0 {
		return nil, fmt.Errorf("output has %d channels, not a keypoint head", channels)
	}
	if len(data) < channels*anchors {
		return nil, fmt.Errorf("output holds %d values, want %d", len(data), channels*anchors)
	}
	at := func(c, a int) float32 {
		if transposed {
			return data[a*channels+c]
		}
		return data[c*anchors+a]
	}

	best := -1
	var bestScore float32
	for a := 0; a < anchors; a++ {
		if s := at(4, a); best < 0 || s > bestScore {
			best, bestScore = a, s
		}
	}
	if best < 0 || bestScore < conf {
		return iface.LandmarkSet{}, nil
	}

	scale := float32(inputSize)
	kpCount := (channels - 5) / 3
	set := make(iface.LandmarkSet, kpCount)
	for k := 0; k < kpCount; k++ {
		name := fmt.Sprintf("kp_%d", k)
		if k < len(names) {
			name = names[k]
		}
		set[name] = iface.Landmark{
			X:          at(5+3*k, best) / scale,
			Y:          at(5+3*k+1, best) / scale,
			Visibility: at(5+3*k+2, best),
		}
	}
	return set, nil
}
