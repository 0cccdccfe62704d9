package counter

// State is the up/down latch. The count never decreases and a down phase
// is counted at most once.
type State struct {
	down  bool
	count int
}

// Observe applies one detection. Image y grows downwards, so elbowY greater
// than shoulderY means the elbow is below the shoulder. It reports whether
// this observation completed a repetition.
func (s *State) Observe(elbowY, shoulderY float32) bool {
	switch {
	case !s.down && elbowY > shoulderY:
		s.down = true
	case s.down && elbowY < shoulderY:
		s.count++
		s.down = false
		return true
	}
	return false
}

func (s *State) Down() bool {
	return s.down
}

func (s *State) Count() int {
	return s.count
}

func (s *State) Reset() {
	s.down = false
	s.count = 0
}
