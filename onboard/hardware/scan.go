package hardware

// Scanner sweeps pan back and forth while nothing is being tracked.
type Scanner struct {
	state *TurretState
	pos   *PositionController
}

// Scan steps one unit in the current direction and reverses once the bound for that
// direction has been reached.
func (s *Scanner) Scan() error {
	if s.state.ScanDirection == 0 {
		s.state.ScanDirection = 1
	}

	err := s.pos.Step(s.state.ScanDirection)

	switch {
	case s.state.ScanDirection == 1 && s.state.Pan <= POS_MIN:
		s.state.ScanDirection = -1
	case s.state.ScanDirection == -1 && s.state.Pan >= POS_MAX:
		s.state.ScanDirection = 1
	}

	return err
}

// SetDirection points the sweep towards the sign of signal. Zero keeps the current
// direction.
func (s *Scanner) SetDirection(signal int) {
	if signal == 0 {
		return
	}
	s.state.ScanDirection = sign(signal)
}

func (s *Scanner) Direction() int {
	return s.state.ScanDirection
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
