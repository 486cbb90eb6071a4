package motion

// Search runs one control cycle for a frame without a measurement. As
// State.NoTargetFrames climbs it coasts in the last direction, then reverses
// once, then gives up, stops and forgets the stale history.
//
// The caller resets State.NoTargetFrames when a target is seen again.
func (c *Controller) Search(s *State) Decision {
	s.NoTargetFrames++
	n := s.NoTargetFrames
	d := Decision{Interval: s.Rate.Interval()}

	switch {
	case n < c.p.MaxNoTargetFrames:
		if s.RotationActive && s.LastDirection.Moving() {
			d.Direction = s.LastDirection
			d.Status = StatusCoasting
			d.Intensity = IntensitySearch
			return d
		}

	case n < c.p.ExtendedFrames:
		if n == c.p.MaxNoTargetFrames && s.RotationActive && s.LastDirection.Moving() {
			s.LastDirection = s.LastDirection.Opposite()
			s.Lock.Force(s.LastDirection)
		}
		if s.RotationActive && s.LastDirection.Moving() {
			d.Direction = s.LastDirection
			d.Status = StatusSearchingOpposite
			d.Intensity = IntensitySearch
			return d
		}

	default:
		s.LastDirection = Stop
		s.RotationActive = false
		s.Lock.Reset()
		s.Filter.Reset()
		d.Status = StatusLost
		return d
	}

	d.Status = StatusNoTarget
	return d
}
