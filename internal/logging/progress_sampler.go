package logging

// ProgressSampler throttles extraction progress logs to one record per
// percentage step. The first sample and completion always log.
type ProgressSampler struct {
	step     int
	lastStep int
	done     bool
}

// NewProgressSampler returns a sampler that logs every step percent. Steps
// outside 1..100 fall back to 5.
func NewProgressSampler(step int) *ProgressSampler {
	if step <= 0 || step > 100 {
		step = 5
	}
	return &ProgressSampler{step: step, lastStep: -1}
}

// ShouldLog reports whether progress at percent should be logged.
func (s *ProgressSampler) ShouldLog(percent int) bool {
	if s == nil {
		return true
	}
	if percent >= 100 {
		if s.done {
			return false
		}
		s.done = true
		s.lastStep = 100 / s.step
		return true
	}
	if percent < 0 {
		percent = 0
	}
	current := percent / s.step
	if current <= s.lastStep {
		return false
	}
	s.lastStep = current
	return true
}

// Reset forgets previous samples, e.g. when a task resumes.
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	s.lastStep = -1
	s.done = false
}
