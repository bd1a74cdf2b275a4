package frame

import (
	"time"

	"github.com/loov/hrtime"
)

// Stats accumulates frame timings with the high resolution clock.
type Stats struct {
	frames      int
	recreations int
	last        time.Duration
	total       time.Duration
}

func NewStats() *Stats {
	return &Stats{}
}

func (s *Stats) Begin() time.Duration {
	return hrtime.Now()
}

func (s *Stats) End(start time.Duration) {
	s.record(hrtime.Since(start))
}

func (s *Stats) record(elapsed time.Duration) {
	s.frames++
	s.last = elapsed
	s.total += elapsed
}

func (s *Stats) Recreated() {
	s.recreations++
}

func (s *Stats) Frames() int { return s.frames }
func (s *Stats) Recreations() int { return s.recreations }
func (s *Stats) Last() time.Duration { return s.last }

func (s *Stats) Average() time.Duration {
	if s.frames == 0 {
		return 0
	}
	return s.total / time.Duration(s.frames)
}
