package ui

import "strings"

// sparklineChars are the Unicode block characters for rendering, eight
// levels from near-empty to full.
var sparklineChars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// Sparkline renders a text throughput chart from a rolling window of
// samples.
type Sparkline struct {
	samples []float64
	size    int
	max     float64
}

// NewSparkline creates a sparkline keeping the most recent size samples.
func NewSparkline(size int) *Sparkline {
	if size <= 0 {
		size = 60
	}
	return &Sparkline{
		samples: make([]float64, 0, size),
		size:    size,
	}
}

// Add appends a sample, evicting the oldest when the window is full.
func (s *Sparkline) Add(value float64) {
	if len(s.samples) == s.size {
		evicted := s.samples[0]
		s.samples = append(s.samples[:0], s.samples[1:]...)
		if evicted == s.max {
			s.recalculateMax()
		}
	}
	s.samples = append(s.samples, value)
	if value > s.max {
		s.max = value
	}
}

func (s *Sparkline) recalculateMax() {
	s.max = 0
	for _, v := range s.samples {
		if v > s.max {
			s.max = v
		}
	}
}

// Render returns the most recent samples as block characters, left
// padded with spaces to width.
func (s *Sparkline) Render(width int) string {
	if width <= 0 {
		width = s.size
	}

	recent := s.samples
	if len(recent) > width {
		recent = recent[len(recent)-width:]
	}

	var sb strings.Builder
	sb.Grow(width * 3) // block characters are 3 bytes in UTF-8

	for i := 0; i < width-len(recent); i++ {
		sb.WriteRune(' ')
	}
	for _, v := range recent {
		sb.WriteRune(sparklineChars[s.level(v)])
	}

	return sb.String()
}

// level scales a sample to an index into sparklineChars.
func (s *Sparkline) level(value float64) int {
	if s.max <= 0 {
		return 0
	}
	idx := int(value / s.max * float64(len(sparklineChars)-1))
	if idx < 0 {
		return 0
	}
	if idx >= len(sparklineChars) {
		return len(sparklineChars) - 1
	}
	return idx
}

// Clear resets the sparkline.
func (s *Sparkline) Clear() {
	s.samples = s.samples[:0]
	s.max = 0
}

// Count returns the number of samples currently held.
func (s *Sparkline) Count() int {
	return len(s.samples)
}

// Max returns the largest sample in the window.
func (s *Sparkline) Max() float64 {
	return s.max
}
