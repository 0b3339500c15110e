package ui

import (
	"sync"
	"time"
)

// speedInterval is how often throughput is resampled. Sampling less
// often than every update keeps the reading stable.
const speedInterval = 500 * time.Millisecond

// etaSmoothingFactor weights new ETA estimates against the previous
// one so the display does not jump between refreshes.
const etaSmoothingFactor = 0.3

// ProgressTracker manages progress state across ingest stages.
// It is safe for concurrent use.
type ProgressTracker struct {
	mu          sync.RWMutex
	stage       Stage
	current     int
	total       int
	currentFile string
	startTime   time.Time
	stageStart  time.Time
	errors      []ErrorEvent
	warnings    []ErrorEvent

	lastETA time.Duration

	// Throughput tracking
	lastCurrent  int
	lastSample   time.Time
	currentSpeed float64
	avgSpeed     float64
	peakSpeed    float64
	speedSamples int
	sparkline    *Sparkline
}

// SpeedStats contains throughput metrics for display.
type SpeedStats struct {
	Current float64 // Records/sec right now
	Avg     float64 // Rolling average
	Peak    float64 // Maximum observed
}

// ProgressStats contains a snapshot of current progress.
type ProgressStats struct {
	Stage       Stage
	Current     int
	Total       int
	Progress    float64
	ETA         time.Duration
	CurrentFile string
	ErrorCount  int
	WarnCount   int
	Speed       SpeedStats
}

// NewProgressTracker creates a new progress tracker.
func NewProgressTracker() *ProgressTracker {
	now := time.Now()
	return &ProgressTracker{
		stage:      StageScanning,
		startTime:  now,
		stageStart: now,
		lastSample: now,
		sparkline:  NewSparkline(60),
	}
}

// SetStage transitions to a new stage and resets per-stage counters.
func (p *ProgressTracker) SetStage(stage Stage, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stage = stage
	p.total = total
	p.current = 0
	p.currentFile = ""
	p.stageStart = time.Now()
	p.lastETA = 0

	p.lastCurrent = 0
	p.lastSample = time.Now()
	p.currentSpeed = 0
	p.avgSpeed = 0
	p.peakSpeed = 0
	p.speedSamples = 0
	p.sparkline.Clear()
}

// Update updates progress within the current stage.
func (p *ProgressTracker) Update(current int, file string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = current
	if file != "" {
		p.currentFile = file
	}

	now := time.Now()
	elapsed := now.Sub(p.lastSample)
	if elapsed < speedInterval {
		return
	}

	if delta := current - p.lastCurrent; delta > 0 {
		speed := float64(delta) / elapsed.Seconds()
		p.currentSpeed = speed

		p.speedSamples++
		if p.speedSamples == 1 {
			p.avgSpeed = speed
		} else {
			// Exponential smoothing, responsive but stable
			p.avgSpeed = 0.2*speed + 0.8*p.avgSpeed
		}

		if speed > p.peakSpeed {
			p.peakSpeed = speed
		}

		p.sparkline.Add(speed)
	}

	p.lastCurrent = current
	p.lastSample = now
}

// AddError records an error or warning.
func (p *ProgressTracker) AddError(event ErrorEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if event.IsWarn {
		p.warnings = append(p.warnings, event)
	} else {
		p.errors = append(p.errors, event)
	}
}

// Elapsed returns time since tracker creation.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return time.Since(p.startTime)
}

// Stats returns a snapshot of current statistics.
// Takes the write lock because calculateETA updates the smoothing state.
func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	progress := 0.0
	if p.total > 0 {
		progress = float64(p.current) / float64(p.total)
		if progress > 1.0 {
			progress = 1.0
		}
	}

	return ProgressStats{
		Stage:       p.stage,
		Current:     p.current,
		Total:       p.total,
		Progress:    progress,
		ETA:         p.calculateETA(),
		CurrentFile: p.currentFile,
		ErrorCount:  len(p.errors),
		WarnCount:   len(p.warnings),
		Speed: SpeedStats{
			Current: p.currentSpeed,
			Avg:     p.avgSpeed,
			Peak:    p.peakSpeed,
		},
	}
}

// calculateETA estimates remaining stage time with exponential
// smoothing. Must be called with the lock held.
func (p *ProgressTracker) calculateETA() time.Duration {
	if p.current == 0 || p.total == 0 {
		return 0
	}

	elapsed := time.Since(p.stageStart)
	progress := float64(p.current) / float64(p.total)
	if progress <= 0 || progress >= 1.0 {
		return 0
	}

	remaining := time.Duration(float64(elapsed)/progress) - elapsed
	if remaining < 0 {
		return 0
	}

	if p.lastETA == 0 {
		p.lastETA = remaining
		return remaining
	}

	smoothed := time.Duration(
		etaSmoothingFactor*float64(remaining) +
			(1-etaSmoothingFactor)*float64(p.lastETA),
	)
	p.lastETA = smoothed

	return smoothed
}

// Errors returns the recorded errors.
func (p *ProgressTracker) Errors() []ErrorEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]ErrorEvent, len(p.errors))
	copy(out, p.errors)
	return out
}

// Warnings returns the recorded warnings.
func (p *ProgressTracker) Warnings() []ErrorEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]ErrorEvent, len(p.warnings))
	copy(out, p.warnings)
	return out
}

// RenderSparkline returns the throughput sparkline at the given width.
func (p *ProgressTracker) RenderSparkline(width int) string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.sparkline == nil {
		return ""
	}
	return p.sparkline.Render(width)
}

// SpeedStats returns current throughput statistics.
func (p *ProgressTracker) SpeedStats() SpeedStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return SpeedStats{
		Current: p.currentSpeed,
		Avg:     p.avgSpeed,
		Peak:    p.peakSpeed,
	}
}
