package rebuild

import (
	"sync"
	"time"
)

const perfSampleSize = 1000

// PerfCalculator estimates the time remaining in a scan from the observed
// pace of device reads. Every sample window the elapsed time is folded
// into a running average, avg = (avg + elapsed) / 2, so the estimate
// tracks recent throughput more than ancient history.
type PerfCalculator struct {
	mu         sync.Mutex
	total      int64
	read       int64
	sampleSize int64
	windowAt   time.Time
	avg        float64
	remaining  float64
	now        func() time.Time
}

// NewPerfCalculator estimates over total expected reads.
func NewPerfCalculator(total int64) *PerfCalculator {
	return &PerfCalculator{
		total:      total,
		sampleSize: perfSampleSize,
		now:        time.Now,
	}
}

// Inc records one read; at each sample-window boundary the pace and the
// remaining-time estimate are refreshed.
func (p *PerfCalculator) Inc() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.read == 0 {
		p.windowAt = p.now()
	}
	p.read++
	if p.read%p.sampleSize != 0 {
		return
	}
	now := p.now()
	elapsed := now.Sub(p.windowAt).Seconds()
	p.windowAt = now
	if p.avg == 0 {
		p.avg = elapsed
	} else {
		p.avg = (p.avg + elapsed) / 2
	}
	left := p.total - p.read
	if left < 0 {
		left = 0
	}
	p.remaining = p.avg / float64(p.sampleSize) * float64(left)
}

// RemainingSeconds is the latest estimate; zero until one full sample
// window has elapsed.
func (p *PerfCalculator) RemainingSeconds() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remaining
}

func (p *PerfCalculator) ReadCount() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.read
}
