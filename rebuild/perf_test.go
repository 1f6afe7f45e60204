package rebuild

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPerfCalculatorEstimate(t *testing.T) {
	base := time.Unix(1000, 0)
	ticks := []time.Time{
		base,                      // window opens on the first read
		base.Add(10 * time.Second), // first window closes
		base.Add(30 * time.Second), // second window closes, 20s elapsed
	}
	i := 0
	p := NewPerfCalculator(4000)
	p.now = func() time.Time {
		tick := ticks[i]
		i++
		return tick
	}

	assert.Zero(t, p.RemainingSeconds(), "no estimate before a full sample window")

	for n := 0; n < 1000; n++ {
		p.Inc()
	}
	// 10s per 1000 reads, 3000 reads left
	assert.InDelta(t, 30.0, p.RemainingSeconds(), 1e-9)

	for n := 0; n < 1000; n++ {
		p.Inc()
	}
	// avg folds to (10+20)/2 = 15s per window, 2000 left
	assert.InDelta(t, 30.0, p.RemainingSeconds(), 1e-9)
	assert.Equal(t, int64(2000), p.ReadCount())
}

func TestPerfCalculatorNeverNegative(t *testing.T) {
	base := time.Unix(2000, 0)
	i := 0
	p := NewPerfCalculator(500) // fewer than one window
	p.now = func() time.Time {
		tick := base.Add(time.Duration(i) * time.Second)
		i++
		return tick
	}
	for n := 0; n < 1000; n++ {
		p.Inc()
	}
	assert.GreaterOrEqual(t, p.RemainingSeconds(), 0.0)
}
