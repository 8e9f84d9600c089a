package logger

import (
	"strconv"
	"strings"
	"sync"
)

// sampleGate passes numerator out of every denominator events. A zeroed
// gate passes everything.
type sampleGate struct {
	mu      sync.Mutex
	pass    int
	cycle   int
	counter int
}

func newSampleGate(pass, cycle int) *sampleGate {
	g := &sampleGate{}
	g.Set(pass, cycle)
	return g
}

// Set reconfigures the ratio and restarts the cycle.
func (g *sampleGate) Set(pass, cycle int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if pass <= 0 || cycle <= 0 {
		g.pass, g.cycle, g.counter = 0, 0, 0
		return
	}
	if pass > cycle {
		pass = cycle
	}
	g.pass = pass
	g.cycle = cycle
	g.counter = 0
}

// Allow reports whether the current event falls inside the pass window.
func (g *sampleGate) Allow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cycle <= 0 || g.pass <= 0 {
		return true
	}
	g.counter++
	if g.counter > g.cycle {
		g.counter = 1
	}
	return g.counter <= g.pass
}

// parseSampleSpec accepts "N/M" (pass N of M) or a bare "M" (pass 1 of M).
// Anything unparsable disables sampling.
func parseSampleSpec(spec string) (int, int) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return 0, 0
	}
	if pass, cycle, ok := strings.Cut(spec, "/"); ok {
		p, err1 := strconv.Atoi(strings.TrimSpace(pass))
		c, err2 := strconv.Atoi(strings.TrimSpace(cycle))
		if err1 == nil && err2 == nil {
			return p, c
		}
		return 0, 0
	}
	if v, err := strconv.Atoi(spec); err == nil && v > 0 {
		return 1, v
	}
	return 0, 0
}
