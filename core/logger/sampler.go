package logger

import (
	"strconv"
	"strings"
	"sync"
)

// sampleGate passes num out of every den calls. A zero gate passes
// everything.
type sampleGate struct {
	mu    sync.Mutex
	num   int
	den   int
	calls int
}

func newSampleGate(num, den int) *sampleGate {
	g := &sampleGate{}
	g.Set(num, den)
	return g
}

func (g *sampleGate) Set(num, den int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if num <= 0 || den <= 0 {
		g.num, g.den, g.calls = 0, 0, 0
		return
	}
	if num > den {
		num = den
	}
	g.num, g.den, g.calls = num, den, 0
}

func (g *sampleGate) Allow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.den <= 0 {
		return true
	}
	slot := g.calls % g.den
	g.calls++
	return slot < g.num
}

// parseSampleRatio accepts "num/den" or a bare denominator ("50" means
// 1/50). Empty or unparseable input disables sampling.
func parseSampleRatio(spec string) (int, int) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return 0, 0
	}
	if num, den, ok := strings.Cut(spec, "/"); ok {
		n, err1 := strconv.Atoi(strings.TrimSpace(num))
		d, err2 := strconv.Atoi(strings.TrimSpace(den))
		if err1 == nil && err2 == nil {
			return n, d
		}
		return 0, 0
	}
	if v, err := strconv.Atoi(spec); err == nil && v > 0 {
		return 1, v
	}
	return 0, 0
}
