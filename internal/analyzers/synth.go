// Package analyzers contains the four signal agents. Each synthesizes a
// plausible evidence bundle from an injected random source and reduces it to
// a normalized score/confidence pair; higher scores always mean more
// legitimate. The synthesis strategies are pluggable demo stand-ins for real
// collectors and are deterministic for a fixed seed.
package analyzers

import (
	"math"
	"math/rand"
	"strings"
	"sync"
)

// lockedRand makes a rand.Rand safe for the concurrent handler invocations
// the transport may deliver.
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func newLockedRand(r *rand.Rand) *lockedRand {
	if r == nil {
		r = rand.New(rand.NewSource(rand.Int63()))
	}
	return &lockedRand{r: r}
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}

// IntBetween returns a uniform int in [lo, hi].
func (l *lockedRand) IntBetween(lo, hi int) int {
	return lo + l.Intn(hi-lo+1)
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

// Uniform returns a uniform float in [lo, hi).
func (l *lockedRand) Uniform(lo, hi float64) float64 {
	return lo + l.Float64()*(hi-lo)
}

func (l *lockedRand) Bool() bool {
	return l.Intn(2) == 0
}

// Pick returns one of the options uniformly.
func (l *lockedRand) Pick(options ...string) string {
	return options[l.Intn(len(options))]
}

// containsAny reports whether the lowercased query mentions any of the terms.
func containsAny(query string, terms ...string) bool {
	q := strings.ToLower(query)
	for _, t := range terms {
		if strings.Contains(q, t) {
			return true
		}
	}
	return false
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func variance(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	var sum float64
	for _, v := range values {
		sum += (v - m) * (v - m)
	}
	return sum / float64(len(values))
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
