package agent

import (
	"math/rand"
	"strings"
	"sync"

	"signalzero/internal/config"
	"signalzero/internal/messaging"
)

// demoJitter is the realistic-variance band applied to the canonical demo
// values when variance is enabled.
const demoJitter = 2

// demoDataSources marks demo responses so downstream consumers can tell them
// from synthetic analysis.
var demoDataSources = []string{"demo_data", "hardcoded_values"}

// DemoTable matches queries against the fixed set of demonstration queries
// and produces canonical, reproducible responses. The random source is
// injected so tests can pin the jitter.
type DemoTable struct {
	cfg config.DemoConfig

	mu  sync.Mutex
	rng *rand.Rand
}

// NewDemoTable builds the table from configuration. rng must not be shared
// with other consumers.
func NewDemoTable(cfg config.DemoConfig, rng *rand.Rand) *DemoTable {
	return &DemoTable{cfg: cfg, rng: rng}
}

// Lookup returns the canonical bot-percentage / reality-score pair for a
// known demo query.
func (d *DemoTable) Lookup(query string) (config.DemoQuery, bool) {
	q := strings.ToLower(query)
	switch {
	case strings.Contains(q, "stanley cup"):
		return d.cfg.StanleyCup, true
	case strings.Contains(q, "$buzz"), strings.Contains(q, "buzz stock"):
		return d.cfg.BuzzStock, true
	case strings.Contains(q, "prime energy"):
		return d.cfg.PrimeEnergy, true
	}
	return config.DemoQuery{}, false
}

// Response returns the pre-defined result for a matched demo query, or
// ok=false when the query is not a demo query and control should pass to the
// agent's own analysis.
func (d *DemoTable) Response(analyzer Analyzer, query string) (*Result, bool) {
	entry, ok := d.Lookup(query)
	if !ok {
		return nil, false
	}

	botPct := entry.BotPercentage
	reality := entry.RealityScore
	if d.cfg.AddVariance {
		botPct += d.intn(2*demoJitter+1) - demoJitter
		reality += d.intn(2*demoJitter+1) - demoJitter
	}
	botPct = clampInt(botPct, 0, 100)
	// Jitter must never flip the demo query into a neighboring zone; the
	// configured reality score defines the intended band.
	reality = clampToZone(reality, entry.RealityScore)

	var score float64
	switch analyzer.Type() {
	case messaging.AgentBotDetector:
		// Lower bot percentage means higher authenticity.
		score = float64(100 - botPct)
	case messaging.AgentScoreAggregator:
		score = float64(reality)
	default:
		s := reality
		if d.cfg.AddVariance {
			s += d.intn(11) - 5
		}
		score = float64(clampInt(s, 0, 100))
	}

	return &Result{
		Score:       score,
		Confidence:  d.cfg.ConfidenceScore,
		Evidence:    analyzer.DemoEvidence(query, botPct, reality),
		DataSources: demoDataSources,
	}, true
}

func (d *DemoTable) intn(n int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rng.Intn(n)
}

// clampToZone bounds a jittered reality score to the manipulation zone of
// its configured baseline.
func clampToZone(jittered, baseline int) int {
	switch messaging.LevelForScore(float64(baseline)) {
	case messaging.LevelGreen:
		return clampInt(jittered, int(messaging.GreenThreshold), 100)
	case messaging.LevelYellow:
		return clampInt(jittered, int(messaging.YellowThreshold), int(messaging.GreenThreshold)-1)
	default:
		return clampInt(jittered, 0, int(messaging.YellowThreshold)-1)
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
