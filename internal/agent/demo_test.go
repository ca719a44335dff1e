package agent

import (
	"math/rand"
	"testing"

	"signalzero/internal/config"
	"signalzero/internal/messaging"
)

func newTestRand() *rand.Rand {
	return rand.New(rand.NewSource(1))
}

func TestDemoLookup(t *testing.T) {
	demo := NewDemoTable(config.Default().Demo, newTestRand())

	tests := []struct {
		query   string
		want    config.DemoQuery
		matched bool
	}{
		{"Stanley Cup tumbler", config.DemoQuery{BotPercentage: 62, RealityScore: 34}, true},
		{"is $BUZZ legit?", config.DemoQuery{BotPercentage: 87, RealityScore: 12}, true},
		{"buzz stock to the moon", config.DemoQuery{BotPercentage: 87, RealityScore: 12}, true},
		{"PRIME ENERGY drink", config.DemoQuery{BotPercentage: 71, RealityScore: 29}, true},
		{"some random topic", config.DemoQuery{}, false},
	}
	for _, tt := range tests {
		got, ok := demo.Lookup(tt.query)
		if ok != tt.matched {
			t.Fatalf("Lookup(%q) matched = %v, want %v", tt.query, ok, tt.matched)
		}
		if got != tt.want {
			t.Fatalf("Lookup(%q) = %+v, want %+v", tt.query, got, tt.want)
		}
	}
}

func TestDemoResponseWithoutVariance(t *testing.T) {
	cfg := config.Default().Demo
	cfg.AddVariance = false
	demo := NewDemoTable(cfg, newTestRand())

	bot := &stubAnalyzer{typ: messaging.AgentBotDetector}
	res, ok := demo.Response(bot, "stanley cup")
	if !ok {
		t.Fatal("stanley cup not matched")
	}
	if res.Score != 38 {
		t.Fatalf("bot-detector score = %v, want 38 (100 - 62)", res.Score)
	}
	if res.Confidence != 94.5 {
		t.Fatalf("confidence = %v, want 94.5", res.Confidence)
	}

	agg := &stubAnalyzer{typ: messaging.AgentScoreAggregator}
	res, ok = demo.Response(agg, "stanley cup")
	if !ok {
		t.Fatal("stanley cup not matched")
	}
	if res.Score != 34 {
		t.Fatalf("aggregator score = %v, want 34", res.Score)
	}

	if _, ok := demo.Response(bot, "unremarkable query"); ok {
		t.Fatal("non-demo query produced a demo response")
	}
}

// Jitter must never move a demo query into a neighboring manipulation zone.
func TestDemoVarianceStaysInZone(t *testing.T) {
	cfg := config.Default().Demo
	cfg.AddVariance = true
	demo := NewDemoTable(cfg, newTestRand())
	agg := &stubAnalyzer{typ: messaging.AgentScoreAggregator}

	queries := map[string]int{
		"stanley cup":  34, // YELLOW, sits on the zone floor
		"$buzz":        12, // RED
		"prime energy": 29, // RED, near the YELLOW border
	}
	for query, baseline := range queries {
		want := messaging.LevelForScore(float64(baseline))
		for i := 0; i < 200; i++ {
			res, ok := demo.Response(agg, query)
			if !ok {
				t.Fatalf("%q not matched", query)
			}
			if got := messaging.LevelForScore(res.Score); got != want {
				t.Fatalf("%q run %d: score %v classified %s, want %s",
					query, i, res.Score, got, want)
			}
		}
	}
}

func TestDemoVarianceBotScoreBand(t *testing.T) {
	cfg := config.Default().Demo
	cfg.AddVariance = true
	demo := NewDemoTable(cfg, newTestRand())
	bot := &stubAnalyzer{typ: messaging.AgentBotDetector}

	// stanley cup bot percentage 62 +/- 2 -> score in [36, 40].
	for i := 0; i < 200; i++ {
		res, _ := demo.Response(bot, "stanley cup")
		if res.Score < 36 || res.Score > 40 {
			t.Fatalf("run %d: score %v outside [36, 40]", i, res.Score)
		}
	}
}

func TestDemoDataSources(t *testing.T) {
	demo := NewDemoTable(config.Default().Demo, newTestRand())
	res, ok := demo.Response(&stubAnalyzer{typ: messaging.AgentTrendAnalyzer}, "prime energy")
	if !ok {
		t.Fatal("prime energy not matched")
	}
	if len(res.DataSources) != 2 || res.DataSources[0] != "demo_data" {
		t.Fatalf("DataSources = %v", res.DataSources)
	}
	if res.Evidence == nil {
		t.Fatal("demo response missing evidence")
	}
}
