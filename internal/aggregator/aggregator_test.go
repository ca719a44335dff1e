package aggregator

import (
	"context"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalzero/internal/agent"
	"signalzero/internal/config"
	"signalzero/internal/messaging"
)

func newAggregator() *ScoreAggregator {
	return New(config.Default().Scoring)
}

func results(scores map[messaging.AgentType]float64) map[messaging.AgentType]messaging.AgentResponse {
	out := make(map[messaging.AgentType]messaging.AgentResponse, len(scores))
	for t, s := range scores {
		out[t] = messaging.AgentResponse{
			AgentType:  t,
			Score:      s,
			Confidence: 90,
			Status:     messaging.StatusComplete,
			Evidence:   map[string]any{},
		}
	}
	return out
}

func TestAggregateWeightedScore(t *testing.T) {
	agg := newAggregator()

	tests := []struct {
		name   string
		scores map[messaging.AgentType]float64
		want   float64
		level  messaging.ManipulationLevel
	}{
		{
			name: "mixed",
			scores: map[messaging.AgentType]float64{
				messaging.AgentBotDetector:     80,
				messaging.AgentTrendAnalyzer:   60,
				messaging.AgentReviewValidator: 40,
				messaging.AgentPaidPromotion:   20,
			},
			want:  60, // 0.4*80 + 0.3*60 + 0.2*40 + 0.1*20
			level: messaging.LevelYellow,
		},
		{
			name: "all authentic",
			scores: map[messaging.AgentType]float64{
				messaging.AgentBotDetector:     100,
				messaging.AgentTrendAnalyzer:   100,
				messaging.AgentReviewValidator: 100,
				messaging.AgentPaidPromotion:   100,
			},
			want:  100,
			level: messaging.LevelGreen,
		},
		{
			name: "all manipulated",
			scores: map[messaging.AgentType]float64{
				messaging.AgentBotDetector:     0,
				messaging.AgentTrendAnalyzer:   0,
				messaging.AgentReviewValidator: 0,
				messaging.AgentPaidPromotion:   0,
			},
			want:  0,
			level: messaging.LevelRed,
		},
		{
			name: "green boundary",
			scores: map[messaging.AgentType]float64{
				messaging.AgentBotDetector:     67,
				messaging.AgentTrendAnalyzer:   67,
				messaging.AgentReviewValidator: 67,
				messaging.AgentPaidPromotion:   67,
			},
			want:  67,
			level: messaging.LevelGreen,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := agg.Aggregate(results(tt.scores))
			assert.Equal(t, tt.want, outcome.RealityScore)
			assert.Equal(t, tt.level, outcome.ManipulationLevel)
			assert.Len(t, outcome.Responded, 4)
		})
	}
}

func TestAggregateSubstitutesNeutralForMissingAgents(t *testing.T) {
	agg := newAggregator()

	outcome := agg.Aggregate(results(map[messaging.AgentType]float64{
		messaging.AgentBotDetector: 90,
	}))

	// 0.4*90 + (0.3+0.2+0.1)*50 = 66
	assert.Equal(t, 66.0, outcome.RealityScore)
	assert.Equal(t, messaging.LevelYellow, outcome.ManipulationLevel)
	assert.Len(t, outcome.Responded, 1)
	assert.Equal(t, messaging.NeutralScore, outcome.AgentScores[messaging.AgentTrendAnalyzer])
}

func TestAggregateErrorResponseContributesNeutralScoreAndZeroConfidence(t *testing.T) {
	agg := newAggregator()

	rs := results(map[messaging.AgentType]float64{
		messaging.AgentBotDetector:   90,
		messaging.AgentTrendAnalyzer: 10,
	})
	failed := rs[messaging.AgentTrendAnalyzer]
	failed.Status = messaging.StatusError
	failed.Confidence = 0
	rs[messaging.AgentTrendAnalyzer] = failed

	outcome := agg.Aggregate(rs)
	assert.Equal(t, 66.0, outcome.RealityScore, "errored agent must contribute the neutral score")

	// The errored agent still responded: it counts toward coverage and its
	// 0.0 confidence enters the mean. mean(90, 0) = 45, score variance 300
	// (90/50/50/50) kills the consistency bonus, coverage 2 -> floor 60.
	assert.Len(t, outcome.Responded, 2)
	assert.Equal(t, 60.0, outcome.Confidence)
}

// A single failure must lower the aggregate confidence, not inflate it by
// shrinking the mean to the healthy responders.
func TestAggregateConfidenceDropsWhenOneAgentFails(t *testing.T) {
	agg := newAggregator()

	rs := results(map[messaging.AgentType]float64{
		messaging.AgentBotDetector:     90,
		messaging.AgentTrendAnalyzer:   90,
		messaging.AgentReviewValidator: 90,
	})
	rs[messaging.AgentPaidPromotion] = messaging.AgentResponse{
		AgentType:  messaging.AgentPaidPromotion,
		Status:     messaging.StatusError,
		Score:      messaging.NeutralScore,
		Confidence: 0,
	}

	outcome := agg.Aggregate(rs)
	assert.Equal(t, 86.0, outcome.RealityScore)
	assert.Len(t, outcome.Responded, 4)

	// mean(90, 90, 90, 0) = 67.5; scores 90/90/90/50 vary by 300 so no
	// consistency bonus; coverage 6.
	assert.Equal(t, 73.5, outcome.Confidence)
}

func TestAggregateConfidence(t *testing.T) {
	flat := []float64{50, 50, 50, 50}

	assert.Equal(t, 70.0, aggregateConfidence(nil, flat), "no responders falls back to default")

	// One responder: mean 80 + full consistency bonus 10 + no coverage bonus.
	assert.Equal(t, 90.0, aggregateConfidence([]float64{80}, flat))

	// Four responders agreeing perfectly: mean 80 + bonus 10 + coverage 6.
	assert.Equal(t, 96.0, aggregateConfidence([]float64{80, 80, 80, 80}, flat))

	// Identical high confidences hit the ceiling.
	assert.Equal(t, 98.0, aggregateConfidence([]float64{94.5, 94.5, 94.5, 94.5}, flat))

	// Maximal score disagreement erases the consistency bonus even when the
	// responders are equally sure of themselves: mean 70 + 0 + coverage 6.
	split := []float64{90, 10, 90, 10}
	assert.Equal(t, 76.0, aggregateConfidence([]float64{70, 70, 70, 70}, split))

	// Mild score spread keeps part of the bonus: variance 50 -> bonus 5.
	spread := []float64{60, 50, 50, 40}
	assert.Equal(t, 87.0, aggregateConfidence([]float64{80, 80}, spread))

	// The floor holds even for rock-bottom inputs.
	assert.Equal(t, 60.0, aggregateConfidence([]float64{0, 0}, flat))
}

func TestAggregateIsDeterministic(t *testing.T) {
	agg := newAggregator()
	rs := results(map[messaging.AgentType]float64{
		messaging.AgentBotDetector:     73.2,
		messaging.AgentTrendAnalyzer:   41.7,
		messaging.AgentReviewValidator: 88.0,
	})

	first := agg.Aggregate(rs)
	second := agg.Aggregate(rs)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("aggregation not idempotent (-first +second):\n%s", diff)
	}
}

func TestProcessAnalysisRequestEvidence(t *testing.T) {
	agg := newAggregator()

	rs := results(map[messaging.AgentType]float64{
		messaging.AgentBotDetector:     20,
		messaging.AgentTrendAnalyzer:   25,
		messaging.AgentReviewValidator: 30,
		messaging.AgentPaidPromotion:   35,
	})
	for typ, resp := range rs {
		resp.Evidence = map[string]any{
			"key_findings": []string{"Coordinated bot activity detected", "Suspicious spike in volume"},
		}
		resp.DataSources = []string{"shared_source", "src_" + string(typ)}
		rs[typ] = resp
	}

	req := &agent.Request{
		AnalysisRequest: messaging.AnalysisRequest{AnalysisID: uuid.New(), Query: "$BUZZ"},
		AgentResults:    rs,
	}
	res, err := agg.ProcessAnalysisRequest(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 25.0, res.Score) // 0.4*20 + 0.3*25 + 0.2*30 + 0.1*35
	assert.Equal(t, "RED", res.Evidence["manipulation_level"])

	breakdown, ok := res.Evidence["score_breakdown"].(map[string]any)
	require.True(t, ok)
	bot := breakdown[string(messaging.AgentBotDetector)].(map[string]any)
	assert.Equal(t, 8.0, bot["weighted_contribution"])
	assert.Equal(t, "Poor", bot["interpretation"])

	findings, ok := res.Evidence["key_findings"].([]string)
	require.True(t, ok)
	assert.Len(t, findings, maxKeyFindings, "findings list is capped")

	patterns := res.Evidence["cross_agent_patterns"].(map[string]any)
	confirmed := patterns["confirmed_themes"].([]string)
	assert.Contains(t, confirmed, "coordination")
	assert.Contains(t, confirmed, "suspicious_spikes")

	assert.Contains(t, res.DataSources, "multi_agent_aggregation")
	assert.Contains(t, res.DataSources, "weighted_scoring_algorithm")
	assert.Contains(t, res.DataSources, "shared_source")
	assert.True(t, sort.StringsAreSorted(res.DataSources))
}

func TestProcessAnalysisRequestRejectsEmptyResults(t *testing.T) {
	agg := newAggregator()
	_, err := agg.ProcessAnalysisRequest(context.Background(), &agent.Request{
		AnalysisRequest: messaging.AnalysisRequest{AnalysisID: uuid.New()},
	})
	assert.Error(t, err)
}
