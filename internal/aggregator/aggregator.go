// Package aggregator combines the four signal-agent sub-scores into the final
// Reality Score. Aggregation is pure: the same set of agent responses always
// produces the same score, level, confidence and evidence.
package aggregator

import (
	"context"
	"fmt"
	"math"

	"signalzero/internal/agent"
	"signalzero/internal/config"
	"signalzero/internal/messaging"
)

// Confidence bounds and the fallback when no agent responded.
const (
	minConfidence     = 60.0
	maxConfidence     = 98.0
	defaultConfidence = 70.0
)

// ScoreAggregator reduces per-agent results to a weighted Reality Score.
// It runs as the fifth agent on the bus, consuming pre-collected results.
type ScoreAggregator struct {
	weights config.ScoringConfig
}

// New builds the aggregator from the configured weights.
func New(weights config.ScoringConfig) *ScoreAggregator {
	return &ScoreAggregator{weights: weights}
}

func (s *ScoreAggregator) Type() messaging.AgentType {
	return messaging.AgentScoreAggregator
}

// weightFor maps an agent type to its configured share of the final score.
func (s *ScoreAggregator) weightFor(t messaging.AgentType) float64 {
	switch t {
	case messaging.AgentBotDetector:
		return s.weights.BotWeight
	case messaging.AgentTrendAnalyzer:
		return s.weights.TrendWeight
	case messaging.AgentReviewValidator:
		return s.weights.ReviewWeight
	case messaging.AgentPaidPromotion:
		return s.weights.PromotionWeight
	default:
		return 0
	}
}

// Outcome is one complete aggregation: the Reality Score with its zone,
// confidence, and the scores that produced it.
type Outcome struct {
	RealityScore      float64
	ManipulationLevel messaging.ManipulationLevel
	Confidence        float64
	AgentScores       map[messaging.AgentType]float64
	Responded         []messaging.AgentType
}

// Aggregate computes the weighted Reality Score over the four signal agents.
// An agent that is missing or reported ERROR contributes the neutral score,
// so the formula is always defined over all four terms. An ERROR response
// still counts as a responder: its 0.0 confidence drags the aggregate
// confidence down rather than silently inflating it.
func (s *ScoreAggregator) Aggregate(results map[messaging.AgentType]messaging.AgentResponse) Outcome {
	scores := make(map[messaging.AgentType]float64, len(messaging.SignalAgents))
	scoreValues := make([]float64, 0, len(messaging.SignalAgents))
	var responded []messaging.AgentType
	var confidences []float64

	var weighted float64
	for _, t := range messaging.SignalAgents {
		score := messaging.NeutralScore
		if resp, ok := results[t]; ok {
			if resp.Complete() {
				score = messaging.ClampScore(resp.Score)
			}
			responded = append(responded, t)
			confidences = append(confidences, messaging.ClampScore(resp.Confidence))
		}
		scores[t] = round2(score)
		scoreValues = append(scoreValues, score)
		weighted += score * s.weightFor(t)
	}

	reality := round2(messaging.ClampScore(weighted))
	return Outcome{
		RealityScore:      reality,
		ManipulationLevel: messaging.LevelForScore(reality),
		Confidence:        aggregateConfidence(confidences, scoreValues),
		AgentScores:       scores,
		Responded:         responded,
	}
}

// aggregateConfidence is the mean responder confidence plus a consistency
// bonus that shrinks as the four scores (neutral substitutes included)
// disagree, plus a coverage bonus per responder beyond the first, bounded to
// [60, 98].
func aggregateConfidence(confidences, scores []float64) float64 {
	if len(confidences) == 0 {
		return defaultConfidence
	}

	m := mean(confidences)
	consistency := math.Max(0, 10-variance(scores)/10)
	coverage := 2 * float64(len(confidences)-1)

	return round2(messaging.Clamp(m+consistency+coverage, minConfidence, maxConfidence))
}

// ProcessAnalysisRequest adapts the aggregator to the shared agent runtime:
// the request carries the pre-collected per-agent results.
func (s *ScoreAggregator) ProcessAnalysisRequest(_ context.Context, req *agent.Request) (*agent.Result, error) {
	if len(req.AgentResults) == 0 {
		return nil, fmt.Errorf("aggregate %s: no agent results", req.AnalysisID)
	}

	outcome := s.Aggregate(req.AgentResults)
	return &agent.Result{
		Score:       outcome.RealityScore,
		Confidence:  outcome.Confidence,
		Evidence:    s.buildEvidence(req.Query, outcome, req.AgentResults),
		DataSources: combinedDataSources(req.AgentResults),
	}, nil
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

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
