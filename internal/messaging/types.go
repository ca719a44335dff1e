// Package messaging defines the wire-level envelopes exchanged between the
// signal agents and the score aggregator, plus the topic naming scheme.
package messaging

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AgentType identifies one of the five agents on the bus.
type AgentType string

const (
	AgentBotDetector     AgentType = "bot-detector"
	AgentTrendAnalyzer   AgentType = "trend-analyzer"
	AgentReviewValidator AgentType = "review-validator"
	AgentPaidPromotion   AgentType = "paid-promotion"
	AgentScoreAggregator AgentType = "score-aggregator"
)

// SignalAgents lists the four sub-score producers, in weight order.
// The aggregator is deliberately excluded: it consumes these, it is not one of them.
var SignalAgents = []AgentType{
	AgentBotDetector,
	AgentTrendAnalyzer,
	AgentReviewValidator,
	AgentPaidPromotion,
}

// Valid reports whether t is a known agent type.
func (t AgentType) Valid() bool {
	switch t {
	case AgentBotDetector, AgentTrendAnalyzer, AgentReviewValidator,
		AgentPaidPromotion, AgentScoreAggregator:
		return true
	}
	return false
}

// Platform is the social platform an analysis targets.
type Platform string

const (
	PlatformTwitter   Platform = "twitter"
	PlatformReddit    Platform = "reddit"
	PlatformInstagram Platform = "instagram"
	PlatformYouTube   Platform = "youtube"
	PlatformAmazon    Platform = "amazon"
	PlatformAll       Platform = "all"
)

// Valid reports whether p is a recognized platform.
func (p Platform) Valid() bool {
	switch p {
	case PlatformTwitter, PlatformReddit, PlatformInstagram,
		PlatformYouTube, PlatformAmazon, PlatformAll:
		return true
	}
	return false
}

// ParsePlatform validates a platform string, defaulting empty to "all".
func ParsePlatform(s string) (Platform, error) {
	if s == "" {
		return PlatformAll, nil
	}
	p := Platform(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown platform %q", s)
	}
	return p, nil
}

// Status marks whether an agent completed its analysis or failed.
type Status string

const (
	StatusComplete Status = "COMPLETE"
	StatusError    Status = "ERROR"
)

// ManipulationLevel is the three-zone classification of a Reality Score.
type ManipulationLevel string

const (
	LevelGreen  ManipulationLevel = "GREEN"  // authentic engagement
	LevelYellow ManipulationLevel = "YELLOW" // mixed signals
	LevelRed    ManipulationLevel = "RED"    // heavily manipulated
)

// Zone thresholds. 67.0 is GREEN, 34.0 is YELLOW; anything below 34 is RED.
const (
	GreenThreshold  = 67.0
	YellowThreshold = 34.0
)

// LevelForScore classifies a Reality Score into its manipulation zone.
func LevelForScore(realityScore float64) ManipulationLevel {
	switch {
	case realityScore >= GreenThreshold:
		return LevelGreen
	case realityScore >= YellowThreshold:
		return LevelYellow
	default:
		return LevelRed
	}
}

// NeutralScore is substituted for an absent or failed agent so the weighted
// formula is always defined over four terms. It must not pull the aggregate
// toward either manipulation or authenticity.
const NeutralScore = 50.0

// AnalysisRequest is published by the caller to each agent's request topic.
type AnalysisRequest struct {
	AnalysisID uuid.UUID `json:"analysisId"`
	Query      string    `json:"query"`
	Platform   Platform  `json:"platform"`
	UserID     string    `json:"userId,omitempty"`
}

// AgentResponse is published exactly once per request by each agent. It is
// never mutated after publication.
type AgentResponse struct {
	AnalysisID       uuid.UUID      `json:"analysisId"`
	Score            float64        `json:"score"`
	Confidence       float64        `json:"confidence"`
	Evidence         map[string]any `json:"evidence"`
	DataSources      []string       `json:"data_sources"`
	Status           Status         `json:"status"`
	AgentType        AgentType      `json:"agent_type"`
	ProcessingTimeMs int64          `json:"processing_time_ms"`
	Timestamp        time.Time      `json:"timestamp"`
	AgentVersion     string         `json:"agent_version"`
}

// Complete reports whether the response carries a usable score.
func (r *AgentResponse) Complete() bool {
	return r != nil && r.Status == StatusComplete
}

// AggregateRequest is the score-aggregator's request payload: the caller has
// already collected the per-agent responses for one analysis.
type AggregateRequest struct {
	AnalysisID   uuid.UUID                   `json:"analysisId"`
	Query        string                      `json:"query,omitempty"`
	AgentResults map[AgentType]AgentResponse `json:"agentResults"`
	UserID       string                      `json:"userId,omitempty"`
}

// StatusUpdate is pushed on the status updates topic for live progress.
type StatusUpdate struct {
	AnalysisID uuid.UUID `json:"analysisId"`
	AgentType  AgentType `json:"agent_type"`
	State      string    `json:"state"`
	Timestamp  time.Time `json:"timestamp"`
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClampScore bounds a score or confidence value to [0, 100].
func ClampScore(v float64) float64 {
	return Clamp(v, 0, 100)
}
