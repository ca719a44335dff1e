package messaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelForScore(t *testing.T) {
	tests := []struct {
		score float64
		want  ManipulationLevel
	}{
		{100, LevelGreen},
		{67.0, LevelGreen},
		{66.99, LevelYellow},
		{50, LevelYellow},
		{34.0, LevelYellow},
		{33.99, LevelRed},
		{0, LevelRed},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LevelForScore(tt.score), "score %.2f", tt.score)
	}
}

func TestParsePlatform(t *testing.T) {
	p, err := ParsePlatform("")
	assert.NoError(t, err)
	assert.Equal(t, PlatformAll, p, "empty platform defaults to all")

	p, err = ParsePlatform("twitter")
	assert.NoError(t, err)
	assert.Equal(t, PlatformTwitter, p)

	_, err = ParsePlatform("myspace")
	assert.Error(t, err)
}

func TestAgentTypeValid(t *testing.T) {
	for _, a := range SignalAgents {
		assert.True(t, a.Valid(), "%s", a)
	}
	assert.True(t, AgentScoreAggregator.Valid())
	assert.False(t, AgentType("weather-bot").Valid())
}

func TestSignalAgentsExcludeAggregator(t *testing.T) {
	assert.Len(t, SignalAgents, 4)
	assert.NotContains(t, SignalAgents, AgentScoreAggregator)
}

func TestTopics(t *testing.T) {
	assert.Equal(t, "signalzero/agent/bot-detector/request", RequestTopic(AgentBotDetector))
	assert.Equal(t, "signalzero/agent/score-aggregator/response", ResponseTopic(AgentScoreAggregator))
	assert.Equal(t, "signalzero/analysis/request", AnalysisRequestTopic)
	assert.Equal(t, "signalzero/analysis/response", AnalysisResponseTopic)
	assert.Equal(t, "signalzero/updates/score", ScoreUpdatesTopic)
	assert.Equal(t, "signalzero/updates/status", StatusUpdatesTopic)
}

func TestClampScore(t *testing.T) {
	assert.Equal(t, 0.0, ClampScore(-3))
	assert.Equal(t, 100.0, ClampScore(150))
	assert.Equal(t, 42.5, ClampScore(42.5))
}

func TestResponseComplete(t *testing.T) {
	var nilResp *AgentResponse
	assert.False(t, nilResp.Complete())
	assert.False(t, (&AgentResponse{Status: StatusError}).Complete())
	assert.True(t, (&AgentResponse{Status: StatusComplete}).Complete())
}
