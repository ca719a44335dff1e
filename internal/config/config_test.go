package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalzero/internal/messaging"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "tcp://localhost:1883", cfg.Broker.Host)
	assert.Equal(t, "default", cfg.Broker.VPN)

	assert.Equal(t, 0.40, cfg.Scoring.BotWeight)
	assert.Equal(t, 0.30, cfg.Scoring.TrendWeight)
	assert.Equal(t, 0.20, cfg.Scoring.ReviewWeight)
	assert.Equal(t, 0.10, cfg.Scoring.PromotionWeight)
	assert.NoError(t, cfg.Scoring.Validate())

	assert.True(t, cfg.Demo.Mode)
	assert.Equal(t, 94.5, cfg.Demo.ConfidenceScore)
	assert.Equal(t, DemoQuery{BotPercentage: 62, RealityScore: 34}, cfg.Demo.StanleyCup)
	assert.Equal(t, DemoQuery{BotPercentage: 87, RealityScore: 12}, cfg.Demo.BuzzStock)
	assert.Equal(t, DemoQuery{BotPercentage: 71, RealityScore: 29}, cfg.Demo.PrimeEnergy)

	// Every agent is enabled unless explicitly disabled.
	for _, a := range messaging.SignalAgents {
		assert.True(t, cfg.Agents.IsEnabled(a))
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Broker, cfg.Broker)
}

func TestLoadYAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
broker:
  host: tcp://broker.internal:1883
  username: svc-signalzero
agents:
  enabled:
    trend-analyzer: false
demo:
  mode: false
  response_delay_ms: 0
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "tcp://broker.internal:1883", cfg.Broker.Host)
	assert.Equal(t, "svc-signalzero", cfg.Broker.Username)
	assert.False(t, cfg.Demo.Mode)
	assert.False(t, cfg.Agents.IsEnabled(messaging.AgentTrendAnalyzer))
	assert.True(t, cfg.Agents.IsEnabled(messaging.AgentBotDetector))

	// Untouched sections keep their defaults.
	assert.Equal(t, 0.40, cfg.Scoring.BotWeight)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SOLACE_HOST", "tcp://env-broker:1883")
	t.Setenv("SOLACE_VPN", "prod")
	t.Setenv("SCORE_AGGREGATOR_BOT_WEIGHT", "0.25")
	t.Setenv("SCORE_AGGREGATOR_TREND_WEIGHT", "0.25")
	t.Setenv("SCORE_AGGREGATOR_REVIEW_WEIGHT", "0.25")
	t.Setenv("SCORE_AGGREGATOR_PROMOTION_WEIGHT", "0.25")
	t.Setenv("DEMO_MODE", "false")
	t.Setenv("STANLEY_CUP_REALITY_SCORE", "40")
	t.Setenv("BOT_DETECTOR_ENABLED", "false")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "tcp://env-broker:1883", cfg.Broker.Host)
	assert.Equal(t, "prod", cfg.Broker.VPN)
	assert.Equal(t, 0.25, cfg.Scoring.BotWeight)
	assert.False(t, cfg.Demo.Mode)
	assert.Equal(t, 40, cfg.Demo.StanleyCup.RealityScore)
	assert.False(t, cfg.Agents.IsEnabled(messaging.AgentBotDetector))
	assert.True(t, cfg.Agents.IsEnabled(messaging.AgentPaidPromotion))
}

func TestWeightValidation(t *testing.T) {
	t.Setenv("SCORE_AGGREGATOR_BOT_WEIGHT", "0.9")

	_, err := Load("")
	assert.Error(t, err, "weights no longer sum to 1")

	s := ScoringConfig{BotWeight: 0.40, TrendWeight: 0.30, ReviewWeight: 0.20, PromotionWeight: 0.10}
	assert.NoError(t, s.Validate())
}

func TestEnvKeyForAgent(t *testing.T) {
	assert.Equal(t, "BOT_DETECTOR", envKeyForAgent(messaging.AgentBotDetector))
	assert.Equal(t, "SCORE_AGGREGATOR", envKeyForAgent(messaging.AgentScoreAggregator))
}
