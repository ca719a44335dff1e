// Package config loads the signalzero configuration from an optional YAML
// file with environment-variable overrides. Every field has a default; a
// missing config file is not an error.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"signalzero/internal/messaging"
)

// Config is the full configuration surface for agents and the pipeline.
type Config struct {
	Broker  BrokerConfig  `yaml:"broker" json:"broker"`
	Agents  AgentsConfig  `yaml:"agents" json:"agents"`
	Scoring ScoringConfig `yaml:"scoring" json:"scoring"`
	Demo    DemoConfig    `yaml:"demo" json:"demo"`
}

// BrokerConfig describes the external pub/sub broker. The message VPN rides
// with the username (user@vpn convention).
type BrokerConfig struct {
	Host              string `yaml:"host" json:"host"`
	VPN               string `yaml:"vpn" json:"vpn"`
	Username          string `yaml:"username" json:"username"`
	Password          string `yaml:"password" json:"password"`
	ClientNamePrefix  string `yaml:"client_name_prefix" json:"client_name_prefix"`
	ConnectTimeoutSec int    `yaml:"connect_timeout_sec" json:"connect_timeout_sec"`
	ConnectRetries    int    `yaml:"connect_retries" json:"connect_retries"`
}

// ConnectTimeout returns the broker connect timeout as a duration.
func (b BrokerConfig) ConnectTimeout() time.Duration {
	return time.Duration(b.ConnectTimeoutSec) * time.Second
}

// AgentsConfig carries runtime settings shared by all agents.
type AgentsConfig struct {
	// Enabled maps agent-type slug to an enable flag. A missing key means
	// enabled; only an explicit false disables an agent.
	Enabled map[string]bool `yaml:"enabled" json:"enabled"`

	Version              string `yaml:"version" json:"version"`
	HeartbeatIntervalSec int    `yaml:"heartbeat_interval_sec" json:"heartbeat_interval_sec"`

	// DispatchLimit bounds concurrent handler invocations on the in-process
	// fallback bus. Excess publishes queue rather than spawning unbounded work.
	DispatchLimit int64 `yaml:"dispatch_limit" json:"dispatch_limit"`
}

// IsEnabled reports whether the given agent should be started.
func (a AgentsConfig) IsEnabled(t messaging.AgentType) bool {
	v, ok := a.Enabled[string(t)]
	return !ok || v
}

// HeartbeatInterval returns the liveness loop period.
func (a AgentsConfig) HeartbeatInterval() time.Duration {
	return time.Duration(a.HeartbeatIntervalSec) * time.Second
}

// ScoringConfig holds the aggregation weights. The canonical values are
// 0.40/0.30/0.20/0.10 and the four must sum to 1.
type ScoringConfig struct {
	BotWeight       float64 `yaml:"bot_weight" json:"bot_weight"`
	TrendWeight     float64 `yaml:"trend_weight" json:"trend_weight"`
	ReviewWeight    float64 `yaml:"review_weight" json:"review_weight"`
	PromotionWeight float64 `yaml:"promotion_weight" json:"promotion_weight"`
}

// Validate checks the weights sum to 1 within a small tolerance.
func (s ScoringConfig) Validate() error {
	sum := s.BotWeight + s.TrendWeight + s.ReviewWeight + s.PromotionWeight
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("score weights must sum to 1.0, got %.3f", sum)
	}
	return nil
}

// DemoQuery is one hardcoded demonstration query with its canonical
// bot-percentage / reality-score pair.
type DemoQuery struct {
	BotPercentage int `yaml:"bot_percentage" json:"bot_percentage"`
	RealityScore  int `yaml:"reality_score" json:"reality_score"`
}

// DemoConfig controls the reproducible-demo short circuit.
type DemoConfig struct {
	Mode            bool    `yaml:"mode" json:"mode"`
	AddVariance     bool    `yaml:"add_variance" json:"add_variance"`
	ConfidenceScore float64 `yaml:"confidence_score" json:"confidence_score"`
	ResponseDelayMs int     `yaml:"response_delay_ms" json:"response_delay_ms"`

	StanleyCup  DemoQuery `yaml:"stanley_cup" json:"stanley_cup"`
	BuzzStock   DemoQuery `yaml:"buzz_stock" json:"buzz_stock"`
	PrimeEnergy DemoQuery `yaml:"prime_energy" json:"prime_energy"`
}

// ResponseDelay returns the simulated processing latency.
func (d DemoConfig) ResponseDelay() time.Duration {
	return time.Duration(d.ResponseDelayMs) * time.Millisecond
}

// Default returns the canonical configuration.
func Default() *Config {
	return &Config{
		Broker: BrokerConfig{
			Host:              "tcp://localhost:1883",
			VPN:               "default",
			Username:          "admin",
			Password:          "admin",
			ClientNamePrefix:  "signalzero-agent",
			ConnectTimeoutSec: 5,
			ConnectRetries:    1,
		},
		Agents: AgentsConfig{
			Enabled:              map[string]bool{},
			Version:              "1.0.0",
			HeartbeatIntervalSec: 1,
			DispatchLimit:        64,
		},
		Scoring: ScoringConfig{
			BotWeight:       0.40,
			TrendWeight:     0.30,
			ReviewWeight:    0.20,
			PromotionWeight: 0.10,
		},
		Demo: DemoConfig{
			Mode:            true,
			AddVariance:     true,
			ConfidenceScore: 94.5,
			ResponseDelayMs: 800,
			StanleyCup:      DemoQuery{BotPercentage: 62, RealityScore: 34},
			BuzzStock:       DemoQuery{BotPercentage: 87, RealityScore: 12},
			PrimeEnergy:     DemoQuery{BotPercentage: 71, RealityScore: 29},
		},
	}
}

// Load reads path (when it exists) over the defaults, then applies
// environment overrides. An empty path skips the file step.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Scoring.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	envString(&c.Broker.Host, "SOLACE_HOST")
	envString(&c.Broker.VPN, "SOLACE_VPN")
	envString(&c.Broker.Username, "SOLACE_USERNAME")
	envString(&c.Broker.Password, "SOLACE_PASSWORD")
	envString(&c.Broker.ClientNamePrefix, "SOLACE_CLIENT_NAME_PREFIX")
	envInt(&c.Broker.ConnectTimeoutSec, "AGENT_TIMEOUT_SECONDS")
	envInt(&c.Broker.ConnectRetries, "AGENT_MAX_RETRIES")

	envString(&c.Agents.Version, "AGENT_VERSION")

	envFloat(&c.Scoring.BotWeight, "SCORE_AGGREGATOR_BOT_WEIGHT")
	envFloat(&c.Scoring.TrendWeight, "SCORE_AGGREGATOR_TREND_WEIGHT")
	envFloat(&c.Scoring.ReviewWeight, "SCORE_AGGREGATOR_REVIEW_WEIGHT")
	envFloat(&c.Scoring.PromotionWeight, "SCORE_AGGREGATOR_PROMOTION_WEIGHT")

	envBool(&c.Demo.Mode, "DEMO_MODE")
	envBool(&c.Demo.AddVariance, "DEMO_ADD_REALISTIC_VARIANCE")
	envFloat(&c.Demo.ConfidenceScore, "DEMO_CONFIDENCE_SCORE")
	envInt(&c.Demo.ResponseDelayMs, "DEMO_RESPONSE_DELAY_MS")

	envInt(&c.Demo.StanleyCup.BotPercentage, "STANLEY_CUP_BOT_PERCENTAGE")
	envInt(&c.Demo.StanleyCup.RealityScore, "STANLEY_CUP_REALITY_SCORE")
	envInt(&c.Demo.BuzzStock.BotPercentage, "BUZZ_STOCK_BOT_PERCENTAGE")
	envInt(&c.Demo.BuzzStock.RealityScore, "BUZZ_STOCK_REALITY_SCORE")
	envInt(&c.Demo.PrimeEnergy.BotPercentage, "PRIME_ENERGY_BOT_PERCENTAGE")
	envInt(&c.Demo.PrimeEnergy.RealityScore, "PRIME_ENERGY_REALITY_SCORE")

	for _, t := range messaging.SignalAgents {
		c.applyAgentEnableEnv(t)
	}
	c.applyAgentEnableEnv(messaging.AgentScoreAggregator)
}

// applyAgentEnableEnv honors flags like BOT_DETECTOR_ENABLED=false.
func (c *Config) applyAgentEnableEnv(t messaging.AgentType) {
	key := envKeyForAgent(t) + "_ENABLED"
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			if c.Agents.Enabled == nil {
				c.Agents.Enabled = map[string]bool{}
			}
			c.Agents.Enabled[string(t)] = v
		}
	}
}

func envKeyForAgent(t messaging.AgentType) string {
	out := make([]byte, 0, len(t))
	for i := 0; i < len(t); i++ {
		ch := t[i]
		switch {
		case ch == '-':
			out = append(out, '_')
		case ch >= 'a' && ch <= 'z':
			out = append(out, ch-('a'-'A'))
		default:
			out = append(out, ch)
		}
	}
	return string(out)
}

func envString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			*dst = v
		}
	}
}

func envFloat(dst *float64, key string) {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			*dst = v
		}
	}
}

func envBool(dst *bool, key string) {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			*dst = v
		}
	}
}
