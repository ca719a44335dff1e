// Package pipeline coordinates one full analysis: it fans an analysis request
// out to the four signal agents, collects their responses, hands the set to
// the score-aggregator agent, and publishes the final Reality Score.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"signalzero/internal/agent"
	"signalzero/internal/aggregator"
	"signalzero/internal/analyzers"
	"signalzero/internal/config"
	"signalzero/internal/messaging"
	"signalzero/internal/transport"
)

// DefaultAnalysisTimeout bounds one full analysis round trip. Agents that
// miss the window are substituted with the neutral score.
const DefaultAnalysisTimeout = 30 * time.Second

// ErrAggregatorTimeout is returned when the signal agents responded but the
// score aggregator never did. Unlike a slow signal agent there is no neutral
// substitute for the final score.
var ErrAggregatorTimeout = errors.New("pipeline: score aggregator did not respond")

// Report is the outcome of one analysis, assembled from the aggregator's
// response plus the raw per-agent results.
type Report struct {
	AnalysisID        uuid.UUID                                       `json:"analysisId"`
	Query             string                                          `json:"query"`
	Platform          messaging.Platform                              `json:"platform"`
	RealityScore      float64                                         `json:"reality_score"`
	ManipulationLevel messaging.ManipulationLevel                     `json:"manipulation_level"`
	Confidence        float64                                         `json:"confidence"`
	Aggregate         messaging.AgentResponse                         `json:"aggregate"`
	AgentResults      map[messaging.AgentType]messaging.AgentResponse `json:"agentResults"`
	Elapsed           time.Duration                                   `json:"-"`
}

// Coordinator drives analyses over the shared transport. One coordinator
// serves any number of concurrent Analyze calls; responses are routed to
// callers by analysis ID.
type Coordinator struct {
	cfg      *config.Config
	fallback *transport.MemoryBus
	logger   *zap.Logger

	// Timeout bounds a single Analyze call. Zero means DefaultAnalysisTimeout.
	Timeout time.Duration

	tr   transport.Transport
	mode transport.Mode

	mu      sync.Mutex
	pending map[uuid.UUID]chan messaging.AgentResponse
}

// NewCoordinator creates an unstarted coordinator on the shared fallback bus.
func NewCoordinator(cfg *config.Config, fallback *transport.MemoryBus, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		cfg:      cfg,
		fallback: fallback,
		logger:   logger.With(zap.String("component", "coordinator")),
		pending:  make(map[uuid.UUID]chan messaging.AgentResponse),
	}
}

// Start connects the transport and subscribes to every agent's response
// topic. Like the agents, a broker failure degrades to the fallback bus.
func (c *Coordinator) Start() error {
	if c.cfg.Broker.Host == "" {
		c.tr, c.mode = c.fallback, transport.ModeFallback
	} else {
		c.tr, c.mode = transport.Connect(c.cfg.Broker, c.fallback, c.logger)
	}

	for _, t := range append(append([]messaging.AgentType{}, messaging.SignalAgents...), messaging.AgentScoreAggregator) {
		if err := c.tr.Subscribe(messaging.ResponseTopic(t), c.handleResponse); err != nil {
			return fmt.Errorf("subscribe %s responses: %w", t, err)
		}
	}
	c.logger.Info("coordinator ready", zap.String("transport", string(c.mode)))
	return nil
}

// Close releases the broker connection, if any. The shared fallback bus is
// left open for its owner to close.
func (c *Coordinator) Close() error {
	if c.mode == transport.ModeBroker && c.tr != nil {
		return c.tr.Close()
	}
	return nil
}

// handleResponse routes an agent response to the Analyze call awaiting it.
// Responses for unknown analyses (late arrivals after timeout) are dropped.
func (c *Coordinator) handleResponse(payload []byte) {
	var resp messaging.AgentResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		c.logger.Error("dropping undecodable agent response", zap.Error(err))
		return
	}

	c.mu.Lock()
	ch, ok := c.pending[resp.AnalysisID]
	c.mu.Unlock()
	if !ok {
		c.logger.Debug("dropping response for unknown analysis",
			zap.String("analysis_id", resp.AnalysisID.String()),
			zap.String("agent", string(resp.AgentType)))
		return
	}

	select {
	case ch <- resp:
	default:
		// Channel is sized for one response per agent; a duplicate means a
		// misbehaving publisher and is safe to drop.
		c.logger.Warn("dropping surplus agent response",
			zap.String("analysis_id", resp.AnalysisID.String()),
			zap.String("agent", string(resp.AgentType)))
	}
}

// Analyze runs one query through the full agent pipeline and returns the
// aggregated report. Signal agents that miss the timeout are reported as
// absent; the aggregator substitutes the neutral score for them.
func (c *Coordinator) Analyze(ctx context.Context, query string, platform messaging.Platform) (*Report, error) {
	if query == "" {
		return nil, errors.New("pipeline: empty query")
	}
	if !platform.Valid() {
		return nil, fmt.Errorf("pipeline: unknown platform %q", platform)
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultAnalysisTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	id := uuid.New()
	req := messaging.AnalysisRequest{
		AnalysisID: id,
		Query:      query,
		Platform:   platform,
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	ch := make(chan messaging.AgentResponse, len(messaging.SignalAgents)+1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	start := time.Now()
	c.publishStatus(id, "", "STARTED")

	// Broadcast to the pipeline entry topic and each agent's request topic.
	var g errgroup.Group
	g.Go(func() error { return c.tr.Publish(messaging.AnalysisRequestTopic, payload) })
	for _, t := range messaging.SignalAgents {
		topic := messaging.RequestTopic(t)
		g.Go(func() error { return c.tr.Publish(topic, payload) })
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("publish analysis request: %w", err)
	}

	// Signal collection gets most of the budget; the remainder is reserved so
	// a signal-agent timeout still leaves the aggregator time to respond.
	signalCtx, cancelSignals := context.WithTimeout(ctx, timeout*4/5)
	results := c.collectSignals(signalCtx, id, ch)
	cancelSignals()

	aggregate, err := c.aggregate(ctx, id, query, results, ch)
	if err != nil {
		c.publishStatus(id, messaging.AgentScoreAggregator, "FAILED")
		return nil, err
	}

	c.publishFinal(aggregate)
	c.publishStatus(id, messaging.AgentScoreAggregator, "COMPLETE")

	return &Report{
		AnalysisID:        id,
		Query:             query,
		Platform:          platform,
		RealityScore:      aggregate.Score,
		ManipulationLevel: messaging.LevelForScore(aggregate.Score),
		Confidence:        aggregate.Confidence,
		Aggregate:         *aggregate,
		AgentResults:      results,
		Elapsed:           time.Since(start),
	}, nil
}

// collectSignals waits for the four signal-agent responses, returning
// whatever arrived when the context expires.
func (c *Coordinator) collectSignals(ctx context.Context, id uuid.UUID, ch <-chan messaging.AgentResponse) map[messaging.AgentType]messaging.AgentResponse {
	results := make(map[messaging.AgentType]messaging.AgentResponse, len(messaging.SignalAgents))
	for len(results) < len(messaging.SignalAgents) {
		select {
		case resp := <-ch:
			if resp.AgentType == messaging.AgentScoreAggregator {
				continue
			}
			if _, dup := results[resp.AgentType]; dup {
				continue
			}
			results[resp.AgentType] = resp
			c.publishStatus(id, resp.AgentType, string(resp.Status))
		case <-ctx.Done():
			for _, t := range messaging.SignalAgents {
				if _, ok := results[t]; !ok {
					c.logger.Warn("signal agent timed out",
						zap.String("analysis_id", id.String()),
						zap.String("agent", string(t)))
					c.publishStatus(id, t, "TIMEOUT")
				}
			}
			return results
		}
	}
	return results
}

// aggregate hands the collected results to the score-aggregator agent and
// awaits the final response.
func (c *Coordinator) aggregate(ctx context.Context, id uuid.UUID, query string, results map[messaging.AgentType]messaging.AgentResponse, ch <-chan messaging.AgentResponse) (*messaging.AgentResponse, error) {
	aggReq := messaging.AggregateRequest{
		AnalysisID:   id,
		Query:        query,
		AgentResults: results,
	}
	payload, err := json.Marshal(aggReq)
	if err != nil {
		return nil, fmt.Errorf("marshal aggregate request: %w", err)
	}
	if err := c.tr.Publish(messaging.RequestTopic(messaging.AgentScoreAggregator), payload); err != nil {
		return nil, fmt.Errorf("publish aggregate request: %w", err)
	}

	for {
		select {
		case resp := <-ch:
			if resp.AgentType != messaging.AgentScoreAggregator {
				continue
			}
			return &resp, nil
		case <-ctx.Done():
			return nil, ErrAggregatorTimeout
		}
	}
}

// publishFinal pushes the aggregate result to the pipeline exit topic and the
// live score feed. Failures are logged, not fatal: the caller already has the
// report in hand.
func (c *Coordinator) publishFinal(aggregate *messaging.AgentResponse) {
	payload, err := json.Marshal(aggregate)
	if err != nil {
		c.logger.Error("marshal final result", zap.Error(err))
		return
	}
	for _, topic := range []string{messaging.AnalysisResponseTopic, messaging.ScoreUpdatesTopic} {
		if err := c.tr.Publish(topic, payload); err != nil {
			c.logger.Warn("publish final result failed",
				zap.String("topic", topic), zap.Error(err))
		}
	}
}

func (c *Coordinator) publishStatus(id uuid.UUID, agentType messaging.AgentType, state string) {
	update := messaging.StatusUpdate{
		AnalysisID: id,
		AgentType:  agentType,
		State:      state,
		Timestamp:  time.Now().UTC(),
	}
	payload, err := json.Marshal(update)
	if err != nil {
		return
	}
	if err := c.tr.Publish(messaging.StatusUpdatesTopic, payload); err != nil {
		c.logger.Debug("publish status update failed", zap.Error(err))
	}
}

// BuildAgents constructs the five agents on the shared fallback bus: the four
// signal agents plus the score aggregator, honoring per-agent enable flags.
func BuildAgents(cfg *config.Config, fallback *transport.MemoryBus, logger *zap.Logger) []*agent.Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	newRng := func() *rand.Rand {
		return rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	analyzerFor := map[messaging.AgentType]agent.Analyzer{
		messaging.AgentBotDetector:     analyzers.NewBotDetector(newRng()),
		messaging.AgentTrendAnalyzer:   analyzers.NewTrendAnalyzer(newRng()),
		messaging.AgentReviewValidator: analyzers.NewReviewValidator(newRng()),
		messaging.AgentPaidPromotion:   analyzers.NewPaidPromotionDetector(newRng()),
		messaging.AgentScoreAggregator: aggregator.New(cfg.Scoring),
	}

	var agents []*agent.Agent
	for _, t := range append(append([]messaging.AgentType{}, messaging.SignalAgents...), messaging.AgentScoreAggregator) {
		if !cfg.Agents.IsEnabled(t) {
			logger.Info("agent disabled by configuration", zap.String("agent", string(t)))
			continue
		}
		demo := agent.NewDemoTable(cfg.Demo, newRng())
		agents = append(agents, agent.New(analyzerFor[t], cfg, fallback, demo, logger))
	}
	return agents
}
