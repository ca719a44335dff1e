// Package agent implements the shared runtime every signal agent runs on:
// lifecycle state machine, transport selection with fallback, the inbound
// message pipeline, and the reproducible-demo short circuit.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"signalzero/internal/config"
	"signalzero/internal/messaging"
	"signalzero/internal/transport"
)

// State is the agent lifecycle position. Transitions are strictly forward:
// CREATED -> CONNECTING -> RUNNING -> STOPPING -> STOPPED.
type State int32

const (
	StateCreated State = iota
	StateConnecting
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateConnecting:
		return "CONNECTING"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// ErrNotRunning is returned by Stop when the agent never reached RUNNING.
var ErrNotRunning = errors.New("agent: not running")

// Request is the decoded inbound payload. Plain signal agents use the
// embedded AnalysisRequest fields; the score aggregator additionally
// receives the pre-collected per-agent results.
type Request struct {
	messaging.AnalysisRequest
	AgentResults map[messaging.AgentType]messaging.AgentResponse `json:"agentResults,omitempty"`
}

// Result is what an Analyzer produces for one request. The runtime wraps it
// with transport metadata before publication.
type Result struct {
	Score       float64
	Confidence  float64
	Evidence    map[string]any
	DataSources []string
}

// Analyzer is the per-agent analysis strategy. Implementations must keep
// Score oriented so that higher means more legitimate.
type Analyzer interface {
	Type() messaging.AgentType
	ProcessAnalysisRequest(ctx context.Context, req *Request) (*Result, error)

	// DemoEvidence returns the agent-specific evidence bundle for a matched
	// demonstration query.
	DemoEvidence(query string, botPercentage, realityScore int) map[string]any
}

// Agent binds an Analyzer to the transport and runs the request/response
// contract on its fixed topic pair.
type Agent struct {
	analyzer Analyzer
	cfg      *config.Config
	fallback *transport.MemoryBus
	demo     *DemoTable
	logger   *zap.Logger

	tr   transport.Transport
	mode transport.Mode

	state           atomic.Int32
	processingCount atomic.Uint64
	errorCount      atomic.Uint64
	startTime       time.Time

	ctx    context.Context
	cancel context.CancelFunc
	hbDone chan struct{}
}

// New creates an agent in the CREATED state. fallback is the shared
// in-process bus used when the broker is unreachable; demo may be nil to
// disable the short circuit regardless of configuration.
func New(analyzer Analyzer, cfg *config.Config, fallback *transport.MemoryBus, demo *DemoTable, logger *zap.Logger) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Agent{
		analyzer: analyzer,
		cfg:      cfg,
		fallback: fallback,
		demo:     demo,
		logger:   logger.With(zap.String("agent", string(analyzer.Type()))),
		hbDone:   make(chan struct{}),
	}
}

// Start connects the transport, subscribes to the agent's request topic and
// launches the liveness loop. A broker failure is not an error: the agent
// silently advances to RUNNING on the fallback bus for its whole lifetime.
func (a *Agent) Start(ctx context.Context) error {
	if !a.state.CompareAndSwap(int32(StateCreated), int32(StateConnecting)) {
		return errors.New("agent: already started")
	}
	a.ctx, a.cancel = context.WithCancel(ctx)
	a.startTime = time.Now().UTC()

	if a.cfg.Broker.Host == "" {
		// No broker configured: straight to the fallback bus, no probe.
		a.tr, a.mode = a.fallback, transport.ModeFallback
	} else {
		a.tr, a.mode = transport.Connect(a.cfg.Broker, a.fallback, a.logger)
	}

	topic := messaging.RequestTopic(a.analyzer.Type())
	if err := a.tr.Subscribe(topic, a.handleMessage); err != nil {
		a.cancel()
		if a.mode == transport.ModeBroker {
			_ = a.tr.Close()
		}
		a.state.Store(int32(StateStopped))
		return err
	}

	a.state.Store(int32(StateRunning))
	go a.heartbeat()

	a.logger.Info("agent running",
		zap.String("request_topic", topic),
		zap.String("transport", string(a.mode)))
	return nil
}

// heartbeat is the liveness loop: it only confirms the agent is scheduled
// and exits when the agent stops.
func (a *Agent) heartbeat() {
	defer close(a.hbDone)
	interval := a.cfg.Agents.HeartbeatInterval()
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.logger.Debug("heartbeat",
				zap.Uint64("processed", a.processingCount.Load()),
				zap.Uint64("errors", a.errorCount.Load()))
		}
	}
}

// handleMessage is the per-request pipeline. Decode failures drop the
// message; analyzer failures publish a neutral ERROR response. In-flight
// work is never cancelled by Stop.
func (a *Agent) handleMessage(payload []byte) {
	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		a.errorCount.Add(1)
		a.logger.Error("dropping undecodable request", zap.Error(err))
		return
	}

	// In-flight work survives Stop: cancellation stops new work, it does not
	// abort a request already being processed.
	start := time.Now()
	result, err := a.process(context.WithoutCancel(a.ctx), &req)
	elapsed := time.Since(start)

	var resp messaging.AgentResponse
	if err != nil {
		a.errorCount.Add(1)
		a.logger.Error("analysis failed, publishing neutral error response",
			zap.String("analysis_id", req.AnalysisID.String()),
			zap.Error(err))
		resp = messaging.AgentResponse{
			Score:      messaging.NeutralScore,
			Confidence: 0.0,
			Status:     messaging.StatusError,
			Evidence:   map[string]any{"error_message": err.Error()},
		}
	} else {
		a.processingCount.Add(1)
		resp = messaging.AgentResponse{
			Score:       round2(messaging.ClampScore(result.Score)),
			Confidence:  round2(messaging.ClampScore(result.Confidence)),
			Status:      messaging.StatusComplete,
			Evidence:    result.Evidence,
			DataSources: result.DataSources,
		}
	}

	resp.AnalysisID = req.AnalysisID
	resp.AgentType = a.analyzer.Type()
	resp.ProcessingTimeMs = elapsed.Milliseconds()
	resp.Timestamp = time.Now().UTC()
	resp.AgentVersion = a.cfg.Agents.Version

	a.publishResponse(&resp)
}

// process routes a request through the demo short circuit or the analyzer.
func (a *Agent) process(ctx context.Context, req *Request) (*Result, error) {
	if a.demo != nil && a.cfg.Demo.Mode {
		if result, ok := a.demo.Response(a.analyzer, req.Query); ok {
			a.logger.Info("returning demo response", zap.String("query", req.Query))
			return result, nil
		}
	}

	// Simulated latency applies to synthetic analysis only; demo responses
	// return immediately to keep the demo snappy.
	if delay := a.cfg.Demo.ResponseDelay(); delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return a.analyzer.ProcessAnalysisRequest(ctx, req)
}

func (a *Agent) publishResponse(resp *messaging.AgentResponse) {
	payload, err := json.Marshal(resp)
	if err != nil {
		a.logger.Error("marshal response", zap.Error(err))
		return
	}
	topic := messaging.ResponseTopic(a.analyzer.Type())
	if err := a.tr.Publish(topic, payload); err != nil {
		a.logger.Error("publish response", zap.String("topic", topic), zap.Error(err))
	}
}

// Stop unsubscribes and releases transport resources. It stops accepting new
// work; handler invocations already in flight run to completion.
func (a *Agent) Stop() error {
	if !a.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return ErrNotRunning
	}
	a.cancel()
	<-a.hbDone

	topic := messaging.RequestTopic(a.analyzer.Type())
	if u, ok := a.tr.(transport.Unsubscriber); ok {
		if err := u.Unsubscribe(topic); err != nil {
			a.logger.Warn("unsubscribe failed", zap.Error(err))
		}
	}
	if a.mode == transport.ModeBroker {
		// The fallback bus is shared between agents and stays open.
		if err := a.tr.Close(); err != nil {
			a.logger.Warn("transport close failed", zap.Error(err))
		}
	}

	a.state.Store(int32(StateStopped))
	a.logger.Info("agent stopped",
		zap.Uint64("processed", a.processingCount.Load()),
		zap.Uint64("errors", a.errorCount.Load()))
	return nil
}

// State returns the current lifecycle state.
func (a *Agent) State() State {
	return State(a.state.Load())
}

// Status is a point-in-time health snapshot, for external health checks only.
type Status struct {
	AgentType       messaging.AgentType `json:"agent_type"`
	State           string              `json:"state"`
	Running         bool                `json:"is_running"`
	UptimeSeconds   float64             `json:"uptime_seconds"`
	ProcessingCount uint64              `json:"processing_count"`
	ErrorCount      uint64              `json:"error_count"`
	ErrorRate       float64             `json:"error_rate"`
	TransportMode   transport.Mode      `json:"transport_mode"`
}

// GetStatus reports uptime, throughput counters and transport mode.
func (a *Agent) GetStatus() Status {
	state := a.State()
	processed := a.processingCount.Load()
	errs := a.errorCount.Load()

	denom := processed
	if denom == 0 {
		denom = 1
	}

	var uptime float64
	if !a.startTime.IsZero() {
		uptime = time.Since(a.startTime).Seconds()
	}

	return Status{
		AgentType:       a.analyzer.Type(),
		State:           state.String(),
		Running:         state == StateRunning,
		UptimeSeconds:   uptime,
		ProcessingCount: processed,
		ErrorCount:      errs,
		ErrorRate:       float64(errs) / float64(denom),
		TransportMode:   a.mode,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
