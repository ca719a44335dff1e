package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/goleak"

	"signalzero/internal/config"
	"signalzero/internal/messaging"
	"signalzero/internal/transport"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// stubAnalyzer lets tests script analysis outcomes.
type stubAnalyzer struct {
	typ    messaging.AgentType
	result *Result
	err    error
}

func (s *stubAnalyzer) Type() messaging.AgentType { return s.typ }

func (s *stubAnalyzer) ProcessAnalysisRequest(context.Context, *Request) (*Result, error) {
	return s.result, s.err
}

func (s *stubAnalyzer) DemoEvidence(string, int, int) map[string]any {
	return map[string]any{"demo": true}
}

// testConfig disables the broker probe, demo mode and simulated latency so
// requests flow straight through the analyzer on the fallback bus.
func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Broker.Host = ""
	cfg.Demo.Mode = false
	cfg.Demo.ResponseDelayMs = 0
	return cfg
}

// awaitResponse subscribes to the agent's response topic before the request
// is published.
func awaitResponse(t *testing.T, bus *transport.MemoryBus, typ messaging.AgentType) <-chan messaging.AgentResponse {
	t.Helper()
	ch := make(chan messaging.AgentResponse, 1)
	err := bus.Subscribe(messaging.ResponseTopic(typ), func(payload []byte) {
		var resp messaging.AgentResponse
		if err := json.Unmarshal(payload, &resp); err != nil {
			t.Errorf("unmarshal response: %v", err)
			return
		}
		ch <- resp
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	return ch
}

func publishRequest(t *testing.T, bus *transport.MemoryBus, typ messaging.AgentType, req messaging.AnalysisRequest) {
	t.Helper()
	payload, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	if err := bus.Publish(messaging.RequestTopic(typ), payload); err != nil {
		t.Fatalf("Publish: %v", err)
	}
}

func TestAgentRequestResponse(t *testing.T) {
	bus := transport.NewMemoryBus(4, nil)
	defer bus.Close()

	stub := &stubAnalyzer{
		typ: messaging.AgentBotDetector,
		result: &Result{
			Score:       82.346,
			Confidence:  91.0,
			Evidence:    map[string]any{"finding": "mostly human"},
			DataSources: []string{"account_metadata"},
		},
	}
	a := New(stub, testConfig(), bus, nil, nil)
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer a.Stop()

	respCh := awaitResponse(t, bus, stub.typ)
	id := uuid.New()
	publishRequest(t, bus, stub.typ, messaging.AnalysisRequest{
		AnalysisID: id,
		Query:      "some topic",
		Platform:   messaging.PlatformAll,
	})

	select {
	case resp := <-respCh:
		if resp.AnalysisID != id {
			t.Fatalf("AnalysisID = %s, want %s", resp.AnalysisID, id)
		}
		if resp.Status != messaging.StatusComplete {
			t.Fatalf("Status = %s, want COMPLETE", resp.Status)
		}
		if resp.Score != 82.35 {
			t.Fatalf("Score = %v, want 82.35 (rounded)", resp.Score)
		}
		if resp.AgentType != messaging.AgentBotDetector {
			t.Fatalf("AgentType = %s", resp.AgentType)
		}
		if resp.AgentVersion == "" || resp.Timestamp.IsZero() {
			t.Fatal("response missing version or timestamp")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no response published")
	}
}

func TestAgentErrorPublishesNeutralResponse(t *testing.T) {
	bus := transport.NewMemoryBus(4, nil)
	defer bus.Close()

	stub := &stubAnalyzer{typ: messaging.AgentTrendAnalyzer, err: errors.New("upstream collapsed")}
	a := New(stub, testConfig(), bus, nil, nil)
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer a.Stop()

	respCh := awaitResponse(t, bus, stub.typ)
	id := uuid.New()
	publishRequest(t, bus, stub.typ, messaging.AnalysisRequest{AnalysisID: id, Query: "q", Platform: messaging.PlatformAll})

	select {
	case resp := <-respCh:
		if resp.Status != messaging.StatusError {
			t.Fatalf("Status = %s, want ERROR", resp.Status)
		}
		if resp.Score != messaging.NeutralScore {
			t.Fatalf("Score = %v, want neutral %v", resp.Score, messaging.NeutralScore)
		}
		if resp.Confidence != 0 {
			t.Fatalf("Confidence = %v, want 0", resp.Confidence)
		}
		if resp.AnalysisID != id {
			t.Fatalf("AnalysisID = %s, want %s", resp.AnalysisID, id)
		}
		if msg, _ := resp.Evidence["error_message"].(string); msg != "upstream collapsed" {
			t.Fatalf("error_message = %q", msg)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no error response published")
	}
}

func TestAgentDropsUndecodableRequest(t *testing.T) {
	bus := transport.NewMemoryBus(4, nil)
	defer bus.Close()

	stub := &stubAnalyzer{typ: messaging.AgentReviewValidator, result: &Result{Score: 50}}
	a := New(stub, testConfig(), bus, nil, nil)
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer a.Stop()

	respCh := awaitResponse(t, bus, stub.typ)
	if err := bus.Publish(messaging.RequestTopic(stub.typ), []byte("{not json")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	bus.Drain()

	select {
	case resp := <-respCh:
		t.Fatalf("unexpected response to garbage payload: %+v", resp)
	case <-time.After(200 * time.Millisecond):
	}

	if got := a.GetStatus().ErrorCount; got != 1 {
		t.Fatalf("ErrorCount = %d, want 1", got)
	}
}

func TestAgentDemoShortCircuit(t *testing.T) {
	cfg := testConfig()
	cfg.Demo.Mode = true
	cfg.Demo.AddVariance = false

	bus := transport.NewMemoryBus(4, nil)
	defer bus.Close()

	// The analyzer errors on purpose: demo queries must never reach it.
	stub := &stubAnalyzer{typ: messaging.AgentBotDetector, err: errors.New("must not be called")}
	demo := NewDemoTable(cfg.Demo, newTestRand())
	a := New(stub, cfg, bus, demo, nil)
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer a.Stop()

	respCh := awaitResponse(t, bus, stub.typ)
	publishRequest(t, bus, stub.typ, messaging.AnalysisRequest{
		AnalysisID: uuid.New(),
		Query:      "Stanley Cup tumbler craze",
		Platform:   messaging.PlatformAll,
	})

	select {
	case resp := <-respCh:
		if resp.Status != messaging.StatusComplete {
			t.Fatalf("Status = %s, want COMPLETE", resp.Status)
		}
		// stanley cup: bot percentage 62, no variance -> score 38.
		if resp.Score != 38 {
			t.Fatalf("Score = %v, want 38", resp.Score)
		}
		if resp.Confidence != 94.5 {
			t.Fatalf("Confidence = %v, want 94.5", resp.Confidence)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no demo response published")
	}
}

func TestAgentStartFailsOnClosedBus(t *testing.T) {
	bus := transport.NewMemoryBus(4, nil)
	if err := bus.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	stub := &stubAnalyzer{typ: messaging.AgentBotDetector, result: &Result{Score: 50}}
	a := New(stub, testConfig(), bus, nil, nil)

	if err := a.Start(context.Background()); err == nil {
		t.Fatal("Start on a closed bus succeeded, want error")
	}
	if got := a.State(); got != StateStopped {
		t.Fatalf("state after failed Start = %s, want STOPPED", got)
	}
	if err := a.Stop(); err != ErrNotRunning {
		t.Fatalf("Stop after failed Start = %v, want ErrNotRunning", err)
	}
}

func TestAgentLifecycle(t *testing.T) {
	bus := transport.NewMemoryBus(4, nil)
	defer bus.Close()

	stub := &stubAnalyzer{typ: messaging.AgentPaidPromotion, result: &Result{Score: 60}}
	a := New(stub, testConfig(), bus, nil, nil)

	if got := a.State(); got != StateCreated {
		t.Fatalf("initial state = %s, want CREATED", got)
	}
	if err := a.Stop(); err != ErrNotRunning {
		t.Fatalf("Stop before Start = %v, want ErrNotRunning", err)
	}

	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := a.State(); got != StateRunning {
		t.Fatalf("state after Start = %s, want RUNNING", got)
	}
	if err := a.Start(context.Background()); err == nil {
		t.Fatal("second Start succeeded, want error")
	}

	st := a.GetStatus()
	if !st.Running || st.TransportMode != transport.ModeFallback {
		t.Fatalf("status = %+v", st)
	}

	if err := a.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := a.State(); got != StateStopped {
		t.Fatalf("state after Stop = %s, want STOPPED", got)
	}
	if err := a.Stop(); err != ErrNotRunning {
		t.Fatalf("second Stop = %v, want ErrNotRunning", err)
	}
}
