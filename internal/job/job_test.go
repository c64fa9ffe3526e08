package job

import (
	"context"
	"testing"
	"time"

	"agent-arena/internal/agent"
	"agent-arena/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

var testTracer = trace.NewNoopTracerProvider().Tracer("test")

func TestNewPricePollerInterval(t *testing.T) {
	poller := NewPricePoller(testTracer, &stubRefresher{}, 2)
	if poller.pollInterval != 2*time.Second {
		t.Fatalf("expected 2s interval, got %v", poller.pollInterval)
	}
}

func TestPricePollerStart(t *testing.T) {
	t.Parallel()

	stub := &stubRefresher{}
	poller := NewPricePoller(testTracer, stub, 1)

	ctx, cancel := context.WithCancel(context.Background())
	go poller.Start(ctx)

	eventually(t, func() bool { return stub.calls > 0 })
	cancel()
}

func TestCycleJobRejectsBadSpec(t *testing.T) {
	t.Parallel()

	job := NewCycleJob(testTracer, &stubCycleRunner{}, agent.DefaultAgents, "not a cron spec")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := job.Start(ctx); err == nil {
		t.Fatal("expected error for invalid cron spec")
	}
}

func TestCycleJobRunOnce(t *testing.T) {
	stub := &stubCycleRunner{results: []*domain.CycleResult{
		{AgentID: "a", Status: "completed"},
		{AgentID: "b", Status: "failed"},
	}}
	job := NewCycleJob(testTracer, stub, agent.DefaultAgents, "@daily")

	job.runOnce(context.Background())
	if stub.calls != 1 {
		t.Fatalf("expected one run, got %d", stub.calls)
	}
	if len(stub.lastDefs) != len(agent.DefaultAgents) {
		t.Fatalf("expected all agents passed, got %d", len(stub.lastDefs))
	}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(100 * time.Millisecond)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met")
}

type stubRefresher struct {
	calls int
}

func (s *stubRefresher) RefreshPrices(ctx context.Context) error {
	s.calls++
	return nil
}

type stubCycleRunner struct {
	results  []*domain.CycleResult
	calls    int
	lastDefs []agent.Definition
}

func (s *stubCycleRunner) RunAll(ctx context.Context, defs []agent.Definition) []*domain.CycleResult {
	s.calls++
	s.lastDefs = defs
	return s.results
}
