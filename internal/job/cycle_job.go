package job

import (
	"context"
	"log"

	"agent-arena/internal/agent"
	"agent-arena/internal/domain"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/trace"
)

type CycleRunner interface {
	RunAll(ctx context.Context, defs []agent.Definition) []*domain.CycleResult
}

// CycleJob schedules the daily trading cycle for every agent. The cron spec
// is in UTC; the default fires once per weekday during US market hours.
type CycleJob struct {
	tracer   trace.Tracer
	runner   CycleRunner
	agents   []agent.Definition
	cronSpec string
	cron     *cron.Cron
}

func NewCycleJob(tracer trace.Tracer, runner CycleRunner, agents []agent.Definition, cronSpec string) *CycleJob {
	return &CycleJob{
		tracer:   tracer,
		runner:   runner,
		agents:   agents,
		cronSpec: cronSpec,
	}
}

// Start registers the schedule and blocks until ctx is cancelled.
func (j *CycleJob) Start(ctx context.Context) error {
	j.cron = cron.New()
	_, err := j.cron.AddFunc(j.cronSpec, func() { j.runOnce(ctx) })
	if err != nil {
		return err
	}

	log.Printf("Cycle job scheduled: %q for %d agents", j.cronSpec, len(j.agents))
	j.cron.Start()

	<-ctx.Done()
	stopCtx := j.cron.Stop()
	<-stopCtx.Done()
	log.Println("Cycle job stopped")
	return nil
}

func (j *CycleJob) runOnce(ctx context.Context) {
	ctx, span := j.tracer.Start(ctx, "cycle-job.run-once")
	defer span.End()

	results := j.runner.RunAll(ctx, j.agents)
	completed, failed := 0, 0
	for _, r := range results {
		if r != nil && r.Status == "completed" {
			completed++
		} else {
			failed++
		}
	}
	log.Printf("Cycle job complete: %d completed, %d failed", completed, failed)
}
