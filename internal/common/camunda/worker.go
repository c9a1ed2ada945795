// internal/common/camunda/worker.go
package camunda

import (
	"context"
	"time"

	"mediguard-agents/internal/common/logger"
	"mediguard-agents/internal/common/metrics"
	"mediguard-agents/internal/common/observability"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
)

// JobHandler is implemented by every agent handler.
type JobHandler interface {
	Handle(client worker.JobClient, job entities.Job)
}

// Registration is how an agent is opened on the runtime.
type Registration struct {
	TaskType      string
	MaxJobsActive int
	Timeout       time.Duration
}

// StartWorker opens a job worker for reg and instruments every invocation.
func StartWorker(client zbc.Client, reg Registration, handler JobHandler, obs *observability.Observability, log logger.Logger) worker.JobWorker {
	log = log.WithFields(map[string]interface{}{"taskType": reg.TaskType})

	return client.NewJobWorker().
		JobType(reg.TaskType).
		Handler(Instrument(reg.TaskType, handler, obs, log)).
		MaxJobsActive(reg.MaxJobsActive).
		Timeout(reg.Timeout).
		Name(reg.TaskType + "-worker").
		Open()
}

// Instrument wraps handler with the active gauge, the duration histogram,
// the job outcome meter and panic recovery.
func Instrument(taskType string, handler JobHandler, obs *observability.Observability, log logger.Logger) worker.JobHandler {
	return func(client worker.JobClient, job entities.Job) {
		start := time.Now()
		rc := &recordingClient{JobClient: client, status: observability.StatusFailed}
		metrics.AgentJobsActive.WithLabelValues(taskType).Inc()
		defer func() {
			elapsed := time.Since(start)
			metrics.AgentJobsActive.WithLabelValues(taskType).Dec()
			metrics.AgentJobDuration.WithLabelValues(taskType).Observe(elapsed.Seconds())
			if r := recover(); r != nil {
				metrics.AgentJobsFailed.WithLabelValues(taskType, "PANIC").Inc()
				log.Error("handler panicked", map[string]interface{}{
					"jobKey": job.Key,
					"panic":  r,
				})
			}
			ctx := context.Background()
			obs.RecordJobProcessed(ctx, taskType, rc.status)
			obs.RecordJobDuration(ctx, taskType, elapsed, rc.status)
		}()
		handler.Handle(rc, job)
	}
}

// recordingClient carries the job outcome. It starts as failed and only
// CompleteJob, after a successful Send, marks it completed.
type recordingClient struct {
	worker.JobClient
	status string
}

func (c *recordingClient) recordOutcome(status string) {
	c.status = status
}

type outcomeRecorder interface {
	recordOutcome(status string)
}

// CompleteJob completes job with output as its variables.
func CompleteJob(ctx context.Context, client worker.JobClient, job entities.Job, output interface{}) error {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		return err
	}
	if _, err = cmd.Send(ctx); err != nil {
		return err
	}
	if r, ok := client.(outcomeRecorder); ok {
		r.recordOutcome(observability.StatusCompleted)
	}
	return nil
}
