package orchestration

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/funcgen/api/internal/models"
)

// InitTemporalClient dials the Temporal frontend. Callers degrade gracefully
// when it is unreachable.
func InitTemporalClient(address string, logger *zap.Logger) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort: address,
		Logger:   newZapAdapter(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("dial temporal at %s: %w", address, err)
	}
	return c, nil
}

// WorkflowStarter is the part of client.Client the archiver uses
type WorkflowStarter interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
}

// WorkflowArchiver hands each record to a durable archival workflow
type WorkflowArchiver struct {
	client    WorkflowStarter
	taskQueue string
}

func NewWorkflowArchiver(c WorkflowStarter, taskQueue string) *WorkflowArchiver {
	return &WorkflowArchiver{client: c, taskQueue: taskQueue}
}

func (a *WorkflowArchiver) Name() string { return "temporal" }

// Save starts the workflow and returns once Temporal has accepted it
func (a *WorkflowArchiver) Save(ctx context.Context, rec *models.ArchivedRecord) error {
	opts := client.StartWorkflowOptions{
		ID:        "archive-" + rec.ID.String(),
		TaskQueue: a.taskQueue,
	}
	if _, err := a.client.ExecuteWorkflow(ctx, opts, ArchiveGenerationWorkflow, rec); err != nil {
		return fmt.Errorf("start archive workflow: %w", err)
	}
	return nil
}
