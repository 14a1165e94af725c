package orchestration

import (
	"context"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/funcgen/api/internal/archive"
	"github.com/funcgen/api/internal/models"
)

// ArchiveGenerationWorkflow persists one record with retries
func ArchiveGenerationWorkflow(ctx workflow.Context, rec *models.ArchivedRecord) error {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    10,
		},
	})

	var a *Activities
	return workflow.ExecuteActivity(ctx, a.InsertGeneration, rec).Get(ctx, nil)
}

// Activities run on the worker next to the archive store
type Activities struct {
	Store archive.Store
}

// InsertGeneration writes rec to the store
func (a *Activities) InsertGeneration(ctx context.Context, rec *models.ArchivedRecord) error {
	activity.GetLogger(ctx).Info("Archiving generation", "record_id", rec.ID.String(), "store", a.Store.Name())
	return a.Store.Save(ctx, rec)
}
