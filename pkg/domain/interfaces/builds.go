package interfaces

import (
	"context"

	"github.com/delthas/giteart/pkg/domain/model"
)

// JobSubmitter submits build jobs to the build service
type JobSubmitter interface {
	Submit(ctx context.Context, req *model.BuildJobRequest) (*model.SubmittedJob, error)
}

// Notifier reports job outcomes to humans
type Notifier interface {
	NotifyJob(ctx context.Context, report *model.JobReport) error
}
