package worker

import (
	"context"
	"time"

	"github.com/m-mizutani/ctxlog"

	"github.com/delthas/giteart/pkg/domain/interfaces"
	"github.com/delthas/giteart/pkg/domain/model"
	"github.com/delthas/giteart/pkg/utils/errutil"
)

// Worker drains the event queue one event at a time
type Worker struct {
	queue  interfaces.EventQueue
	pushUC interfaces.PushUseCase
}

// New creates a new Worker
func New(queue interfaces.EventQueue, pushUC interfaces.PushUseCase) *Worker {
	return &Worker{
		queue:  queue,
		pushUC: pushUC,
	}
}

// Run processes queued events in FIFO order until ctx is done. An event is
// fully processed, including cleanup of its clone, before the next one is
// dequeued. Only cancellation of ctx ends the loop.
func (w *Worker) Run(ctx context.Context) {
	logger := ctxlog.From(ctx)
	logger.Info("Worker started")

	for {
		event, err := w.queue.Pop(ctx)
		if err != nil {
			logger.Info("Worker stopped", "reason", err)
			return
		}

		w.processEvent(ctx, event)

		if ctx.Err() != nil {
			logger.Info("Worker stopped", "reason", ctx.Err())
			return
		}
	}
}

func (w *Worker) processEvent(ctx context.Context, event *model.PushEvent) {
	logger := ctxlog.From(ctx).With(
		"delivery", event.Delivery,
		"repo", event.Repo,
		"commit", event.Commit,
	)
	ctx = ctxlog.With(ctx, logger)

	logger.Info("Processing push event")
	start := time.Now()

	result, err := w.pushUC.ProcessPush(ctx, event)
	if err != nil {
		if ctx.Err() != nil {
			logger.Warn("Push event interrupted", "error", err)
			return
		}
		errutil.Handle(ctx, "Failed to process push event", err)
		return
	}

	logger.Info("Successfully processed push event",
		"is_tag", result.IsTag,
		"manifests", result.Manifests,
		"submitted", result.Submitted,
		"failed", result.Failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
