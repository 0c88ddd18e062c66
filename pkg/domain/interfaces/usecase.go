package interfaces

import (
	"context"

	"github.com/delthas/giteart/pkg/domain/model"
)

// WebhookUseCase decides whether a push notification becomes a queued event
type WebhookUseCase interface {
	// Screen checks the secret and the ref. A nil result and error means the
	// full payload must be examined.
	Screen(ctx context.Context, envelope *model.PushEnvelope) (*model.HookResult, error)
	// HandlePush validates the payload and enqueues a PushEvent when accepted
	HandlePush(ctx context.Context, payload *model.PushPayload, delivery string) (*model.HookResult, error)
}

// PushUseCase runs the clone, rewrite and submit pipeline for one event
type PushUseCase interface {
	ProcessPush(ctx context.Context, event *model.PushEvent) (*model.PushResult, error)
}

// EventQueue is the FIFO between webhook handlers and the worker
type EventQueue interface {
	// Push appends an event without blocking
	Push(event *model.PushEvent)
	// Pop blocks until an event is available or ctx is done
	Pop(ctx context.Context) (*model.PushEvent, error)
}
