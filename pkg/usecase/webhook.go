package usecase

import (
	"context"
	"crypto/subtle"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"

	"github.com/delthas/giteart/pkg/domain/interfaces"
	"github.com/delthas/giteart/pkg/domain/model"
	"github.com/delthas/giteart/pkg/domain/types"
)

type webhookUseCase struct {
	queue  interfaces.EventQueue
	secret string
	skipCI bool
}

// WebhookOption configures the webhook acceptance rules
type WebhookOption func(*webhookUseCase)

// WithSecret requires payloads to carry secret. An empty secret disables the check.
func WithSecret(secret string) WebhookOption {
	return func(uc *webhookUseCase) {
		uc.secret = secret
	}
}

// WithSkipCIMarker ignores pushes whose commits all contain "[skip ci]"
func WithSkipCIMarker(enabled bool) WebhookOption {
	return func(uc *webhookUseCase) {
		uc.skipCI = enabled
	}
}

// NewWebhook creates a new instance of WebhookUseCase feeding queue
func NewWebhook(queue interfaces.EventQueue, opts ...WebhookOption) *webhookUseCase {
	uc := &webhookUseCase{
		queue:  queue,
		skipCI: true,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Screen applies the secret and branch rules, which only need the envelope
// of a push body.
func (uc *webhookUseCase) Screen(ctx context.Context, envelope *model.PushEnvelope) (*model.HookResult, error) {
	if uc.secret != "" {
		if envelope.Secret == nil {
			return nil, goerr.New("missing secret", goerr.T(types.ErrTagInvalidPayload))
		}
		if subtle.ConstantTimeCompare([]byte(*envelope.Secret), []byte(uc.secret)) != 1 {
			return nil, goerr.New("invalid secret", goerr.T(types.ErrTagInvalidSecret))
		}
	}

	if envelope.Ref != model.DefaultBranchRef {
		ctxlog.From(ctx).Info("Ignoring push to non-default branch", "ref", envelope.Ref)
		return &model.HookResult{
			Status:  model.HookIgnored,
			Message: "hook ignored; pushed branch is not master",
		}, nil
	}

	return nil, nil
}

// HandlePush applies the acceptance rules to a parsed push payload and
// enqueues a PushEvent for accepted pushes. It never waits for processing.
func (uc *webhookUseCase) HandlePush(ctx context.Context, payload *model.PushPayload, delivery string) (*model.HookResult, error) {
	logger := ctxlog.From(ctx)

	if result, err := uc.Screen(ctx, &payload.PushEnvelope); result != nil || err != nil {
		if err != nil {
			return nil, goerr.Wrap(err, "push rejected", goerr.V("repo", payload.Repository.Name))
		}
		return result, nil
	}

	if uc.skipCI && payload.AllCommitsSkipped() {
		logger.Info("Ignoring push with only skippable commits",
			"repo", payload.Repository.Name,
			"commits", len(payload.Commits),
		)
		return &model.HookResult{
			Status:  model.HookIgnored,
			Message: "hook ignored; only skippable commits",
		}, nil
	}

	if len(payload.Commits) == 0 {
		return nil, goerr.New("push has no commits", goerr.T(types.ErrTagInvalidPayload))
	}

	event := &model.PushEvent{
		Repo:     payload.Repository.Name,
		Commit:   payload.Commits[0].ID,
		CloneURL: payload.Repository.CloneURL,
		Delivery: delivery,
	}
	uc.queue.Push(event)

	logger.Info("Push event queued",
		"delivery", delivery,
		"repo", event.Repo,
		"commit", event.Commit,
	)

	return &model.HookResult{
		Status:  model.HookAccepted,
		Message: "ok",
	}, nil
}
