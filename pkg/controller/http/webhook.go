package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"

	"github.com/delthas/giteart/pkg/domain/interfaces"
	"github.com/delthas/giteart/pkg/domain/model"
	"github.com/delthas/giteart/pkg/domain/types"
	"github.com/delthas/giteart/pkg/utils/errutil"
)

const (
	headerEvent    = "X-Gitea-Event"
	headerDelivery = "X-Gitea-Delivery"

	// MaxBodySize is the largest accepted webhook body
	MaxBodySize = 5 << 20
)

// WebhookHandler handles Gitea push webhooks
type WebhookHandler struct {
	validator *payloadValidator
	webhookUC interfaces.WebhookUseCase
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(ctx context.Context, webhookUC interfaces.WebhookUseCase) (*WebhookHandler, error) {
	validator, err := newPayloadValidator(ctx)
	if err != nil {
		return nil, err
	}

	return &WebhookHandler{
		validator: validator,
		webhookUC: webhookUC,
	}, nil
}

// Handle processes webhook requests. It only enqueues work and never waits
// for the build pipeline.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Header.Get(headerEvent) != model.PushEventType {
		writeText(ctx, w, http.StatusOK, "hook ignored; event is not a push event")
		return
	}

	delivery := r.Header.Get(headerDelivery)
	if delivery == "" {
		delivery = uuid.NewString()
	}
	ctx = ctxlog.With(ctx, ctxlog.From(ctx).With("delivery", delivery))

	body, raw, err := readBody(w, r)
	if err != nil {
		writeHookError(ctx, w, err)
		return
	}

	// The secret and the branch are judged before the rest of the body, so a
	// bad secret is a 403 and a foreign branch is ignored whatever else is sent.
	envelope, err := h.decodeEnvelope(body, raw)
	if err != nil {
		writeHookError(ctx, w, err)
		return
	}
	if result, err := h.webhookUC.Screen(ctx, envelope); err != nil {
		writeHookError(ctx, w, err)
		return
	} else if result != nil {
		writeText(ctx, w, http.StatusOK, result.Message)
		return
	}

	payload, err := h.decodePayload(body, raw)
	if err != nil {
		writeHookError(ctx, w, err)
		return
	}

	result, err := h.webhookUC.HandlePush(ctx, payload, delivery)
	if err != nil {
		writeHookError(ctx, w, err)
		return
	}

	writeText(ctx, w, http.StatusOK, result.Message)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, any, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodySize))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, nil, goerr.New("request body too large",
				goerr.T(types.ErrTagInvalidPayload),
				goerr.V("limit", maxErr.Limit),
			)
		}
		return nil, nil, goerr.Wrap(err, "failed to read request body", goerr.T(types.ErrTagInvalidPayload))
	}

	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, nil, goerr.Wrap(err, "malformed JSON", goerr.T(types.ErrTagInvalidPayload))
	}
	return body, raw, nil
}

func (h *WebhookHandler) decodeEnvelope(body []byte, raw any) (*model.PushEnvelope, error) {
	if err := h.validator.ValidateEnvelope(raw); err != nil {
		return nil, err
	}

	var envelope model.PushEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, goerr.Wrap(err, "malformed push payload", goerr.T(types.ErrTagInvalidPayload))
	}
	return &envelope, nil
}

func (h *WebhookHandler) decodePayload(body []byte, raw any) (*model.PushPayload, error) {
	if err := h.validator.Validate(raw); err != nil {
		return nil, err
	}

	var payload model.PushPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, goerr.Wrap(err, "malformed push payload", goerr.T(types.ErrTagInvalidPayload))
	}
	return &payload, nil
}

func writeHookError(ctx context.Context, w http.ResponseWriter, err error) {
	logger := ctxlog.From(ctx)

	switch {
	case goerr.HasTag(err, types.ErrTagInvalidSecret):
		logger.Warn("Rejected webhook with invalid secret", "error", err)
		writeText(ctx, w, http.StatusForbidden, "invalid secret")

	case goerr.HasTag(err, types.ErrTagInvalidPayload):
		logger.Warn("Rejected invalid webhook", "error", err)
		writeText(ctx, w, http.StatusBadRequest, "invalid request: error: "+err.Error())

	default:
		errutil.Handle(ctx, "Failed to handle webhook", err)
		writeText(ctx, w, http.StatusInternalServerError, "internal error")
	}
}
