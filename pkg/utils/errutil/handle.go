package errutil

import (
	"context"
	"errors"

	"github.com/getsentry/sentry-go"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
)

// Handle logs err and, when a Sentry client is configured, reports it with
// the goerr values attached. It is for errors that end their propagation here.
func Handle(ctx context.Context, msg string, err error) {
	if err == nil {
		return
	}

	logger := ctxlog.From(ctx)
	logger.Error(msg, "error", err)

	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	if hub.Client() == nil {
		return
	}

	hub = hub.Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("message", msg)

		var ge *goerr.Error
		if errors.As(err, &ge) {
			values := sentry.Context{}
			for k, v := range ge.Values() {
				values[k] = v
			}
			scope.SetContext("values", values)
		}
	})

	if evID := hub.CaptureException(err); evID != nil {
		logger.Debug("Error reported to sentry", "event_id", string(*evID))
	}
}
