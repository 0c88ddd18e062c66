package slack

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/slack-go/slack"

	"github.com/delthas/giteart/pkg/domain/interfaces"
	"github.com/delthas/giteart/pkg/domain/model"
)

type notifier struct {
	webhookURL string
	httpClient *http.Client
}

// NewNotifier creates a Notifier posting to a Slack incoming webhook
func NewNotifier(webhookURL string) interfaces.Notifier {
	return &notifier{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// NotifyJob posts one message per manifest outcome
func (n *notifier) NotifyJob(ctx context.Context, report *model.JobReport) error {
	msg := buildMessage(report)
	if err := slack.PostWebhookCustomHTTPContext(ctx, n.webhookURL, n.httpClient, msg); err != nil {
		return goerr.Wrap(err, "failed to post slack webhook",
			goerr.V("repo", report.Repo),
			goerr.V("manifest", report.Manifest),
		)
	}
	return nil
}

func buildMessage(report *model.JobReport) *slack.WebhookMessage {
	fields := []slack.AttachmentField{
		{Title: "Repository", Value: report.Repo, Short: true},
		{Title: "Commit", Value: model.ShortCommit(report.Commit), Short: true},
		{Title: "Manifest", Value: report.Manifest, Short: true},
	}

	attachment := slack.Attachment{
		Color:  "good",
		Title:  "Build job submitted",
		Fields: fields,
	}
	if report.JobID != 0 {
		attachment.Fields = append(attachment.Fields, slack.AttachmentField{
			Title: "Job", Value: fmt.Sprintf("#%d", report.JobID), Short: true,
		})
	}
	if report.Err != nil {
		attachment.Color = "danger"
		attachment.Title = "Build job submission failed"
		attachment.Text = report.Err.Error()
	}

	return &slack.WebhookMessage{
		Text:        fmt.Sprintf("%s: %s (%s)", attachment.Title, report.Repo, report.Manifest),
		Attachments: []slack.Attachment{attachment},
	}
}
