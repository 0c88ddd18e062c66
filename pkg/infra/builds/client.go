package builds

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/delthas/giteart/pkg/domain/interfaces"
	"github.com/delthas/giteart/pkg/domain/model"
	"github.com/delthas/giteart/pkg/domain/types"
)

// DefaultInstance is the build service used when no instance is configured
const DefaultInstance = "https://builds.sr.ht"

// maxErrorBody caps how much of an error response is kept in the error
const maxErrorBody = 64 * 1024

type client struct {
	instance   string
	token      string
	httpClient *http.Client
	timeout    *time.Duration
}

// Option is a functional option for the build API client
type Option func(*client)

// WithInstance sets the base URL of the build service
func WithInstance(instance string) Option {
	return func(c *client) {
		if instance != "" {
			c.instance = strings.TrimRight(instance, "/")
		}
	}
}

// WithTimeout bounds each submission. Zero means no timeout. It applies to
// the client given by WithHTTPClient regardless of option order.
func WithTimeout(d time.Duration) Option {
	return func(c *client) {
		c.timeout = &d
	}
}

// WithHTTPClient replaces the underlying HTTP client. hc itself is never modified.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.httpClient = hc
	}
}

// NewClient creates a JobSubmitter authenticating with token
func NewClient(token string, opts ...Option) interfaces.JobSubmitter {
	c := &client{
		instance:   DefaultInstance,
		token:      token,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout != nil {
		hc := *c.httpClient
		hc.Timeout = *c.timeout
		c.httpClient = &hc
	}
	return c
}

// Submit posts a job to <instance>/api/jobs. Any non-2xx status is an error
// carrying the response body.
func (c *client) Submit(ctx context.Context, req *model.BuildJobRequest) (*model.SubmittedJob, error) {
	endpoint := c.instance + "/api/jobs"

	body, err := json.Marshal(req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal job request", goerr.T(types.ErrTagSubmission))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create job request", goerr.T(types.ErrTagSubmission), goerr.V("url", endpoint))
	}
	httpReq.Header.Set("Authorization", "token "+c.token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to submit job", goerr.T(types.ErrTagSubmission), goerr.V("url", endpoint))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, goerr.New("build API error",
			goerr.T(types.ErrTagSubmission),
			goerr.V("url", endpoint),
			goerr.V("status", resp.StatusCode),
			goerr.V("body", strings.TrimSpace(string(errBody))),
		)
	}

	var job model.SubmittedJob
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		// The job exists even when the response cannot be decoded
		return &model.SubmittedJob{}, nil
	}

	return &job, nil
}
