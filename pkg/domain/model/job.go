package model

import (
	"fmt"

	"github.com/delthas/giteart/pkg/domain/types"
)

// BuildJobRequest is the body of POST /api/jobs
type BuildJobRequest struct {
	Manifest string   `json:"manifest"`
	Note     string   `json:"note"`
	Tags     []string `json:"tags"`
	Readers  []string `json:"access:read,omitempty"`
}

// NewBuildJobRequest builds the submission for one rewritten manifest.
func NewBuildJobRequest(manifest string, event *PushEvent, name string, readers []string) *BuildJobRequest {
	return &BuildJobRequest{
		Manifest: manifest,
		Note:     fmt.Sprintf("`%s - #%s` - Automatic build", event.Repo, ShortCommit(event.Commit)),
		Tags:     []string{event.Repo, name, types.ServiceName},
		Readers:  readers,
	}
}

// ShortCommit returns the first 6 characters of a commit id
func ShortCommit(commit string) string {
	if len(commit) < 6 {
		return commit
	}
	return commit[:6]
}

// SubmittedJob is the part of the build API response giteart uses
type SubmittedJob struct {
	ID int64 `json:"id"`
}

// JobReport describes the outcome of one manifest for notifications
type JobReport struct {
	Repo     string
	Commit   string
	Manifest string
	JobID    int64
	Err      error
}
