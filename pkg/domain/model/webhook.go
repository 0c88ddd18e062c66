package model

import "strings"

const (
	// PushEventType is the value of the X-Gitea-Event header for push notifications.
	PushEventType = "push"

	// DefaultBranchRef is the only ref whose pushes trigger builds.
	DefaultBranchRef = "refs/heads/master"

	// SkipCIMarker in a commit message opts the commit out of automatic builds.
	SkipCIMarker = "[skip ci]"
)

// PushEnvelope holds the fields of a push body that decide whether the rest
// of it is looked at
type PushEnvelope struct {
	Secret *string `json:"secret,omitempty"`
	Ref    string  `json:"ref"`
}

// PushPayload is the subset of a Gitea push webhook body used by giteart
type PushPayload struct {
	PushEnvelope
	Repository PushRepository `json:"repository"`
	Commits    []PushCommit   `json:"commits"`
}

// PushRepository describes the repository a push was made to
type PushRepository struct {
	Name     string `json:"name"`
	CloneURL string `json:"clone_url"`
}

// PushCommit is a single commit of a push
type PushCommit struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// AllCommitsSkipped reports whether every commit message carries the skip marker.
// An empty commit list is vacuously skipped.
func (p *PushPayload) AllCommitsSkipped() bool {
	for _, c := range p.Commits {
		if !strings.Contains(strings.ToLower(c.Message), SkipCIMarker) {
			return false
		}
	}
	return true
}
