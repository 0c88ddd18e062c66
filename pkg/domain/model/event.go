package model

// PushEvent is a validated push queued for processing.
type PushEvent struct {
	Repo     string // Repository name
	Commit   string // Full commit hash
	CloneURL string // Clone URL of the repository
	Delivery string // Delivery id, only used to correlate logs
}

// HookStatus is the outcome of a webhook request
type HookStatus string

const (
	HookAccepted HookStatus = "accepted"
	HookIgnored  HookStatus = "ignored"
)

// HookResult is returned to the forge as a plain-text response
type HookResult struct {
	Status  HookStatus
	Message string
}

// PushResult summarizes the processing of a single PushEvent
type PushResult struct {
	IsTag     bool
	Manifests int
	Submitted int
	Failed    int
}
