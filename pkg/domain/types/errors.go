package types

import "github.com/m-mizutani/goerr/v2"

var (
	// ErrTagInvalidPayload marks webhook payloads that are malformed or miss required fields.
	ErrTagInvalidPayload = goerr.NewTag("invalid_payload")
	// ErrTagInvalidSecret marks webhook payloads whose secret does not match.
	ErrTagInvalidSecret = goerr.NewTag("invalid_secret")

	ErrTagGitTimeout = goerr.NewTag("git_timeout")
	ErrTagGitFailed  = goerr.NewTag("git_failed")
	ErrTagGitMissing = goerr.NewTag("git_missing")

	ErrTagManifest   = goerr.NewTag("manifest")
	ErrTagSubmission = goerr.NewTag("submission")
	ErrTagConfig     = goerr.NewTag("config")
)
