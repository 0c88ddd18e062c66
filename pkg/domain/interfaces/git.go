package interfaces

import "context"

// GitClient defines the repository operations needed by the pipeline
type GitClient interface {
	// Clone makes a shallow clone of url into dir, which must be empty
	Clone(ctx context.Context, url, dir string) error

	// IsTag reports whether the checked out commit in dir is exactly a tag
	IsTag(ctx context.Context, dir string) (bool, error)
}
