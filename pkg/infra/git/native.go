package git

import (
	"context"
	"errors"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/m-mizutani/goerr/v2"

	"github.com/delthas/giteart/pkg/domain/interfaces"
	"github.com/delthas/giteart/pkg/domain/types"
)

type nativeClient struct {
	cloneTimeout time.Duration
	tagTimeout   time.Duration
}

// NewNativeClient returns a GitClient backed by go-git. It needs no git executable.
func NewNativeClient(opts ...Option) interfaces.GitClient {
	o := newOptions(opts)
	return &nativeClient{
		cloneTimeout: o.cloneTimeout,
		tagTimeout:   o.tagTimeout,
	}
}

func (c *nativeClient) Clone(ctx context.Context, url, dir string) error {
	runCtx, cancel := context.WithTimeout(ctx, c.cloneTimeout)
	defer cancel()

	_, err := gogit.PlainCloneContext(runCtx, dir, false, &gogit.CloneOptions{
		URL:          url,
		Depth:        1,
		SingleBranch: true,
	})
	if err != nil {
		if ctx.Err() != nil {
			return goerr.Wrap(ctx.Err(), "git clone interrupted", goerr.V("url", url))
		}
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return goerr.New("git clone timeout",
				goerr.T(types.ErrTagGitTimeout),
				goerr.V("url", url),
				goerr.V("timeout", c.cloneTimeout.String()),
			)
		}
		return goerr.Wrap(err, "git clone failed", goerr.T(types.ErrTagGitFailed), goerr.V("url", url))
	}

	return nil
}

// IsTag reports whether an annotated tag points at HEAD. Lightweight tags are
// ignored, as "git describe --exact-match" does.
func (c *nativeClient) IsTag(ctx context.Context, dir string) (bool, error) {
	runCtx, cancel := context.WithTimeout(ctx, c.tagTimeout)
	defer cancel()

	repo, err := gogit.PlainOpen(dir)
	if err != nil {
		return false, goerr.Wrap(err, "failed to open repository", goerr.T(types.ErrTagGitFailed), goerr.V("dir", dir))
	}

	head, err := repo.Head()
	if err != nil {
		return false, goerr.Wrap(err, "failed to resolve HEAD", goerr.T(types.ErrTagGitFailed), goerr.V("dir", dir))
	}

	iter, err := repo.TagObjects()
	if err != nil {
		return false, goerr.Wrap(err, "failed to list tags", goerr.T(types.ErrTagGitFailed), goerr.V("dir", dir))
	}
	defer iter.Close()

	found := false
	err = iter.ForEach(func(tag *object.Tag) error {
		if runCtx.Err() != nil {
			return runCtx.Err()
		}
		if tag.TargetType == plumbing.CommitObject && tag.Target == head.Hash() {
			found = true
			return storer.ErrStop
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return false, goerr.Wrap(ctx.Err(), "tag lookup interrupted", goerr.V("dir", dir))
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return false, goerr.New("tag lookup timeout",
				goerr.T(types.ErrTagGitTimeout),
				goerr.V("dir", dir),
				goerr.V("timeout", c.tagTimeout.String()),
			)
		}
		return false, goerr.Wrap(err, "failed to iterate tags", goerr.T(types.ErrTagGitFailed), goerr.V("dir", dir))
	}

	return found, nil
}
