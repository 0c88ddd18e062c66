// Package git implements repository operations for the push pipeline, either
// by spawning the git command or natively with go-git.
package git

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/delthas/giteart/pkg/domain/interfaces"
	"github.com/delthas/giteart/pkg/domain/types"
)

const (
	DefaultCloneTimeout = 30 * time.Second
	DefaultTagTimeout   = 5 * time.Second
)

// ResolveBinary looks for a git executable in PATH and returns its absolute path.
func ResolveBinary() (string, error) {
	path, err := exec.LookPath("git")
	if err != nil {
		return "", goerr.Wrap(err, "git executable not found in PATH", goerr.T(types.ErrTagGitMissing))
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", goerr.Wrap(err, "failed to resolve git path", goerr.V("path", path))
	}
	return abs, nil
}

type execClient struct {
	binary       string
	cloneTimeout time.Duration
	tagTimeout   time.Duration
}

// Option configures a git client
type Option func(*options)

type options struct {
	cloneTimeout time.Duration
	tagTimeout   time.Duration
}

// WithCloneTimeout bounds the duration of a clone
func WithCloneTimeout(d time.Duration) Option {
	return func(o *options) {
		o.cloneTimeout = d
	}
}

// WithTagTimeout bounds the duration of the tag check
func WithTagTimeout(d time.Duration) Option {
	return func(o *options) {
		o.tagTimeout = d
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		cloneTimeout: DefaultCloneTimeout,
		tagTimeout:   DefaultTagTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// NewExecClient returns a GitClient spawning the git executable at binary
func NewExecClient(binary string, opts ...Option) interfaces.GitClient {
	o := newOptions(opts)
	return &execClient{
		binary:       binary,
		cloneTimeout: o.cloneTimeout,
		tagTimeout:   o.tagTimeout,
	}
}

// Clone runs "git clone -q --depth 1 -- url dir". The process never prompts
// for credentials and is killed when the clone timeout expires.
func (c *execClient) Clone(ctx context.Context, url, dir string) error {
	runCtx, cancel := context.WithTimeout(ctx, c.cloneTimeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, c.binary, "clone", "-q", "--depth", "1", "--", url, dir)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	if err := cmd.Run(); err != nil {
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
		return goerr.Wrap(err, "git clone failed",
			goerr.T(types.ErrTagGitFailed),
			goerr.V("url", url),
			goerr.V("stderr", strings.TrimSpace(stderr.String())),
		)
	}

	return nil
}

// IsTag runs "git describe --exact-match" in dir. Only a zero exit status
// means the commit is a tag. On timeout it reports false along with an error.
func (c *execClient) IsTag(ctx context.Context, dir string) (bool, error) {
	runCtx, cancel := context.WithTimeout(ctx, c.tagTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, c.binary, "describe", "--exact-match")
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	cmd.WaitDelay = time.Second

	err := cmd.Run()
	if err == nil {
		return true, nil
	}
	if ctx.Err() != nil {
		return false, goerr.Wrap(ctx.Err(), "git describe interrupted", goerr.V("dir", dir))
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return false, goerr.New("git describe timeout",
			goerr.T(types.ErrTagGitTimeout),
			goerr.V("dir", dir),
			goerr.V("timeout", c.tagTimeout.String()),
		)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return false, nil
	}
	return false, goerr.Wrap(err, "failed to run git describe", goerr.T(types.ErrTagGitFailed), goerr.V("dir", dir))
}
