package usecase

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"

	"github.com/delthas/giteart/pkg/domain/interfaces"
	"github.com/delthas/giteart/pkg/domain/model"
	"github.com/delthas/giteart/pkg/utils/async"
	"github.com/delthas/giteart/pkg/utils/errutil"
)

const (
	rootManifest = ".build.yml"
	manifestDir  = ".builds"
)

type pushUseCase struct {
	git          interfaces.GitClient
	submitter    interfaces.JobSubmitter
	notifier     interfaces.Notifier
	readers      []string
	tagDetection bool
	tempRoot     string
}

// PushOption configures the push pipeline
type PushOption func(*pushUseCase)

// WithReaders sets the users granted read access to submitted jobs
func WithReaders(readers []string) PushOption {
	return func(uc *pushUseCase) {
		uc.readers = readers
	}
}

// WithTagDetection enables the GIT_IS_TAG variable
func WithTagDetection(enabled bool) PushOption {
	return func(uc *pushUseCase) {
		uc.tagDetection = enabled
	}
}

// WithNotifier reports every manifest outcome to n
func WithNotifier(n interfaces.Notifier) PushOption {
	return func(uc *pushUseCase) {
		uc.notifier = n
	}
}

// WithTempRoot sets the directory clones are created in. Defaults to os.TempDir().
func WithTempRoot(dir string) PushOption {
	return func(uc *pushUseCase) {
		uc.tempRoot = dir
	}
}

// NewPush creates the PushUseCase running the clone, rewrite and submit pipeline
func NewPush(git interfaces.GitClient, submitter interfaces.JobSubmitter, opts ...PushOption) interfaces.PushUseCase {
	uc := &pushUseCase{
		git:          git,
		submitter:    submitter,
		tagDetection: true,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// ProcessPush clones the event's repository into a fresh temporary directory,
// then rewrites and submits every manifest found. The directory is removed on
// every return path. Failures of a single manifest are logged and do not fail
// the event.
func (uc *pushUseCase) ProcessPush(ctx context.Context, event *model.PushEvent) (*model.PushResult, error) {
	logger := ctxlog.From(ctx)

	dir, err := os.MkdirTemp(uc.tempRoot, "giteart-*")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create temporary directory")
	}
	defer func() {
		if removeErr := os.RemoveAll(dir); removeErr != nil {
			logger.Warn("Failed to clean up temporary directory",
				"temp_dir", dir,
				"error", removeErr,
			)
		} else {
			logger.Debug("Cleaned up temporary directory", "temp_dir", dir)
		}
	}()

	logger.Info("Cloning repository",
		"repo", event.Repo,
		"url", event.CloneURL,
		"commit", event.Commit,
		"temp_dir", dir,
	)

	if err := uc.git.Clone(ctx, event.CloneURL, dir); err != nil {
		return nil, goerr.Wrap(err, "failed to clone repository",
			goerr.V("repo", event.Repo),
			goerr.V("commit", event.Commit),
		)
	}

	result := &model.PushResult{}
	if uc.tagDetection {
		isTag, err := uc.git.IsTag(ctx, dir)
		if err != nil {
			if ctx.Err() != nil {
				return nil, goerr.Wrap(ctx.Err(), "interrupted during tag check")
			}
			errutil.Handle(ctx, "Failed to check tag, assuming not a tag", err)
		}
		result.IsTag = isTag
	}

	manifests, err := DiscoverManifests(dir)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to discover manifests", goerr.V("repo", event.Repo))
	}
	result.Manifests = len(manifests)

	if len(manifests) == 0 {
		logger.Info("No build manifest found", "repo", event.Repo, "commit", event.Commit)
		return result, nil
	}

	for _, path := range manifests {
		if ctx.Err() != nil {
			return result, goerr.Wrap(ctx.Err(), "interrupted while processing manifests")
		}

		name := manifestName(filepath.Base(path))
		job, err := uc.processManifest(ctx, event, path, name, result.IsTag)
		uc.notify(ctx, event, name, job, err)

		if err != nil {
			result.Failed++
			errutil.Handle(ctx, "Failed to process manifest", goerr.Wrap(err, "manifest skipped",
				goerr.V("manifest", name),
				goerr.V("repo", event.Repo),
			))
			continue
		}
		result.Submitted++

		logger.Info("Submitted build job",
			"repo", event.Repo,
			"manifest", name,
			"job_id", job.ID,
		)
	}

	return result, nil
}

func (uc *pushUseCase) processManifest(ctx context.Context, event *model.PushEvent, path, name string, isTag bool) (*model.SubmittedJob, error) {
	manifest, err := RewriteManifestFile(path, event, isTag)
	if err != nil {
		return nil, err
	}

	req := model.NewBuildJobRequest(manifest, event, name, uc.readers)
	return uc.submitter.Submit(ctx, req)
}

// notify reports the manifest outcome without holding up the pipeline
func (uc *pushUseCase) notify(ctx context.Context, event *model.PushEvent, name string, job *model.SubmittedJob, err error) {
	if uc.notifier == nil {
		return
	}

	report := &model.JobReport{
		Repo:     event.Repo,
		Commit:   event.Commit,
		Manifest: name,
		Err:      err,
	}
	if job != nil {
		report.JobID = job.ID
	}

	async.Dispatch(ctx, func(ctx context.Context) error {
		return uc.notifier.NotifyJob(ctx, report)
	})
}

// DiscoverManifests returns .build.yml at the repository root, if it is a
// regular file, followed by every regular *.yml file in .builds/ in lexical
// order.
func DiscoverManifests(dir string) ([]string, error) {
	var manifests []string

	root := filepath.Join(dir, rootManifest)
	if info, err := os.Stat(root); err == nil && info.Mode().IsRegular() {
		manifests = append(manifests, root)
	}

	buildsDir := filepath.Join(dir, manifestDir)
	info, err := os.Stat(buildsDir)
	if err != nil || !info.IsDir() {
		return manifests, nil
	}

	entries, err := os.ReadDir(buildsDir)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read manifest directory", goerr.V("dir", buildsDir))
	}

	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".yml") {
			continue
		}
		path := filepath.Join(buildsDir, entry.Name())
		// Stat follows symlinks the same way the root manifest check does
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		manifests = append(manifests, path)
	}

	return manifests, nil
}
