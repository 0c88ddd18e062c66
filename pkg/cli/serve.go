package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/delthas/giteart/pkg/cli/config"
	controller "github.com/delthas/giteart/pkg/controller/http"
	"github.com/delthas/giteart/pkg/controller/worker"
	"github.com/delthas/giteart/pkg/domain/interfaces"
	"github.com/delthas/giteart/pkg/domain/model"
	"github.com/delthas/giteart/pkg/domain/types"
	"github.com/delthas/giteart/pkg/infra/builds"
	"github.com/delthas/giteart/pkg/infra/git"
	"github.com/delthas/giteart/pkg/infra/slack"
	"github.com/delthas/giteart/pkg/usecase"
	"github.com/delthas/giteart/pkg/utils/queue"
)

const shutdownTimeout = 10 * time.Second

func cmdServe() *cli.Command {
	return &cli.Command{
		Name:      "serve",
		Aliases:   []string{"s"},
		Usage:     "Start the webhook server and the build worker",
		ArgsUsage: "[config-file]",
		Action:    serve,
	}
}

func configPath(c *cli.Command) string {
	if path := c.Args().First(); path != "" {
		return path
	}
	return config.DefaultServicePath
}

// newGitClient builds the configured git backend. The exec backend requires
// a git binary in PATH.
func newGitClient(svc *config.Service) (interfaces.GitClient, error) {
	opts := []git.Option{
		git.WithCloneTimeout(svc.CloneTimeout),
		git.WithTagTimeout(svc.TagTimeout),
	}

	if svc.GitBackend == config.GitBackendNative {
		return git.NewNativeClient(opts...), nil
	}

	binary, err := git.ResolveBinary()
	if err != nil {
		return nil, err
	}
	return git.NewExecClient(binary, opts...), nil
}

func serve(ctx context.Context, c *cli.Command) error {
	logger := ctxlog.From(ctx)

	path := configPath(c)
	svc, err := config.LoadService(path)
	if err != nil {
		return err
	}
	logger.Info("Configuration loaded", slog.String("path", path), slog.Any("config", svc))

	gitClient, err := newGitClient(svc)
	if err != nil {
		return goerr.Wrap(err, "git is not available")
	}

	submitter := builds.NewClient(svc.Token,
		builds.WithInstance(svc.Instance),
		builds.WithTimeout(svc.SubmitTimeout),
	)

	pushOpts := []usecase.PushOption{
		usecase.WithReaders(svc.Readers),
		usecase.WithTagDetection(svc.EnableTagDetection),
	}
	if svc.SlackWebhookURL != "" {
		pushOpts = append(pushOpts, usecase.WithNotifier(slack.NewNotifier(svc.SlackWebhookURL)))
	}

	events := queue.New[*model.PushEvent]()
	pushUC := usecase.NewPush(gitClient, submitter, pushOpts...)
	webhookUC := usecase.NewWebhook(events,
		usecase.WithSecret(svc.Secret),
		usecase.WithSkipCIMarker(svc.EnableSkipCIMarker),
	)

	addr := fmt.Sprintf(":%d", svc.Port)
	server, err := controller.NewServer(ctx, webhookUC, controller.WithAddr(addr))
	if err != nil {
		return goerr.Wrap(err, "failed to create HTTP server")
	}

	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.New(events, pushUC).Run(workerCtx)
	}()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server starting",
			slog.String("addr", addr),
			slog.String("version", types.Version),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down...")
	case sig := <-sigChan:
		logger.Info("Signal received, shutting down...", slog.Any("signal", sig))
	case err := <-serverErr:
		runErr = goerr.Wrap(err, "HTTP server failed", goerr.V("addr", addr))
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = goerr.Wrap(err, "failed to shutdown server gracefully")
	}

	stopWorker()
	wg.Wait()

	if pending := events.Len(); pending > 0 {
		logger.Warn("Dropping queued events", slog.Int("count", pending))
	}

	logger.Info("Server shutdown complete")
	return runErr
}
