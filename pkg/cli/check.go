package cli

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/delthas/giteart/pkg/cli/config"
	"github.com/delthas/giteart/pkg/domain/types"
	"github.com/delthas/giteart/pkg/infra/git"
)

func cmdCheck() *cli.Command {
	return &cli.Command{
		Name:      "check",
		Usage:     "Validate the configuration and the git installation",
		ArgsUsage: "[config-file]",
		Action: func(ctx context.Context, c *cli.Command) error {
			return runCheck(c.Root().Writer, configPath(c))
		},
	}
}

type checkReport struct {
	w      io.Writer
	failed int
}

func (r *checkReport) ok(format string, args ...any) {
	fmt.Fprintf(r.w, "%s %s\n", color.GreenString("✔"), fmt.Sprintf(format, args...))
}

func (r *checkReport) warn(format string, args ...any) {
	fmt.Fprintf(r.w, "%s %s\n", color.YellowString("!"), fmt.Sprintf(format, args...))
}

func (r *checkReport) fail(format string, args ...any) {
	r.failed++
	fmt.Fprintf(r.w, "%s %s\n", color.RedString("✘"), fmt.Sprintf(format, args...))
}

func runCheck(w io.Writer, path string) error {
	report := &checkReport{w: w}

	svc, err := config.LoadService(path)
	if err != nil {
		report.fail("configuration %s: %v", path, err)
		return goerr.New("check failed", goerr.T(types.ErrTagConfig), goerr.V("failures", report.failed))
	}
	report.ok("configuration %s", path)

	if u, err := url.Parse(svc.Instance); err != nil || u.Scheme == "" || u.Host == "" {
		report.fail("build instance %q is not an absolute URL", svc.Instance)
	} else {
		report.ok("build instance %s", svc.Instance)
	}

	if svc.Secret == "" {
		report.warn("webhook secret is empty, payloads are not authenticated")
	} else {
		report.ok("webhook secret set")
	}

	switch svc.GitBackend {
	case config.GitBackendNative:
		report.ok("git backend native, no git binary required")
	default:
		if binary, err := git.ResolveBinary(); err != nil {
			report.fail("git executable not found: %v", err)
		} else {
			report.ok("git executable %s", binary)
		}
	}

	if len(svc.Readers) == 0 {
		report.ok("jobs are private to the token owner")
	} else {
		report.ok("jobs readable by %v", svc.Readers)
	}

	if svc.SlackWebhookURL != "" {
		report.ok("slack notifications enabled")
	}

	if report.failed > 0 {
		return goerr.New("check failed", goerr.T(types.ErrTagConfig), goerr.V("failures", report.failed))
	}
	return nil
}
