package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"

	"github.com/delthas/giteart/pkg/domain/types"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "giteart.yml")
	gt.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestRunCheck(t *testing.T) {
	t.Run("native backend", func(t *testing.T) {
		path := writeConfig(t, "token: t\nsecret: s\nport: 8080\ngit_backend: native\nreaders: [\"~alice\"]\n")

		var buf bytes.Buffer
		gt.NoError(t, runCheck(&buf, path))
		gt.String(t, buf.String()).Contains("configuration " + path)
		gt.String(t, buf.String()).Contains("git backend native")
		gt.String(t, buf.String()).Contains("~alice")
	})

	t.Run("empty secret is a warning", func(t *testing.T) {
		path := writeConfig(t, "token: t\nsecret: \"\"\nport: 8080\ngit_backend: native\n")

		var buf bytes.Buffer
		gt.NoError(t, runCheck(&buf, path))
		gt.String(t, buf.String()).Contains("not authenticated")
	})

	t.Run("missing git binary", func(t *testing.T) {
		t.Setenv("PATH", t.TempDir())
		path := writeConfig(t, "token: t\nsecret: s\nport: 8080\n")

		var buf bytes.Buffer
		err := runCheck(&buf, path)
		gt.Error(t, err)
		gt.String(t, buf.String()).Contains("git executable not found")
	})

	t.Run("relative instance", func(t *testing.T) {
		path := writeConfig(t, "token: t\nsecret: s\nport: 8080\ngit_backend: native\ninstance: builds.sr.ht\n")

		var buf bytes.Buffer
		gt.Error(t, runCheck(&buf, path))
		gt.String(t, buf.String()).Contains("not an absolute URL")
	})

	t.Run("invalid configuration", func(t *testing.T) {
		path := writeConfig(t, "secret: s\nport: 8080\n")

		var buf bytes.Buffer
		err := runCheck(&buf, path)
		gt.Error(t, err)
		gt.True(t, goerr.HasTag(err, types.ErrTagConfig))
		gt.String(t, buf.String()).Contains("configuration " + path)
	})
}

func TestRun_Check(t *testing.T) {
	path := writeConfig(t, "token: t\nsecret: s\nport: 8080\ngit_backend: native\n")

	gt.NoError(t, Run(context.Background(), []string{"giteart", "--log-format", "json", "check", path}))
	gt.Error(t, Run(context.Background(), []string{"giteart", "--log-level", "loud", "check", path}))
	gt.Error(t, Run(context.Background(), []string{"giteart", "check", filepath.Join(t.TempDir(), "missing.yml")}))
}
