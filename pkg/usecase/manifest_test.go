package usecase_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"gopkg.in/yaml.v3"

	"github.com/delthas/giteart/pkg/domain/model"
	"github.com/delthas/giteart/pkg/domain/types"
	"github.com/delthas/giteart/pkg/usecase"
)

var testEvent = &model.PushEvent{
	Repo:     "r",
	Commit:   "abc123",
	CloneURL: "https://example.com/r.git",
}

func rewrite(t *testing.T, manifest string, isTag bool) string {
	t.Helper()
	out, err := usecase.RewriteManifest(strings.NewReader(manifest), testEvent, isTag)
	gt.NoError(t, err)
	return out
}

func decode(t *testing.T, out string) map[string]any {
	t.Helper()
	var doc map[string]any
	gt.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	return doc
}

func topLevelKeys(t *testing.T, out string) []string {
	t.Helper()
	var doc yaml.Node
	gt.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	root := doc.Content[0]

	var keys []string
	for i := 0; i < len(root.Content); i += 2 {
		keys = append(keys, root.Content[i].Value)
	}
	return keys
}

func TestRewriteManifest_Output(t *testing.T) {
	manifest := `# build manifest
image: alpine/edge # the image
sources:
- https://example.com/r.git
- https://example.com/other
`
	want := `image: alpine/edge
sources:
  - https://example.com/r.git#abc123
  - https://example.com/other
environment:
  GIT_COMMIT_ID: abc123
  GIT_REPO_NAME: r
`
	gt.Value(t, rewrite(t, manifest, false)).Equal(want)
}

func TestRewriteManifest_Sources(t *testing.T) {
	tests := []struct {
		name    string
		sources string
		want    []any
	}{
		{
			name:    "Clone URL is pinned",
			sources: "  - https://example.com/r.git\n",
			want:    []any{"https://example.com/r.git#abc123"},
		},
		{
			name:    "Clone URL without .git suffix is pinned with suffix",
			sources: "  - https://example.com/r\n",
			want:    []any{"https://example.com/r.git#abc123"},
		},
		{
			name:    "Other repositories are unchanged",
			sources: "  - https://example.com/other.git\n  - https://example.com/r.git#v1\n",
			want:    []any{"https://example.com/other.git", "https://example.com/r.git#v1"},
		},
		{
			name:    "Non-string entries are unchanged",
			sources: "  - 42\n  - {url: https://example.com/r.git}\n  - https://example.com/r.git\n",
			want: []any{
				42,
				map[string]any{"url": "https://example.com/r.git"},
				"https://example.com/r.git#abc123",
			},
		},
		{
			name:    "Empty sources stay empty",
			sources: "  []\n",
			want:    []any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := rewrite(t, "image: alpine/edge\nsources:\n"+tt.sources, false)
			doc := decode(t, out)
			gt.Value(t, doc["sources"]).Equal(tt.want)
		})
	}
}

func TestRewriteManifest_MissingSources(t *testing.T) {
	doc := decode(t, rewrite(t, "image: alpine/edge\n", false))
	gt.Value(t, doc["sources"]).Equal([]any{"https://example.com/r.git#abc123"})

	// a sources field without value is handled the same way
	doc = decode(t, rewrite(t, "image: alpine/edge\nsources:\n", false))
	gt.Value(t, doc["sources"]).Equal([]any{"https://example.com/r.git#abc123"})
}

func TestRewriteManifest_MissingEnvironment(t *testing.T) {
	t.Run("not a tag", func(t *testing.T) {
		doc := decode(t, rewrite(t, "image: alpine/edge\n", false))
		gt.Value(t, doc["environment"]).Equal(map[string]any{
			"GIT_COMMIT_ID": "abc123",
			"GIT_REPO_NAME": "r",
		})
	})

	t.Run("tag", func(t *testing.T) {
		doc := decode(t, rewrite(t, "image: alpine/edge\n", true))
		gt.Value(t, doc["environment"]).Equal(map[string]any{
			"GIT_COMMIT_ID": "abc123",
			"GIT_REPO_NAME": "r",
			"GIT_IS_TAG":    "1",
		})
	})
}

func TestRewriteManifest_Environment(t *testing.T) {
	manifest := `image: alpine/edge
environment:
  DEPLOY: "yes"
  GIT_REPO_NAME: spoofed
  COUNT: 3
`
	out := rewrite(t, manifest, false)
	doc := decode(t, out)
	gt.Value(t, doc["environment"]).Equal(map[string]any{
		"GIT_COMMIT_ID": "abc123",
		"GIT_REPO_NAME": "r",
		"DEPLOY":        "yes",
		"COUNT":         3,
	})

	// injected variables come first, existing ones keep their order
	var node yaml.Node
	gt.NoError(t, yaml.Unmarshal([]byte(out), &node))
	env := node.Content[0].Content[3]
	var keys []string
	for i := 0; i < len(env.Content); i += 2 {
		keys = append(keys, env.Content[i].Value)
	}
	gt.Value(t, keys).Equal([]string{"GIT_COMMIT_ID", "GIT_REPO_NAME", "DEPLOY", "COUNT"})

	// an empty environment field receives the injected variables
	doc = decode(t, rewrite(t, "environment:\n", true))
	gt.Value(t, doc["environment"]).Equal(map[string]any{
		"GIT_COMMIT_ID": "abc123",
		"GIT_REPO_NAME": "r",
		"GIT_IS_TAG":    "1",
	})
}

func TestRewriteManifest_FieldOrder(t *testing.T) {
	manifest := `image: alpine/edge
packages:
  - go
tasks:
  - build: |
      go build ./...
triggers:
  - action: email
    condition: failure
    to: someone@example.com
`
	out := rewrite(t, manifest, false)
	gt.Value(t, topLevelKeys(t, out)).Equal([]string{"image", "packages", "tasks", "triggers", "environment", "sources"})

	doc := decode(t, out)
	gt.Value(t, doc["packages"]).Equal([]any{"go"})
	gt.Value(t, doc["tasks"]).Equal([]any{map[string]any{"build": "go build ./...\n"}})
	gt.Value(t, doc["triggers"]).Equal([]any{map[string]any{
		"action":    "email",
		"condition": "failure",
		"to":        "someone@example.com",
	}})

	// existing fields keep their position
	out = rewrite(t, "sources:\n  - https://example.com/r.git\nimage: alpine/edge\nenvironment:\n  A: b\ntasks: []\n", false)
	gt.Value(t, topLevelKeys(t, out)).Equal([]string{"sources", "image", "environment", "tasks"})
}

func TestRewriteManifest_Serialization(t *testing.T) {
	manifest := `---
# leading comment
image: alpine/edge
tasks:
  - build: | # trailing
      echo "hello"
`
	out := rewrite(t, manifest, false)
	gt.False(t, strings.HasPrefix(out, "---"))
	gt.False(t, strings.Contains(out, "comment"))
	gt.False(t, strings.Contains(out, "trailing"))

	// quoted YAML 1.1 boolean words must not become booleans for YAML 1.1 readers
	manifest = `environment:
  A: 'yes'
  B: "on"
  C: 'true'
  D: yes
  E: 'off'
  F: 'Y'
  G: "plain"
`
	out = rewrite(t, manifest, false)
	gt.String(t, out).Contains(`A: "yes"`)
	gt.String(t, out).Contains(`B: "on"`)
	gt.String(t, out).Contains(`C: "true"`)
	gt.String(t, out).Contains("D: yes\n")
	gt.String(t, out).Contains(`E: "off"`)
	gt.String(t, out).Contains(`F: "Y"`)
	gt.String(t, out).Contains("G: plain\n")

	// injected values get the same treatment
	event := &model.PushEvent{Repo: "on", Commit: "abc123", CloneURL: "https://example.com/on.git"}
	out, err := usecase.RewriteManifest(strings.NewReader("image: alpine/edge\n"), event, false)
	gt.NoError(t, err)
	gt.String(t, out).Contains(`GIT_REPO_NAME: "on"`)
	gt.Value(t, decode(t, out)["environment"].(map[string]any)["GIT_REPO_NAME"]).Equal(any("on"))
}

func TestRewriteManifest_Anchors(t *testing.T) {
	t.Run("anchored environment", func(t *testing.T) {
		out := rewrite(t, "environment: &e {A: b}\nsecrets: *e\n", false)
		doc := decode(t, out)
		gt.Value(t, doc["secrets"]).Equal(doc["environment"])
		gt.Value(t, doc["environment"].(map[string]any)["A"]).Equal(any("b"))
	})

	t.Run("anchored null environment", func(t *testing.T) {
		out := rewrite(t, "environment: &e\nsecrets: *e\n", false)
		doc := decode(t, out)
		gt.Value(t, doc["secrets"]).Equal(doc["environment"])
	})

	t.Run("anchored entry colliding with injected key", func(t *testing.T) {
		out := rewrite(t, "environment:\n  GIT_COMMIT_ID: &x foo\n  OTHER: *x\n", false)
		env := decode(t, out)["environment"].(map[string]any)
		gt.Value(t, env["GIT_COMMIT_ID"]).Equal(any("abc123"))
		gt.Value(t, env["OTHER"]).Equal(any("foo"))
	})

	t.Run("anchored null sources", func(t *testing.T) {
		out := rewrite(t, "sources: &s\nextra: *s\n", false)
		doc := decode(t, out)
		gt.Value(t, doc["sources"]).Equal([]any{"https://example.com/r.git#abc123"})
		_, ok := doc["extra"]
		gt.True(t, ok)
		gt.Value(t, doc["extra"]).Equal(nil)
	})

	t.Run("dropped anchor with nested aliases", func(t *testing.T) {
		manifest := "environment:\n  GIT_REPO_NAME: &n {k: &v val, w: *v}\n  COPY: *n\n"
		env := decode(t, rewrite(t, manifest, false))["environment"].(map[string]any)
		gt.Value(t, env["COPY"]).Equal(any(map[string]any{"k": "val", "w": "val"}))
	})

	t.Run("anchors kept elsewhere", func(t *testing.T) {
		manifest := "image: &img alpine/edge\nsources:\n  - &src https://example.com/r.git\nartifacts: [*img, *src]\n"
		doc := decode(t, rewrite(t, manifest, false))
		gt.Value(t, doc["artifacts"]).Equal([]any{"alpine/edge", "https://example.com/r.git#abc123"})
	})
}

func TestRewriteManifest_NumericCommit(t *testing.T) {
	event := &model.PushEvent{Repo: "1234", Commit: "1234567", CloneURL: "https://example.com/r.git"}
	out, err := usecase.RewriteManifest(strings.NewReader("image: alpine/edge\n"), event, false)
	gt.NoError(t, err)

	doc := decode(t, out)
	env := doc["environment"].(map[string]any)
	gt.Value(t, env["GIT_COMMIT_ID"]).Equal("1234567")
	gt.Value(t, env["GIT_REPO_NAME"]).Equal("1234")
}

func TestRewriteManifest_JSON(t *testing.T) {
	manifest := `{"image": "alpine/edge", "sources": ["https://example.com/r.git"], "tasks": [{"build": "make"}]}`
	out := rewrite(t, manifest, false)
	gt.False(t, strings.Contains(out, "{"))

	doc := decode(t, out)
	gt.Value(t, doc["image"]).Equal("alpine/edge")
	gt.Value(t, doc["sources"]).Equal([]any{"https://example.com/r.git#abc123"})
	gt.Value(t, doc["tasks"]).Equal([]any{map[string]any{"build": "make"}})
}

func TestRewriteManifest_EmptyDocument(t *testing.T) {
	doc := decode(t, rewrite(t, "", false))
	gt.Value(t, topLevelKeys(t, rewrite(t, "", false))).Equal([]string{"environment", "sources"})
	gt.Value(t, doc["sources"]).Equal([]any{"https://example.com/r.git#abc123"})
}

func TestRewriteManifest_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
	}{
		{name: "Top level sequence", manifest: "- a\n- b\n"},
		{name: "Top level scalar", manifest: "hello\n"},
		{name: "Environment is a sequence", manifest: "environment:\n  - A=b\n"},
		{name: "Sources is a mapping", manifest: "sources:\n  a: b\n"},
		{name: "Syntax error", manifest: "image: [alpine\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := usecase.RewriteManifest(strings.NewReader(tt.manifest), testEvent, false)
			gt.Error(t, err)
			gt.True(t, goerr.HasTag(err, types.ErrTagManifest))
		})
	}
}

func TestRewriteManifestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".build.yml")
	gt.NoError(t, os.WriteFile(path, []byte("image: alpine/edge\nsources:\n  - https://example.com/r.git\n"), 0644))

	out, err := usecase.RewriteManifestFile(path, testEvent, false)
	gt.NoError(t, err)
	gt.String(t, out).Contains("https://example.com/r.git#abc123")

	_, err = usecase.RewriteManifestFile(filepath.Join(t.TempDir(), "missing.yml"), testEvent, false)
	gt.Error(t, err)
	gt.True(t, goerr.HasTag(err, types.ErrTagManifest))
}
