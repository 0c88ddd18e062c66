package http_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"gopkg.in/yaml.v3"

	controller "github.com/delthas/giteart/pkg/controller/http"
	"github.com/delthas/giteart/pkg/controller/worker"
	"github.com/delthas/giteart/pkg/domain/model"
	"github.com/delthas/giteart/pkg/infra/builds"
	"github.com/delthas/giteart/pkg/usecase"
	"github.com/delthas/giteart/pkg/utils/queue"
)

// fakeGit checks out a fixed manifest instead of cloning
type fakeGit struct{}

func (fakeGit) Clone(ctx context.Context, url, dir string) error {
	manifest := "image: alpine/edge\nsources:\n  - " + url + "\ntasks:\n  - build: make\n"
	return os.WriteFile(filepath.Join(dir, ".build.yml"), []byte(manifest), 0644)
}

func (fakeGit) IsTag(ctx context.Context, dir string) (bool, error) {
	return false, nil
}

func TestEndToEnd(t *testing.T) {
	var (
		mu   sync.Mutex
		jobs []model.BuildJobRequest
		auth []string
	)
	buildAPI := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req model.BuildJobRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		jobs = append(jobs, req)
		auth = append(auth, r.Header.Get("Authorization"))
		mu.Unlock()
		_, _ = w.Write([]byte(`{"id": 42}`))
	}))
	defer buildAPI.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := queue.New[*model.PushEvent]()
	submitter := builds.NewClient("t0ken", builds.WithInstance(buildAPI.URL))
	pushUC := usecase.NewPush(fakeGit{}, submitter,
		usecase.WithReaders([]string{"~alice"}),
		usecase.WithTempRoot(t.TempDir()),
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.New(q, pushUC).Run(ctx)
	}()

	server, err := controller.NewServer(ctx, usecase.NewWebhook(q, usecase.WithSecret(testSecret)))
	gt.NoError(t, err)

	w := sendHook(server.Handler.ServeHTTP, "push", pushBody(nil))
	gt.Number(t, w.Code).Equal(http.StatusOK)
	gt.Value(t, w.Body.String()).Equal("ok")

	deadline := time.Now().Add(5 * time.Second)
	for {
		mu.Lock()
		n := len(jobs)
		mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no job submitted")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	gt.Number(t, len(jobs)).Equal(1)
	gt.Value(t, auth[0]).Equal("token t0ken")
	gt.Value(t, jobs[0].Tags).Equal([]string{"r", ".build", "giteart"})
	gt.Value(t, jobs[0].Readers).Equal([]string{"~alice"})
	gt.Value(t, jobs[0].Note).Equal("`r - #abc123` - Automatic build")

	var manifest map[string]any
	gt.NoError(t, yaml.Unmarshal([]byte(jobs[0].Manifest), &manifest))
	gt.Value(t, manifest["sources"]).Equal([]any{"https://example.com/r.git#abc123def"})
	gt.Value(t, manifest["environment"]).Equal(map[string]any{
		"GIT_COMMIT_ID": "abc123def",
		"GIT_REPO_NAME": "r",
	})
}
