package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/briangreenhill/chatdeck/internal/jobs"
	"github.com/briangreenhill/chatdeck/internal/loader"
	"github.com/briangreenhill/chatdeck/internal/platform"
)

// fakePlatform serves canned platform responses and counts hits per path
type fakePlatform struct {
	mu     sync.Mutex
	hits   map[string]int
	failOn map[string]int
	server *httptest.Server
}

func newFakePlatform(t *testing.T) *fakePlatform {
	t.Helper()
	fp := &fakePlatform{hits: map[string]int{}, failOn: map[string]int{}}

	fp.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fp.mu.Lock()
		fp.hits[r.Method+" "+r.URL.Path]++
		status := fp.failOn[r.URL.Path]
		fp.mu.Unlock()

		if r.Header.Get("Authorization") != "Bearer tok-1" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if status != 0 {
			http.Error(w, "boom", status)
			return
		}
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		switch r.URL.Path {
		case "/v1/mcp/config":
			_, _ = w.Write([]byte(`{"servers":[{"name":"docs","transport":"http","enabled":true}]}`))
		case "/v1/usage":
			_, _ = w.Write([]byte(`{"messages":12,"input_tokens":3400}`))
		default:
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data":  []map[string]any{{"id": "1", "name": r.URL.Path}},
				"total": 1,
			})
		}
	}))
	t.Cleanup(fp.server.Close)
	return fp
}

func (fp *fakePlatform) Hits(key string) int {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return fp.hits[key]
}

func (fp *fakePlatform) Fail(path string, status int) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.failOn[path] = status
}

type recordingEnqueuer struct {
	mu    sync.Mutex
	tasks []*asynq.Task
}

func (r *recordingEnqueuer) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Queue: jobs.QueueCache}, nil
}

func newTestService(t *testing.T, fp *fakePlatform, enq jobs.Enqueuer) *Service {
	t.Helper()
	loaders := NewLoaders(time.Hour, func() *loader.Loader { return loader.New() })
	t.Cleanup(loaders.Stop)

	return NewService(Options{
		Loaders: loaders,
		Clients: func(tokens oauth2.TokenSource) (*platform.Client, error) {
			return platform.New(tokens, platform.WithBaseURL(fp.server.URL))
		},
		Jobs:   enq,
		Logger: zerolog.Nop(),
	})
}

var testUser = User{ID: "user-1", Token: &oauth2.Token{AccessToken: "tok-1"}}

func TestOverviewLoadsAllSectionsOnce(t *testing.T) {
	fp := newFakePlatform(t)
	svc := newTestService(t, fp, nil)
	ctx := context.Background()

	ov, err := svc.Overview(ctx, testUser)
	require.NoError(t, err)
	assert.Len(t, ov, len(DefaultRegistry().List()))
	for name, res := range ov {
		assert.Empty(t, res.Error, name)
		assert.False(t, res.Cached, name)
	}

	files, ok := ov[SectionFiles].Data.(platform.List[platform.File])
	require.True(t, ok)
	assert.Equal(t, "/v1/files", files.Data[0].Name)

	ov, err = svc.Overview(ctx, testUser)
	require.NoError(t, err)
	assert.True(t, ov[SectionModels].Cached)
	assert.Equal(t, 1, fp.Hits("GET /v1/models"))
	assert.Equal(t, 1, fp.Hits("GET /v1/mcp/config"))
}

func TestOverviewIsolatesFailingSection(t *testing.T) {
	fp := newFakePlatform(t)
	fp.Fail("/v1/usage", http.StatusBadGateway)
	svc := newTestService(t, fp, nil)

	ov, err := svc.Overview(context.Background(), testUser)
	require.NoError(t, err)

	assert.Contains(t, ov[SectionUsage].Error, "502")
	assert.Equal(t, []string{SectionUsage}, ov.Failed())
	assert.Nil(t, ov[SectionUsage].Data)
	assert.Empty(t, ov[SectionChats].Error)
	assert.NotNil(t, ov[SectionChats].Data)
}

func TestSectionUnknownAndNoSession(t *testing.T) {
	fp := newFakePlatform(t)
	svc := newTestService(t, fp, nil)

	_, err := svc.Section(context.Background(), testUser, "billing")
	assert.ErrorIs(t, err, ErrUnknownSection)

	_, err = svc.Section(context.Background(), User{ID: "user-1"}, SectionFiles)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestSectionIsCachedPerUser(t *testing.T) {
	fp := newFakePlatform(t)
	svc := newTestService(t, fp, nil)
	ctx := context.Background()

	_, err := svc.Section(ctx, testUser, SectionDatasets)
	require.NoError(t, err)
	_, err = svc.Section(ctx, testUser, SectionDatasets)
	require.NoError(t, err)
	assert.Equal(t, 1, fp.Hits("GET /v1/datasets"))

	other := User{ID: "user-2", Token: testUser.Token}
	_, err = svc.Section(ctx, other, SectionDatasets)
	require.NoError(t, err)
	assert.Equal(t, 2, fp.Hits("GET /v1/datasets"))
}

func TestDeleteFileInvalidatesAndSchedulesRecheck(t *testing.T) {
	fp := newFakePlatform(t)
	enq := &recordingEnqueuer{}
	svc := newTestService(t, fp, enq)
	ctx := context.Background()

	_, err := svc.Overview(ctx, testUser)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteFile(ctx, testUser, "f-1"))
	assert.Equal(t, 1, fp.Hits("DELETE /v1/files/f-1"))

	_, err = svc.Section(ctx, testUser, SectionFiles)
	require.NoError(t, err)
	assert.Equal(t, 2, fp.Hits("GET /v1/files"))

	_, err = svc.Section(ctx, testUser, SectionModels)
	require.NoError(t, err)
	assert.Equal(t, 1, fp.Hits("GET /v1/models"))

	require.Len(t, enq.tasks, 1)
	var p jobs.InvalidatePayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &p))
	assert.Equal(t, "user-1", p.UserID)
	assert.ElementsMatch(t, []string{SectionEmbeddings, SectionKnowledgeStores}, p.Keys)
}

func TestDeleteFileFailureKeepsCache(t *testing.T) {
	fp := newFakePlatform(t)
	fp.Fail("/v1/files/f-404", http.StatusNotFound)
	svc := newTestService(t, fp, nil)
	ctx := context.Background()

	_, err := svc.Section(ctx, testUser, SectionFiles)
	require.NoError(t, err)

	err = svc.DeleteFile(ctx, testUser, "f-404")
	require.Error(t, err)
	assert.True(t, platform.IsNotFound(err))

	_, err = svc.Section(ctx, testUser, SectionFiles)
	require.NoError(t, err)
	assert.Equal(t, 1, fp.Hits("GET /v1/files"))
}

func TestHandleInvalidateTask(t *testing.T) {
	fp := newFakePlatform(t)
	svc := newTestService(t, fp, nil)
	ctx := context.Background()

	_, err := svc.Overview(ctx, testUser)
	require.NoError(t, err)

	task, err := jobs.NewInvalidateTask(testUser.ID, []string{SectionEmbeddings}, 0)
	require.NoError(t, err)
	require.NoError(t, svc.HandleInvalidateTask(ctx, task))

	_, err = svc.Section(ctx, testUser, SectionEmbeddings)
	require.NoError(t, err)
	assert.Equal(t, 2, fp.Hits("GET /v1/embeddings"))

	bad := asynq.NewTask(jobs.TaskInvalidate, []byte("{"))
	assert.ErrorIs(t, svc.HandleInvalidateTask(ctx, bad), asynq.SkipRetry)

	missing := asynq.NewTask(jobs.TaskInvalidate, []byte(`{"keys":["files"]}`))
	assert.ErrorIs(t, svc.HandleInvalidateTask(ctx, missing), asynq.SkipRetry)
}

func TestPreloadWarmsSections(t *testing.T) {
	fp := newFakePlatform(t)
	svc := newTestService(t, fp, nil)

	require.NoError(t, svc.Preload(context.Background(), testUser))
	require.Eventually(t, func() bool {
		return svc.Stats(testUser.ID).Entries == len(svc.Sections())
	}, 2*time.Second, 10*time.Millisecond)

	ov, err := svc.Overview(context.Background(), testUser)
	require.NoError(t, err)
	for name, res := range ov {
		assert.True(t, res.Cached, name)
	}
}

func TestForgetDropsUserLoader(t *testing.T) {
	fp := newFakePlatform(t)
	svc := newTestService(t, fp, nil)
	ctx := context.Background()

	_, err := svc.Section(ctx, testUser, SectionChats)
	require.NoError(t, err)
	assert.Equal(t, 1, svc.Stats(testUser.ID).Entries)

	svc.Forget(testUser.ID)
	assert.Equal(t, loader.Stats{}, svc.Stats(testUser.ID))

	_, err = svc.Section(ctx, testUser, SectionChats)
	require.NoError(t, err)
	assert.Equal(t, 2, fp.Hits("GET /v1/chats"))
}
