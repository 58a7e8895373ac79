package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azhengyongqin/taskflow/internal/engine"
	"github.com/azhengyongqin/taskflow/internal/server/dto"
	"github.com/azhengyongqin/taskflow/internal/store"
)

func newTestRouter(t *testing.T) (http.Handler, *engine.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	eng := engine.New(engine.Options{WorkflowID: "wf-http"})
	return NewRouter(Deps{Engine: eng}), eng
}

func doJSON(t *testing.T, r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSubmitAndGetTask(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/v1/tasks",
		`{"task_id":"extract","priority":"high","tags":["etl"],"payload":{"src":"users"}}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp dto.SubmitTaskResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "extract", resp.TaskID)
	assert.Equal(t, "high", resp.Priority)
	assert.Equal(t, "pending", resp.Status)

	w = doJSON(t, r, http.MethodGet, "/api/v1/tasks/extract", "")
	require.Equal(t, http.StatusOK, w.Code)
	var view dto.TaskView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, "extract", view.TaskID)
	assert.Equal(t, []string{"etl"}, view.Tags)
	assert.Equal(t, "pending", view.Status)
	assert.Empty(t, view.Result, "未执行的任务不应有结果")
}

func TestSubmitTaskValidationErrors(t *testing.T) {
	r, _ := newTestRouter(t)

	// 重复 id
	w := doJSON(t, r, http.MethodPost, "/api/v1/tasks", `{"task_id":"a"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	w = doJSON(t, r, http.MethodPost, "/api/v1/tasks", `{"task_id":"a"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, "重复 id 应返回 422")

	// 未知依赖
	w = doJSON(t, r, http.MethodPost, "/api/v1/tasks", `{"task_id":"b","dependencies":["ghost"]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	// 非法 task_id
	w = doJSON(t, r, http.MethodPost, "/api/v1/tasks", `{"task_id":"bad id!"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 非法 tag
	w = doJSON(t, r, http.MethodPost, "/api/v1/tasks", `{"task_id":"c","tags":["bad tag"]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetTaskNotFound(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doJSON(t, r, http.MethodGet, "/api/v1/tasks/ghost", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListTasksWithFilters(t *testing.T) {
	r, _ := newTestRouter(t)
	for _, body := range []string{
		`{"task_id":"a","tags":["etl"]}`,
		`{"task_id":"b","tags":["report"]}`,
		`{"task_id":"c","dependencies":["a"],"tags":["etl"]}`,
	} {
		w := doJSON(t, r, http.MethodPost, "/api/v1/tasks", body)
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := doJSON(t, r, http.MethodGet, "/api/v1/tasks", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list dto.TaskListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 3, list.Total)

	w = doJSON(t, r, http.MethodGet, "/api/v1/tasks?tag=etl", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 2, list.Total)

	w = doJSON(t, r, http.MethodGet, "/api/v1/tasks?status=pending", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 3, list.Total)

	w = doJSON(t, r, http.MethodGet, "/api/v1/tasks?status=sleeping", "")
	assert.Equal(t, http.StatusBadRequest, w.Code, "未知状态应返回 400")

	w = doJSON(t, r, http.MethodGet, "/api/v1/tasks?status=Running%21", "")
	assert.Equal(t, http.StatusBadRequest, w.Code, "非法格式的状态应返回 400")
}

func TestQueueStatsEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doJSON(t, r, http.MethodPost, "/api/v1/tasks", `{"task_id":"a"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/v1/queue/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats engine.QueueStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, "wf-http", stats.WorkflowID)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Pending)
}

func TestWorkflowEndpoints(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doJSON(t, r, http.MethodPost, "/api/v1/tasks", `{"task_id":"a"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	w = doJSON(t, r, http.MethodPost, "/api/v1/tasks", `{"task_id":"b","dependencies":["a"]}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/v1/workflow", "")
	require.Equal(t, http.StatusOK, w.Code)
	var wf dto.WorkflowResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &wf))
	assert.Equal(t, "pending", wf.Status)
	assert.Equal(t, 2, wf.Summary.Total)

	w = doJSON(t, r, http.MethodGet, "/api/v1/workflow/levels", "")
	require.Equal(t, http.StatusOK, w.Code)
	var levels dto.WorkflowLevelsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &levels))
	assert.Equal(t, [][]string{{"a"}, {"b"}}, levels.Levels)

	// pending 状态不能暂停
	w = doJSON(t, r, http.MethodPost, "/api/v1/workflow/pause", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	// 取消总是可以
	w = doJSON(t, r, http.MethodPost, "/api/v1/workflow/cancel", "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = doJSON(t, r, http.MethodGet, "/api/v1/workflow", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &wf))
	assert.Equal(t, "cancelled", wf.Status)
}

func TestClearCompletedEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doJSON(t, r, http.MethodPost, "/api/v1/tasks/clear-completed", "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp dto.ClearCompletedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Cleared)
}

// fakeSnapshotStore 记录快照读写的内存后端。
type fakeSnapshotStore struct {
	mu    sync.Mutex
	snaps map[string]*store.Snapshot
}

func (s *fakeSnapshotStore) Save(_ context.Context, snap *store.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps[snap.WorkflowID] = snap
	return nil
}

func (s *fakeSnapshotStore) Load(_ context.Context, workflowID string) (*store.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snaps[workflowID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return snap, nil
}

func (s *fakeSnapshotStore) Delete(_ context.Context, workflowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snaps, workflowID)
	return nil
}

func (s *fakeSnapshotStore) Close() error { return nil }

func TestDeleteSnapshotEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	st := &fakeSnapshotStore{snaps: map[string]*store.Snapshot{}}
	eng := engine.New(engine.Options{WorkflowID: "wf-snapdel", Store: st})
	r := NewRouter(Deps{Engine: eng})

	// 非终态不允许清理
	w := doJSON(t, r, http.MethodDelete, "/api/v1/workflow/snapshot", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/v1/workflow/cancel", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodDelete, "/api/v1/workflow/snapshot", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	st.mu.Lock()
	defer st.mu.Unlock()
	assert.Empty(t, st.snaps, "清理后后端不应再有快照")
}

func TestHealthEndpoints(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doJSON(t, r, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = doJSON(t, r, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, w.Code)
}
