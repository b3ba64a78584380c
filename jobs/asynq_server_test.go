package jobs

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func serveHealth(h *Handler) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	h.MountRoutes(r)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	return rr
}

func TestHandlerHealthReportsQueue(t *testing.T) {
	rr := serveHealth(NewHandler(stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 4, Retry: 1}}, nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"queue":"default","pending":4,"retry":1}`, rr.Body.String())
}

func TestHandlerHealthInspectorFailure(t *testing.T) {
	rr := serveHealth(NewHandler(stubInspector{err: errors.New("redis down")}, nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestNewTaskByName(t *testing.T) {
	for _, name := range []string{TaskCostRefresh, TaskReportWarmup} {
		task, err := NewTaskByName(name)
		require.NoError(t, err)
		assert.Equal(t, name, task.Type())
	}
	_, err := NewTaskByName("inventory:revaluation")
	require.Error(t, err)
}

func TestNewWorkerRejectsBadCron(t *testing.T) {
	task, err := NewReportWarmupTask(ReportWarmupPayload{})
	require.NoError(t, err)
	_, err = NewWorker(WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"},
		Cron:      []CronRegistration{{Spec: "not a cron", Task: task}},
	})
	require.Error(t, err)
}
