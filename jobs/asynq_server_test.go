package jobs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type fakeEnqueuer struct {
	got []ConsolidateRefreshPayload
	err error
}

func (f *fakeEnqueuer) EnqueueConsolidateRefresh(_ context.Context, payload ConsolidateRefreshPayload) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.got = append(f.got, payload)
	return &asynq.TaskInfo{ID: "task-1", Queue: QueueDefault}, nil
}

func serveJobs(h *Handler, method, path, body string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	h.MountRoutes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func TestRefreshEnqueuesPayload(t *testing.T) {
	enq := &fakeEnqueuer{}
	rec := serveJobs(NewHandler(nil, enq, nil), http.MethodPost, "/refresh", `{"company":"Holding","fiscal_year":"2024","bump":true}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Contains(t, rec.Body.String(), `"id":"task-1"`)
	require.Len(t, enq.got, 1)
	require.Equal(t, "Holding", enq.got[0].Company)
	require.True(t, enq.got[0].Bump)
}

func TestRefreshEmptyBodyRefreshesEverything(t *testing.T) {
	enq := &fakeEnqueuer{}
	rec := serveJobs(NewHandler(nil, enq, nil), http.MethodPost, "/refresh", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, []ConsolidateRefreshPayload{{}}, enq.got)
}

func TestRefreshErrors(t *testing.T) {
	rec := serveJobs(NewHandler(nil, nil, nil), http.MethodPost, "/refresh", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = serveJobs(NewHandler(nil, &fakeEnqueuer{}, nil), http.MethodPost, "/refresh", "{")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serveJobs(NewHandler(nil, &fakeEnqueuer{err: errors.New("redis down")}, nil), http.MethodPost, "/refresh", "{}")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthWithoutInspector(t *testing.T) {
	rec := serveJobs(NewHandler(nil, nil, nil), http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), QueueDefault)
}
