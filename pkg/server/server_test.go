package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tableflip.dev/sandlab/pkg/ledger"
	"tableflip.dev/sandlab/pkg/store"
	"tableflip.dev/sandlab/pkg/workflow"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	p, err := store.Load(&store.Settings{Path: filepath.Join(t.TempDir(), "ledger"), Store: store.BackendDiskv}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return New(p, nil)
}

func do(t *testing.T, s *Server, method, target string, body any) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	var resp Response
	if w.Header().Get("Content-Type") != "" && w.Body.Len() > 0 && target != "/metrics" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	return w, resp
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	w, _ := do(t, s, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestGetMissingRecordIsNull(t *testing.T) {
	s := newTestServer(t)
	w, resp := do(t, s, http.MethodGet, "/api/v1/sand/records?date=2024-05-01", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
	assert.Nil(t, resp.Data)
	assert.Contains(t, w.Body.String(), `"data":null`)
}

func TestPostThenGet(t *testing.T) {
	s := newTestServer(t)
	body := map[string]any{
		"tableNum": workflow.SandAddition,
		"data": map[string]any{
			"date":   "2024-05-01",
			"shiftI": map[string]any{"rSand": []any{"120"}},
		},
	}
	w, resp := do(t, s, http.MethodPost, "/api/v1/sand/records", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, resp.Success)
	assert.Equal(t, "table 1 saved (0 set, 1 appended)", resp.Message)

	w, resp = do(t, s, http.MethodGet, "/api/v1/sand/records?date=2024-05-01", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, resp.Data)
	assert.Equal(t, ledger.Key{Date: "2024-05-01"}, resp.Data.Key)
	got, ok := resp.Data.Table(workflow.SandAddition).Lookup(ledger.ShiftI.Section(), "rSand")
	require.True(t, ok)
	assert.Equal(t, []any{"120"}, got)
	_, hasDate := resp.Data.Table(workflow.SandAddition)["date"]
	assert.False(t, hasDate, "key fields must not be stored inside the table")
}

func TestPostReportsRejectedOverwrite(t *testing.T) {
	s := newTestServer(t)
	submit := func(v string) Response {
		_, resp := do(t, s, http.MethodPost, "/api/v1/sand/records", map[string]any{
			"tableNum": workflow.ClayTests,
			"data": map[string]any{
				"date":    "2024-05-01",
				"shiftII": map[string]any{"vcm": v},
			},
		})
		return resp
	}
	first := submit("2.1")
	require.True(t, first.Success)
	assert.Empty(t, first.Rejected)

	second := submit("3.3")
	require.True(t, second.Success)
	assert.Equal(t, []string{"shiftII.vcm"}, second.Rejected)
	assert.Contains(t, second.Message, "already set")

	// Re-sending the stored value is not a conflict.
	same := submit("2.1")
	assert.Empty(t, same.Rejected)
}

func TestRequestErrors(t *testing.T) {
	s := newTestServer(t)
	tests := []struct {
		name   string
		method string
		target string
		body   any
		status int
	}{
		{"unknown workflow", http.MethodGet, "/api/v1/nope/records?date=2024-05-01", nil, http.StatusNotFound},
		{"missing date", http.MethodGet, "/api/v1/sand/records", nil, http.StatusBadRequest},
		{"malformed date", http.MethodGet, "/api/v1/sand/records?date=01-05-2024", nil, http.StatusBadRequest},
		{"unit on date-only workflow", http.MethodGet, "/api/v1/sand/records?date=2024-05-01&key=DISA-1", nil, http.StatusBadRequest},
		{"unit required", http.MethodGet, "/api/v1/process/records?date=2024-05-01", nil, http.StatusBadRequest},
		{"unknown table", http.MethodPost, "/api/v1/sand/records", map[string]any{
			"tableNum": 9, "data": map[string]any{"date": "2024-05-01"},
		}, http.StatusBadRequest},
		{"missing table", http.MethodPost, "/api/v1/sand/records", map[string]any{
			"data": map[string]any{"date": "2024-05-01"},
		}, http.StatusBadRequest},
		{"missing date in body", http.MethodPost, "/api/v1/sand/records", map[string]any{
			"tableNum": 1, "data": map[string]any{},
		}, http.StatusBadRequest},
		{"scalar where a list is stored", http.MethodPost, "/api/v1/sand/records", map[string]any{
			"tableNum": 1, "data": map[string]any{"date": "2024-05-01", "shiftI": map[string]any{"rSand": "120"}},
		}, http.StatusBadRequest},
		{"unknown field in body", http.MethodPost, "/api/v1/sand/records", map[string]any{
			"tableNum": 1, "data": map[string]any{"date": "2024-05-01", "shiftI": map[string]any{"bogus": "x"}},
		}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := do(t, s, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.False(t, resp.Success)
			assert.NotEmpty(t, resp.Message)
		})
	}
}

func TestPostMisshapenDeltaStoresNothing(t *testing.T) {
	s := newTestServer(t)
	w, resp := do(t, s, http.MethodPost, "/api/v1/sand/records", map[string]any{
		"tableNum": workflow.SandAddition,
		"data": map[string]any{
			"date":   "2024-05-01",
			"shiftI": map[string]any{"rSand": "120", "bogus": "x"},
		},
	})
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	assert.False(t, resp.Success)

	_, resp = do(t, s, http.MethodGet, "/api/v1/sand/records?date=2024-05-01", nil)
	assert.Nil(t, resp.Data)

	w, resp = do(t, s, http.MethodPost, "/api/v1/sand/records", map[string]any{
		"tableNum": workflow.SandAddition,
		"data": map[string]any{
			"date":   "2024-05-01",
			"shiftI": map[string]any{"rSand": []any{"120"}},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "table 1 saved (0 set, 1 appended)", resp.Message)
}

func TestProcessWorkflowKeyedByUnit(t *testing.T) {
	s := newTestServer(t)
	w, resp := do(t, s, http.MethodPost, "/api/v1/process/records", map[string]any{
		"tableNum": 1,
		"data": map[string]any{
			"date":   "2024-05-01",
			"key":    "DISA-1",
			"shiftI": map[string]any{"operator": "ravi"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.True(t, resp.Success)

	_, resp = do(t, s, http.MethodGet, "/api/v1/process/records?date=2024-05-01&key=DISA-1", nil)
	require.NotNil(t, resp.Data)
	assert.Equal(t, "DISA-1", resp.Data.Key.Unit)

	_, resp = do(t, s, http.MethodGet, "/api/v1/process/records?date=2024-05-01&key=DISA-2", nil)
	assert.Nil(t, resp.Data)
}

func TestMetricsExposed(t *testing.T) {
	s := newTestServer(t)
	do(t, s, http.MethodPost, "/api/v1/sand/records", map[string]any{
		"tableNum": workflow.SandAddition,
		"data":     map[string]any{"date": "2024-05-01", "shiftI": map[string]any{"rSand": []any{"1", "2"}}},
	})
	w, _ := do(t, s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `sandlab_merged_values_total{outcome="appended",table="1",workflow="sand"} 2`)
	assert.Contains(t, w.Body.String(), "sandlab_http_request_duration_seconds")
}

func TestRequestIDPropagated(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "6f1c1c1e-8f5d-4a53-9d5c-3f8ea2a0c4b1")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, "6f1c1c1e-8f5d-4a53-9d5c-3f8ea2a0c4b1", w.Header().Get(RequestIDHeader))
}
