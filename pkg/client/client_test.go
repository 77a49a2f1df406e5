package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tableflip.dev/sandlab/pkg/coordinator"
	"tableflip.dev/sandlab/pkg/ledger"
	"tableflip.dev/sandlab/pkg/server"
	"tableflip.dev/sandlab/pkg/store"
	"tableflip.dev/sandlab/pkg/workflow"
)

func newEngine(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	p, err := store.Load(&store.Settings{Path: filepath.Join(t.TempDir(), "db"), Store: store.BackendSQLite}, nil)
	require.NoError(t, err)
	ts := httptest.NewServer(server.New(p, nil).Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = p.Close()
	})
	return ts
}

func TestFetchMissingIsNil(t *testing.T) {
	ts := newEngine(t)
	c := New(ts.URL, "sand", nil)
	rec, err := c.Fetch(context.Background(), ledger.Key{Date: "2024-05-01"})
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestCoordinatorOverHTTP(t *testing.T) {
	ts := newEngine(t)
	ctx := context.Background()
	day := ledger.Key{Date: "2024-05-01"}

	mixRun, _ := workflow.Sand.Table(workflow.MixRun)
	first := coordinator.New(mixRun, New(ts.URL, "sand", nil), nil)
	require.NoError(t, first.SelectDate(ctx, day))
	sec := ledger.ShiftII.Section()
	require.NoError(t, first.Set(ledger.SeqPath(sec, "mixNoStart", 0), "101"))
	require.NoError(t, first.Set(ledger.SeqPath(sec, "mixNoEnd", 0), "140"))
	res, err := first.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, workflow.MixRun, res.Table)
	assert.Contains(t, res.Message, "appended")
	assert.True(t, first.LockMap().Contains(ledger.SeqPath(sec, "mixNoStart", 0)))

	// A second operator sees the first row committed and adds the next one.
	second := coordinator.New(mixRun, New(ts.URL, "sand", nil), nil)
	require.NoError(t, second.SelectDate(ctx, day))
	assert.ErrorIs(t, second.Set(ledger.SeqPath(sec, "mixNoStart", 0), "999"), ledger.ErrLocked)
	require.NoError(t, second.Set(ledger.SeqPath(sec, "mixNoStart", 1), "141"))
	_, err = second.Submit(ctx)
	require.NoError(t, err)

	rec, err := New(ts.URL, "sand", nil).Fetch(ctx, day)
	require.NoError(t, err)
	starts, _ := rec.Table(workflow.MixRun).Lookup(sec, "mixno", "start")
	ends, _ := rec.Table(workflow.MixRun).Lookup(sec, "mixno", "end")
	assert.Equal(t, []any{"101", "141"}, starts)
	assert.Equal(t, []any{"140", ""}, ends)
}

func TestSubmitSurfacesRejections(t *testing.T) {
	ts := newEngine(t)
	ctx := context.Background()
	day := ledger.Key{Date: "2024-05-01"}
	clay, _ := workflow.Sand.Table(workflow.ClayTests)
	vcm := ledger.ScalarPath(ledger.ShiftI.Section(), "vcm")
	c := New(ts.URL, "sand", nil)

	submit := func(v string) coordinator.Result {
		s := ledger.Hydrate(clay, nil, ledger.NewLockMap())
		require.True(t, s.Set(vcm, v))
		res, err := c.Submit(ctx, day, ledger.BuildDelta(s))
		require.NoError(t, err)
		return res
	}
	submit("2.1")
	res := submit("9.9")
	assert.Equal(t, []string{"shiftI.vcm"}, res.Rejected)
}

func TestRemoteErrors(t *testing.T) {
	ts := newEngine(t)
	ctx := context.Background()

	_, err := New(ts.URL, "nope", nil).Fetch(ctx, ledger.Key{Date: "2024-05-01"})
	assert.ErrorIs(t, err, ErrRemote)

	_, err = New(ts.URL, "process", nil).Fetch(ctx, ledger.Key{Date: "2024-05-01"})
	assert.ErrorIs(t, err, ErrRemote)

	_, err = New(ts.URL, "sand", nil).Submit(ctx, ledger.Key{Date: "2024-05-01"}, ledger.Payload{Table: 42, Data: ledger.Document{}})
	assert.ErrorIs(t, err, ErrRemote)
}

func TestRequestCarriesID(t *testing.T) {
	var got string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get(server.RequestIDHeader)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":null}`))
	}))
	defer ts.Close()

	_, err := New(ts.URL, "sand", nil).Fetch(context.Background(), ledger.Key{Date: "2024-05-01"})
	require.NoError(t, err)
	assert.Len(t, got, 36)
}
