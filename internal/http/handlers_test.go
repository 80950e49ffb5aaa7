package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ANIKETSHETTY47/containment-telemetry/internal/domain"
)

type fakeReader struct {
	statuses  map[int64]domain.DeviceActivityStatus
	events    []domain.EmergencyEvent
	logs      []domain.AutoSaveLogEntry
	lastLimit int
	err       error
}

func (f *fakeReader) ListActivityStatuses(context.Context) ([]domain.DeviceActivityStatus, error) {
	out := make([]domain.DeviceActivityStatus, 0, len(f.statuses))
	for _, st := range f.statuses {
		out = append(out, st)
	}
	return out, f.err
}

func (f *fakeReader) ActivityStatus(_ context.Context, id int64) (domain.DeviceActivityStatus, error) {
	st, ok := f.statuses[id]
	if !ok {
		return st, fmt.Errorf("device %d: %w", id, domain.ErrNotFound)
	}
	return st, nil
}

func (f *fakeReader) OpenEmergencyEvents(context.Context) ([]domain.EmergencyEvent, error) {
	return f.events, f.err
}

func (f *fakeReader) ListAutoSaveLogs(_ context.Context, _ int64, limit int) ([]domain.AutoSaveLogEntry, error) {
	f.lastLimit = limit
	return f.logs, f.err
}

func newApp(r Reader) *fiber.App {
	app := fiber.New()
	Register(app, r)
	return app
}

func TestActivityStatus(t *testing.T) {
	seen := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	r := &fakeReader{statuses: map[int64]domain.DeviceActivityStatus{
		7: {DeviceID: 7, State: domain.StateOnline, LastSeen: seen},
	}}
	app := newApp(r)

	resp, err := app.Test(httptest.NewRequest("GET", "/devices/7/activity", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var st domain.DeviceActivityStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, domain.StateOnline, st.State)

	resp, err = app.Test(httptest.NewRequest("GET", "/devices/8/activity", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/devices/abc/activity", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestAutoSaveLogsLimit(t *testing.T) {
	r := &fakeReader{}
	app := newApp(r)

	resp, err := app.Test(httptest.NewRequest("GET", "/devices/7/autosave-logs", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, defaultLogLimit, r.lastLimit)

	resp, err = app.Test(httptest.NewRequest("GET", "/devices/7/autosave-logs?limit=5", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, 5, r.lastLimit)

	resp, err = app.Test(httptest.NewRequest("GET", "/devices/7/autosave-logs?limit=-1", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestOpenEmergenciesError(t *testing.T) {
	app := newApp(&fakeReader{err: fmt.Errorf("db down")})

	resp, err := app.Test(httptest.NewRequest("GET", "/emergencies/open", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}

func TestOpsHealth(t *testing.T) {
	connected := false
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "ops_test_total"})
	reg.MustRegister(c)
	c.Inc()

	app := fiber.New()
	RegisterOps(app, func() bool { return connected }, reg)

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	connected = true
	resp, err = app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "ops_test_total 1")
}
