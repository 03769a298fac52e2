package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func up(context.Context) ComponentHealth { return ComponentHealth{Status: StatusUp} }

func TestChecker_WorstStatusWins(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]Check
		want   Status
	}{
		{"empty", nil, StatusUp},
		{"all up", map[string]Check{"a": up, "b": up}, StatusUp},
		{"degraded", map[string]Check{"a": up, "b": PingCheck(nil, true)}, StatusDegraded},
		{"down", map[string]Check{"a": PingCheck(nil, true), "b": PingCheck(nil, false)}, StatusDown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker()
			for name, check := range tt.checks {
				c.Register(name, check)
			}
			report := c.Run(context.Background())
			assert.Equal(t, tt.want, report.Status)
			assert.Len(t, report.Components, len(tt.checks))
		})
	}
}

func TestChecker_PanickingCheckIsDown(t *testing.T) {
	c := NewChecker()
	c.Register("ok", up)
	c.Register("broken", func(context.Context) ComponentHealth { panic("boom") })

	report := c.Run(context.Background())
	assert.Equal(t, StatusDown, report.Status)
	assert.Equal(t, StatusDown, report.Components["broken"].Status)
	assert.Equal(t, StatusUp, report.Components["ok"].Status)
}

func TestPingCheck(t *testing.T) {
	ok := PingCheck(func(context.Context) error { return nil }, false)(context.Background())
	assert.Equal(t, StatusUp, ok.Status)

	failing := func(context.Context) error { return errors.New("refused") }
	down := PingCheck(failing, false)(context.Background())
	assert.Equal(t, StatusDown, down.Status)
	assert.Equal(t, "refused", down.Message)

	degraded := PingCheck(failing, true)(context.Background())
	assert.Equal(t, StatusDegraded, degraded.Status)
}

func TestReadyCheck(t *testing.T) {
	ready := false
	check := ReadyCheck(func() bool { return ready }, func() string { return "3 files" })
	assert.Equal(t, StatusDown, check(context.Background()).Status)

	ready = true
	got := check(context.Background())
	assert.Equal(t, StatusUp, got.Status)
	assert.Equal(t, "3 files", got.Message)
}

func TestHandlers(t *testing.T) {
	c := NewChecker()
	ready := false
	c.Register("index", ReadyCheck(func() bool { return ready }, nil))

	rec := httptest.NewRecorder()
	c.LiveHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	ready = true
	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var report Report
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Equal(t, StatusUp, report.Components["index"].Status)
}
