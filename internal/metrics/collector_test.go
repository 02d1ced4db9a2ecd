// internal/metrics/collector_test.go
package metrics

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/FairForge/multipath/internal/mpath"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestCollector(t *testing.T) {
	t.Run("io results", func(t *testing.T) {
		c := NewCollector()
		c.ObserveIO("vol0", mpath.OpWrite, 2*time.Millisecond, nil)
		c.ObserveIO("vol0", mpath.OpWrite, time.Millisecond, nil)
		c.ObserveIO("vol0", mpath.OpRead, time.Millisecond, fmt.Errorf("x: %w", mpath.ErrNoUsablePath))
		c.ObserveIO("vol0", mpath.OpRead, time.Millisecond, mpath.ErrMedium)

		out := scrape(t, c)
		assert.Contains(t, out, `mpathd_io_total{device="vol0",op="write",result="ok"} 2`)
		assert.Contains(t, out, `mpathd_io_total{device="vol0",op="read",result="no_path"} 1`)
		assert.Contains(t, out, `mpathd_io_total{device="vol0",op="read",result="error"} 1`)
		assert.Contains(t, out, `mpathd_io_duration_seconds_count{device="vol0",op="write"} 2`)
	})

	t.Run("events and requeues", func(t *testing.T) {
		c := NewCollector()
		c.ObserveEvent(mpath.Event{Type: mpath.EventPathFailed, Device: "vol0", Path: "sda"})
		c.ObserveEvent(mpath.Event{Type: mpath.EventPathFailed, Device: "vol0", Path: "sdb"})
		c.ObserveRequeue("vol0")

		out := scrape(t, c)
		assert.Contains(t, out, `mpathd_events_total{device="vol0",type="path_failed"} 2`)
		assert.Contains(t, out, `mpathd_requeues_total{device="vol0"} 1`)
	})

	t.Run("device state", func(t *testing.T) {
		c := NewCollector()
		c.ObserveState(mpath.Snapshot{
			Name:          "vol0",
			ValidPaths:    1,
			QueueSize:     3,
			QueueIfNoPath: true,
			CurrentGroup:  2,
			Groups: []mpath.GroupState{
				{Num: 1, Paths: []mpath.PathState{{Name: "sda", Active: false, FailCount: 4}}},
				{Num: 2, Paths: []mpath.PathState{{Name: "sdb", Active: true}}},
			},
		})

		out := scrape(t, c)
		assert.Contains(t, out, `mpathd_valid_paths{device="vol0"} 1`)
		assert.Contains(t, out, `mpathd_queued_ios{device="vol0"} 3`)
		assert.Contains(t, out, `mpathd_current_group{device="vol0"} 2`)
		assert.Contains(t, out, `mpathd_queue_if_no_path{device="vol0"} 1`)
		assert.Contains(t, out, `mpathd_path_active{device="vol0",group="1",path="sda"} 0`)
		assert.Contains(t, out, `mpathd_path_fail_count{device="vol0",group="1",path="sda"} 4`)
		assert.Contains(t, out, `mpathd_path_active{device="vol0",group="2",path="sdb"} 1`)

		c.Forget("vol0")
		out = scrape(t, c)
		assert.NotContains(t, out, `device="vol0"`)
	})

	t.Run("api requests", func(t *testing.T) {
		c := NewCollector()
		c.IncrementAPIRequest(http.MethodGet, "/health", http.StatusOK)

		assert.Contains(t, scrape(t, c), `mpathd_api_requests_total{method="GET",route="/health",status="200"} 1`)
	})

	t.Run("independent registries", func(t *testing.T) {
		a, b := NewCollector(), NewCollector()
		a.ObserveRequeue("vol0")
		assert.NotSame(t, a.Registry(), b.Registry())
		assert.NotContains(t, scrape(t, b), "mpathd_requeues_total{")
	})
}
