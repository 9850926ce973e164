package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/robotrainer/internal/metrics"
)

func TestCounters_Increment(t *testing.T) {
	before := testutil.ToFloat64(metrics.SimulationsClaimedCount)
	metrics.SimulationsClaimedCount.Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.SimulationsClaimedCount))

	failed := metrics.SimulationsFailedCount.WithLabelValues(metrics.ReasonStage)
	before = testutil.ToFloat64(failed)
	failed.Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(failed))
}

func TestHandler_ExposesCollectors(t *testing.T) {
	metrics.ClaimConflictCount.Inc()
	metrics.StageDuration.WithLabelValues("Validating results").Observe(1.5)

	srv := httptest.NewServer(metrics.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "robotrainer_runner_claim_conflict_total")
	assert.Contains(t, string(body), "robotrainer_runner_stage_duration_seconds_bucket")
}
