package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.ObserveFrame("ANALYZING", 3*time.Millisecond)
	m.ObserveFrame("ANALYZING", 4*time.Millisecond)
	m.ObserveFrame("LIVE", 2*time.Millisecond)
	m.ObserveDecision("SPOOF", "screen_attack")
	m.ObserveDecision("LIVE", "")
	m.ObserveSave()
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.framesTotal.WithLabelValues("ANALYZING")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.decisionsTotal.WithLabelValues("SPOOF", "screen_attack")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.decisionsTotal.WithLabelValues("LIVE", "none")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.savedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeSessions))
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveSave()

	srv := httptest.NewServer(Handler(m.Registry()))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "fingerlive_results_saved_total 1")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveFrame("LIVE", time.Millisecond)
		m.ObserveDecision("LIVE", "")
		m.ObserveSave()
		m.SessionOpened()
		m.SessionClosed()
	})
}
