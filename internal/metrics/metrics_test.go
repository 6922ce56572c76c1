package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHelpersAreNoopsWithoutGlobal(t *testing.T) {
	SetGlobal(nil)
	assert.NotPanics(t, func() {
		IncJob("sent")
		IncEvent("bounced", "applied")
		IncWebhookPayload("ses", "ok")
		IncAccountTransition("suspended")
		IncWarmupAdvance()
		SetReputationScore("acc-1", 90)
		ObserveCycle("dispatch", time.Second)
		AddSwept("reclaimed", 2)
	})
}

func TestHelpersRecordOnGlobal(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	IncJob("sent")
	IncJob("sent")
	IncJob("failed")
	IncEvent("bounced", "applied")
	SetReputationScore("acc-1", 61.5)
	AddSwept("expired", 3)
	AddSwept("expired", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.JobsTotal.WithLabelValues("sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsTotal.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsTotal.WithLabelValues("bounced", "applied")))
	assert.Equal(t, 61.5, testutil.ToFloat64(m.ReputationScore.WithLabelValues("acc-1")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SweptJobsTotal.WithLabelValues("expired")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.WarmupAdvancesTotal.Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "outreach_warmup_advances_total 1"))
}
