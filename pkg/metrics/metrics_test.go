package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveDelivery(t *testing.T) {
	before := testutil.ToFloat64(deliveries.WithLabelValues("html", "failure"))
	ObserveDelivery("html", false, 10*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(deliveries.WithLabelValues("html", "failure")))
}

func TestSchedulerGauges(t *testing.T) {
	SetSchedulerPending(4)
	assert.Equal(t, float64(4), testutil.ToFloat64(schedulerPending))

	SetSchedulerRunning(-1)
	assert.Equal(t, float64(0), testutil.ToFloat64(schedulerRunning))
}

func TestHandler(t *testing.T) {
	Register()
	Register()

	ObserveHTTPRequest(http.MethodGet, "/api/health", http.StatusOK, time.Millisecond)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `mailroom_http_requests_total{code="200",method="GET",route="/api/health"}`)
}
