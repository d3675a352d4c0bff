package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/gatekeeper/internal/auth"
)

func TestAuthAttempt(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.AuthAttempt(auth.StrategyLocal, "")
	m.AuthAttempt(auth.StrategyLocal, auth.ReasonIncorrectPassword)
	m.AuthAttempt(auth.StrategyLocal, auth.ReasonIncorrectPassword)
	m.AuthAttempt("github", auth.ReasonExternalExchangeFailed)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthAttemptsTotal.WithLabelValues("local", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.AuthAttemptsTotal.WithLabelValues("local", "incorrect_password")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthAttemptsTotal.WithLabelValues("github", "external_exchange_failed")))
}

func TestSessionCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.SessionCreated()
	m.SessionCreated()
	m.SessionDestroyed(auth.DestroyReasonLogout)
	m.SessionDestroyed(auth.DestroyReasonOrphaned)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SessionsCreatedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsDestroyedTotal.WithLabelValues("logout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsDestroyedTotal.WithLabelValues("orphaned")))
}

func TestHandler(t *testing.T) {
	m := New(nil)
	m.AuthAttempt(auth.StrategyLocal, "")

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `gatekeeper_auth_attempts_total{outcome="success",strategy="local"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
