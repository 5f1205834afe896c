package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestRegisterIsIdempotent(t *testing.T) {
	regOK.Store(false)
	t.Cleanup(func() { regOK.Store(false) })

	require.NoError(t, Register(prometheus.NewRegistry()))
	// Second call against a different registerer must still be a no-op,
	// not attempt to register collectors already owned by the first.
	require.NoError(t, Register(prometheus.NewRegistry()))
}

func TestHelpersNoOpBeforeRegister(t *testing.T) {
	regOK.Store(false)
	t.Cleanup(func() { regOK.Store(false) })

	require.NotPanics(t, func() {
		IncPublished("demo")
		IncSuppressed("demo")
		IncFetched("demo")
		IncCompleted()
		IncCancelled()
		IncExpired(3)
		ObserveFetchDuration("demo", 0.1)
		IncHandlerPanic("demo")
	})
}

func TestHandlerServesMetrics(t *testing.T) {
	regOK.Store(false)
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	t.Cleanup(func() { regOK.Store(false) })

	IncPublished("demo")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	Handler().ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)
}
