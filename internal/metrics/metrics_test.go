package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func TestInitIdempotent(t *testing.T) {
	Init()
	Init()
	require.NotNil(t, feedPagesTotal)
	require.NotNil(t, httpRequestsTotal)
}

func TestObserversAfterInit(t *testing.T) {
	Init()
	ObservePage("contracts-finder", "ok")
	ObserveRecords("contracts-finder", 20)
	ObserveCycle("success")
	ObserveSnapshot(42, time.Now())
}

func TestMiddlewareRecordsStatus(t *testing.T) {
	Init()

	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/v1/tenders/latest", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/boom", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	for _, path := range []string{"/v1/tenders/latest", "/boom"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	Init()
	ObserveCycle("success")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "tenderfeed_refresh_cycles_total")
}
