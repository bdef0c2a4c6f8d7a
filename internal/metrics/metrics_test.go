package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMiddleware_RecordsRoutePatternAndStatus(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/items/{id}", "418"))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/42", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)

	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/items/{id}", "418"))
	require.Equal(t, before+1, after)
}

func TestInference_Counts(t *testing.T) {
	before := testutil.ToFloat64(inferenceTotal.WithLabelValues("classifier", "ok"))
	Inference("classifier", "ok", 10*time.Millisecond)
	require.Equal(t, before+1, testutil.ToFloat64(inferenceTotal.WithLabelValues("classifier", "ok")))
}

func TestImagePreprocessTotal_UnknownFormat(t *testing.T) {
	before := testutil.ToFloat64(imagePreprocessTotal.WithLabelValues("error", "unknown"))
	ImagePreprocessTotal("error", "")
	require.Equal(t, before+1, testutil.ToFloat64(imagePreprocessTotal.WithLabelValues("error", "unknown")))
}
