package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMetricsExposure(t *testing.T) {
	IncCommandRun("preprocess")
	IncCommandError("preprocess")
	IncEncode("infer")
	IncBucketFallback("growth_bucket")
	IncUnseenCategory("platform")
	IncPredictorRetry("/predict")
	ObservePredictDuration(time.Now().Add(-1500 * time.Millisecond))
	PreprocessRows.Set(12)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status: %d", rec.Code)
	}
	body := rec.Body.String()
	for _, m := range []string{
		"engagelens_command_runs_total",
		"engagelens_command_errors_total",
		"engagelens_encode_total",
		"engagelens_bucket_fallback_total",
		"engagelens_unseen_category_total",
		"engagelens_predict_duration_seconds",
		"engagelens_predictor_retries_total",
		"engagelens_preprocess_rows",
	} {
		if !strings.Contains(body, m) {
			t.Fatalf("expected metric %s in body", m)
		}
	}
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health status: %d", rec.Code)
	}
}
