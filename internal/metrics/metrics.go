package metrics

import (
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CommandRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "engagelens_command_runs_total",
		Help: "Total CLI command runs",
	}, []string{"cmd"})
	CommandErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "engagelens_command_errors_total",
		Help: "Total CLI command failures",
	}, []string{"cmd"})
	Encodes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "engagelens_encode_total",
		Help: "Rows encoded into feature vectors",
	}, []string{"path"})
	BucketFallbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "engagelens_bucket_fallback_total",
		Help: "Bucket lookups resolved by nearest known class",
	}, []string{"column"})
	UnseenCategories = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "engagelens_unseen_category_total",
		Help: "Strict lookups rejected for an unseen category",
	}, []string{"column"})
	PredictDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "engagelens_predict_duration_seconds",
		Help:    "Model predict call duration seconds",
		Buckets: prometheus.DefBuckets,
	})
	PredictorRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "engagelens_predictor_retries_total",
		Help: "Total model endpoint retry attempts",
	}, []string{"endpoint"})
	PreprocessRows = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "engagelens_preprocess_rows",
		Help: "Rows in the last fitted training matrix",
	})
)

func init() {
	prometheus.MustRegister(CommandRuns, CommandErrors, Encodes, BucketFallbacks, UnseenCategories,
		PredictDuration, PredictorRetries, PreprocessRows)
}

// Handler serves /metrics and /health on a fresh mux.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	return mux
}

// StartServer starts a metrics HTTP server on addr (e.g., ":9090").
func StartServer(addr string) {
	if addr == "" {
		addr = os.Getenv("METRICS_ADDR")
	}
	if addr == "" {
		return
	}
	go func() { _ = http.ListenAndServe(addr, Handler()) }()
}

// ObservePredictDuration records a predict call duration.
func ObservePredictDuration(start time.Time) {
	PredictDuration.Observe(time.Since(start).Seconds())
}

func IncCommandRun(cmd string)   { CommandRuns.WithLabelValues(cmd).Inc() }
func IncCommandError(cmd string) { CommandErrors.WithLabelValues(cmd).Inc() }

// IncEncode counts one encoded row on the train or infer path.
func IncEncode(path string) { Encodes.WithLabelValues(path).Inc() }

func IncBucketFallback(column string) { BucketFallbacks.WithLabelValues(column).Inc() }
func IncUnseenCategory(column string) { UnseenCategories.WithLabelValues(column).Inc() }

// IncPredictorRetry increments the retry counter for an endpoint.
func IncPredictorRetry(endpoint string) { PredictorRetries.WithLabelValues(endpoint).Inc() }
