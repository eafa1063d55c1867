// Package server exposes the encoder and predictor over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"engagelens/internal/blob"
	"engagelens/internal/features"
	"engagelens/internal/logging"
	"engagelens/internal/model"
	"engagelens/internal/predictor"
	"engagelens/internal/schedule"
	"engagelens/internal/store/sqlitevec"
	"engagelens/internal/suggest"
)

const maxBodyBytes = 1 << 20

type Options struct {
	Artifacts *features.Artifacts
	// Store is where Reload reads artifacts from. Optional.
	Store     blob.Store
	Predictor predictor.Predictor
	Advisor   *suggest.Advisor
	// DB logs served predictions when set.
	DB            *sqlitevec.DB
	RPS           float64
	Burst         int
	EncodeWorkers int
}

type Server struct {
	arts    atomic.Pointer[features.Artifacts]
	store   blob.Store
	pred    predictor.Predictor
	advisor *suggest.Advisor
	db      *sqlitevec.DB
	limiter *rate.Limiter
	workers int
	now     func() time.Time
}

func New(opts Options) *Server {
	s := &Server{
		store:   opts.Store,
		pred:    opts.Predictor,
		advisor: opts.Advisor,
		db:      opts.DB,
		workers: opts.EncodeWorkers,
		now:     time.Now,
	}
	if opts.RPS > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = int(opts.RPS) + 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RPS), burst)
	}
	s.arts.Store(opts.Artifacts)
	return s
}

// Artifacts returns the artifacts currently served.
func (s *Server) Artifacts() *features.Artifacts { return s.arts.Load() }

// Reload swaps in artifacts freshly read from the configured store.
func (s *Server) Reload(ctx context.Context) error {
	if s.store == nil {
		return errors.New("no artifact store configured")
	}
	a, err := features.LoadArtifacts(ctx, s.store)
	if err != nil {
		return err
	}
	s.arts.Store(a)
	logging.Ctx(ctx).Info().Msg("artifacts reloaded")
	return nil
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(chimiddleware.Recoverer)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/v1", func(r chi.Router) {
		r.Use(s.rateLimit)
		r.Get("/classes", s.handleClasses)
		r.Get("/columns", s.handleColumns)
		r.Post("/encode", s.handleEncode)
		r.Post("/predict", s.handlePredict)
		r.Post("/best-day", s.handleBestDay)
		r.Get("/predictions", s.handlePredictions)
		r.Post("/reload", s.handleReload)
		r.Get("/stats", s.handleStats)
	})
	return r
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = logging.NewRequestID()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := logging.WithRequestID(r.Context(), id)
		start := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))
		logging.Ctx(ctx).Debug().Str("method", r.Method).Str("path", r.URL.Path).
			Int64("duration_ms", time.Since(start).Milliseconds()).Msg("request")
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			writeError(w, r, http.StatusTooManyRequests, errors.New("rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

type encodeRequest struct {
	Posts []model.PostFeatures `json:"posts"`
}

type encodeResponse struct {
	Columns []string    `json:"columns"`
	Rows    [][]float64 `json:"rows"`
}

type predictResponse struct {
	ID              string      `json:"id"`
	Rate            float64     `json:"rate"`
	Percent         int         `json:"percent"`
	Level           model.Level `json:"level"`
	Description     string      `json:"description"`
	Recommendations []string    `json:"recommendations"`
}

func (s *Server) handleClasses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Artifacts().Classes())
}

func (s *Server) handleColumns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, features.ColumnNames())
}

func (s *Server) handleEncode(w http.ResponseWriter, r *http.Request) {
	var req encodeRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	for i, p := range req.Posts {
		if err := p.Validate(); err != nil {
			writeError(w, r, http.StatusBadRequest, fmt.Errorf("posts[%d]: %w", i, err))
			return
		}
	}
	vecs, err := s.Artifacts().EncodeBatch(r.Context(), req.Posts, s.workers)
	if err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}
	resp := encodeResponse{Columns: features.ColumnNames(), Rows: make([][]float64, len(vecs))}
	for i, v := range vecs {
		resp.Rows[i] = v.X
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var p model.PostFeatures
	if err := decode(w, r, &p); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if err := p.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	ctx := r.Context()
	vec, err := s.Artifacts().Encode(p)
	if err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}
	raw, err := predictor.PredictOne(ctx, s.pred, vec)
	if err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}
	clipped := predictor.Clip(raw)
	tips, err := s.advisor.Recommend(p, clipped)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	lvl := model.ClassifyRate(clipped)
	resp := predictResponse{
		ID:              uuid.NewString(),
		Rate:            clipped,
		Percent:         model.Percent(clipped),
		Level:           lvl,
		Description:     lvl.Describe(),
		Recommendations: tips,
	}
	if s.db != nil {
		if err := s.db.PutPrediction(ctx, resp.ID, s.now(), vec.X, clipped, p); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("id", resp.ID).Msg("prediction log failed")
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBestDay(w http.ResponseWriter, r *http.Request) {
	var p model.PostFeatures
	if err := decode(w, r, &p); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if err := p.ValidateForDaySearch(); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	plan, err := schedule.BestDay(r.Context(), s.Artifacts(), s.pred, p)
	if err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

type predictionView struct {
	ID   string          `json:"id"`
	TS   time.Time       `json:"ts"`
	Rate float64         `json:"rate"`
	Post json.RawMessage `json:"post,omitempty"`
}

// handlePredictions lists logged predictions in [from, to). The default
// window is the last 24 hours.
func (s *Server) handlePredictions(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeError(w, r, http.StatusNotFound, errors.New("prediction log disabled"))
		return
	}
	now := s.now()
	from, to := now.Add(-24*time.Hour), now.Add(time.Second)
	var err error
	if v := r.URL.Query().Get("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			writeError(w, r, http.StatusBadRequest, fmt.Errorf("from: %w", err))
			return
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			writeError(w, r, http.StatusBadRequest, fmt.Errorf("to: %w", err))
			return
		}
	}
	preds, err := s.db.LoadPredictionsRange(r.Context(), from, to)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	out := make([]predictionView, len(preds))
	for i, p := range preds {
		out[i] = predictionView{ID: p.ID, TS: p.TS, Rate: p.Rate}
		if p.Payload != "" {
			out[i].Post = json.RawMessage(p.Payload)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

type statsResponse struct {
	Columns        int    `json:"columns"`
	Predictions24h int    `json:"predictions_24h"`
	Breaker        string `json:"breaker,omitempty"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{Columns: features.NumColumns}
	if s.db != nil {
		now := s.now()
		n, err := s.db.CountPredictionsWithin(r.Context(), now.Add(-24*time.Hour), now.Add(time.Second))
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, err)
			return
		}
		resp.Predictions24h = n
	}
	if b, ok := s.pred.(interface{ BreakerState() string }); ok {
		resp.Breaker = b.BreakerState()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.Reload(r.Context()); err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidPost):
		return http.StatusBadRequest
	case errors.Is(err, features.ErrUnseenCategory), errors.Is(err, features.ErrNoNumericClasses):
		return http.StatusUnprocessableEntity
	case errors.Is(err, features.ErrArtifactsMissing):
		return http.StatusServiceUnavailable
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return http.StatusServiceUnavailable
	case errors.Is(err, predictor.ErrShapeMismatch):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	var se *predictor.StatusError
	if errors.As(err, &se) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	ev := logging.Ctx(r.Context()).Warn()
	if status >= 500 {
		ev = logging.Ctx(r.Context()).Error()
	}
	ev.Err(err).Int("status", status).Str("path", r.URL.Path).Msg("request failed")
	writeJSON(w, status, errorBody{Error: err.Error(), RequestID: logging.RequestID(r.Context())})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}
