package predictor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"engagelens/internal/features"
	"engagelens/internal/logging"
	"engagelens/internal/metrics"
)

// HTTPConfig configures an HTTPClient. Zero values take defaults.
type HTTPConfig struct {
	Endpoint        string
	Token           string
	Timeout         time.Duration
	MaxAttempts     int
	BaseBackoff     time.Duration
	RPS             float64
	Burst           int
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// HTTPClient scores vectors against a model served over HTTP. The request
// body is {"instances": [[...23 floats], ...]} and the reply is
// {"predictions": [...]}.
type HTTPClient struct {
	endpoint    string
	token       string
	httpClient  *http.Client
	limiter     *rate.Limiter
	breaker     *gobreaker.CircuitBreaker[[]float64]
	maxAttempts int
	baseBackoff time.Duration
}

type predictRequest struct {
	Instances [][]float64 `json:"instances"`
}

type predictResponse struct {
	Predictions []float64 `json:"predictions"`
}

// StatusError is a non-retryable HTTP failure from the model server.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("model server status %d: %s", e.Code, e.Body)
}

func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 4
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 200 * time.Millisecond
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	failures := cfg.BreakerFailures
	breaker := gobreaker.NewCircuitBreaker[[]float64](gobreaker.Settings{
		Name:        "predictor",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			// Client-side mistakes say nothing about the server's health.
			var se *StatusError
			if errors.As(err, &se) && se.Code < 500 {
				return true
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn("predictor breaker state change", map[string]any{"from": from.String(), "to": to.String()})
		},
	})
	return &HTTPClient{
		endpoint:    cfg.Endpoint,
		token:       cfg.Token,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		limiter:     newLimiter(cfg.RPS, cfg.Burst),
		breaker:     breaker,
		maxAttempts: cfg.MaxAttempts,
		baseBackoff: cfg.BaseBackoff,
	}
}

// BreakerState reports the circuit breaker state for health output.
func (c *HTTPClient) BreakerState() string { return c.breaker.State().String() }

func (c *HTTPClient) Predict(ctx context.Context, rows []features.FeatureVector) ([]float64, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	defer metrics.ObservePredictDuration(time.Now())

	body := predictRequest{Instances: make([][]float64, len(rows))}
	for i, r := range rows {
		body.Instances[i] = r.X
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return c.breaker.Execute(func() ([]float64, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		resp, err := c.doWithRetry(ctx, payload)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
		}
		var out predictResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, fmt.Errorf("decode predictions: %w", err)
		}
		if len(out.Predictions) != len(rows) {
			return nil, fmt.Errorf("%w: got %d, want %d", ErrShapeMismatch, len(out.Predictions), len(rows))
		}
		return out.Predictions, nil
	})
}

func (c *HTTPClient) newRequest(ctx context.Context, payload []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if id := logging.RequestID(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}
	return req, nil
}

// doWithRetry retries transport errors, 429 and 5xx with exponential backoff.
// Retry-After wins over the computed backoff when present.
func (c *HTTPClient) doWithRetry(ctx context.Context, payload []byte) (*http.Response, error) {
	backoff := c.baseBackoff
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		req, err := c.newRequest(ctx, payload)
		if err != nil {
			return nil, err
		}
		resp, err := c.httpClient.Do(req)
		if err == nil {
			if resp.StatusCode != http.StatusTooManyRequests && (resp.StatusCode < 500 || resp.StatusCode > 599) {
				return resp, nil
			}
			if attempt == c.maxAttempts {
				return resp, nil
			}
			wait := retryAfter(resp.Header.Get("Retry-After"), backoff)
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			if err := sleep(ctx, jitter(wait)); err != nil {
				return nil, err
			}
		} else {
			lastErr = err
			if attempt == c.maxAttempts {
				break
			}
			if err := sleep(ctx, backoff); err != nil {
				return nil, err
			}
		}
		metrics.IncPredictorRetry(c.endpoint)
		logging.Ctx(ctx).Debug().Int("attempt", attempt).Err(lastErr).Msg("predictor retry")
		backoff *= 2
	}
	return nil, fmt.Errorf("request failed after %d attempts: %w", c.maxAttempts, lastErr)
}

func retryAfter(header string, def time.Duration) time.Duration {
	if header == "" {
		return def
	}
	if secs, err := strconv.Atoi(header); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return def
}

// jitter spreads wait by +/-20%.
func jitter(wait time.Duration) time.Duration {
	j := time.Duration(float64(wait) * 0.2)
	if j <= 0 {
		return wait
	}
	return wait - j + time.Duration(time.Now().UnixNano()%int64(2*j))
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
