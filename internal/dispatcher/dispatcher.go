// Package dispatcher turns a (model, voice, text) request into synthesized
// audio bytes, load-balancing across the backend pool with retries and
// per-backend failure tracking.
package dispatcher

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/sjson"

	"github.com/riverbend/ttsproxy/internal/apierr"
	"github.com/riverbend/ttsproxy/internal/backend"
	"github.com/riverbend/ttsproxy/internal/metrics"
)

const (
	retryBaseDelay = 250 * time.Millisecond
	retryMaxDelay  = 2 * time.Second
	minAttemptTime = time.Second
)

// Dispatcher synthesizes audio via the backend pool. It is stateless across
// calls; all mutable state lives in the backend pool, whose entries also
// carry the bearer tokens (see nextToken).
type Dispatcher struct {
	pool         *backend.Pool
	client       *http.Client
	retryCount   int
	templateJSON string
}

// New builds a Dispatcher. templateJSON, if non-empty, is a JSON object
// whose fields are merged into every synthesis request body ahead of the
// per-request model/voice/input/response_format fields (opaque backend
// configuration the dispatcher does not need to understand).
func New(pool *backend.Pool, client *http.Client, retryCount int, templateJSON string) *Dispatcher {
	return &Dispatcher{pool: pool, client: client, retryCount: retryCount, templateJSON: templateJSON}
}

// Synthesize produces audio/wav bytes for (model, voice, text), retrying
// across backends per the configured policy. The deadline bounds the whole
// operation, including time spent waiting for a free backend slot.
func (d *Dispatcher) Synthesize(ctx context.Context, model, voice, text string, deadline time.Time) ([]byte, error) {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues("dispatch").Observe(time.Since(start).Seconds())
	}()

	attempts := d.retryCount + 1
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := d.sleepBackoff(ctx, attempt); err != nil {
				return nil, err
			}
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, apierr.New(apierr.Timeout, "deadline exceeded before synthesis attempt")
		}

		acquireCtx, cancel := context.WithDeadline(ctx, deadline)
		b, release, err := d.pool.Acquire(acquireCtx)
		cancel()
		if err != nil {
			return nil, apierr.Wrap(apierr.Timeout, "no backend became available before deadline", err)
		}

		audio, retryable, err := d.attempt(ctx, b, model, voice, text, deadline)
		release()
		if err == nil {
			d.pool.ReportSuccess(b)
			metrics.DispatcherAttemptsTotal.WithLabelValues("success").Inc()
			return audio, nil
		}

		if !retryable {
			d.pool.ReportSuccess(b) // the backend itself is healthy; the request was bad
			metrics.DispatcherAttemptsTotal.WithLabelValues("failure").Inc()
			return nil, err
		}
		d.pool.ReportFailure(b)
		metrics.DispatcherAttemptsTotal.WithLabelValues("retry").Inc()
		lastErr = err
	}

	metrics.DispatcherAttemptsTotal.WithLabelValues("failure").Inc()
	return nil, apierr.Wrap(apierr.Upstream, "tts synthesis failed after retries", lastErr)
}

// attempt performs one HTTP call against b. The bool return reports whether
// the caller should retry on a different backend.
func (d *Dispatcher) attempt(ctx context.Context, b *backend.Backend, model, voice, text string, deadline time.Time) ([]byte, bool, error) {
	body, err := d.buildBody(model, voice, text)
	if err != nil {
		return nil, false, apierr.Wrap(apierr.Internal, "failed to build tts request body", err)
	}

	timeout := time.Until(deadline)
	if timeout < minAttemptTime {
		timeout = minAttemptTime
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, strings.TrimRight(b.URL, "/")+"/v1/audio/speech", strings.NewReader(body))
	if err != nil {
		return nil, false, apierr.Wrap(apierr.Internal, "failed to build tts request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+d.nextToken(b))

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, true, apierr.Wrap(apierr.Upstream, "tts request failed", err)
	}
	defer resp.Body.Close()

	data, readErr := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if readErr != nil || len(data) == 0 || !strings.HasPrefix(resp.Header.Get("Content-Type"), "audio/") {
			return nil, true, apierr.New(apierr.Upstream, "tts backend returned a 2xx with no audio body")
		}
		return data, false, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, true, apierr.New(apierr.Upstream, "tts backend rate-limited the request")
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, false, apierr.New(apierr.BadRequest, fmt.Sprintf("tts backend rejected the request: %d", resp.StatusCode))
	default:
		return nil, true, apierr.New(apierr.Upstream, fmt.Sprintf("tts backend error: %d", resp.StatusCode))
	}
}

// buildBody merges the opaque template, if any, with the per-request
// fields. sjson lets the template carry nested parameter blocks the
// dispatcher never has to model as Go structs.
func (d *Dispatcher) buildBody(model, voice, text string) (string, error) {
	body := d.templateJSON
	if strings.TrimSpace(body) == "" {
		body = "{}"
	}
	var err error
	body, err = sjson.Set(body, "model", model)
	if err != nil {
		return "", err
	}
	body, err = sjson.Set(body, "voice", voice)
	if err != nil {
		return "", err
	}
	body, err = sjson.Set(body, "input", text)
	if err != nil {
		return "", err
	}
	body, err = sjson.Set(body, "response_format", "wav")
	if err != nil {
		return "", err
	}
	return body, nil
}

// nextToken returns b's bearer token. Deployments with one URL and many
// rotating tokens, and deployments with one token per URL, are the same
// pool abstraction here (see internal/config): each entry already pairs a
// URL with the token to use, and the backend-pool's least-loaded selection
// rotates through them the same way a dedicated token rotator would.
func (d *Dispatcher) nextToken(b *backend.Backend) string {
	return b.Token
}

func (d *Dispatcher) sleepBackoff(ctx context.Context, attempt int) error {
	delay := retryBaseDelay * time.Duration(1<<uint(attempt-1))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	jitter := time.Duration(float64(delay) * 0.2 * (rand.Float64()*2 - 1))
	delay += jitter
	if delay < 0 {
		delay = 0
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return apierr.Wrap(apierr.Cancelled, "retry backoff interrupted", ctx.Err())
	}
}
