package server

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/riverbend/ttsproxy/internal/apierr"
	"github.com/riverbend/ttsproxy/internal/metrics"
)

const maxSpeechBodyBytes = 1 << 20 // 1MiB

type speechRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
	Voice string `json:"voice"`
	// ResponseFormat and Speed are accepted for OpenAI compatibility but do
	// not affect the fingerprint or the synthesized audio in this deployment.
	ResponseFormat string  `json:"response_format"`
	Speed          float64 `json:"speed"`
}

func (d Deps) handleSpeech(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxSpeechBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var req speechRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed json body")
		return
	}
	if req.Input == "" {
		writeError(w, http.StatusBadRequest, "input is required")
		return
	}
	if req.Model == "" {
		req.Model = d.Cfg.DefaultTTSModel
	}
	if req.Voice == "" {
		req.Voice = d.Cfg.DefaultTTSVoice
	}

	deadline := time.Now().Add(d.Cfg.RequestTimeout)
	audio, err := d.Cache.Get(r.Context(), req.Model, req.Voice, req.Input, deadline)
	metrics.StageDuration.WithLabelValues("cache_wait").Observe(time.Since(start).Seconds())
	if err != nil {
		if apiErr, ok := apierr.As(err); ok {
			metrics.Errors.WithLabelValues("speech", string(apiErr.Kind)).Inc()
		}
		writeAPIErr(w, err)
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Write(audio)
}
