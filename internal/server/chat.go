package server

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/riverbend/ttsproxy/internal/apierr"
	"github.com/riverbend/ttsproxy/internal/llmproxy"
	"github.com/riverbend/ttsproxy/internal/metrics"
	"github.com/riverbend/ttsproxy/internal/segment"
	"github.com/riverbend/ttsproxy/internal/trace"
)

const maxChatBodyBytes = 10 << 20 // 10MiB

func (d Deps) handleChat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxChatBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	requestModel := gjson.GetBytes(body, "model").String()
	if requestModel == "" {
		requestModel = d.Cfg.DefaultLLMModel
	}
	clientWantsStream := gjson.GetBytes(body, "stream").Bool()

	cleaned, ttsEnabled, ttsModel, ttsVoice := llmproxy.StripProxyFields(body, d.Cfg.DefaultTTSModel, d.Cfg.DefaultTTSVoice)

	sessionID := uuid.NewString()
	var tracer *trace.Tracer
	if d.TraceStore != nil {
		if err := d.TraceStore.CreateSession(sessionID, requestModel, ttsModel); err != nil {
			slog.Warn("trace session create failed", "error", err)
		}
		tracer = trace.NewTracer(d.TraceStore, sessionID)
		defer func() {
			tracer.Close()
			if err := d.TraceStore.EndSession(sessionID); err != nil {
				slog.Warn("trace session end failed", "error", err)
			}
		}()
	}
	runID := tracer.StartRun()

	metrics.ChatStreamsActive.Inc()
	defer metrics.ChatStreamsActive.Dec()
	metrics.ChatStreamsTotal.Inc()

	seg := segment.New(d.Cfg.SegmenterMinLen, d.Cfg.SegmenterMaxLen)
	var assembled strings.Builder

	flusher, canFlush := w.(http.Flusher)
	if clientWantsStream {
		w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
	}

	onChunk := func(raw []byte) error {
		if !clientWantsStream {
			return nil
		}
		n, err := w.Write(raw)
		if canFlush {
			flusher.Flush()
		}
		metrics.SSEBytesRelayedTotal.Add(float64(n))
		return err
	}

	onText := func(delta string) {
		assembled.WriteString(delta)
		if !ttsEnabled {
			return
		}
		segStart := time.Now()
		sentences := seg.Feed(delta)
		metrics.StageDuration.WithLabelValues("segment").Observe(time.Since(segStart).Seconds())
		traceSpan(tracer, runID, "segment", segStart, delta, fmt.Sprintf("sentences=%d", len(sentences)), nil)
		for _, sentence := range sentences {
			metrics.SegmenterSentencesTotal.Inc()
			d.Cache.Submit(ttsModel, ttsVoice, sentence, d.Cfg.RequestTimeout)
		}
	}

	streamErr := d.LLM.Stream(r.Context(), cleaned, onChunk, onText)

	if ttsEnabled {
		if rest := seg.Flush(); rest != "" {
			d.Cache.Submit(ttsModel, ttsVoice, rest, d.Cfg.RequestTimeout)
		}
	}

	status := "ok"
	if streamErr != nil {
		status = "error"
	}
	tracer.EndRun(runID, float64(time.Since(start).Milliseconds()), lastUserMessage(body), assembled.String(), status)
	metrics.StageDuration.WithLabelValues("llm_relay").Observe(time.Since(start).Seconds())
	traceSpan(tracer, runID, "llm_relay", start, lastUserMessage(body), assembled.String(), streamErr)

	if streamErr != nil {
		if apiErr, ok := apierr.As(streamErr); ok {
			metrics.Errors.WithLabelValues("llm_relay", string(apiErr.Kind)).Inc()
			if apiErr.Kind == apierr.Cancelled {
				return
			}
		}
		slog.Error("chat stream failed", "error", streamErr)
		if !clientWantsStream {
			writeAPIErr(w, streamErr)
		}
		return
	}

	if !clientWantsStream {
		respBody, err := buildNonStreamResponse(requestModel, assembled.String())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to assemble response")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(respBody)
	}
}

// traceSpan records a completed span if tracing is enabled.
func traceSpan(tracer *trace.Tracer, runID, name string, start time.Time, input, output string, err error) {
	status, errMsg := "ok", ""
	if err != nil {
		status, errMsg = "error", err.Error()
	}
	tracer.RecordSpan(runID, name, start, float64(time.Since(start).Milliseconds()), input, output, status, errMsg)
}

func lastUserMessage(body []byte) string {
	messages := gjson.GetBytes(body, "messages")
	if !messages.IsArray() {
		return ""
	}
	arr := messages.Array()
	if len(arr) == 0 {
		return ""
	}
	return arr[len(arr)-1].Get("content").String()
}

// buildNonStreamResponse assembles a response shaped like the upstream's
// non-streaming chat completion, built field-by-field via sjson rather than
// a typed struct: the proxy never needs to read these fields back, only to
// hand clients something that matches the shape they already expect.
func buildNonStreamResponse(model, content string) ([]byte, error) {
	out := []byte(`{}`)
	var err error
	for _, set := range []struct {
		path string
		val  any
	}{
		{"object", "chat.completion"},
		{"model", model},
		{"choices.0.index", 0},
		{"choices.0.message.role", "assistant"},
		{"choices.0.message.content", content},
		{"choices.0.finish_reason", "stop"},
	} {
		out, err = sjson.SetBytes(out, set.path, set.val)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
