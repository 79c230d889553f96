// Package server wires the proxy's HTTP surface: chat and speech endpoints,
// the ops surface, and the bearer-auth check in front of the two
// client-facing endpoints.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/riverbend/ttsproxy/internal/apierr"
	"github.com/riverbend/ttsproxy/internal/backend"
	"github.com/riverbend/ttsproxy/internal/cache"
	"github.com/riverbend/ttsproxy/internal/config"
	"github.com/riverbend/ttsproxy/internal/dispatcher"
	"github.com/riverbend/ttsproxy/internal/llmproxy"
	"github.com/riverbend/ttsproxy/internal/models"
	"github.com/riverbend/ttsproxy/internal/trace"
)

// Deps holds every shared component an HTTP handler needs.
type Deps struct {
	Cfg        config.Config
	Pool       *backend.Pool
	Dispatcher *dispatcher.Dispatcher
	Cache      *cache.Cache
	LLM        *llmproxy.Proxy
	TraceStore *trace.Store // nil when tracing is disabled
}

// RegisterRoutes wires every endpoint to mux.
func RegisterRoutes(mux *http.ServeMux, d Deps) {
	mux.HandleFunc("POST /v1/chat/completions", requireBearer(d.Cfg.AuthToken, d.handleChat))
	mux.HandleFunc("POST /v1/audio/speech", requireBearer(d.Cfg.AuthToken, d.handleSpeech))

	mux.HandleFunc("GET /health", d.handleHealth)
	mux.HandleFunc("GET /cache/stats", d.handleCacheStats)
	mux.HandleFunc("POST /cache/clear", d.handleCacheClear)
	mux.HandleFunc("GET /v1/models", d.handleChatModels)
	mux.HandleFunc("GET /v1/audio/models", d.handleAudioModels)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /", d.handleIndex)

	registerTraceRoutes(mux, d.TraceStore)
}

func (d Deps) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "ttsproxy",
		"default_llm_model": d.Cfg.DefaultLLMModel,
		"default_tts_model": d.Cfg.DefaultTTSModel,
	})
}

func (d Deps) handleChatModels(w http.ResponseWriter, r *http.Request) {
	ids := models.ChatModels(r.Context(), d.LLM.HTTPClient(), d.Cfg.NewAPIBaseURL, d.Cfg.NewAPIAPIKey, []string{d.Cfg.DefaultLLMModel})
	writeJSON(w, http.StatusOK, map[string]any{"object": "list", "data": toModelObjects(ids)})
}

func (d Deps) handleAudioModels(w http.ResponseWriter, r *http.Request) {
	audioModels := models.StaticAudioModels(d.Cfg.DefaultTTSModel, defaultVoiceList(d.Cfg.DefaultTTSVoice))
	writeJSON(w, http.StatusOK, map[string]any{"data": audioModels})
}

func defaultVoiceList(defaultVoice string) []string {
	return []string{defaultVoice}
}

func toModelObjects(ids []string) []map[string]any {
	out := make([]map[string]any, len(ids))
	for i, id := range ids {
		out[i] = map[string]any{"id": id, "object": "model"}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeAPIErr maps an apierr.Error (or any error) to the client response.
// Cancelled errors write nothing — the client is already gone.
func writeAPIErr(w http.ResponseWriter, err error) {
	apiErr, ok := apierr.As(err)
	if !ok {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if apiErr.Kind == apierr.Cancelled {
		return
	}
	writeError(w, apierr.StatusCode(apiErr.Kind), apiErr.Error())
}
