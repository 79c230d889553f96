package server

import (
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/riverbend/ttsproxy/internal/backend"
	"github.com/riverbend/ttsproxy/internal/cache"
	"github.com/riverbend/ttsproxy/internal/config"
	"github.com/riverbend/ttsproxy/internal/dispatcher"
	"github.com/riverbend/ttsproxy/internal/llmproxy"
)

// newTestDeps wires a full Deps against the given fake upstream LLM and TTS
// servers, and returns a cleanup func to stop the cache's background sweep.
func newTestDeps(llmServer *httptest.Server, ttsServer *httptest.Server) (Deps, func()) {
	pool := backend.NewPool([]*backend.Backend{{URL: ttsServer.URL, MaxConcurrent: 3}})
	disp := dispatcher.New(pool, ttsServer.Client(), 1, "")
	c := cache.New(disp, 100, time.Hour)
	llm := llmproxy.New(llmServer.URL, "test-key", llmServer.Client())

	cfg := config.Config{
		DefaultLLMModel: "gpt-4o-mini",
		DefaultTTSModel: "tts-1",
		DefaultTTSVoice: "alloy",
		RequestTimeout:  5 * time.Second,
		SegmenterMinLen: 5,
		SegmenterMaxLen: 40,
	}

	d := Deps{Cfg: cfg, Pool: pool, Dispatcher: disp, Cache: c, LLM: llm}
	return d, func() { c.Close() }
}

func fakeTTSServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/wav")
		w.Write([]byte("RIFF-fake-audio"))
	}))
}
