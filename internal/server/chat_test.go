package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func sseLLMServer(events []string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, e := range events {
			w.Write([]byte(e))
			flusher.Flush()
		}
	}))
}

func TestHandleChatStreamingRelaysChunksAndPrefetchesTTS(t *testing.T) {
	llmSrv := sseLLMServer([]string{
		"data: {\"choices\":[{\"delta\":{\"content\":\"Hi there. \"}}]}\n\n",
		"data: {\"choices\":[{\"delta\":{\"content\":\"Bye now.\"}}]}\n\n",
		"data: [DONE]\n\n",
	})
	defer llmSrv.Close()
	ttsSrv := fakeTTSServer()
	defer ttsSrv.Close()

	d, cleanup := newTestDeps(llmSrv, ttsSrv)
	defer cleanup()

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{"stream":true,"messages":[{"role":"user","content":"hello"}]}`))
	w := httptest.NewRecorder()

	d.handleChat(w, req)

	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("expected SSE content type, got %q", ct)
	}
	if !strings.Contains(w.Body.String(), "Hi there") {
		t.Errorf("expected relayed chunk in body, got %q", w.Body.String())
	}

	// prefetch happens on a background goroutine inside cache.Submit; give it
	// a moment to land before checking cache stats.
	time.Sleep(50 * time.Millisecond)
	if stats := d.Cache.Stats(); stats.Size == 0 {
		t.Errorf("expected at least one prefetched cache entry, got %+v", stats)
	}
}

func TestHandleChatNonStreamReturnsAssembledJSON(t *testing.T) {
	llmSrv := sseLLMServer([]string{
		"data: {\"choices\":[{\"delta\":{\"content\":\"Full answer.\"}}]}\n\n",
		"data: [DONE]\n\n",
	})
	defer llmSrv.Close()
	ttsSrv := fakeTTSServer()
	defer ttsSrv.Close()

	d, cleanup := newTestDeps(llmSrv, ttsSrv)
	defer cleanup()

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{"stream":false,"tts_enabled":false,"messages":[{"role":"user","content":"hello"}]}`))
	w := httptest.NewRecorder()

	d.handleChat(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "Full answer.") {
		t.Errorf("expected assembled content in response, got %q", w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"object":"chat.completion"`) {
		t.Errorf("expected chat.completion object shape, got %q", w.Body.String())
	}
}
