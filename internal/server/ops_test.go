package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandleHealthReportsBackendsAndCache(t *testing.T) {
	llmSrv := sseLLMServer([]string{"data: [DONE]\n\n"})
	defer llmSrv.Close()
	ttsSrv := fakeTTSServer()
	defer ttsSrv.Close()

	d, cleanup := newTestDeps(llmSrv, ttsSrv)
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	d.handleHealth(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"healthy"`) {
		t.Errorf("expected healthy status, got %q", w.Body.String())
	}
}

func TestHandleCacheStatsAndClear(t *testing.T) {
	llmSrv := sseLLMServer([]string{"data: [DONE]\n\n"})
	defer llmSrv.Close()
	ttsSrv := fakeTTSServer()
	defer ttsSrv.Close()

	d, cleanup := newTestDeps(llmSrv, ttsSrv)
	defer cleanup()

	d.Cache.Submit("tts-1", "alloy", "a warm-up sentence", d.Cfg.RequestTimeout)

	statsReq := httptest.NewRequest(http.MethodGet, "/cache/stats", nil)
	statsW := httptest.NewRecorder()
	d.handleCacheStats(statsW, statsReq)
	if statsW.Code != http.StatusOK {
		t.Fatalf("expected 200 from cache stats, got %d", statsW.Code)
	}

	clearReq := httptest.NewRequest(http.MethodPost, "/cache/clear", nil)
	clearW := httptest.NewRecorder()
	d.handleCacheClear(clearW, clearReq)
	if clearW.Code != http.StatusOK {
		t.Fatalf("expected 200 from cache clear, got %d", clearW.Code)
	}
	if d.Cache.Stats().Size != 0 {
		t.Errorf("expected cache empty after clear, got size %d", d.Cache.Stats().Size)
	}
}

func TestTraceRoutesReport404WhenDisabled(t *testing.T) {
	mux := http.NewServeMux()
	registerTraceRoutes(mux, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/traces/sessions", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 when tracing disabled, got %d", w.Code)
	}
}

func TestQueryIntFallsBackOnInvalidValue(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=notanumber", nil)
	if got := queryInt(req, "limit", 7); got != 7 {
		t.Errorf("expected fallback 7 for invalid query value, got %d", got)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/?limit=42", nil)
	if got := queryInt(req2, "limit", 7); got != 42 {
		t.Errorf("expected parsed value 42, got %d", got)
	}
}
