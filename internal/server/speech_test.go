package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandleSpeechSynthesizesAndReturnsAudio(t *testing.T) {
	llmSrv := sseLLMServer([]string{"data: [DONE]\n\n"})
	defer llmSrv.Close()
	ttsSrv := fakeTTSServer()
	defer ttsSrv.Close()

	d, cleanup := newTestDeps(llmSrv, ttsSrv)
	defer cleanup()

	req := httptest.NewRequest(http.MethodPost, "/v1/audio/speech", strings.NewReader(`{"input":"hello world"}`))
	w := httptest.NewRecorder()

	d.handleSpeech(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "audio/wav" {
		t.Errorf("expected audio/wav content type, got %q", ct)
	}
	if w.Body.String() != "RIFF-fake-audio" {
		t.Errorf("expected fake audio bytes, got %q", w.Body.String())
	}
}

func TestHandleSpeechRejectsEmptyInput(t *testing.T) {
	llmSrv := sseLLMServer([]string{"data: [DONE]\n\n"})
	defer llmSrv.Close()
	ttsSrv := fakeTTSServer()
	defer ttsSrv.Close()

	d, cleanup := newTestDeps(llmSrv, ttsSrv)
	defer cleanup()

	req := httptest.NewRequest(http.MethodPost, "/v1/audio/speech", strings.NewReader(`{"input":""}`))
	w := httptest.NewRecorder()

	d.handleSpeech(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty input, got %d", w.Code)
	}
}

func TestHandleSpeechRejectsMalformedJSON(t *testing.T) {
	llmSrv := sseLLMServer([]string{"data: [DONE]\n\n"})
	defer llmSrv.Close()
	ttsSrv := fakeTTSServer()
	defer ttsSrv.Close()

	d, cleanup := newTestDeps(llmSrv, ttsSrv)
	defer cleanup()

	req := httptest.NewRequest(http.MethodPost, "/v1/audio/speech", strings.NewReader(`not json`))
	w := httptest.NewRecorder()

	d.handleSpeech(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed body, got %d", w.Code)
	}
}
