package models

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestChatModelsReturnsUpstreamIDs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"id":"gpt-4o-mini"},{"id":"gpt-4o"}]}`))
	}))
	defer srv.Close()

	got := ChatModels(context.Background(), srv.Client(), srv.URL, "key", []string{"fallback"})
	if len(got) != 2 || got[0] != "gpt-4o-mini" || got[1] != "gpt-4o" {
		t.Errorf("unexpected models: %v", got)
	}
}

func TestChatModelsFallsBackOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	got := ChatModels(context.Background(), srv.Client(), srv.URL, "key", []string{"fallback-model"})
	if len(got) != 1 || got[0] != "fallback-model" {
		t.Errorf("expected fallback list, got %v", got)
	}
}

func TestChatModelsFallsBackOnEmptyData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	got := ChatModels(context.Background(), srv.Client(), srv.URL, "key", []string{"fallback-model"})
	if len(got) != 1 || got[0] != "fallback-model" {
		t.Errorf("expected fallback list, got %v", got)
	}
}

func TestStaticAudioModels(t *testing.T) {
	got := StaticAudioModels("tts-1", []string{"alloy", "nova"})
	if len(got) != 1 || got[0].Model != "tts-1" || len(got[0].Voices) != 2 {
		t.Errorf("unexpected audio models: %+v", got)
	}
}
