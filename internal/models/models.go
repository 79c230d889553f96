// Package models resolves the model lists the proxy reports at
// /v1/models and /v1/audio/models.
package models

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
)

const probeTimeout = 3 * time.Second

// ChatModels attempts a best-effort GET ${baseURL}/v1/models against the
// upstream LLM and returns the reported model ids. On any failure — network
// error, non-200, unparsable or empty body — it falls back to the
// configured static list rather than surfacing an error, since model
// listing is informational and must never block the proxy.
func ChatModels(ctx context.Context, client *http.Client, baseURL, apiKey string, fallback []string) []string {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/v1/models", nil)
	if err != nil {
		return fallback
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fallback
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fallback
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil || !gjson.ValidBytes(body) {
		return fallback
	}

	var ids []string
	for _, m := range gjson.GetBytes(body, "data").Array() {
		if id := m.Get("id").String(); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return fallback
	}
	return ids
}

// AudioModel describes one TTS model and the voices available for it.
type AudioModel struct {
	Model  string   `json:"model"`
	Voices []string `json:"voices"`
}

// StaticAudioModels returns the configured TTS model/voice pairing. TTS
// backends in this deployment have no discovery endpoint, so this is always
// the static, configured answer — never a live probe.
func StaticAudioModels(defaultModel string, voices []string) []AudioModel {
	return []AudioModel{{Model: defaultModel, Voices: voices}}
}
