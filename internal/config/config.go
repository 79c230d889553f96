// Package config loads the proxy's runtime configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// BackendConfig is one (url, token) pair in the TTS backend pool.
// Deployments with multiple backend URLs and deployments with one URL and
// many rotating tokens are the same abstraction here — see spec §9.
type BackendConfig struct {
	URL   string
	Token string
}

// Config holds every environment-driven knob for the proxy.
type Config struct {
	Port string

	NewAPIBaseURL string
	NewAPIAPIKey  string

	AuthToken string

	DefaultLLMModel string
	DefaultTTSModel string
	DefaultTTSVoice string

	TTSBackends          []BackendConfig
	BackendMaxConcurrent int
	RequestTimeout       time.Duration
	RetryCount           int

	CacheMaxSize int
	CacheTTL     time.Duration

	SegmenterMinLen int
	SegmenterMaxLen int

	LogLevel string

	TracePostgresURL string

	// TTSRequestTemplateJSON holds opaque extra fields merged into every TTS
	// request body (nested parameter blocks some backends expect). Empty
	// means no extra fields beyond model/voice/input/response_format.
	TTSRequestTemplateJSON string
}

// Load reads and validates configuration from the environment.
func Load() (Config, error) {
	cfg := Config{
		Port: envStr("LISTEN_PORT", "8080"),

		NewAPIBaseURL: strings.TrimRight(envStr("NEWAPI_BASE_URL", ""), "/"),
		NewAPIAPIKey:  envStr("NEWAPI_API_KEY", ""),

		AuthToken: envStr("PROXY_AUTH_TOKEN", ""),

		DefaultLLMModel: envStr("DEFAULT_LLM_MODEL", "gpt-4o-mini"),
		DefaultTTSModel: envStr("DEFAULT_TTS_MODEL", "tts-1"),
		DefaultTTSVoice: envStr("DEFAULT_TTS_VOICE", "alloy"),

		BackendMaxConcurrent: envInt("TTS_BACKEND_MAX_CONCURRENT", 3),
		RequestTimeout:       envDurationSeconds("REQUEST_TIMEOUT_SECONDS", 60*time.Second),
		RetryCount:           envInt("TTS_RETRY_COUNT", 2),

		CacheMaxSize: envInt("CACHE_MAX_SIZE", 1000),
		CacheTTL:     envDurationSeconds("CACHE_TTL_SECONDS", 3600*time.Second),

		SegmenterMinLen: envInt("SEGMENTER_MIN_LEN", 5),
		SegmenterMaxLen: envInt("SEGMENTER_MAX_LEN", 40),

		LogLevel: envStr("LOG_LEVEL", "info"),

		TracePostgresURL: envStr("TRACE_POSTGRES_URL", ""),

		TTSRequestTemplateJSON: envStr("TTS_REQUEST_TEMPLATE_JSON", ""),
	}

	backends, err := parseBackends(envStr("TTS_BACKENDS", ""), envStr("TTS_BACKEND_TOKENS", ""))
	if err != nil {
		return Config{}, err
	}
	cfg.TTSBackends = backends

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.NewAPIBaseURL == "" {
		return fmt.Errorf("NEWAPI_BASE_URL is required")
	}
	if c.NewAPIAPIKey == "" {
		return fmt.Errorf("NEWAPI_API_KEY is required")
	}
	if len(c.TTSBackends) == 0 {
		return fmt.Errorf("TTS_BACKENDS is required (comma-separated URLs)")
	}
	return nil
}

// parseBackends builds the (url, token) pool. urls and tokens are each
// comma-separated. With no tokens every URL gets an empty token; with exactly
// one token it is reused for every URL ("one token, many backends"); with one
// URL and several tokens the URL is repeated once per token ("one backend,
// rotating tokens"); otherwise tokens pair positionally with urls and the
// two counts must match.
func parseBackends(urlsCSV, tokensCSV string) ([]BackendConfig, error) {
	urls := splitCSV(urlsCSV)
	tokens := splitCSV(tokensCSV)
	if len(urls) == 0 {
		return nil, nil
	}
	if len(tokens) == 0 {
		out := make([]BackendConfig, len(urls))
		for i, u := range urls {
			out[i] = BackendConfig{URL: u}
		}
		return out, nil
	}
	if len(tokens) == 1 {
		out := make([]BackendConfig, len(urls))
		for i, u := range urls {
			out[i] = BackendConfig{URL: u, Token: tokens[0]}
		}
		return out, nil
	}
	if len(urls) == 1 {
		out := make([]BackendConfig, len(tokens))
		for i, t := range tokens {
			out[i] = BackendConfig{URL: urls[0], Token: t}
		}
		return out, nil
	}
	if len(urls) != len(tokens) {
		return nil, fmt.Errorf("TTS_BACKENDS has %d urls but TTS_BACKEND_TOKENS has %d tokens", len(urls), len(tokens))
	}
	out := make([]BackendConfig, len(urls))
	for i := range urls {
		out[i] = BackendConfig{URL: urls[i], Token: tokens[i]}
	}
	return out, nil
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envStr(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func envInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}

func envDurationSeconds(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	secs, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return time.Duration(secs) * time.Second
}
