package trace

import "time"

// ChatSession wraps exactly one /v1/chat/completions request: a stateless
// HTTP call has no persistent connection to hang multiple turns off of, so
// each request gets its own session and its own single Run.
type ChatSession struct {
	ID           string     `json:"id"`
	RequestModel string     `json:"request_model"`
	TTSEngine    string     `json:"tts_engine"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	RunCount     int        `json:"run_count,omitempty"`
}

// Run is one /v1/chat/completions call: one LLM turn plus whatever TTS
// prefetch it triggered.
type Run struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs float64   `json:"duration_ms,omitempty"`
	Input      string    `json:"input,omitempty"`
	Output     string    `json:"output,omitempty"`
	Status     string    `json:"status"`
	SpanCount  int       `json:"span_count,omitempty"`
}

// Span is one pipeline stage within a Run — segment or llm_relay. TTS
// dispatch is not recorded as a span.
type Span struct {
	ID         string    `json:"id"`
	RunID      string    `json:"run_id"`
	Name       string    `json:"name"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs float64   `json:"duration_ms"`
	Input      string    `json:"input,omitempty"`
	Output     string    `json:"output,omitempty"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
}
