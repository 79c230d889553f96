// Package llmproxy streams a chat-completion request to the upstream LLM,
// relaying each SSE event byte-exact to the caller while side-channeling
// the extracted assistant text for sentence segmentation and TTS prefetch.
package llmproxy

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/riverbend/ttsproxy/internal/apierr"
)

const idleEventTimeout = 30 * time.Second

// doneSentinel is the terminal SSE data payload upstream sends.
const doneSentinel = "[DONE]"

// proxyOnlyFields never reach the upstream LLM; the chat endpoint reads
// their values off the original request before calling Stream.
var proxyOnlyFields = []string{"tts_enabled", "tts_model", "tts_voice"}

// Proxy streams chat completions from a single upstream base URL.
type Proxy struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// HTTPClient returns the underlying client, for callers that need to probe
// the same upstream outside of chat streaming (model listing).
func (p *Proxy) HTTPClient() *http.Client { return p.client }

// BaseURL returns the upstream base URL this Proxy streams against.
func (p *Proxy) BaseURL() string { return p.baseURL }

// New builds a Proxy against an upstream OpenAI-compatible chat endpoint.
func New(baseURL, apiKey string, client *http.Client) *Proxy {
	return &Proxy{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, client: client}
}

// StripProxyFields removes the proxy-only fields from a raw request body,
// returning the cleaned body and the original (possibly default) values.
func StripProxyFields(body []byte, defaultModel, defaultVoice string) (cleaned []byte, ttsEnabled bool, ttsModel, ttsVoice string) {
	ttsEnabled = true
	if v := gjson.GetBytes(body, "tts_enabled"); v.Exists() {
		ttsEnabled = v.Bool()
	}
	ttsModel = defaultModel
	if v := gjson.GetBytes(body, "tts_model"); v.Exists() && v.String() != "" {
		ttsModel = v.String()
	}
	ttsVoice = defaultVoice
	if v := gjson.GetBytes(body, "tts_voice"); v.Exists() && v.String() != "" {
		ttsVoice = v.String()
	}

	out := body
	for _, field := range proxyOnlyFields {
		if b, err := sjson.DeleteBytes(out, field); err == nil {
			out = b
		}
	}
	return out, ttsEnabled, ttsModel, ttsVoice
}

// OnChunk is invoked once per raw SSE event, synchronously, so the caller
// can relay it to the client before any further processing happens.
type OnChunk func(rawEvent []byte) error

// OnText is invoked with each non-empty assistant text delta extracted from
// the stream. Its failures must never interrupt the chunk relay.
type OnText func(delta string)

// Stream forwards body upstream (forcing stream:true) and tees the response
// to onChunk (verbatim) and onText (parsed deltas only). It returns once the
// upstream stream ends, a terminal error occurs, or ctx is cancelled; except
// on cancellation, whatever arrived before the return has already reached
// onChunk.
func (p *Proxy) Stream(ctx context.Context, body []byte, onChunk OnChunk, onText OnText) error {
	forwardBody, err := sjson.SetBytes(body, "stream", true)
	if err != nil {
		return apierr.Wrap(apierr.Internal, "failed to force stream:true on request body", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/chat/completions", bytes.NewReader(forwardBody))
	if err != nil {
		return apierr.Wrap(apierr.Internal, "failed to build upstream request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := p.client.Do(req)
	if err != nil {
		return apierr.Wrap(apierr.Upstream, "upstream llm request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apierr.New(apierr.Upstream, fmt.Sprintf("upstream llm returned status %d", resp.StatusCode))
	}

	return p.relay(ctx, resp, onChunk, onText)
}

// relay reads the upstream body line-by-line off a background goroutine so
// an idle-timeout can be enforced between events without blocking on the
// underlying read indefinitely.
func (p *Proxy) relay(ctx context.Context, resp *http.Response, onChunk OnChunk, onText OnText) error {
	lineCh := make(chan string)
	errCh := make(chan error, 1)

	go func() {
		defer close(lineCh)
		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadString('\n')
			if line != "" {
				lineCh <- line
			}
			if err != nil {
				errCh <- err
				return
			}
		}
	}()

	idleTimer := time.NewTimer(idleEventTimeout)
	defer idleTimer.Stop()

	var eventBuf bytes.Buffer
	for {
		select {
		case <-ctx.Done():
			return apierr.Wrap(apierr.Cancelled, "client disconnected during llm stream", ctx.Err())
		case line, ok := <-lineCh:
			if !idleTimer.Stop() {
				<-idleTimer.C
			}
			idleTimer.Reset(idleEventTimeout)
			if !ok {
				if eventBuf.Len() > 0 {
					onChunk(append([]byte(nil), eventBuf.Bytes()...))
				}
				select {
				case err := <-errCh:
					if err != nil && err.Error() != "EOF" {
						return apierr.Wrap(apierr.Upstream, "upstream llm stream read failed", err)
					}
				default:
				}
				return nil
			}
			eventBuf.WriteString(line)
			if strings.TrimRight(line, "\r\n") == "" {
				event := eventBuf.Bytes()
				eventBuf.Reset()
				if err := onChunk(append([]byte(nil), event...)); err != nil {
					return apierr.Wrap(apierr.Internal, "failed to relay chunk to client", err)
				}
				continue
			}
			p.extractTextFromLine(line, onText)
		case err := <-errCh:
			if eventBuf.Len() > 0 {
				onChunk(append([]byte(nil), eventBuf.Bytes()...))
			}
			if err.Error() == "EOF" {
				return nil
			}
			return apierr.Wrap(apierr.Upstream, "upstream llm stream read failed", err)
		case <-idleTimer.C:
			if eventBuf.Len() > 0 {
				onChunk(append([]byte(nil), eventBuf.Bytes()...))
			}
			return apierr.New(apierr.Upstream, "upstream llm stream idle timeout")
		}
	}
}

func (p *Proxy) extractTextFromLine(line string, onText OnText) {
	trimmed := strings.TrimRight(line, "\r\n")
	data, ok := strings.CutPrefix(trimmed, "data: ")
	if !ok {
		data, ok = strings.CutPrefix(trimmed, "data:")
		if !ok {
			return
		}
	}
	data = strings.TrimSpace(data)
	if data == "" || data == doneSentinel {
		return
	}
	if !gjson.Valid(data) {
		return
	}
	content := gjson.Get(data, "choices.0.delta.content")
	if !content.Exists() || content.Type.String() == "Null" {
		return
	}
	if content.String() == "" {
		return
	}
	onText(content.String())
}
