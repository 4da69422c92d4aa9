package brain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPAdapter forwards requests to a chat-completions style HTTP endpoint.
type HTTPAdapter struct {
	url    string
	token  string
	client *http.Client
}

func NewHTTPAdapter(url, token string) *HTTPAdapter {
	return &HTTPAdapter{
		url:   strings.TrimSpace(url),
		token: strings.TrimSpace(token),
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (a *HTTPAdapter) Complete(ctx context.Context, req Request) (Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(payload))
	if err != nil {
		return Response{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.token)
	}

	res, err := a.client.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return Response{}, fmt.Errorf("brain http status %d: %s", res.StatusCode, string(body))
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}
	return parseResponseBody(body), nil
}

// parseResponseBody tolerates several upstream shapes: our native Response,
// an OpenAI-style chat completion, a flat {"text": ...} object, or raw text.
func parseResponseBody(body []byte) Response {
	var native Response
	if err := json.Unmarshal(body, &native); err == nil {
		if native.Text != "" || len(native.ToolCalls) > 0 {
			return native
		}
	}

	var chat struct {
		Choices []struct {
			Message struct {
				Content   string `json:"content"`
				ToolCalls []struct {
					Function struct {
						Name      string          `json:"name"`
						Arguments json.RawMessage `json:"arguments"`
					} `json:"function"`
				} `json:"tool_calls"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &chat); err == nil && len(chat.Choices) > 0 {
		msg := chat.Choices[0].Message
		out := Response{Text: msg.Content}
		for _, tc := range msg.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				Name:      tc.Function.Name,
				Arguments: normalizeArguments(tc.Function.Arguments),
			})
		}
		if out.Text != "" || len(out.ToolCalls) > 0 {
			return out
		}
	}

	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err == nil {
		for _, k := range []string{"text", "output", "message", "content"} {
			if v, ok := obj[k].(string); ok && v != "" {
				return Response{Text: v}
			}
		}
	}

	return Response{Text: strings.TrimSpace(string(body))}
}

// normalizeArguments unwraps double-encoded argument payloads, which some
// endpoints send as a JSON string rather than an object.
func normalizeArguments(raw json.RawMessage) json.RawMessage {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return json.RawMessage(asString)
	}
	return raw
}
