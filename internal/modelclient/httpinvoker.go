package modelclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/clovis-agent/clovis/pkg/logger"
)

// ErrMissingCredentials is returned by NewHTTPInvoker when the provider
// endpoint or API key is absent: fail fast at construction rather than on
// first call.
var ErrMissingCredentials = errors.New("modelclient: endpoint and api key are required")

// DefaultTimeout bounds one HTTP invocation, including multimodal calls
// carrying screenshots.
const DefaultTimeout = 60 * time.Second

// HTTPInvoker adapts an OpenAI-compatible chat-completions endpoint to
// the Invoker contract. It is the one concrete Invoker this module ships;
// the choice of LLM provider itself is an external collaborator, but the
// wire protocol most providers already speak is OpenAI-compatible
// REST, so that is what this module's default invoker implements.
type HTTPInvoker struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPInvoker constructs an HTTPInvoker against endpoint (an
// OpenAI-compatible base URL, e.g. "https://api.openai.com" or a local
// vLLM server) authenticated with apiKey.
func NewHTTPInvoker(endpoint, apiKey string) (*HTTPInvoker, error) {
	if endpoint == "" || apiKey == "" {
		return nil, ErrMissingCredentials
	}
	normalized := strings.TrimRight(strings.TrimSpace(endpoint), "/")
	normalized = strings.TrimSuffix(normalized, "/v1")
	return &HTTPInvoker{
		endpoint: normalized,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: DefaultTimeout},
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type toolSpec struct {
	Type     string       `json:"type"`
	Function functionSpec `json:"function"`
}

type functionSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Tools    []toolSpec    `json:"tools,omitempty"`
}

type toolCall struct {
	ID       string `json:"id"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content   string     `json:"content"`
			ToolCalls []toolCall `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Invoke implements Invoker by issuing one non-streaming chat-completions
// request, optionally carrying images as base64 data URLs (for the
// Screen-Judge and Vision Agent's multimodal calls).
func (h *HTTPInvoker) Invoke(ctx context.Context, model string, messages []Message, tools []ToolDef) (Result, error) {
	req := chatRequest{Model: model, Messages: toChatMessages(messages), Tools: toToolSpecs(tools)}

	body, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("modelclient: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("modelclient: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+h.apiKey)

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("modelclient: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("modelclient: read response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Result{}, fmt.Errorf("modelclient: decode response: %w", err)
	}
	if parsed.Error != nil {
		return Result{}, fmt.Errorf("modelclient: provider error: %s", parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("modelclient: provider returned status %d", resp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return Result{}, errors.New("modelclient: provider returned no choices")
	}

	choice := parsed.Choices[0].Message
	if len(choice.ToolCalls) == 0 {
		return Result{Text: choice.Content}, nil
	}

	calls := make([]FunctionCall, 0, len(choice.ToolCalls))
	for _, tc := range choice.ToolCalls {
		var args map[string]any
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				logger.Warn().Err(err).Str("tool", tc.Function.Name).Msg("modelclient: unparseable tool call arguments")
				args = map[string]any{}
			}
		}
		calls = append(calls, FunctionCall{Name: tc.Function.Name, Args: args})
	}
	return Result{FunctionCalls: calls}, nil
}

func toChatMessages(messages []Message) []chatMessage {
	out := make([]chatMessage, 0, len(messages))
	for _, m := range messages {
		if len(m.Images) == 0 {
			out = append(out, chatMessage{Role: m.Role, Content: m.Content})
			continue
		}
		parts := []contentPart{{Type: "text", Text: m.Content}}
		for _, img := range m.Images {
			parts = append(parts, contentPart{
				Type:     "image_url",
				ImageURL: &imageURL{URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(img)},
			})
		}
		out = append(out, chatMessage{Role: m.Role, Content: parts})
	}
	return out
}

func toToolSpecs(tools []ToolDef) []toolSpec {
	if len(tools) == 0 {
		return nil
	}
	out := make([]toolSpec, 0, len(tools))
	for _, t := range tools {
		out = append(out, toolSpec{
			Type: "function",
			Function: functionSpec{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Schema,
			},
		})
	}
	return out
}
