// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package llms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kadirpekel/chatgate/pkg/history"
	"github.com/kadirpekel/chatgate/pkg/httpclient"
)

// OpenAI talks to an OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	opts   options
	route  RouteFunc
	client *httpclient.Client
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
	Error *openAIError `json:"error,omitempty"`
}

type openAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

func NewOpenAI(route RouteFunc, opts ...Option) *OpenAI {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	httpClient := o.httpClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &OpenAI{
		opts:  o,
		route: route,
		client: httpclient.New(
			httpclient.WithHTTPClient(httpClient),
			httpclient.WithMaxRetries(o.maxRetries),
			httpclient.WithBaseDelay(o.retryDelay),
			httpclient.WithHintParser(httpclient.OpenAIHints),
		),
	}
}

func (p *OpenAI) Name() string {
	return "openai"
}

func (p *OpenAI) Close() error {
	return nil
}

// Generate prepends the system prompt unless the history already starts
// with a system message.
func (p *OpenAI) Generate(ctx context.Context, hist []history.Message, text string) (string, error) {
	route, err := p.route(ctx)
	if err != nil {
		return "", &Error{Kind: KindUnknown, Message: "failed to resolve backend route", Err: err}
	}

	messages := buildOpenAIMessages(route.SystemPrompt, hist, text)

	return p.opts.observe(ctx, p.Name(), route.Model, len(hist), func(ctx context.Context) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, p.opts.timeout)
		defer cancel()

		slog.Debug("Sending completion request", "model", route.Model, "messages", len(messages), "proxy", route.Proxy)
		return p.complete(ctx, route, openAIRequest{
			Model:       route.Model,
			Messages:    messages,
			Temperature: p.opts.temperature,
			MaxTokens:   p.opts.maxTokens,
		})
	})
}

// Ping sends a minimal completion to verify the current route.
func (p *OpenAI) Ping(ctx context.Context) error {
	route, err := p.route(ctx)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, p.opts.timeout)
	defer cancel()

	_, err = p.complete(ctx, route, openAIRequest{
		Model:     route.Model,
		Messages:  []openAIMessage{{Role: string(history.RoleUser), Content: "Hi"}},
		MaxTokens: 10,
	})
	return err
}

func buildOpenAIMessages(systemPrompt string, hist []history.Message, text string) []openAIMessage {
	messages := make([]openAIMessage, 0, len(hist)+2)
	if systemPrompt != "" && (len(hist) == 0 || hist[0].Role != history.RoleSystem) {
		messages = append(messages, openAIMessage{Role: string(history.RoleSystem), Content: systemPrompt})
	}
	for _, m := range hist {
		messages = append(messages, openAIMessage{Role: string(m.Role), Content: m.Content})
	}
	return append(messages, openAIMessage{Role: string(history.RoleUser), Content: text})
}

func (p *OpenAI) complete(ctx context.Context, route Route, request openAIRequest) (string, error) {
	fail := func(kind ErrorKind, status int, msg string, err error) error {
		return &Error{Kind: kind, StatusCode: status, Message: msg, Proxy: route.Proxy, Endpoint: route.BaseURL, Err: err}
	}

	body, err := json.Marshal(request)
	if err != nil {
		return "", fail(KindUnknown, 0, "failed to marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(route.BaseURL, "/")+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fail(KindUnknown, 0, "failed to create request", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	req.Header.Set("Content-Type", "application/json")
	if route.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+route.APIKey)
	}

	resp, err := p.client.Do(req)
	if resp == nil {
		if err == nil {
			err = errors.New("no response received")
		}
		return "", fail(kindForTransport(err), 0, "request failed", err)
	}
	defer resp.Body.Close()

	data, readErr := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(data))
		if apiErr := parseOpenAIError(data); apiErr != nil {
			msg = apiErr.Message
			if code, ok := apiErr.Code.(string); ok && code != "" && !strings.Contains(msg, code) {
				msg += " (" + code + ")"
			}
		}
		return "", fail(kindForStatus(resp.StatusCode), resp.StatusCode, msg, err)
	}
	if readErr != nil {
		return "", fail(kindForTransport(readErr), 0, "failed to read response", readErr)
	}

	var parsed openAIResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fail(KindUnknown, resp.StatusCode, "failed to decode response", err)
	}
	if parsed.Error != nil {
		return "", fail(KindUnknown, resp.StatusCode, parsed.Error.Message, nil)
	}
	if len(parsed.Choices) == 0 {
		return "", fail(KindUnknown, resp.StatusCode, "no response choices returned", nil)
	}

	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

func parseOpenAIError(body []byte) *openAIError {
	var wrapper struct {
		Error *openAIError `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil || wrapper.Error == nil || wrapper.Error.Message == "" {
		return nil
	}
	return wrapper.Error
}

var (
	_ Backend = (*OpenAI)(nil)
	_ Pinger  = (*OpenAI)(nil)
)
