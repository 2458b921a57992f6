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
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/kadirpekel/chatgate/pkg/history"
)

// Gemini generates replies with the Google Gemini API. It honours the model
// and system prompt of the route. Proxy settings do not apply.
type Gemini struct {
	opts   options
	route  RouteFunc
	client *genai.Client
}

func NewGemini(ctx context.Context, apiKey string, route RouteFunc, opts ...Option) (*Gemini, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	cc := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: o.httpClient,
	}
	if o.baseURL != "" {
		cc.HTTPOptions.BaseURL = o.baseURL
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Gemini{opts: o, route: route, client: client}, nil
}

func (g *Gemini) Name() string {
	return "gemini"
}

func (g *Gemini) Close() error {
	return nil
}

// Generate sends system messages from the history as the system
// instruction and maps assistant turns to the model role.
func (g *Gemini) Generate(ctx context.Context, hist []history.Message, text string) (string, error) {
	route, err := g.route(ctx)
	if err != nil {
		return "", &Error{Kind: KindUnknown, Message: "failed to resolve backend route", Err: err}
	}

	contents, system := buildGeminiContents(route.SystemPrompt, hist, text)

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(g.opts.temperature)),
	}
	if g.opts.maxTokens > 0 {
		config.MaxOutputTokens = int32(g.opts.maxTokens)
	}
	if system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}

	return g.opts.observe(ctx, g.Name(), route.Model, len(hist), func(ctx context.Context) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, g.opts.timeout)
		defer cancel()

		resp, err := g.client.Models.GenerateContent(ctx, route.Model, contents, config)
		if err != nil {
			return "", geminiError(err)
		}
		out := strings.TrimSpace(resp.Text())
		if out == "" {
			return "", &Error{Kind: KindUnknown, Message: "no response candidates returned"}
		}
		return out, nil
	})
}

func buildGeminiContents(systemPrompt string, hist []history.Message, text string) ([]*genai.Content, string) {
	var system []string
	if len(hist) == 0 || hist[0].Role != history.RoleSystem {
		if systemPrompt != "" {
			system = append(system, systemPrompt)
		}
	}

	contents := make([]*genai.Content, 0, len(hist)+1)
	for _, m := range hist {
		switch m.Role {
		case history.RoleSystem:
			system = append(system, m.Content)
		case history.RoleAssistant:
			contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{Text: m.Content}}})
		default:
			contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: []*genai.Part{{Text: m.Content}}})
		}
	}
	contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: []*genai.Part{{Text: text}}})

	return contents, strings.Join(system, "\n\n")
}

func geminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		kind := kindForStatus(apiErr.Code)
		return &Error{Kind: kind, StatusCode: apiErr.Code, Message: apiErr.Message, Err: err}
	}
	return &Error{Kind: kindForTransport(err), Message: "request failed", Err: err}
}

var _ Backend = (*Gemini)(nil)
