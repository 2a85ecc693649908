// Package gameconfig produces the opaque session configuration handed to a
// child at session start.
package gameconfig

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ErrInvalidConfig is returned when a generator produces something that is
// not a JSON object.
var ErrInvalidConfig = errors.New("generated config is not a JSON object")

// fallback is used whenever generation fails or is not configured.
const fallback = `{
	"level_config": {
		"difficulty": 2,
		"shapes": ["circle", "square", "triangle"],
		"colors": ["red", "blue", "green"],
		"sounds": true,
		"animation_speed": 1.0,
		"surprise_elements": ["color_change", "size_change"]
	},
	"assessment_focus": ["attention", "motor_skills", "pattern_recognition"],
	"session_duration": 10,
	"break_intervals": 3,
	"motivation_elements": ["celebration_sounds", "progress_indicators"]
}`

// Fallback returns a fresh copy of the fixed fallback configuration.
func Fallback() json.RawMessage {
	var buf bytes.Buffer
	// The constant is valid JSON; Compact only fails on invalid input.
	_ = json.Compact(&buf, []byte(fallback))
	return json.RawMessage(buf.Bytes())
}

// Request is the input to a Generator.
type Request struct {
	Profile        json.RawMessage
	PriorSummaries []json.RawMessage
}

// Generator produces a session configuration for a child.
type Generator interface {
	Generate(ctx context.Context, req Request) (json.RawMessage, error)
}

// StaticGenerator always returns the fallback configuration.
type StaticGenerator struct{}

// Generate implements Generator.
func (StaticGenerator) Generate(context.Context, Request) (json.RawMessage, error) {
	return Fallback(), nil
}

const systemPrompt = `You are an expert in adaptive game design for developmental assessment.
Generate a personalized game configuration from the child's profile and previous session data.

Consider:
1. Age-appropriate challenges
2. Special interests integration
3. Sensory preferences
4. Previous session performance
5. Gradual difficulty progression

Return only a JSON object of the form:
{
	"level_config": {
		"difficulty": <1-5>,
		"shapes": [list of shapes to use],
		"colors": [list of colors],
		"sounds": <true|false>,
		"animation_speed": <0.5-2.0>,
		"surprise_elements": [list of surprise types]
	},
	"assessment_focus": [list of behaviors to monitor],
	"session_duration": <minutes>,
	"break_intervals": <minutes>,
	"motivation_elements": [list based on special interests]
}`

// DefaultModel is the chat model used when none is configured.
const DefaultModel = "gpt-4"

// OpenAIGenerator asks a chat completion model for the configuration.
type OpenAIGenerator struct {
	client openai.Client
	model  string
}

// NewOpenAIGenerator creates a generator using the given model.
func NewOpenAIGenerator(model string, opts ...option.RequestOption) *OpenAIGenerator {
	if model == "" {
		model = DefaultModel
	}
	return &OpenAIGenerator{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

// Generate implements Generator.
func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (json.RawMessage, error) {
	profile := req.Profile
	if len(profile) == 0 {
		profile = json.RawMessage("{}")
	}
	prior, err := json.Marshal(req.PriorSummaries)
	if err != nil {
		return nil, fmt.Errorf("marshal prior summaries: %w", err)
	}
	userPrompt := fmt.Sprintf("Child Profile: %s\nPrevious Sessions: %s\n\nGenerate an optimal game configuration for the next session.", profile, prior)

	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		Temperature: openai.Float(0.4),
		MaxTokens:   openai.Int(800),
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices returned", ErrInvalidConfig)
	}
	return parseConfig(resp.Choices[0].Message.Content)
}

// parseConfig accepts a bare JSON object or one wrapped in a markdown fence.
func parseConfig(content string) (json.RawMessage, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
		content = strings.TrimSpace(content)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &obj); err != nil || obj == nil {
		return nil, ErrInvalidConfig
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(content)); err != nil {
		return nil, ErrInvalidConfig
	}
	return json.RawMessage(buf.Bytes()), nil
}
