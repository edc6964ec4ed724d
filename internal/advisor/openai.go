package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/NAME-ASHWANIYADAV/agriloop/internal/weather"
)

const (
	defaultOpenAIModel = "gpt-4o-mini"
	weatherToolName    = "get_current_weather"
)

var weatherTool = openai.Tool{
	Type: openai.ToolTypeFunction,
	Function: &openai.FunctionDefinition{
		Name:        weatherToolName,
		Description: "Current weather and the next 24h forecast for a city or district.",
		Parameters: jsonschema.Definition{
			Type: jsonschema.Object,
			Properties: map[string]jsonschema.Definition{
				"location": {
					Type:        jsonschema.String,
					Description: "City or district name, optionally with state, e.g. \"Nashik, Maharashtra\".",
				},
			},
			Required: []string{"location"},
		},
	},
}

// OpenAIProcessor answers through an OpenAI-compatible chat completions API.
// Text queries may make one round of weather tool calls before answering.
type OpenAIProcessor struct {
	client      *openai.Client
	model       string
	visionModel string
	pivotName   string
	maxTokens   int
	weather     weather.Provider
	media       *MediaFetcher
}

func NewOpenAIProcessor(cfg Config) *OpenAIProcessor {
	clientConfig := openai.DefaultConfig(strings.TrimSpace(cfg.OpenAIAPIKey))
	if base := strings.TrimSpace(cfg.OpenAIBaseURL); base != "" {
		clientConfig.BaseURL = base
	}
	model := strings.TrimSpace(cfg.OpenAIModel)
	if model == "" {
		model = defaultOpenAIModel
	}
	vision := strings.TrimSpace(cfg.OpenAIVisionModel)
	if vision == "" {
		vision = model
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	media := cfg.Media
	if media == nil {
		media = NewMediaFetcher(MediaAuth{})
	}
	return &OpenAIProcessor{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       model,
		visionModel: vision,
		pivotName:   cfg.PivotLanguageName,
		maxTokens:   maxTokens,
		weather:     cfg.Weather,
		media:       media,
	}
}

func (p *OpenAIProcessor) AnswerText(ctx context.Context, q TextQuery) (Answer, error) {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt(q.Farmer, p.pivotName)},
	}
	for _, t := range q.History {
		role := openai.ChatMessageRoleUser
		if t.Role == "assistant" {
			role = openai.ChatMessageRoleAssistant
		}
		if strings.TrimSpace(t.Text) == "" {
			continue
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: t.Text})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: q.Text})

	req := openai.ChatCompletionRequest{
		Model:     p.model,
		Messages:  messages,
		MaxTokens: p.maxTokens,
	}
	if p.weather != nil {
		req.Tools = []openai.Tool{weatherTool}
	}

	msg, err := p.complete(ctx, req)
	if err != nil {
		return Answer{}, err
	}
	if len(msg.ToolCalls) > 0 && p.weather != nil {
		req.Messages = append(req.Messages, msg)
		for _, call := range msg.ToolCalls {
			req.Messages = append(req.Messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: call.ID,
				Name:       call.Function.Name,
				Content:    p.runTool(ctx, call),
			})
		}
		// One tool round only; the follow-up must answer in text.
		req.Tools = nil
		msg, err = p.complete(ctx, req)
		if err != nil {
			return Answer{}, err
		}
	}
	return p.answer(msg)
}

func (p *OpenAIProcessor) AnswerImage(ctx context.Context, q ImageQuery) (Answer, error) {
	media, err := p.media.Fetch(ctx, q.MediaRef, q.ProviderMedia)
	if err != nil {
		return Answer{}, unavailable("openai", err)
	}
	req := openai.ChatCompletionRequest{
		Model:     p.visionModel,
		MaxTokens: p.maxTokens,
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: imagePrompt(q.Caption, p.pivotName)},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
					URL:    media.DataURL(),
					Detail: openai.ImageURLDetailAuto,
				}},
			},
		}},
	}
	msg, err := p.complete(ctx, req)
	if err != nil {
		return Answer{}, err
	}
	return p.answer(msg)
}

func (p *OpenAIProcessor) complete(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionMessage, error) {
	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return openai.ChatCompletionMessage{}, unavailable("openai", err)
	}
	if len(resp.Choices) == 0 {
		return openai.ChatCompletionMessage{}, unavailable("openai", errors.New("empty chat response"))
	}
	return resp.Choices[0].Message, nil
}

func (p *OpenAIProcessor) answer(msg openai.ChatCompletionMessage) (Answer, error) {
	text := strings.TrimSpace(msg.Content)
	if text == "" {
		return Answer{}, unavailable("openai", errors.New("empty answer"))
	}
	return Answer{Text: text, Backend: "openai"}, nil
}

// runTool executes a tool call and returns the content for the tool message.
// Failures become text for the model rather than errors.
func (p *OpenAIProcessor) runTool(ctx context.Context, call openai.ToolCall) string {
	if call.Function.Name != weatherToolName {
		return fmt.Sprintf("unknown tool %q", call.Function.Name)
	}
	var args struct {
		Location string `json:"location"`
	}
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
		return "invalid arguments: " + err.Error()
	}
	rep, err := p.weather.Lookup(ctx, args.Location)
	if err != nil {
		return "weather unavailable: " + err.Error()
	}
	return rep.Summary()
}

func apiStatus(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return statusErr.code
	}
	return 0
}
