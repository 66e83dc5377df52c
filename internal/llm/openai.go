package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/rs/zerolog/log"

	"github.com/ivanintech/concierge/internal/config"
	"github.com/ivanintech/concierge/internal/faults"
)

// OpenAIClient implements Provider over OpenAI Chat Completions with
// function calling.
type OpenAIClient struct {
	sdk   sdk.Client
	model string
}

func NewOpenAIClient(cfg config.OpenAIConfig, httpClient *http.Client) *OpenAIClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAIClient{sdk: sdk.NewClient(opts...), model: cfg.Model}
}

func (c *OpenAIClient) Chat(ctx context.Context, msgs []Message, tools []ToolSchema) (Message, error) {
	params := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(c.model),
		Messages: adaptOpenAIMessages(msgs),
	}
	if len(tools) > 0 {
		params.Tools = adaptOpenAISchemas(tools)
	}

	start := time.Now()
	comp, err := c.sdk.Chat.Completions.New(ctx, params)
	dur := time.Since(start)
	if err != nil {
		log.Error().Err(err).Str("model", c.model).Int("tools", len(tools)).Dur("duration", dur).Msg("chat_completion_error")
		return Message{}, faults.Wrap(faults.Transport, err, "openai chat")
	}
	log.Debug().
		Str("model", c.model).
		Int("tools", len(tools)).
		Int("messages", len(msgs)).
		Dur("duration", dur).
		Int("prompt_tokens", int(comp.Usage.PromptTokens)).
		Int("completion_tokens", int(comp.Usage.CompletionTokens)).
		Msg("chat_completion_ok")

	if len(comp.Choices) == 0 {
		return Message{Role: "assistant"}, nil
	}
	msg := comp.Choices[0].Message
	out := Message{Role: "assistant", Content: StripReasoning(msg.Content)}
	for _, tc := range msg.ToolCalls {
		if v, ok := tc.AsAny().(sdk.ChatCompletionMessageFunctionToolCall); ok {
			if isEmptyArgs(v.Function.Arguments) {
				log.Warn().Str("tool", v.Function.Name).Str("id", v.ID).Msg("skipping tool call with empty arguments")
				continue
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:   v.ID,
				Name: v.Function.Name,
				Args: json.RawMessage(v.Function.Arguments),
			})
		}
	}
	return out, nil
}

func adaptOpenAISchemas(schemas []ToolSchema) []sdk.ChatCompletionToolUnionParam {
	out := make([]sdk.ChatCompletionToolUnionParam, 0, len(schemas))
	for _, s := range schemas {
		out = append(out, sdk.ChatCompletionFunctionTool(sdk.FunctionDefinitionParam{
			Name:        s.Name,
			Description: sdk.String(s.Description),
			Parameters:  s.Parameters,
		}))
	}
	return out
}

func adaptOpenAIMessages(msgs []Message) []sdk.ChatCompletionMessageParamUnion {
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "system":
			out = append(out, sdk.SystemMessage(m.Content))
		case "user":
			content := m.Content
			if content == "" {
				content = " "
			}
			out = append(out, sdk.UserMessage(content))
		case "assistant":
			if len(m.ToolCalls) == 0 {
				content := m.Content
				if content == "" {
					content = " "
				}
				out = append(out, sdk.AssistantMessage(content))
				continue
			}
			var asst sdk.ChatCompletionAssistantMessageParam
			content := m.Content
			if content == "" {
				content = " "
			}
			asst.Content.OfString = sdk.String(content)
			for _, tc := range m.ToolCalls {
				fn := sdk.ChatCompletionMessageFunctionToolCallParam{
					ID: tc.ID,
					Function: sdk.ChatCompletionMessageFunctionToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: string(tc.Args),
					},
				}
				asst.ToolCalls = append(asst.ToolCalls, sdk.ChatCompletionMessageToolCallUnionParam{OfFunction: &fn})
			}
			out = append(out, sdk.ChatCompletionMessageParamUnion{OfAssistant: &asst})
		case "tool":
			content := m.Content
			if content == "" {
				content = `{"error": "empty tool response"}`
			}
			out = append(out, sdk.ToolMessage(content, m.ToolID))
		}
	}
	return out
}

func isEmptyArgs(args string) bool {
	switch args {
	case "", "{}", "null":
		return true
	}
	return false
}
