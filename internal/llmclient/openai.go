// Copyright (c) 2026 the datachat authors.
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE for details.

package llmclient

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/datachat-oss/datachat/internal/tools"
)

const defaultOpenAIModel = "gpt-4o"

// OpenAIClient implements Client against OpenAI's chat-completions
// function-calling API, the alternate backend selected by LLM_BACKEND=openai.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient builds a Client backed by go-openai. model defaults to
// gpt-4o when empty.
func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIClient{client: openai.NewClient(apiKey), model: model}
}

func (c *OpenAIClient) Complete(ctx context.Context, systemPrompt string, history []Message, toolDefs []tools.Definition) (Completion, error) {
	messages := append([]openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleSystem, Content: systemPrompt}}, toOpenAIMessages(history)...)

	req := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
		Tools:    toOpenAITools(toolDefs),
	}

	return withRetry(ctx, func() (Completion, error) {
		resp, err := c.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return Completion{}, fmt.Errorf("llmclient: openai: %w", err)
		}
		if len(resp.Choices) == 0 {
			return Completion{}, fmt.Errorf("llmclient: openai: empty response")
		}
		return fromOpenAIMessage(resp.Choices[0].Message)
	})
}

func toOpenAITools(defs []tools.Definition) []openai.Tool {
	out := make([]openai.Tool, 0, len(defs))
	for _, d := range defs {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        string(d.Name),
				Description: d.Description,
				Parameters:  d.InputSchema,
			},
		})
	}
	return out
}

func toOpenAIMessages(history []Message) []openai.ChatCompletionMessage {
	var out []openai.ChatCompletionMessage
	for _, msg := range history {
		for _, b := range msg.Content {
			switch b.Type {
			case BlockText:
				role := openai.ChatMessageRoleUser
				if msg.Role == RoleAssistant {
					role = openai.ChatMessageRoleAssistant
				}
				out = append(out, openai.ChatCompletionMessage{Role: role, Content: b.Text})
			case BlockToolUse:
				input, _ := json.Marshal(b.ToolInput)
				out = append(out, openai.ChatCompletionMessage{
					Role: openai.ChatMessageRoleAssistant,
					ToolCalls: []openai.ToolCall{{
						ID:   b.ToolUseID,
						Type: openai.ToolTypeFunction,
						Function: openai.FunctionCall{
							Name:      b.ToolName,
							Arguments: string(input),
						},
					}},
				})
			case BlockToolResult:
				out = append(out, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    b.Text,
					ToolCallID: b.ToolUseID,
				})
			}
		}
	}
	return out
}

func fromOpenAIMessage(msg openai.ChatCompletionMessage) (Completion, error) {
	var (
		toolCalls []ToolCall
		outBlocks []Block
	)
	if msg.Content != "" {
		outBlocks = append(outBlocks, Block{Type: BlockText, Text: msg.Content})
	}
	for _, tc := range msg.ToolCalls {
		var input map[string]any
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &input); err != nil {
				return Completion{}, fmt.Errorf("llmclient: openai: decode tool input: %w", err)
			}
		}
		toolCalls = append(toolCalls, ToolCall{ID: tc.ID, Name: tools.Name(tc.Function.Name), Input: input})
		outBlocks = append(outBlocks, Block{
			Type: BlockToolUse, ToolUseID: tc.ID, ToolName: tc.Function.Name, ToolInput: input,
		})
	}

	return Completion{
		Text:             msg.Content,
		ToolCalls:        toolCalls,
		AssistantMessage: Message{Role: RoleAssistant, Content: outBlocks},
	}, nil
}
