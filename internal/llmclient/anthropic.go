// Copyright (c) 2026 the datachat authors.
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE for details.

package llmclient

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/datachat-oss/datachat/internal/tools"
)

const defaultAnthropicModel = "claude-sonnet-4-5-20250929"

// maxResponseTokens caps a single completion, matching original_source's
// fixed generation budget rather than tying it to the context token
// budget, which bounds input only.
const maxResponseTokens = 4096

// AnthropicClient implements Client against Claude's native tool-use API.
type AnthropicClient struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewAnthropicClient builds a Client backed by the official Anthropic SDK.
// model defaults to claude-sonnet-4-5-20250929 when empty.
func NewAnthropicClient(apiKey, model string) *AnthropicClient {
	if model == "" {
		model = defaultAnthropicModel
	}
	return &AnthropicClient{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(model),
	}
}

func (c *AnthropicClient) Complete(ctx context.Context, systemPrompt string, history []Message, toolDefs []tools.Definition) (Completion, error) {
	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: maxResponseTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages:  toAnthropicMessages(history),
		Tools:     toAnthropicTools(toolDefs),
	}

	return withRetry(ctx, func() (Completion, error) {
		resp, err := c.client.Messages.New(ctx, params)
		if err != nil {
			return Completion{}, fmt.Errorf("llmclient: anthropic: %w", err)
		}
		return fromAnthropicMessage(resp)
	})
}

func toAnthropicTools(defs []tools.Definition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, d := range defs {
		properties, _ := d.InputSchema["properties"]
		var required []string
		if r, ok := d.InputSchema["required"].([]string); ok {
			required = r
		}
		inputSchema := anthropic.ToolInputSchemaParam{
			Properties: properties,
			Required:   required,
			Type:       "object",
		}
		toolUnion := anthropic.ToolUnionParamOfTool(inputSchema, string(d.Name))
		if tool := toolUnion.OfTool; tool != nil {
			tool.Description = anthropic.Opt(d.Description)
		}
		out = append(out, toolUnion)
	}
	return out
}

func toAnthropicMessages(history []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(history))
	for _, msg := range history {
		var blocks []anthropic.ContentBlockParamUnion
		for _, b := range msg.Content {
			switch b.Type {
			case BlockText:
				blocks = append(blocks, anthropic.NewTextBlock(b.Text))
			case BlockToolUse:
				blocks = append(blocks, anthropic.NewToolUseBlock(b.ToolUseID, b.ToolInput, b.ToolName))
			case BlockToolResult:
				blocks = append(blocks, anthropic.NewToolResultBlock(b.ToolUseID, b.Text, b.IsError))
			}
		}
		if len(blocks) == 0 {
			continue
		}
		switch msg.Role {
		case RoleUser:
			out = append(out, anthropic.NewUserMessage(blocks...))
		case RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		}
	}
	return out
}

func fromAnthropicMessage(resp *anthropic.Message) (Completion, error) {
	var (
		textParts []string
		toolCalls []ToolCall
		outBlocks []Block
	)
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			textParts = append(textParts, block.Text)
			outBlocks = append(outBlocks, Block{Type: BlockText, Text: block.Text})
		case "tool_use":
			var input map[string]any
			if err := json.Unmarshal([]byte(block.Input), &input); err != nil {
				return Completion{}, fmt.Errorf("llmclient: anthropic: decode tool input: %w", err)
			}
			toolCalls = append(toolCalls, ToolCall{ID: block.ID, Name: tools.Name(block.Name), Input: input})
			outBlocks = append(outBlocks, Block{
				Type: BlockToolUse, ToolUseID: block.ID, ToolName: block.Name, ToolInput: input,
			})
		}
	}

	text := ""
	for i, part := range textParts {
		if i > 0 {
			text += "\n"
		}
		text += part
	}

	return Completion{
		Text:             text,
		ToolCalls:        toolCalls,
		AssistantMessage: Message{Role: RoleAssistant, Content: outBlocks},
	}, nil
}
