// Copyright (c) 2026 the datachat authors.
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE for details.

// Package llmclient implements the LLM transport half of C5 Agent Loop: a
// provider-agnostic Complete call backed by either Anthropic's native
// tool-use API or OpenAI's function-calling API, so the loop itself never
// imports a provider SDK directly.
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/datachat-oss/datachat/internal/tools"
)

// Role is a message's speaker in the provider-agnostic transcript.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockType tags one piece of a Message's content.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// Block is one content block of a Message. Which fields are set depends on
// Type: BlockText uses Text; BlockToolUse uses ToolUseID/ToolName/ToolInput;
// BlockToolResult uses ToolUseID/Text/IsError.
type Block struct {
	Type      BlockType
	Text      string
	ToolUseID string
	ToolName  string
	ToolInput map[string]any
	IsError   bool
}

// Message is one turn of the provider-agnostic transcript the agent loop
// builds and both backends translate to and from their own wire formats.
type Message struct {
	Role    Role
	Content []Block
}

// TextMessage builds a plain single-block message.
func TextMessage(role Role, text string) Message {
	return Message{Role: role, Content: []Block{{Type: BlockText, Text: text}}}
}

// ToolResultMessage builds the user-role message that carries a tool's
// result back to the model, matching Anthropic's convention (adopted here
// for both backends) of returning tool results as a user turn.
func ToolResultMessage(toolUseID, text string, isError bool) Message {
	return Message{Role: RoleUser, Content: []Block{{
		Type: BlockToolResult, ToolUseID: toolUseID, Text: text, IsError: isError,
	}}}
}

// Completion is the model's response to one Complete call.
type Completion struct {
	// Text is every text block in the response, in order, joined with
	// newlines, wherever those blocks sit relative to tool_use blocks.
	// Empty if the response carried no text.
	Text string
	// ToolCalls is the tool_use blocks in the response, in order. The
	// agent loop only ever acts on the first one — the tool surface is
	// designed for one call per turn — but every block is preserved so a
	// caller can round-trip the full assistant turn back into history.
	ToolCalls []ToolCall
	// AssistantMessage is the full response translated back into the
	// provider-agnostic shape, ready to append to history unchanged.
	AssistantMessage Message
}

// ToolCall is one tool_use block extracted from a Completion.
type ToolCall struct {
	ID    string
	Name  tools.Name
	Input map[string]any
}

// Client is the provider-agnostic surface the agent loop calls against.
type Client interface {
	// Complete sends systemPrompt plus the full message history to the
	// model, offering it the given tool definitions, and returns its
	// response. ctx bounds the whole call including retries.
	Complete(ctx context.Context, systemPrompt string, history []Message, toolDefs []tools.Definition) (Completion, error)
}

var (
	// ErrRetryExhausted wraps the last transport error after all retry
	// attempts are spent.
	ErrRetryExhausted = errors.New("llmclient: retries exhausted")
)

const (
	maxRetries     = 3
	baseRetryDelay = 250 * time.Millisecond
)

// withRetry runs fn up to maxRetries times, backing off exponentially with
// jitter between attempts, and gives up immediately on ctx cancellation.
// Grounded on the orchestrator's retry loop for transient upstream errors.
func withRetry(ctx context.Context, fn func() (Completion, error)) (Completion, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			delay := baseRetryDelay * time.Duration(1<<uint(attempt-1))
			delay += time.Duration(rand.Int63n(int64(delay) / 2))
			select {
			case <-ctx.Done():
				return Completion{}, ctx.Err()
			case <-time.After(delay):
			}
		}
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return Completion{}, ctx.Err()
		}
		if !isRetryable(err) {
			return Completion{}, err
		}
	}
	return Completion{}, fmt.Errorf("%w: %v", ErrRetryExhausted, lastErr)
}

// isRetryable reports whether err looks like a transient transport failure
// rather than a permanent one (bad request, auth failure, validation).
// Both backends' SDKs surface distinct error types, so this is
// conservative: it retries on anything that isn't a ctx error, and each
// backend's own request-construction code returns before ever calling
// withRetry when the failure is clearly local (e.g. a malformed schema).
func isRetryable(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// New builds the configured backend: Anthropic by default, OpenAI when
// backend == "openai".
func New(backend, apiKey, model string) (Client, error) {
	switch backend {
	case "", "anthropic":
		return NewAnthropicClient(apiKey, model), nil
	case "openai":
		return NewOpenAIClient(apiKey, model), nil
	default:
		return nil, fmt.Errorf("llmclient: unknown backend %q", backend)
	}
}
