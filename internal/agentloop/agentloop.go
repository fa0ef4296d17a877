// Copyright (c) 2026 the datachat authors.
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE for details.

// Package agentloop implements C5 Agent Loop: the per-turn state machine
// that alternates LLM calls and tool execution until the model calls
// finalize, the loop runs out of iterations, or the turn's context is
// cancelled.
package agentloop

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/datachat-oss/datachat/internal/contextbuilder"
	"github.com/datachat-oss/datachat/internal/dataset"
	"github.com/datachat-oss/datachat/internal/llmclient"
	"github.com/datachat-oss/datachat/internal/metrics"
	"github.com/datachat-oss/datachat/internal/store"
	"github.com/datachat-oss/datachat/internal/tools"
)

var tracer = otel.Tracer("agentloop")

// MaxIterations bounds how many LLM-call/tool-call round trips one turn
// may take before the loop gives up and emits a diagnostic done event.
const MaxIterations = 15

// Event is one server-to-client event a turn emits, matching spec.md's
// message grammar (status/text/table/plot/query_result/session_update/
// error/done).
type Event struct {
	Type    string
	Text    string
	Payload map[string]any
	// Reason is set only on a done event triggered by exhausting
	// MaxIterations; empty (not emitted as null) on a normal completion.
	Reason string

	// Aborted is set on the done event that closes out a cancelled turn.
	// DataUpdated and Suggestions round out done's optional schema; this
	// loop has no write-back path and generates no follow-up suggestions,
	// so they always carry their zero value here.
	Aborted     bool
	DataUpdated bool
	Suggestions []string
}

// Emitter delivers events to whatever transport is driving this turn. The
// loop never talks to a websocket directly — C7 Event Transport owns that.
type Emitter interface {
	Emit(Event)
}

// EmitterFunc adapts a plain function to Emitter, mirroring http.HandlerFunc.
type EmitterFunc func(Event)

func (f EmitterFunc) Emit(e Event) { f(e) }

// Loop ties together the LLM backend, the tool executor, the context
// builder, and the message store to run one turn at a time.
type Loop struct {
	llm     llmclient.Client
	builder *contextbuilder.Builder
	store   *store.Store
}

// New builds a Loop.
func New(llm llmclient.Client, builder *contextbuilder.Builder, st *store.Store) *Loop {
	return &Loop{llm: llm, builder: builder, store: st}
}

// ErrTurnCancelled is returned when ctx is cancelled mid-turn, distinct
// from a normal done event so the session runtime can tell a forced
// abort from ordinary completion.
var ErrTurnCancelled = errors.New("agentloop: turn cancelled")

// Run executes one full turn for sessionID: it appends userText as a user
// message, then alternates LLM calls and tool execution, emitting events
// as it goes, until finalize is called, MaxIterations is exhausted, or
// ctx is cancelled.
func (l *Loop) Run(ctx context.Context, sessionID string, profile dataset.Profile, executor *tools.Executor, userText string, isInitialTurn bool, emit Emitter) error {
	if _, err := l.store.AppendMessage(ctx, sessionID, store.RoleUser, "user", userText, nil); err != nil {
		err = fmt.Errorf("agentloop: persist user message: %w", err)
		return l.terminate(err, emit)
	}

	systemPrompt := contextbuilder.PromptFollowUp(profile)
	if isInitialTurn {
		systemPrompt = contextbuilder.PromptInitialAnalysis(profile)
	}

	toolDefs := tools.Definitions()

	for iteration := 0; iteration < MaxIterations; iteration++ {
		done, err := l.runIteration(ctx, sessionID, systemPrompt, toolDefs, executor, iteration, emit)
		if err != nil {
			return l.terminate(err, emit)
		}
		if done {
			metrics.TurnIterations.Observe(float64(iteration + 1))
			return nil
		}
	}

	metrics.TurnsTotal.WithLabelValues("max_iterations").Inc()
	metrics.TurnIterations.Observe(MaxIterations)
	emit.Emit(Event{Type: "done", Reason: "max_iterations"})
	return nil
}

// terminate closes out a turn that ended in cancellation or an
// unrecovered error, guaranteeing the sacrosanct "exactly one done per
// turn" invariant holds on every exit path, not just the success ones
// finalize and emitSafetyNetApology cover directly.
func (l *Loop) terminate(err error, emit Emitter) error {
	if errors.Is(err, ErrTurnCancelled) {
		metrics.TurnsTotal.WithLabelValues("cancelled").Inc()
		emit.Emit(Event{Type: "done", Aborted: true})
		return err
	}
	metrics.TurnsTotal.WithLabelValues("error").Inc()
	emit.Emit(Event{Type: "error", Text: err.Error()})
	emit.Emit(Event{Type: "done"})
	return err
}

// runIteration runs one LLM-call/tool-call round trip. It returns
// done=true once the turn has fully concluded (finalize called, or no
// tool call was made), in which case the caller must not run another
// iteration.
func (l *Loop) runIteration(ctx context.Context, sessionID, systemPrompt string, toolDefs []tools.Definition, executor *tools.Executor, iteration int, emit Emitter) (bool, error) {
	ctx, span := tracer.Start(ctx, "agentloop.iteration", trace.WithAttributes(
		attribute.String("session.id", sessionID),
		attribute.Int("iteration", iteration),
	))
	defer span.End()

	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, "cancelled")
		return false, ErrTurnCancelled
	}

	history, err := l.buildHistory(ctx, sessionID, systemPrompt)
	if err != nil {
		span.SetStatus(codes.Error, "load history failed")
		return false, err
	}

	completion, err := l.llm.Complete(ctx, systemPrompt, history, toolDefs)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			span.SetStatus(codes.Error, "cancelled")
			return false, ErrTurnCancelled
		}
		span.SetStatus(codes.Error, "llm call failed")
		return false, fmt.Errorf("agentloop: llm call: %w", err)
	}

	if completion.Text != "" {
		if _, err := l.store.AppendMessage(ctx, sessionID, store.RoleInternal, "reasoning", completion.Text, nil); err != nil {
			span.SetStatus(codes.Error, "persist reasoning failed")
			return false, fmt.Errorf("agentloop: persist reasoning: %w", err)
		}
	}

	if len(completion.ToolCalls) == 0 {
		span.SetStatus(codes.Ok, "no tool call, safety net")
		metrics.TurnsTotal.WithLabelValues("safety_net").Inc()
		return true, l.emitSafetyNetApology(ctx, sessionID, emit)
	}

	call := completion.ToolCalls[0]
	span.SetAttributes(attribute.String("tool.name", string(call.Name)))

	if call.Name == tools.Finalize {
		span.SetStatus(codes.Ok, "finalize")
		metrics.TurnsTotal.WithLabelValues("finalize").Inc()
		metrics.ToolCallsTotal.WithLabelValues(string(call.Name), "ok").Inc()
		return true, l.finalize(ctx, sessionID, executor, call, emit)
	}

	if call.Name == tools.SQLQuery {
		if desc, ok := call.Input["description"].(string); ok && desc != "" {
			emit.Emit(Event{Type: "status", Text: desc})
		}
	}

	outcome, err := executor.Execute(ctx, call.Name, call.Input)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			span.SetStatus(codes.Error, "cancelled")
			return false, ErrTurnCancelled
		}
		metrics.ToolCallsTotal.WithLabelValues(string(call.Name), "error").Inc()
		span.SetStatus(codes.Error, "tool execution failed")
		return false, fmt.Errorf("agentloop: tool execution: %w", err)
	}
	if outcome.IsError {
		metrics.ToolCallsTotal.WithLabelValues(string(call.Name), "tool_error").Inc()
	} else {
		metrics.ToolCallsTotal.WithLabelValues(string(call.Name), "ok").Inc()
	}

	if _, err := l.persistOutcome(ctx, sessionID, outcome); err != nil {
		span.SetStatus(codes.Error, "persist outcome failed")
		return false, err
	}
	emitOutcome(emit, outcome)
	span.SetStatus(codes.Ok, "tool call complete")
	return false, nil
}

func (l *Loop) buildHistory(ctx context.Context, sessionID, systemPrompt string) ([]llmclient.Message, error) {
	messages, err := l.store.ListMessagesForContext(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("agentloop: load history: %w", err)
	}

	turnMessages := make([]contextbuilder.TurnMessage, 0, len(messages))
	for _, m := range messages {
		role := llmclient.RoleUser
		if m.Role == store.RoleAssistant || m.Role == store.RoleInternal {
			role = llmclient.RoleAssistant
		}
		turnMessages = append(turnMessages, contextbuilder.TurnMessage{Role: role, Kind: m.Kind, Text: m.Body})
	}

	flat := contextbuilder.FlattenForLLM(turnMessages)
	return l.builder.TruncateToBudget(flat, systemPrompt), nil
}

func (l *Loop) persistOutcome(ctx context.Context, sessionID string, outcome tools.Outcome) (string, error) {
	if outcome.IsError {
		_, err := l.store.AppendMessage(ctx, sessionID, store.RoleAssistant, outcome.Kind, outcome.ErrorText, outcome.Payload)
		return outcome.ErrorText, err
	}
	_, err := l.store.AppendMessage(ctx, sessionID, store.RoleAssistant, outcome.Kind, outcome.Text, outcome.Payload)
	return outcome.Text, err
}

// emitOutcome dispatches on outcome.Kind first, regardless of IsError, so
// a failed sql_query still surfaces as a query_result (with is_error set)
// rather than a bare error event — the LLM sees the failure as a tool
// result it can self-correct from, and the client sees it in the same
// event shape as a successful query. Only a kind with no visible event
// form falls back to a generic error.
func emitOutcome(emit Emitter, outcome tools.Outcome) {
	text := outcome.Text
	if outcome.IsError {
		text = outcome.ErrorText
	}
	switch outcome.Kind {
	case "query_result":
		emit.Emit(Event{Type: "query_result", Text: text, Payload: outcome.Payload})
	case "table":
		emit.Emit(Event{Type: "table", Text: text, Payload: outcome.Payload})
	case "plot":
		emit.Emit(Event{Type: "plot", Text: text, Payload: outcome.Payload})
	case "text":
		emit.Emit(Event{Type: "text", Text: text})
	default:
		emit.Emit(Event{Type: "error", Text: text})
	}
}

func (l *Loop) finalize(ctx context.Context, sessionID string, executor *tools.Executor, call llmclient.ToolCall, emit Emitter) error {
	outcome, err := executor.Execute(ctx, tools.Finalize, call.Input)
	if err != nil {
		return fmt.Errorf("agentloop: finalize: %w", err)
	}
	if outcome.FinalizeTitle != nil {
		if err := l.store.SetTitleIfUnset(ctx, sessionID, *outcome.FinalizeTitle); err != nil {
			return fmt.Errorf("agentloop: set title: %w", err)
		}
		session, err := l.store.GetSession(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("agentloop: reload session: %w", err)
		}
		if session.Title == *outcome.FinalizeTitle {
			emit.Emit(Event{Type: "session_update", Payload: map[string]any{"title": session.Title}})
		}
	}
	emit.Emit(Event{Type: "done"})
	return nil
}

func (l *Loop) emitSafetyNetApology(ctx context.Context, sessionID string, emit Emitter) error {
	const apology = "I wasn't able to determine a next step for that request. Could you rephrase or ask something more specific about the dataset?"
	if _, err := l.store.AppendMessage(ctx, sessionID, store.RoleAssistant, "text", apology, nil); err != nil {
		return fmt.Errorf("agentloop: persist safety-net message: %w", err)
	}
	emit.Emit(Event{Type: "text", Text: apology})
	emit.Emit(Event{Type: "done"})
	return nil
}
