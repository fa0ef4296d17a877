// Copyright (c) 2026 the datachat authors.
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE for details.

// Package tools implements C2 Tool Registry: the fixed, five-member tool
// surface the agent loop exposes to the LLM. Unlike the open, dynamically
// extensible tool registries this was grounded on, the set here is closed
// at construction — Execute is a tagged-variant switch over the fixed Name
// constants, not a name-keyed map of pluggable handlers, matching the closed-
// dispatch design this system calls for.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/datachat-oss/datachat/internal/query"
)

// Name identifies one of the five fixed tools.
type Name string

const (
	SQLQuery    Name = "sql_query"
	OutputText  Name = "output_text"
	OutputTable Name = "output_table"
	CreatePlot  Name = "create_plot"
	Finalize    Name = "finalize"
)

var (
	ErrUnknownTool      = errors.New("tools: unknown tool")
	ErrValidationFailed = errors.New("tools: invalid tool input")
	ErrTimeout          = errors.New("tools: execution timed out")
)

// Definition is the JSON-schema shape advertised to the LLM. Both the
// Anthropic and OpenAI backends convert this into their own tool-call
// wire format at call time.
type Definition struct {
	Name        Name           `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// Definitions returns the fixed tool surface, in a stable order.
func Definitions() []Definition {
	return []Definition{
		{
			Name: SQLQuery,
			Description: "Execute a read-only SQL query against the dataset. " +
				"The table is named `data`. Only SELECT statements are allowed.",
			InputSchema: schema(
				prop("query", "string", "SQL query (SELECT only)"),
				prop("description", "string", "Present-progressive status shown to the user while this runs, e.g. 'Counting null values per column...'"),
			).required("query", "description"),
		},
		{
			Name:        OutputText,
			Description: "Send a text message to the user. Use for explanations, insights, and summaries.",
			InputSchema: schema(
				prop("text", "string", "Markdown-formatted text"),
			).required("text"),
		},
		{
			Name:        OutputTable,
			Description: "Display a structured table to the user.",
			InputSchema: schema(
				prop("title", "string", "Table title"),
				propArray("headers", "string", "Column headers"),
				propArrayOfArrays("rows", "Row data, each row an array of values"),
			).required("title", "headers", "rows"),
		},
		{
			Name: CreatePlot,
			Description: "Create a visualization using a Vega-Lite v5 JSON specification. " +
				"Include the data inline as spec.data.values (an array of row objects). " +
				"Always aggregate with sql_query first — keep data.values under the plot row cap.",
			InputSchema: schema(
				prop("title", "string", "Chart title"),
				propObject("spec", "Vega-Lite v5 spec with inline data.values"),
			).required("title", "spec"),
		},
		{
			Name:        Finalize,
			Description: "End the current turn. Call this once you have fully answered the user's question.",
			InputSchema: schema(
				propNullableString("session_title", "Short descriptive title, set only after an initial-analysis turn; omit or pass null otherwise"),
			),
		},
	}
}

// Outcome is the pure-computation result of executing one tool call: what
// happened, and what the agent loop should persist and emit. Execute
// never touches the message store or the event transport directly — the
// agent loop owns sequencing those side effects.
type Outcome struct {
	Kind      string // message kind: query_result | text | table | plot | (empty for finalize)
	Status    string // present-progressive status to show before running, sql_query only
	Text      string // chat-bubble text, or title for table/plot
	Payload   map[string]any
	IsError   bool
	ErrorText string

	// FinalizeTitle is non-nil only for a finalize call that requested a
	// session title.
	FinalizeTitle *string
}

// Executor runs validated tool calls against one session's query engine.
type Executor struct {
	engine     *query.Engine
	plotRowCap int
}

// NewExecutor builds an Executor bound to a session's engine.
func NewExecutor(engine *query.Engine, plotRowCap int) *Executor {
	return &Executor{engine: engine, plotRowCap: plotRowCap}
}

// Execute dispatches one tool call by name. ctx bounds the whole call;
// sql_query additionally enforces the engine's own query timeout.
func (e *Executor) Execute(ctx context.Context, name Name, input map[string]any) (Outcome, error) {
	switch name {
	case SQLQuery:
		return e.execSQLQuery(ctx, input)
	case OutputText:
		return e.execOutputText(input)
	case OutputTable:
		return e.execOutputTable(input)
	case CreatePlot:
		return e.execCreatePlot(input)
	case Finalize:
		return e.execFinalize(input)
	default:
		// An unknown tool name is a policy violation (spec: "unknown tool
		// name from LLM"), not a resource failure — feed it back into the
		// loop as a recoverable outcome so the model can self-correct on
		// its next turn instead of aborting the whole turn.
		return Outcome{
			Kind: "text", IsError: true,
			ErrorText: fmt.Sprintf("%s: %q", ErrUnknownTool, name),
		}, nil
	}
}

func (e *Executor) execSQLQuery(ctx context.Context, input map[string]any) (Outcome, error) {
	q, ok := stringField(input, "query")
	if !ok {
		return Outcome{}, fmt.Errorf("%w: sql_query requires \"query\"", ErrValidationFailed)
	}
	desc, _ := stringField(input, "description")

	result, err := e.engine.Run(ctx, q)
	if err != nil {
		errText := err.Error()
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, query.ErrTimeout) {
			errText = "query timed out"
		}
		return Outcome{
			Kind: "query_result", Status: desc, IsError: true,
			ErrorText: errText,
			Payload: map[string]any{
				"query":     q,
				"columns":   []string{},
				"rows":      [][]any{},
				"row_count": 0,
				"is_error":  true,
			},
		}, nil
	}

	return Outcome{
		Kind:   "query_result",
		Status: desc,
		Text:   desc,
		Payload: map[string]any{
			"query":     q,
			"columns":   result.Columns,
			"rows":      result.Rows,
			"row_count": result.RowCount,
			"truncated": result.Truncated,
			"is_error":  false,
		},
	}, nil
}

func (e *Executor) execOutputText(input map[string]any) (Outcome, error) {
	text, ok := stringField(input, "text")
	if !ok {
		return Outcome{}, fmt.Errorf("%w: output_text requires \"text\"", ErrValidationFailed)
	}
	return Outcome{Kind: "text", Text: text}, nil
}

func (e *Executor) execOutputTable(input map[string]any) (Outcome, error) {
	title, ok := stringField(input, "title")
	if !ok {
		return Outcome{}, fmt.Errorf("%w: output_table requires \"title\"", ErrValidationFailed)
	}
	headers, _ := input["headers"].([]any)
	rows, _ := input["rows"].([]any)

	return Outcome{
		Kind: "table",
		Text: title,
		Payload: map[string]any{
			"title":   title,
			"headers": headers,
			"rows":    rows,
		},
	}, nil
}

// vegaLiteChartTypeKeys are the top-level Vega-Lite v5 keys that mark a
// spec as a recognized single-view or composed chart, per the schema
// advertised in Definitions() (single-view "mark", or one of the
// composition operators).
var vegaLiteChartTypeKeys = []string{"mark", "layer", "facet", "hconcat", "vconcat", "concat", "repeat"}

func (e *Executor) execCreatePlot(input map[string]any) (Outcome, error) {
	title, ok := stringField(input, "title")
	if !ok {
		return Outcome{}, fmt.Errorf("%w: create_plot requires \"title\"", ErrValidationFailed)
	}
	spec, ok := input["spec"].(map[string]any)
	if !ok {
		return Outcome{}, fmt.Errorf("%w: create_plot requires \"spec\" to be an object", ErrValidationFailed)
	}
	if !hasChartTypeDiscriminator(spec) {
		return Outcome{}, fmt.Errorf("%w: create_plot's \"spec\" is missing a recognized chart-type field (one of %v)", ErrValidationFailed, vegaLiteChartTypeKeys)
	}

	truncateVegaLiteValues(spec, e.plotRowCap)

	return Outcome{
		Kind: "plot",
		Text: title,
		Payload: map[string]any{
			"title": title,
			"spec":  spec,
		},
	}, nil
}

func (e *Executor) execFinalize(input map[string]any) (Outcome, error) {
	var title *string
	if raw, present := input["session_title"]; present && raw != nil {
		if s, ok := raw.(string); ok && s != "" {
			title = &s
		}
	}
	return Outcome{FinalizeTitle: title}, nil
}

// hasChartTypeDiscriminator reports whether spec carries one of the
// top-level keys Vega-Lite v5 uses to identify a view: "mark" for a
// single view, or one of the view-composition operators for a compound
// chart.
func hasChartTypeDiscriminator(spec map[string]any) bool {
	for _, key := range vegaLiteChartTypeKeys {
		if _, ok := spec[key]; ok {
			return true
		}
	}
	return false
}

// truncateVegaLiteValues caps spec["data"]["values"] at rowCap entries in
// place, following the Vega-Lite v5 data.values convention (an array of
// row objects) rather than the Plotly-shaped trace-array truncation this
// tool's original implementation mistakenly used — the tool's own
// declared schema has always described Vega-Lite, so that is the
// contract honored here.
func truncateVegaLiteValues(spec map[string]any, rowCap int) {
	data, ok := spec["data"].(map[string]any)
	if !ok {
		return
	}
	values, ok := data["values"].([]any)
	if !ok || len(values) <= rowCap {
		return
	}
	data["values"] = values[:rowCap]
}

func stringField(m map[string]any, key string) (string, bool) {
	v, ok := m[key].(string)
	return v, ok
}

// --- JSON schema builder helpers, kept minimal and dependency-free ---

type schemaBuilder map[string]any

func schema(props ...map[string]any) schemaBuilder {
	merged := map[string]any{}
	for _, p := range props {
		for k, v := range p {
			merged[k] = v
		}
	}
	return schemaBuilder{
		"type":       "object",
		"properties": merged,
	}
}

func (s schemaBuilder) required(names ...string) map[string]any {
	s["required"] = names
	return s
}

func prop(name, jsonType, description string) map[string]any {
	return map[string]any{name: map[string]any{"type": jsonType, "description": description}}
}

func propNullableString(name, description string) map[string]any {
	return map[string]any{name: map[string]any{"type": []string{"string", "null"}, "description": description}}
}

func propArray(name, itemType, description string) map[string]any {
	return map[string]any{name: map[string]any{
		"type":        "array",
		"items":       map[string]any{"type": itemType},
		"description": description,
	}}
}

func propArrayOfArrays(name, description string) map[string]any {
	return map[string]any{name: map[string]any{
		"type":        "array",
		"items":       map[string]any{"type": "array"},
		"description": description,
	}}
}

func propObject(name, description string) map[string]any {
	return map[string]any{name: map[string]any{"type": "object", "description": description}}
}

// MarshalDefinitions is a convenience for backends that need the raw JSON
// schema (e.g. to round-trip into a provider SDK's own tool struct).
func MarshalDefinitions() ([]byte, error) {
	return json.Marshal(Definitions())
}
