// Copyright (c) 2026 the datachat authors.
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE for details.

// Package contextbuilder implements C3 Context Builder: turning a
// session's dataset profile and message history into the system prompt
// and token-budgeted transcript the Agent Loop hands to an LLM backend.
package contextbuilder

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/datachat-oss/datachat/internal/dataset"
	"github.com/datachat-oss/datachat/internal/llmclient"
)

// DefaultMaxContextTokens is used when a Builder is constructed with
// maxTokens <= 0.
const DefaultMaxContextTokens = 8000

const encodingName = "cl100k_base"

const promptInitialAnalysis = `You are a data analysis assistant working with a dataset a user just uploaded.

%s

Give the user a first look: a short summary of what the dataset contains, anything notable about data quality (missing values, obvious outliers), and two or three questions worth exploring next. Use sql_query to check anything you state as fact rather than guessing from the summary alone. When you are done, call finalize with a short session_title.`

const promptFollowUp = `You are continuing a data analysis conversation about the dataset below.

%s

Answer the user's latest message. Use sql_query to compute anything you report as fact. Use output_table or create_plot when a table or chart would communicate the answer better than prose. Call finalize once you have fully answered. A session_title is applied only if the session has no title yet, so there is no need to pass one again.`

// PromptInitialAnalysis returns the system prompt for a session's first
// turn, with the dataset summary embedded.
func PromptInitialAnalysis(profile dataset.Profile) string {
	return fmt.Sprintf(promptInitialAnalysis, BuildDataSummary(profile))
}

// PromptFollowUp returns the system prompt for every turn after the first.
func PromptFollowUp(profile dataset.Profile) string {
	return fmt.Sprintf(promptFollowUp, BuildDataSummary(profile))
}

// BuildDataSummary renders profile into the prose block both prompt
// variants embed: table shape, then one line per column with type, null
// ratio, cardinality, numeric range where known, and sample values.
func BuildDataSummary(profile dataset.Profile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Table: data\nRows: %d\nColumns: %d\n\n", profile.RowCount, profile.ColumnCount)
	for _, col := range profile.Columns {
		fmt.Fprintf(&b, "- %s: %s, %d nulls (%s), %d unique",
			col.Name, col.Type, col.NullCount, col.NullRatioBucket, col.UniqueCount)
		if col.Min != nil && col.Max != nil {
			fmt.Fprintf(&b, ", range %.4g-%.4g", *col.Min, *col.Max)
		}
		if col.Mean != nil {
			fmt.Fprintf(&b, ", mean %.4g", *col.Mean)
		}
		if len(col.SampleValues) > 0 {
			fmt.Fprintf(&b, ", examples: %s", strings.Join(col.SampleValues, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// FlatEntry is one line of the flattened transcript before it is packed
// into llmclient.Message history.
type FlatEntry struct {
	Role llmclient.Role
	Text string
}

// TurnMessage is one persisted message the caller wants flattened.
// Kind mirrors internal/tools.Outcome.Kind plus "reasoning" for the
// model's own narration and "user" for the human's input.
type TurnMessage struct {
	Role llmclient.Role
	Kind string
	Text string
}

// FlattenForLLM turns a session's persisted messages into the flat text
// entries a prompt is built from. reasoning and plot/table messages
// become their own bracketed entry; a query_result concatenates onto
// the immediately preceding assistant-role entry when one exists in the
// same turn, per this implementation's reading of the append-to-prior
// wording.
func FlattenForLLM(messages []TurnMessage) []FlatEntry {
	var out []FlatEntry
	for _, m := range messages {
		switch m.Kind {
		case "reasoning":
			out = appendOrMerge(out, m.Role, fmt.Sprintf("[Internal reasoning]: %s", m.Text))
		case "plot":
			out = appendOrMerge(out, m.Role, fmt.Sprintf("[Plot output]: %s", m.Text))
		case "table":
			out = appendOrMerge(out, m.Role, fmt.Sprintf("[Table output]: %s", m.Text))
		case "query_result":
			if len(out) > 0 && out[len(out)-1].Role == llmclient.RoleAssistant {
				out[len(out)-1].Text += "\n[Query result]: " + m.Text
				continue
			}
			out = append(out, FlatEntry{Role: m.Role, Text: fmt.Sprintf("[Query result]: %s", m.Text)})
		default:
			out = append(out, FlatEntry{Role: m.Role, Text: m.Text})
		}
	}
	return out
}

func appendOrMerge(entries []FlatEntry, role llmclient.Role, text string) []FlatEntry {
	return append(entries, FlatEntry{Role: role, Text: text})
}

// Builder measures and truncates a flattened transcript to fit a token
// budget before it is handed to an llmclient.Client.
type Builder struct {
	enc       *tiktoken.Tiktoken
	maxTokens int
}

// NewBuilder constructs a Builder. maxTokens <= 0 uses DefaultMaxContextTokens.
func NewBuilder(maxTokens int) (*Builder, error) {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxContextTokens
	}
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("contextbuilder: load tokenizer: %w", err)
	}
	return &Builder{enc: enc, maxTokens: maxTokens}, nil
}

// CountTokens returns the tokenizer's token count for text.
func (b *Builder) CountTokens(text string) int {
	return len(b.enc.Encode(text, nil, nil))
}

// TruncateToBudget converts entries into llmclient.Message history that
// fits within the builder's token budget, evicting the oldest entries
// first while always keeping the final entry (the most recent message),
// even when that entry alone exceeds the budget.
func (b *Builder) TruncateToBudget(entries []FlatEntry, systemPrompt string) []llmclient.Message {
	if len(entries) == 0 {
		return nil
	}

	budget := b.maxTokens - b.CountTokens(systemPrompt)
	kept := make([]FlatEntry, len(entries))
	copy(kept, entries)

	total := b.totalTokens(kept)
	for total > budget && len(kept) > 1 {
		total -= b.CountTokens(kept[0].Text)
		kept = kept[1:]
	}

	messages := make([]llmclient.Message, 0, len(kept))
	for _, e := range kept {
		messages = append(messages, llmclient.TextMessage(e.Role, e.Text))
	}
	return messages
}

func (b *Builder) totalTokens(entries []FlatEntry) int {
	sum := 0
	for _, e := range entries {
		sum += b.CountTokens(e.Text)
	}
	return sum
}
