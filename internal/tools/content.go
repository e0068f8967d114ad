package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/effect-patterns/mcp-gateway/internal/client"
)

const (
	// maxCodeLines bounds code examples in Markdown output.
	maxCodeLines = 20

	// maxPatternCards bounds the number of result cards in search output.
	maxPatternCards = 10
)

// severityOrder fixes the ordering of finding groups.
var severityOrder = []string{"high", "medium", "low"}

// markdown assembles a Markdown document from blocks. Blocks are joined
// with blank lines, so headers, fences, and rules always sit on their own
// lines with blank lines around them.
type markdown struct {
	blocks []string
}

func (m *markdown) Header(level int, text string) {
	m.blocks = append(m.blocks, strings.Repeat("#", level)+" "+text)
}

func (m *markdown) Para(text string) {
	m.blocks = append(m.blocks, text)
}

func (m *markdown) Paraf(format string, args ...any) {
	m.blocks = append(m.blocks, fmt.Sprintf(format, args...))
}

// List renders items as a single bullet-list block.
func (m *markdown) List(items []string) {
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = "- " + item
	}
	m.blocks = append(m.blocks, strings.Join(lines, "\n"))
}

// Code renders a fenced code block, truncated to maxCodeLines.
func (m *markdown) Code(lang, code string) {
	m.blocks = append(m.blocks, "```"+lang+"\n"+truncateCode(code)+"\n```")
}

func (m *markdown) Rule() {
	m.blocks = append(m.blocks, "---")
}

func (m *markdown) String() string {
	return strings.Join(m.blocks, "\n\n")
}

// truncateCode caps a code example at maxCodeLines, appending a marker
// when lines were dropped.
func truncateCode(code string) string {
	code = strings.TrimRight(code, "\n")
	lines := strings.Split(code, "\n")
	if len(lines) <= maxCodeLines {
		return code
	}
	return strings.Join(lines[:maxCodeLines], "\n") + "\n// ..."
}

// groupBySeverity buckets findings into high, medium, low groups. Order
// within a group follows the input; unrecognized severities land in low.
func groupBySeverity(findings []Finding) map[string][]Finding {
	groups := make(map[string][]Finding)
	for _, f := range findings {
		severity := strings.ToLower(f.Severity)
		switch severity {
		case "high", "medium", "low":
		default:
			severity = "low"
		}
		groups[severity] = append(groups[severity], f)
	}
	return groups
}

// Metadata is the JSON block appended after the Markdown content.
type Metadata struct {
	Tool              string         `json:"tool"`
	ExecutionTimeMS   int64          `json:"executionTimeMs"`
	Counts            map[string]int `json:"counts,omitempty"`
	SeverityBreakdown map[string]int `json:"severityBreakdown,omitempty"`
	RelatedTools      []string       `json:"relatedTools,omitempty"`
	NextSteps         []string       `json:"nextSteps,omitempty"`
}

func metadataBlock(meta Metadata) ContentBlock {
	encoded, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		encoded = []byte(`{"tool":` + fmt.Sprintf("%q", meta.Tool) + `}`)
	}
	return TextBlock(string(encoded))
}

// errorResult renders a failed tool call as a user-visible Markdown block
// with the cause, a suggestion, and related tools.
func errorResult(toolName string, relatedTools []string, err error) *CallResult {
	md := &markdown{}
	md.Header(2, toolName+" failed")
	md.Para(errorCause(err))
	md.Para("**Suggestion:** " + errorSuggestion(err))
	if len(relatedTools) > 0 {
		md.Para("**Related tools:** " + strings.Join(relatedTools, ", "))
	}

	return &CallResult{
		Content: []ContentBlock{TextBlock(md.String())},
		IsError: true,
	}
}

func errorCause(err error) string {
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return toolErr.Message
	}
	return err.Error()
}

func errorSuggestion(err error) string {
	var toolErr *ToolError
	if !errors.As(err, &toolErr) {
		return "Retry the call; if the failure persists, check the gateway logs."
	}

	switch toolErr.Code {
	case ErrCodeInvalidParams:
		return "Check the tool's input schema and correct the arguments."
	case ErrCodeNotFound:
		return "Verify the pattern id; use search_patterns to find valid ids."
	case ErrCodeUpstream:
		if retryable, _ := toolErr.Data["retryable"].(bool); retryable {
			return "The upstream request failed transiently; retry the call."
		}
		if errType, _ := toolErr.Data["errorType"].(string); errType == string(client.ErrorTypeTLS) {
			return "TLS negotiation with the upstream API failed; check EFFECT_PATTERNS_API_URL."
		}
		return "The upstream API rejected the request; check the gateway's API key configuration."
	default:
		return "Retry the call; if the failure persists, check the gateway logs."
	}
}
