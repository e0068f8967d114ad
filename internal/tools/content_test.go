package tools

import (
	"fmt"
	"strings"
	"testing"

	"github.com/effect-patterns/mcp-gateway/internal/client"
)

func TestTruncateCode(t *testing.T) {
	short := "line1\nline2"
	if got := truncateCode(short); got != short {
		t.Errorf("short code modified: %q", got)
	}

	var lines []string
	for i := 0; i < 25; i++ {
		lines = append(lines, fmt.Sprintf("line%d", i))
	}
	got := truncateCode(strings.Join(lines, "\n"))

	gotLines := strings.Split(got, "\n")
	if len(gotLines) != maxCodeLines+1 {
		t.Fatalf("truncated to %d lines, want %d plus marker", len(gotLines), maxCodeLines)
	}
	if gotLines[len(gotLines)-1] != "// ..." {
		t.Errorf("last line = %q, want truncation marker", gotLines[len(gotLines)-1])
	}
	if gotLines[maxCodeLines-1] != "line19" {
		t.Errorf("line %d = %q, want line19", maxCodeLines, gotLines[maxCodeLines-1])
	}
}

func TestMarkdown_HeadersSurroundedByBlankLines(t *testing.T) {
	md := &markdown{}
	md.Header(1, "Title")
	md.Para("Some text.")
	md.Header(2, "Section")
	md.Para("More text.")

	out := md.String()
	want := "# Title\n\nSome text.\n\n## Section\n\nMore text."
	if out != want {
		t.Errorf("String() = %q, want %q", out, want)
	}
}

func TestMarkdown_CodeFenceOnOwnLines(t *testing.T) {
	md := &markdown{}
	md.Para("Before.")
	md.Code("typescript", "const x = 1")

	out := md.String()
	if !strings.Contains(out, "Before.\n\n```typescript\nconst x = 1\n```") {
		t.Errorf("fence not isolated:\n%s", out)
	}
}

func TestGroupBySeverity(t *testing.T) {
	findings := []Finding{
		{Severity: "low", Message: "a"},
		{Severity: "HIGH", Message: "b"},
		{Severity: "medium", Message: "c"},
		{Severity: "high", Message: "d"},
		{Severity: "bogus", Message: "e"},
	}

	groups := groupBySeverity(findings)

	high := groups["high"]
	if len(high) != 2 || high[0].Message != "b" || high[1].Message != "d" {
		t.Errorf("high group = %v, want [b d] in input order", high)
	}
	if len(groups["medium"]) != 1 {
		t.Errorf("medium group = %v", groups["medium"])
	}
	// Unrecognized severities fall into low.
	low := groups["low"]
	if len(low) != 2 || low[0].Message != "a" || low[1].Message != "e" {
		t.Errorf("low group = %v, want [a e]", low)
	}
}

func TestErrorResult(t *testing.T) {
	err := WrapAPIError(&client.APIError{
		Status:  503,
		Message: "upstream unavailable",
		Details: &client.ErrorDetails{
			ErrorType: client.ErrorTypeFetch,
			Retryable: true,
		},
	})

	result := errorResult("search_patterns", []string{"get_pattern"}, err)

	if !result.IsError {
		t.Error("IsError not set")
	}
	if len(result.Content) != 1 {
		t.Fatalf("content blocks = %d, want 1", len(result.Content))
	}
	text := result.Content[0].Text
	for _, want := range []string{
		"search_patterns failed",
		"upstream unavailable",
		"**Suggestion:**",
		"retry the call",
		"**Related tools:** get_pattern",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("error block missing %q:\n%s", want, text)
		}
	}
}
