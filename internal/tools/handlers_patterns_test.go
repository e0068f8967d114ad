package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/effect-patterns/mcp-gateway/internal/client"
	"github.com/rs/zerolog"
)

type stubAPI struct {
	getFn  func(endpoint string) (*client.Result, error)
	postFn func(endpoint string, body any) (*client.Result, error)
}

func (s *stubAPI) Get(_ context.Context, endpoint string) (*client.Result, error) {
	return s.getFn(endpoint)
}

func (s *stubAPI) Post(_ context.Context, endpoint string, body any) (*client.Result, error) {
	return s.postFn(endpoint, body)
}

func testToolContext(api *stubAPI) *ToolContext {
	logger := zerolog.Nop()
	return NewToolContext(&logger, "session-1", api)
}

func okResult(data string) *client.Result {
	return &client.Result{Status: 200, Data: json.RawMessage(data), Raw: json.RawMessage(data)}
}

func TestHandleSearchPatterns(t *testing.T) {
	var gotEndpoint string
	api := &stubAPI{getFn: func(endpoint string) (*client.Result, error) {
		gotEndpoint = endpoint
		return okResult(`[
			{"id":"retry-with-backoff","title":"Retry With Backoff","description":"Retry transient failures.","category":"resilience"},
			{"id":"timeout-wrapper","title":"Timeout Wrapper","description":"Bound every effect.","category":"resilience"}
		]`), nil
	}}

	args := json.RawMessage(`{"query":"retry","category":"resilience"}`)
	result, err := HandleSearchPatterns(context.Background(), testToolContext(api), args)
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}

	if !strings.Contains(gotEndpoint, "/patterns?") || !strings.Contains(gotEndpoint, "q=retry") || !strings.Contains(gotEndpoint, "category=resilience") {
		t.Errorf("endpoint = %q", gotEndpoint)
	}
	if len(result.Content) != 2 {
		t.Fatalf("content blocks = %d, want markdown + metadata", len(result.Content))
	}

	text := result.Content[0].Text
	if !strings.Contains(text, "# Pattern Search Results") {
		t.Error("missing top-level header")
	}
	if !strings.Contains(text, "## 1. Retry With Backoff") || !strings.Contains(text, "## 2. Timeout Wrapper") {
		t.Errorf("missing result cards:\n%s", text)
	}

	var meta Metadata
	if err := json.Unmarshal([]byte(result.Content[1].Text), &meta); err != nil {
		t.Fatalf("metadata block is not JSON: %v", err)
	}
	if meta.Tool != "search_patterns" || meta.Counts["results"] != 2 {
		t.Errorf("metadata = %+v", meta)
	}
}

func TestHandleSearchPatterns_CapsCards(t *testing.T) {
	var patterns []Pattern
	for i := 0; i < 15; i++ {
		patterns = append(patterns, Pattern{
			ID:       fmt.Sprintf("p%d", i),
			Title:    fmt.Sprintf("Pattern %d", i),
			Category: "misc",
		})
	}
	encoded, _ := json.Marshal(map[string]any{"patterns": patterns})

	api := &stubAPI{getFn: func(string) (*client.Result, error) {
		return okResult(string(encoded)), nil
	}}

	result, err := HandleSearchPatterns(context.Background(), testToolContext(api), json.RawMessage(`{"query":"x"}`))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}

	text := result.Content[0].Text
	if got := strings.Count(text, "\n## "); got != maxPatternCards {
		t.Errorf("rendered %d cards, want %d", got, maxPatternCards)
	}

	var meta Metadata
	json.Unmarshal([]byte(result.Content[1].Text), &meta)
	if meta.Counts["results"] != 15 || meta.Counts["shown"] != maxPatternCards {
		t.Errorf("counts = %v", meta.Counts)
	}
}

func TestHandleSearchPatterns_Validation(t *testing.T) {
	tests := []struct {
		name string
		args string
	}{
		{"missing query", `{}`},
		{"blank query", `{"query":"  "}`},
		{"limit too high", `{"query":"x","limit":51}`},
		{"limit zero", `{"query":"x","limit":0}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := HandleSearchPatterns(context.Background(), testToolContext(&stubAPI{}), json.RawMessage(tt.args))
			toolErr, ok := err.(*ToolError)
			if !ok || toolErr.Code != ErrCodeInvalidParams {
				t.Errorf("err = %v, want INVALID_PARAMS", err)
			}
		})
	}
}

func TestHandleGetPattern(t *testing.T) {
	codeLines := make([]string, 30)
	for i := range codeLines {
		codeLines[i] = fmt.Sprintf("const line%d = %d", i, i)
	}
	doc, _ := json.Marshal(Pattern{
		ID:          "retry-with-backoff",
		Title:       "Retry With Backoff",
		Description: "Retry transient failures with exponential backoff.",
		Category:    "resilience",
		Tags:        []string{"retry", "schedule"},
		CodeExample: strings.Join(codeLines, "\n"),
		Related:     []string{"timeout-wrapper"},
	})

	var gotEndpoint string
	api := &stubAPI{getFn: func(endpoint string) (*client.Result, error) {
		gotEndpoint = endpoint
		return okResult(string(doc)), nil
	}}

	result, err := HandleGetPattern(context.Background(), testToolContext(api), json.RawMessage(`{"id":"retry-with-backoff"}`))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if gotEndpoint != "/patterns/retry-with-backoff" {
		t.Errorf("endpoint = %q", gotEndpoint)
	}

	text := result.Content[0].Text
	if !strings.Contains(text, "# Retry With Backoff") {
		t.Error("missing title header")
	}
	if !strings.Contains(text, "## Example") || !strings.Contains(text, "```typescript") {
		t.Error("missing code example section")
	}
	if !strings.Contains(text, "// ...") {
		t.Error("long code example not truncated")
	}
	if !strings.Contains(text, "## Related Patterns") || !strings.Contains(text, "- timeout-wrapper") {
		t.Error("missing related patterns section")
	}
}

func TestHandleGetPattern_InvalidID(t *testing.T) {
	for _, id := range []string{"", "  ", "a/b", "a?b"} {
		args, _ := json.Marshal(map[string]string{"id": id})
		_, err := HandleGetPattern(context.Background(), testToolContext(&stubAPI{}), args)
		toolErr, ok := err.(*ToolError)
		if !ok || toolErr.Code != ErrCodeInvalidParams {
			t.Errorf("id %q: err = %v, want INVALID_PARAMS", id, err)
		}
	}
}

func TestHandleAnalyzeCode(t *testing.T) {
	api := &stubAPI{postFn: func(endpoint string, body any) (*client.Result, error) {
		if endpoint != "/analyze" {
			t.Errorf("endpoint = %q", endpoint)
		}
		return okResult(`{
			"findings": [
				{"severity":"low","message":"Prefer pipe syntax","line":3},
				{"severity":"high","message":"Unhandled failure channel","patternId":"handle-errors","line":10,"suggestion":"Add a catchAll."},
				{"severity":"medium","message":"Nested flatMap","line":7}
			]
		}`), nil
	}}

	result, err := HandleAnalyzeCode(context.Background(), testToolContext(api), json.RawMessage(`{"code":"const x = 1","language":"typescript"}`))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}

	text := result.Content[0].Text
	highIdx := strings.Index(text, "## High Severity")
	mediumIdx := strings.Index(text, "## Medium Severity")
	lowIdx := strings.Index(text, "## Low Severity")
	if highIdx < 0 || mediumIdx < 0 || lowIdx < 0 {
		t.Fatalf("missing severity sections:\n%s", text)
	}
	if !(highIdx < mediumIdx && mediumIdx < lowIdx) {
		t.Error("severity sections out of order")
	}
	if !strings.Contains(text, "pattern `handle-errors`") {
		t.Error("finding missing pattern reference")
	}

	var meta Metadata
	json.Unmarshal([]byte(result.Content[1].Text), &meta)
	if meta.Counts["findings"] != 3 {
		t.Errorf("findings count = %d", meta.Counts["findings"])
	}
	if meta.SeverityBreakdown["high"] != 1 || meta.SeverityBreakdown["medium"] != 1 || meta.SeverityBreakdown["low"] != 1 {
		t.Errorf("severity breakdown = %v", meta.SeverityBreakdown)
	}
}

func TestHandleListCategories(t *testing.T) {
	t.Run("object array", func(t *testing.T) {
		api := &stubAPI{getFn: func(endpoint string) (*client.Result, error) {
			if endpoint != "/patterns/categories" {
				t.Errorf("endpoint = %q", endpoint)
			}
			return okResult(`[{"name":"resilience","count":12},{"name":"concurrency","count":8}]`), nil
		}}

		result, err := HandleListCategories(context.Background(), testToolContext(api), nil)
		if err != nil {
			t.Fatalf("handler error: %v", err)
		}
		text := result.Content[0].Text
		if !strings.Contains(text, "**resilience** (12 patterns)") {
			t.Errorf("missing category line:\n%s", text)
		}
	})

	t.Run("string array", func(t *testing.T) {
		api := &stubAPI{getFn: func(string) (*client.Result, error) {
			return okResult(`["resilience","concurrency"]`), nil
		}}

		result, err := HandleListCategories(context.Background(), testToolContext(api), nil)
		if err != nil {
			t.Fatalf("handler error: %v", err)
		}
		if !strings.Contains(result.Content[0].Text, "**concurrency**") {
			t.Error("missing category from string-array response")
		}
	})
}

func TestHandleGetPattern_NotFound(t *testing.T) {
	api := &stubAPI{getFn: func(string) (*client.Result, error) {
		return nil, &client.APIError{Status: 404, Message: "pattern not found"}
	}}

	_, err := HandleGetPattern(context.Background(), testToolContext(api), json.RawMessage(`{"id":"nope"}`))
	toolErr, ok := err.(*ToolError)
	if !ok || toolErr.Code != ErrCodeNotFound {
		t.Errorf("err = %v, want NOT_FOUND", err)
	}
}
