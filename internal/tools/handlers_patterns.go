package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Pattern is the upstream pattern document shape.
type Pattern struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags,omitempty"`
	CodeExample string   `json:"codeExample,omitempty"`
	Related     []string `json:"relatedPatterns,omitempty"`
}

// Finding is a single analysis result from the upstream analyzer.
type Finding struct {
	Severity   string `json:"severity"`
	Message    string `json:"message"`
	PatternID  string `json:"patternId,omitempty"`
	Line       int    `json:"line,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// Category is an upstream category with its pattern count.
type Category struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// search_patterns

type SearchPatternsParams struct {
	Query    string `json:"query"`
	Category string `json:"category,omitempty"`
	Limit    *int   `json:"limit,omitempty"`
}

func (p *SearchPatternsParams) Validate() error {
	if strings.TrimSpace(p.Query) == "" {
		return fmt.Errorf("query is required")
	}
	if p.Limit != nil && (*p.Limit < 1 || *p.Limit > 50) {
		return fmt.Errorf("limit must be between 1 and 50")
	}
	return nil
}

func HandleSearchPatterns(ctx context.Context, tc *ToolContext, raw json.RawMessage) (*CallResult, error) {
	start := time.Now()

	var params SearchPatternsParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, NewToolError(ErrCodeInvalidParams, "Invalid parameters: "+err.Error(), nil)
	}
	if err := params.Validate(); err != nil {
		return nil, NewToolError(ErrCodeInvalidParams, err.Error(), nil)
	}

	q := url.Values{}
	q.Set("q", params.Query)
	if params.Category != "" {
		q.Set("category", params.Category)
	}
	if params.Limit != nil {
		q.Set("limit", strconv.Itoa(*params.Limit))
	}

	result, err := tc.Client.Get(ctx, "/patterns?"+q.Encode())
	if err != nil {
		return nil, WrapAPIError(err)
	}

	patterns, err := decodePatternList(result.Data)
	if err != nil {
		return nil, NewToolError(ErrCodeInternal, "Unexpected search response shape: "+err.Error(), nil)
	}

	md := &markdown{}
	md.Header(1, "Pattern Search Results")
	md.Paraf("Found %d pattern(s) matching %q.", len(patterns), params.Query)

	shown := len(patterns)
	if shown > maxPatternCards {
		shown = maxPatternCards
		md.Paraf("Showing the first %d results.", maxPatternCards)
	}
	for i, p := range patterns[:shown] {
		md.Header(2, fmt.Sprintf("%d. %s", i+1, p.Title))
		md.Para("**ID:** `" + p.ID + "` | **Category:** " + p.Category)
		if p.Description != "" {
			md.Para(p.Description)
		}
	}

	meta := Metadata{
		Tool:            "search_patterns",
		ExecutionTimeMS: time.Since(start).Milliseconds(),
		Counts:          map[string]int{"results": len(patterns), "shown": shown},
		RelatedTools:    []string{"get_pattern", "list_categories"},
		NextSteps:       []string{"Call get_pattern with an ID for the full pattern and code example"},
	}

	return &CallResult{
		Content: []ContentBlock{TextBlock(md.String()), metadataBlock(meta)},
	}, nil
}

// get_pattern

type GetPatternParams struct {
	ID string `json:"id"`
}

func (p *GetPatternParams) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("id is required")
	}
	if strings.ContainsAny(p.ID, "/?#") {
		return fmt.Errorf("id contains invalid characters")
	}
	return nil
}

func HandleGetPattern(ctx context.Context, tc *ToolContext, raw json.RawMessage) (*CallResult, error) {
	start := time.Now()

	var params GetPatternParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, NewToolError(ErrCodeInvalidParams, "Invalid parameters: "+err.Error(), nil)
	}
	if err := params.Validate(); err != nil {
		return nil, NewToolError(ErrCodeInvalidParams, err.Error(), nil)
	}

	result, err := tc.Client.Get(ctx, "/patterns/"+url.PathEscape(params.ID))
	if err != nil {
		return nil, WrapAPIError(err)
	}

	var pattern Pattern
	if err := json.Unmarshal(result.Data, &pattern); err != nil {
		return nil, NewToolError(ErrCodeInternal, "Unexpected pattern response shape: "+err.Error(), nil)
	}

	md := &markdown{}
	md.Header(1, pattern.Title)
	md.Para("**ID:** `" + pattern.ID + "` | **Category:** " + pattern.Category)
	if pattern.Description != "" {
		md.Para(pattern.Description)
	}
	if len(pattern.Tags) > 0 {
		md.Para("**Tags:** " + strings.Join(pattern.Tags, ", "))
	}
	if pattern.CodeExample != "" {
		md.Header(2, "Example")
		md.Code("typescript", pattern.CodeExample)
	}
	if len(pattern.Related) > 0 {
		md.Header(2, "Related Patterns")
		md.List(pattern.Related)
	}

	meta := Metadata{
		Tool:            "get_pattern",
		ExecutionTimeMS: time.Since(start).Milliseconds(),
		Counts:          map[string]int{"relatedPatterns": len(pattern.Related)},
		RelatedTools:    []string{"search_patterns", "analyze_code"},
		NextSteps:       []string{"Use analyze_code to check existing code against this pattern"},
	}

	return &CallResult{
		Content: []ContentBlock{TextBlock(md.String()), metadataBlock(meta)},
	}, nil
}

// analyze_code

type AnalyzeCodeParams struct {
	Code     string `json:"code"`
	Language string `json:"language,omitempty"`
}

func (p *AnalyzeCodeParams) Validate() error {
	if strings.TrimSpace(p.Code) == "" {
		return fmt.Errorf("code is required")
	}
	return nil
}

func HandleAnalyzeCode(ctx context.Context, tc *ToolContext, raw json.RawMessage) (*CallResult, error) {
	start := time.Now()

	var params AnalyzeCodeParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, NewToolError(ErrCodeInvalidParams, "Invalid parameters: "+err.Error(), nil)
	}
	if err := params.Validate(); err != nil {
		return nil, NewToolError(ErrCodeInvalidParams, err.Error(), nil)
	}

	result, err := tc.Client.Post(ctx, "/analyze", map[string]any{
		"code":     params.Code,
		"language": params.Language,
	})
	if err != nil {
		return nil, WrapAPIError(err)
	}

	var analysis struct {
		Findings []Finding `json:"findings"`
		Summary  string    `json:"summary,omitempty"`
	}
	if err := json.Unmarshal(result.Data, &analysis); err != nil {
		return nil, NewToolError(ErrCodeInternal, "Unexpected analysis response shape: "+err.Error(), nil)
	}

	md := &markdown{}
	md.Header(1, "Code Analysis")
	if analysis.Summary != "" {
		md.Para(analysis.Summary)
	} else {
		md.Paraf("Found %d finding(s).", len(analysis.Findings))
	}

	groups := groupBySeverity(analysis.Findings)
	breakdown := make(map[string]int, len(severityOrder))
	for _, severity := range severityOrder {
		findings := groups[severity]
		breakdown[severity] = len(findings)
		if len(findings) == 0 {
			continue
		}

		md.Header(2, titleCase(severity)+" Severity")
		items := make([]string, len(findings))
		for i, f := range findings {
			item := "**" + f.Message + "**"
			if f.Line > 0 {
				item += fmt.Sprintf(" (line %d)", f.Line)
			}
			if f.PatternID != "" {
				item += " (pattern `" + f.PatternID + "`)"
			}
			if f.Suggestion != "" {
				item += "\n  " + f.Suggestion
			}
			items[i] = item
		}
		md.List(items)
	}

	meta := Metadata{
		Tool:              "analyze_code",
		ExecutionTimeMS:   time.Since(start).Milliseconds(),
		Counts:            map[string]int{"findings": len(analysis.Findings)},
		SeverityBreakdown: breakdown,
		RelatedTools:      []string{"get_pattern", "search_patterns"},
		NextSteps:         []string{"Call get_pattern for any flagged pattern id to see the recommended approach"},
	}

	return &CallResult{
		Content: []ContentBlock{TextBlock(md.String()), metadataBlock(meta)},
	}, nil
}

// list_categories

func HandleListCategories(ctx context.Context, tc *ToolContext, raw json.RawMessage) (*CallResult, error) {
	start := time.Now()

	result, err := tc.Client.Get(ctx, "/patterns/categories")
	if err != nil {
		return nil, WrapAPIError(err)
	}

	categories, err := decodeCategories(result.Data)
	if err != nil {
		return nil, NewToolError(ErrCodeInternal, "Unexpected categories response shape: "+err.Error(), nil)
	}

	md := &markdown{}
	md.Header(1, "Pattern Categories")
	items := make([]string, len(categories))
	for i, c := range categories {
		if c.Count > 0 {
			items[i] = fmt.Sprintf("**%s** (%d patterns)", c.Name, c.Count)
		} else {
			items[i] = "**" + c.Name + "**"
		}
	}
	md.List(items)

	meta := Metadata{
		Tool:            "list_categories",
		ExecutionTimeMS: time.Since(start).Milliseconds(),
		Counts:          map[string]int{"categories": len(categories)},
		RelatedTools:    []string{"search_patterns"},
		NextSteps:       []string{"Call search_patterns with a category filter to browse a category"},
	}

	return &CallResult{
		Content: []ContentBlock{TextBlock(md.String()), metadataBlock(meta)},
	}, nil
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// decodePatternList accepts either a bare array or a {patterns: [...]}
// envelope; the upstream has used both shapes.
func decodePatternList(data json.RawMessage) ([]Pattern, error) {
	var patterns []Pattern
	if err := json.Unmarshal(data, &patterns); err == nil {
		return patterns, nil
	}

	var envelope struct {
		Patterns []Pattern `json:"patterns"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, err
	}
	return envelope.Patterns, nil
}

// decodeCategories accepts either [{name, count}] or a bare string array.
func decodeCategories(data json.RawMessage) ([]Category, error) {
	var categories []Category
	if err := json.Unmarshal(data, &categories); err == nil {
		return categories, nil
	}

	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, err
	}
	categories = make([]Category, len(names))
	for i, name := range names {
		categories[i] = Category{Name: name}
	}
	return categories, nil
}
