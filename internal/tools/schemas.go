package tools

// Common JSON Schema building blocks

// StringSchema creates a JSON schema for a string field
func StringSchema(description string) map[string]any {
	return map[string]any{
		"type":        "string",
		"description": description,
	}
}

// IntegerSchema creates a JSON schema for an integer field with optional min/max
func IntegerSchema(description string, min, max *int) map[string]any {
	schema := map[string]any{
		"type":        "integer",
		"description": description,
	}
	if min != nil {
		schema["minimum"] = *min
	}
	if max != nil {
		schema["maximum"] = *max
	}
	return schema
}

// EnumSchema creates a JSON schema for an enum field
func EnumSchema(description string, values []string) map[string]any {
	return map[string]any{
		"type":        "string",
		"description": description,
		"enum":        values,
	}
}

// Tool input schemas

func SearchPatternsSchema() map[string]any {
	one := 1
	fifty := 50
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query":    StringSchema("Search terms matched against pattern titles, descriptions, and tags"),
			"category": StringSchema("Restrict results to a single category (see list_categories)"),
			"limit":    IntegerSchema("Maximum number of results to return", &one, &fifty),
		},
		"required": []string{"query"},
	}
}

func GetPatternSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"id": StringSchema("Pattern identifier, e.g. from a search_patterns result"),
		},
		"required": []string{"id"},
	}
}

func AnalyzeCodeSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"code":     StringSchema("Source code to analyze for anti-patterns"),
			"language": EnumSchema("Source language of the snippet", []string{"typescript", "javascript"}),
		},
		"required": []string{"code"},
	}
}

func ListCategoriesSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}
