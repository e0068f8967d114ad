package tools

// RegisterAllTools registers all available tools with the registry
func RegisterAllTools(r *Registry) {
	r.MustRegister(ToolDefinition{
		Name:         "search_patterns",
		Description:  "Search Effect patterns by keyword, optionally filtered by category",
		InputSchema:  SearchPatternsSchema(),
		RelatedTools: []string{"get_pattern", "list_categories"},
	}, HandleSearchPatterns)

	r.MustRegister(ToolDefinition{
		Name:         "get_pattern",
		Description:  "Retrieve a single Effect pattern with its full description and code example",
		InputSchema:  GetPatternSchema(),
		RelatedTools: []string{"search_patterns", "analyze_code"},
	}, HandleGetPattern)

	r.MustRegister(ToolDefinition{
		Name:         "analyze_code",
		Description:  "Analyze a code snippet for Effect anti-patterns and suggest fixes",
		InputSchema:  AnalyzeCodeSchema(),
		RelatedTools: []string{"get_pattern", "search_patterns"},
	}, HandleAnalyzeCode)

	r.MustRegister(ToolDefinition{
		Name:         "list_categories",
		Description:  "List all pattern categories with the number of patterns in each",
		InputSchema:  ListCategoriesSchema(),
		RelatedTools: []string{"search_patterns"},
	}, HandleListCategories)
}
