// Tool catalog.
//
// Information Hiding:
// - Which concrete tools exist and how they are constructed for listing

package tools

// Catalog returns one instance of every tool this package provides.
func Catalog() []Tool {
	return []Tool{
		NewTavilySearchTool(DefaultTavilyConfig()),
		NewNewsFeedSearchTool("", 0),
		NewArticleScrapeTool(0, 0),
		NewReasoningTool(),
	}
}

// ToolCatalog lists the metadata of every tool, sorted by name.
func ToolCatalog() []ToolMetadata {
	r, err := NewRegistryWith(Catalog()...)
	if err != nil {
		return nil
	}
	return r.List()
}

// NewSearchTool returns the web search tool for backend "tavily" or the
// news feed tool for "news". Tavily without an API key falls back to news.
func NewSearchTool(backend string, cfg TavilyConfig) Tool {
	if backend == "news" || cfg.APIKey == "" {
		return NewNewsFeedSearchTool("", cfg.MaxResults)
	}
	return NewTavilySearchTool(cfg)
}
