// Blog personas and the Blogger team.
//
// Information Hiding:
// - Persona prompts and output schemas
// - Which model each persona runs on

package blog

import (
	"fmt"

	"github.com/richinex/inkwell/agent"
	"github.com/richinex/inkwell/llm"
	"github.com/richinex/inkwell/team"
	"github.com/richinex/inkwell/tools"
)

// Persona and team names.
const (
	ResearchAgentName = "Blog Research Agent"
	ScraperAgentName  = "Content Scraper Agent"
	WriterAgentName   = "Blog Writer Agent"
	TeamName          = "Blogger team"
)

var (
	// AgentModel runs the three personas.
	AgentModel = llm.ModelSpec{Provider: llm.ProviderOpenAI, Model: llm.ModelOpenAIGPT5Mini}
	// TeamModel runs the Blogger team coordinator.
	TeamModel = llm.ModelSpec{Provider: llm.ProviderGemini, Model: llm.ModelGeminiFlash25, Temperature: llm.Temp(0.3)}
)

// ResearchAgentConfig describes the research persona. search is its only tool.
func ResearchAgentConfig(search tools.Tool) agent.Config {
	return agent.NewBuilder(ResearchAgentName).
		Description(`You are BlogResearch-X, an elite research assistant specializing in discovering
high-quality sources for compelling blog content. Your expertise includes:

- Finding authoritative and trending sources
- Evaluating content credibility and relevance
- Identifying diverse perspectives and expert opinions
- Discovering unique angles and insights
- Ensuring comprehensive topic coverage`).
		Instructions(
			"Search Strategy: find 10-15 relevant sources and select the 5-7 best ones. Prioritize recent, authoritative content. Look for unique angles and expert insights.",
			"Source Evaluation: verify source credibility and expertise, check publication dates for timeliness, assess content depth and uniqueness.",
			"Diversity of Perspectives: include different viewpoints, gather both mainstream and expert opinions, find supporting data and statistics.",
		).
		Tool(search).
		ResponseSchema("search_results", agent.SchemaFor[SearchResults]()).
		Build()
}

// ScraperAgentConfig describes the extraction persona. scrape is its only tool.
func ScraperAgentConfig(scrape tools.Tool) agent.Config {
	return agent.NewBuilder(ScraperAgentName).
		Description(`You are ContentBot-X, a specialist in extracting and processing digital content
for blog creation. Your expertise includes:

- Efficient content extraction
- Smart formatting and structuring
- Key information identification
- Quote and statistic preservation
- Maintaining source attribution`).
		Instructions(
			"Content Extraction: extract content from the article, preserve important quotes and statistics, maintain proper attribution, handle paywalls gracefully.",
			"Content Processing: format text in clean markdown, preserve key information, structure content logically.",
			"Quality Control: verify content relevance, ensure accurate extraction, maintain readability.",
			"Report the URL the article was actually read from.",
		).
		Tool(scrape).
		ResponseSchema("scraped_article", agent.SchemaFor[ScrapedArticle]()).
		Build()
}

// PostTemplate is the section structure every generated post follows.
const PostTemplate = `# {Viral-Worthy Headline}

## Introduction
{Engaging hook and context}

## {Compelling Section 1}
{Key insights and analysis}
{Expert quotes and statistics}

## {Engaging Section 2}
{Deeper exploration}
{Real-world examples}

## {Practical Section 3}
{Actionable insights}
{Expert recommendations}

## Key Takeaways
- {Shareable insight 1}
- {Practical takeaway 2}
- {Notable finding 3}

## Sources
{Properly attributed sources with links}`

// WriterAgentConfig describes the writing persona.
func WriterAgentConfig() agent.Config {
	return agent.NewBuilder(WriterAgentName).
		Description(`You are BlogMaster-X, an elite content creator combining journalistic excellence
with digital marketing expertise. Your strengths include:

- Crafting viral-worthy headlines
- Writing engaging introductions
- Structuring content for digital consumption
- Incorporating research seamlessly
- Optimizing for SEO while maintaining quality
- Creating shareable conclusions`).
		Instructions(
			"Content Strategy: craft attention-grabbing headlines, write compelling introductions, structure content for engagement, include relevant subheadings.",
			"Writing Excellence: balance expertise with accessibility, use clear engaging language, include relevant examples, incorporate statistics naturally.",
			"Source Integration: cite sources properly, include expert quotes, maintain factual accuracy.",
			"Digital Optimization: structure for scanability, include shareable takeaways, optimize for SEO, add engaging subheadings.",
		).
		ExpectedOutput("Format your blog post with this structure:\n" + PostTemplate).
		Markdown(true).
		Build()
}

// Agents holds the three blog personas.
type Agents struct {
	Research *agent.Agent
	Scraper  *agent.Agent
	Writer   *agent.Agent
}

// NewAgents builds the personas on providers resolved from AgentModel.
func NewAgents(resolve llm.Resolver, search, scrape tools.Tool) (Agents, error) {
	provider, err := resolve(AgentModel)
	if err != nil {
		return Agents{}, fmt.Errorf("blog agents: %w", err)
	}
	return Agents{
		Research: agent.New(ResearchAgentConfig(search), provider),
		Scraper:  agent.New(ScraperAgentConfig(scrape), provider),
		Writer:   agent.New(WriterAgentConfig(), provider),
	}, nil
}

// List returns the personas in pipeline order.
func (a Agents) List() []*agent.Agent {
	return []*agent.Agent{a.Research, a.Scraper, a.Writer}
}

// Pipeline wires the personas into a pipeline.
func (a Agents) Pipeline(maxIterations int, opts ...Option) *Pipeline {
	return NewPipeline(
		AgentResearcher{Agent: a.Research, MaxIterations: maxIterations},
		AgentScraper{Agent: a.Scraper, MaxIterations: maxIterations},
		AgentWriter{Agent: a.Writer, MaxIterations: maxIterations},
		opts...,
	)
}

// TeamConfig describes the Blogger team.
func TeamConfig() team.Config {
	cfg := team.DefaultConfig()
	cfg.Name = TeamName
	cfg.Instructions = []string{
		"Collaborate to provide comprehensive blog entry for the topic provided",
		"Make it engaging but factual, meaning any information has to be linked to its source",
	}
	cfg.Reasoning = true
	cfg.Markdown = true
	cfg.ShowMemberResponses = true
	return cfg
}

// NewTeam builds the Blogger team over the personas, coordinated by TeamModel.
func NewTeam(resolve llm.Resolver, a Agents) (*team.Team, error) {
	coordinator, err := resolve(TeamModel)
	if err != nil {
		return nil, fmt.Errorf("blogger team: %w", err)
	}
	return team.New(TeamConfig(), coordinator, a.Research, a.Scraper, a.Writer), nil
}
