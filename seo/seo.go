// Package seo defines the SEO agency: a keyword analyst and a content
// strategist, coordinated by a team that answers SEO questions.
package seo

import (
	"fmt"

	"github.com/richinex/inkwell/agent"
	"github.com/richinex/inkwell/llm"
	"github.com/richinex/inkwell/team"
	"github.com/richinex/inkwell/tools"
)

const (
	AnalystName    = "SEO Analyst"
	StrategistName = "Content strategist"
	TeamName       = "SEO improving content creation team"
)

var (
	AnalystModel    = llm.ModelSpec{Provider: llm.ProviderGemini, Model: llm.ModelGeminiFlash25, Temperature: llm.Temp(0)}
	StrategistModel = llm.ModelSpec{Provider: llm.ProviderGemini, Model: llm.ModelGeminiFlash25, Temperature: llm.Temp(0.6)}
	TeamModel       = llm.ModelSpec{Provider: llm.ProviderGemini, Model: llm.ModelGeminiFlash25, Temperature: llm.Temp(0.3)}
)

// AnalystConfig describes the keyword analyst.
func AnalystConfig(search tools.Tool) agent.Config {
	return agent.NewBuilder(AnalystName).
		Role("Discovers the keywords needed to boost the position of the site to be improved.").
		Instructions(
			"Backstory: you work in Spain, most of your requests come from Spanish companies so you prioritize the positioning in Spanish speaking searches.",
			"Your specialty is identifying keywords to better position the products highlighted by the company.",
			"You conduct research on competitors and search results to better differentiate the offering and be more competitive.",
			"Response format: always include sources.",
		).
		Tool(search).
		Build()
}

// StrategistConfig describes the content strategist.
func StrategistConfig(search tools.Tool) agent.Config {
	return agent.NewBuilder(StrategistName).
		Role("Creates attractive and engaging content to improve SEO positioning.").
		Instructions(
			"Backstory: you are a renowned Content Strategist, known for your insightful and engaging articles.",
			"Your specialty is transforming complex concepts into captivating narratives with high SEO impact.",
			"Response format: always include sources.",
		).
		Tool(search).
		Build()
}

// TeamConfig describes the SEO team.
func TeamConfig() team.Config {
	cfg := team.DefaultConfig()
	cfg.Name = TeamName
	cfg.Instructions = []string{
		"Collaborate to provide comprehensive SEO improving insights",
		"Consider both keyword research and content quality",
		"Use an engaging language to provide guidance to the user asking the questions",
		"Present findings in a structured, easy-to-follow format",
		"Only output the final consolidated response, not individual agent responses",
	}
	cfg.Reasoning = true
	cfg.Markdown = true
	cfg.ShowMemberResponses = true
	return cfg
}

// Agents holds the two SEO personas.
type Agents struct {
	Analyst    *agent.Agent
	Strategist *agent.Agent
}

// List returns the personas.
func (a Agents) List() []*agent.Agent {
	return []*agent.Agent{a.Analyst, a.Strategist}
}

// NewAgents builds both personas, each on its own model.
func NewAgents(resolve llm.Resolver, search tools.Tool) (Agents, error) {
	analyst, err := resolve(AnalystModel)
	if err != nil {
		return Agents{}, fmt.Errorf("%s: %w", AnalystName, err)
	}
	strategist, err := resolve(StrategistModel)
	if err != nil {
		return Agents{}, fmt.Errorf("%s: %w", StrategistName, err)
	}
	return Agents{
		Analyst:    agent.New(AnalystConfig(search), analyst),
		Strategist: agent.New(StrategistConfig(search), strategist),
	}, nil
}

// NewTeam builds the SEO team over a.
func NewTeam(resolve llm.Resolver, a Agents) (*team.Team, error) {
	coordinator, err := resolve(TeamModel)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", TeamName, err)
	}
	return team.New(TeamConfig(), coordinator, a.Analyst, a.Strategist), nil
}
