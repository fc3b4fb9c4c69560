// Pipeline collaborators.
//
// Information Hiding:
// - Which agent, tool or model serves each phase
// - Writer payload layout (topic plus scraped articles as indented JSON)

package blog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/richinex/inkwell/agent"
	"github.com/richinex/inkwell/tools"
)

// Researcher finds candidate articles for a topic.
type Researcher interface {
	Research(ctx context.Context, topic string) (SearchResults, error)
}

// Scraper extracts one article.
type Scraper interface {
	Scrape(ctx context.Context, article NewsArticle) (ScrapedArticle, error)
}

// Writer turns scraped articles into a post. An empty post with a nil error
// means the writer produced nothing.
type Writer interface {
	Write(ctx context.Context, topic string, articles []ScrapedArticle) (string, error)
}

// AgentResearcher runs a structured-output research agent.
type AgentResearcher struct {
	Agent         *agent.Agent
	MaxIterations int
}

// Research asks the agent for search results on topic.
func (r AgentResearcher) Research(ctx context.Context, topic string) (SearchResults, error) {
	results, _, err := agent.Run[SearchResults](ctx, r.Agent, topic, r.MaxIterations)
	return results, err
}

// AgentScraper runs a structured-output scraping agent on the article URL.
type AgentScraper struct {
	Agent         *agent.Agent
	MaxIterations int
}

// Scrape asks the agent to extract the article.
func (s AgentScraper) Scrape(ctx context.Context, article NewsArticle) (ScrapedArticle, error) {
	scraped, _, err := agent.Run[ScrapedArticle](ctx, s.Agent, article.URL, s.MaxIterations)
	return scraped, err
}

// ToolScraper fetches articles directly with the read_article tool, without
// a model in the loop.
type ToolScraper struct {
	Tool *tools.ArticleScrapeTool
}

// Scrape downloads and extracts the article. The returned URL is the final
// URL after redirects.
func (s ToolScraper) Scrape(ctx context.Context, article NewsArticle) (ScrapedArticle, error) {
	a, err := s.Tool.Scrape(ctx, article.URL)
	if err != nil {
		return ScrapedArticle{}, err
	}

	out := ScrapedArticle{Title: a.Title, URL: a.URL, Summary: article.Summary}
	if out.Title == "" {
		out.Title = article.Title
	}
	if a.Description != "" {
		desc := a.Description
		out.Summary = &desc
	}
	if a.Content != "" {
		content := a.Content
		out.Content = &content
	}
	return out, nil
}

// writerInput is the payload handed to the writing agent.
type writerInput struct {
	Topic    string           `json:"topic"`
	Articles []ScrapedArticle `json:"articles"`
}

// WriterPayload renders the writer input as indented JSON.
func WriterPayload(topic string, articles []ScrapedArticle) (string, error) {
	if articles == nil {
		articles = []ScrapedArticle{}
	}
	data, err := json.MarshalIndent(writerInput{Topic: topic, Articles: articles}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode writer input: %w", err)
	}
	return string(data), nil
}

// AgentWriter runs the writing agent once on the whole payload.
type AgentWriter struct {
	Agent         *agent.Agent
	MaxIterations int
}

// Write returns the generated post.
func (w AgentWriter) Write(ctx context.Context, topic string, articles []ScrapedArticle) (string, error) {
	payload, err := WriterPayload(topic, articles)
	if err != nil {
		return "", err
	}
	resp := w.Agent.Execute(ctx, payload, w.MaxIterations)
	switch resp.Type {
	case agent.ResponseSuccess:
		return strings.TrimSpace(resp.Result), nil
	case agent.ResponseTimeout:
		return "", errors.New("writer ran out of iterations")
	default:
		return "", errors.New(resp.Error)
	}
}
