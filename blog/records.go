// Package blog implements the research, extraction and writing pipeline that
// turns a topic into a sourced blog post, with a topic-keyed cache kept in
// workflow session state.
//
// Information Hiding:
// - Cache record layout (tagged, versioned envelopes) hidden behind Cache
// - Retry of the research call hidden behind FetchSearchResults
// - Collaborators (research, scraping, writing) hidden behind small interfaces
package blog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ResearchTopic is the pipeline input.
type ResearchTopic struct {
	Topic string `json:"topic" jsonschema_description:"Topic to focus on"`
}

// NewsArticle is one search hit.
type NewsArticle struct {
	Title   string  `json:"title" jsonschema_description:"Title of the article."`
	URL     string  `json:"url" validate:"required" jsonschema_description:"Link to the article."`
	Summary *string `json:"summary,omitempty" jsonschema_description:"Summary of the article if available."`
}

// SearchResults is the structured output of the research phase.
type SearchResults struct {
	Articles []NewsArticle `json:"articles" validate:"dive"`
}

// Validate checks the article list is present and every article carries a
// link. Links are taken as reported; relative or scheme-less ones pass.
func (r SearchResults) Validate() error {
	if r.Articles == nil {
		return fmt.Errorf("articles: missing")
	}
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("search results: %w", err)
	}
	return nil
}

// ScrapedArticle is the structured output of the extraction phase.
type ScrapedArticle struct {
	Title   string  `json:"title" jsonschema_description:"Title of the article."`
	URL     string  `json:"url" validate:"required" jsonschema_description:"Link to the article."`
	Summary *string `json:"summary,omitempty" jsonschema_description:"Summary of the article if available."`
	Content *string `json:"content,omitempty" jsonschema_description:"Full article content in markdown format. None if content is unavailable."`
}

// Validate checks the article carries a URL.
func (a ScrapedArticle) Validate() error {
	if err := validate.Struct(a); err != nil {
		return fmt.Errorf("scraped article: %w", err)
	}
	return nil
}

// ScrapedArticles maps final article URL to scraped article, keeping
// insertion order. It encodes as a JSON object in that order.
type ScrapedArticles struct {
	urls  []string
	byURL map[string]ScrapedArticle
}

// NewScrapedArticles returns an empty set.
func NewScrapedArticles() *ScrapedArticles {
	return &ScrapedArticles{byURL: make(map[string]ScrapedArticle)}
}

// Put stores a under url, replacing any earlier entry in place.
func (s *ScrapedArticles) Put(url string, a ScrapedArticle) {
	if s.byURL == nil {
		s.byURL = make(map[string]ScrapedArticle)
	}
	if _, exists := s.byURL[url]; !exists {
		s.urls = append(s.urls, url)
	}
	s.byURL[url] = a
}

// Get returns the article stored under url.
func (s *ScrapedArticles) Get(url string) (ScrapedArticle, bool) {
	if s == nil {
		return ScrapedArticle{}, false
	}
	a, ok := s.byURL[url]
	return a, ok
}

// Len returns the number of articles.
func (s *ScrapedArticles) Len() int {
	if s == nil {
		return 0
	}
	return len(s.urls)
}

// URLs returns the keys in insertion order.
func (s *ScrapedArticles) URLs() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.urls...)
}

// List returns the articles in insertion order.
func (s *ScrapedArticles) List() []ScrapedArticle {
	if s == nil {
		return nil
	}
	out := make([]ScrapedArticle, 0, len(s.urls))
	for _, u := range s.urls {
		out = append(out, s.byURL[u])
	}
	return out
}

// MarshalJSON encodes the set as an ordered JSON object.
func (s *ScrapedArticles) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, u := range s.URLs() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(u)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(s.byURL[u])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object of url to article, keeping key order.
func (s *ScrapedArticles) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("scraped articles: expected object, got %v", tok)
	}

	out := NewScrapedArticles()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		url, ok := tok.(string)
		if !ok {
			return fmt.Errorf("scraped articles: expected key, got %v", tok)
		}
		var a ScrapedArticle
		if err := dec.Decode(&a); err != nil {
			return fmt.Errorf("scraped articles: %s: %w", url, err)
		}
		out.Put(url, a)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*s = *out
	return nil
}

// Validate checks every stored article.
func (s *ScrapedArticles) Validate() error {
	for _, u := range s.URLs() {
		if err := s.byURL[u].Validate(); err != nil {
			return fmt.Errorf("%s: %w", u, err)
		}
	}
	return nil
}

// clip shortens s to n runes for log lines.
func clip(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
