package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/richinex/inkwell/agent"
	"github.com/richinex/inkwell/blog"
	"github.com/richinex/inkwell/session"
)

// Blog Post Generator identity.
const (
	BlogPostGeneratorName        = "Blog Post Generator"
	BlogPostGeneratorDescription = "Advanced blog post generator with research and content creation capabilities"
)

// ErrInvalidInput is returned for run input that cannot be decoded.
var ErrInvalidInput = errors.New("invalid workflow input")

// NewBlogPostGenerator wraps p as a one-step workflow whose input is a
// blog.ResearchTopic.
func NewBlogPostGenerator(p *blog.Pipeline, store session.Store) *Workflow {
	step := Step{
		Name: "blog_generation",
		Run: func(ctx context.Context, state *session.State, in StepInput) (string, error) {
			topic, err := DecodeTopic(in.Input)
			if err != nil {
				return "", err
			}
			return p.Run(ctx, state, topic).Text, nil
		},
	}
	return New(BlogPostGeneratorName, BlogPostGeneratorDescription, store, step).
		WithInputSchema(agent.SchemaFor[blog.ResearchTopic]())
}

// DecodeTopic accepts {"topic": "..."} or a bare JSON string. Empty input
// decodes to an empty topic.
func DecodeTopic(input json.RawMessage) (blog.ResearchTopic, error) {
	trimmed := bytes.TrimSpace(input)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return blog.ResearchTopic{}, nil
	}
	if trimmed[0] == '"' {
		var topic string
		if err := json.Unmarshal(trimmed, &topic); err != nil {
			return blog.ResearchTopic{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return blog.ResearchTopic{Topic: topic}, nil
	}
	var topic blog.ResearchTopic
	if err := json.Unmarshal(trimmed, &topic); err != nil {
		return blog.ResearchTopic{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return topic, nil
}
