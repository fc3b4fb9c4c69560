// Package server exposes an OS (a named set of agents, teams and
// workflows) over HTTP.
//
// Information Hiding:
// - Route layout and component ids derived from names
// - Request decoding and JSON error bodies
// - HTTP metrics and tracing middleware
package server

import (
	"strings"
	"unicode"

	"github.com/richinex/inkwell/agent"
	"github.com/richinex/inkwell/storage"
	"github.com/richinex/inkwell/team"
	"github.com/richinex/inkwell/workflow"
)

// OS is one deployable app.
type OS struct {
	// ID defaults to the slug of Description.
	ID          string
	Description string
	Agents      []*agent.Agent
	Teams       []*team.Team
	Workflows   []*workflow.Workflow
	// Conversations, when set, keeps multi-turn agent history for runs
	// that carry a session_id.
	Conversations storage.ConversationStorage
	// A2A advertises the agent-to-agent interface in /config.
	A2A           bool
	MaxIterations int
}

func (o OS) id() string {
	if o.ID != "" {
		return o.ID
	}
	return Slug(o.Description)
}

// Slug lower-cases name and joins its words with dashes:
// "Blog Post Generator" becomes "blog-post-generator".
func Slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
			continue
		}
		dash = true
	}
	return b.String()
}
