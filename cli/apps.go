// App assembly for the serve, blog, seo and chat commands.
//
// Information Hiding:
// - Which personas, teams and workflows make up each app
// - Persona output wiring for verbose runs

package cli

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/richinex/inkwell/agent"
	"github.com/richinex/inkwell/assistant"
	"github.com/richinex/inkwell/blog"
	"github.com/richinex/inkwell/llm"
	"github.com/richinex/inkwell/retry"
	"github.com/richinex/inkwell/seo"
	"github.com/richinex/inkwell/server"
	"github.com/richinex/inkwell/session"
	"github.com/richinex/inkwell/storage"
	"github.com/richinex/inkwell/team"
	"github.com/richinex/inkwell/tools"
	"github.com/richinex/inkwell/workflow"
)

// App names accepted by BuildOS.
const (
	AppBlogger   = "blogger"
	AppSEO       = "seo"
	AppAssistant = "assistant"
)

const (
	BloggerDescription = "My custom blogger"
	SEODescription     = "My custom SEO agency"
)

// Deps are the shared resources an app is built from.
type Deps struct {
	Resolve llm.Resolver
	Search  tools.Tool
	Scrape  *tools.ArticleScrapeTool
	// DirectScrape makes the blog workflow read articles with Scrape
	// instead of the scraper persona.
	DirectScrape bool
	// Sessions backs workflow sessions; required by the blogger.
	Sessions session.Store
	// Conversations backs assistant chat history; optional.
	Conversations storage.ConversationStorage
	Retry         retry.Policy
	MaxIterations int
	// Verbose streams persona reasoning to Out.
	Verbose bool
	Out     io.Writer
}

type builder func(d Deps) (server.OS, error)

var apps = map[string]builder{
	AppBlogger:   buildBlogger,
	AppSEO:       buildSEO,
	AppAssistant: buildAssistant,
}

// AppNames lists the buildable apps.
func AppNames() []string {
	names := make([]string, 0, len(apps))
	for name := range apps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuildOS assembles the named app.
func BuildOS(name string, d Deps) (server.OS, error) {
	build, ok := apps[name]
	if !ok {
		return server.OS{}, fmt.Errorf("unknown app %q (available: %v)", name, AppNames())
	}
	if d.Resolve == nil {
		return server.OS{}, fmt.Errorf("app %s: no model resolver", name)
	}
	if d.Out == nil {
		d.Out = os.Stdout
	}
	if d.Search == nil {
		d.Search = tools.NewSearchTool("tavily", tools.DefaultTavilyConfig())
	}
	if d.Scrape == nil {
		d.Scrape = tools.NewArticleScrapeTool(0, 0)
	}
	return build(d)
}

func buildBlogger(d Deps) (server.OS, error) {
	if d.Sessions == nil {
		return server.OS{}, fmt.Errorf("app %s: no session store", AppBlogger)
	}
	agents, err := blog.NewAgents(d.Resolve, d.Search, d.Scrape)
	if err != nil {
		return server.OS{}, err
	}
	configureAgents(d, agents.List()...)
	tm, err := blog.NewTeam(d.Resolve, agents)
	if err != nil {
		return server.OS{}, err
	}
	verboseTeam(d, tm)
	opts := []blog.Option{blog.WithRetryPolicy(d.Retry)}
	if d.DirectScrape {
		opts = append(opts, blog.WithScraper(blog.ToolScraper{Tool: d.Scrape}))
	}
	pipeline := agents.Pipeline(d.MaxIterations, opts...)
	return server.OS{
		Description:   BloggerDescription,
		Agents:        agents.List(),
		Teams:         []*team.Team{tm},
		Workflows:     []*workflow.Workflow{workflow.NewBlogPostGenerator(pipeline, d.Sessions)},
		A2A:           true,
		MaxIterations: d.MaxIterations,
	}, nil
}

func buildSEO(d Deps) (server.OS, error) {
	agents, err := seo.NewAgents(d.Resolve, d.Search)
	if err != nil {
		return server.OS{}, err
	}
	configureAgents(d, agents.List()...)
	tm, err := seo.NewTeam(d.Resolve, agents)
	if err != nil {
		return server.OS{}, err
	}
	verboseTeam(d, tm)
	return server.OS{
		Description:   SEODescription,
		Agents:        agents.List(),
		Teams:         []*team.Team{tm},
		MaxIterations: d.MaxIterations,
	}, nil
}

func buildAssistant(d Deps) (server.OS, error) {
	a, err := assistant.New(d.Resolve)
	if err != nil {
		return server.OS{}, err
	}
	configureAgents(d, a)
	return server.OS{
		ID:            assistant.OSID,
		Description:   assistant.Description,
		Agents:        []*agent.Agent{a},
		Conversations: d.Conversations,
		MaxIterations: d.MaxIterations,
	}, nil
}

// configureAgents applies the retry policy to tool calls and turns on verbose output.
func configureAgents(d Deps, agents ...*agent.Agent) {
	for _, a := range agents {
		if d.Retry.MaxAttempts > 0 {
			a.WithToolConfig(tools.ToolConfig{
				MaxRetries: uint32(d.Retry.Attempts()),
				Backoff:    d.Retry.Strategy,
			})
		}
		if d.Verbose {
			a.Verbose(true).WithOutput(d.Out)
		}
	}
}

func verboseTeam(d Deps, t *team.Team) {
	if d.Verbose {
		t.Verbose(true).WithOutput(d.Out)
	}
}
