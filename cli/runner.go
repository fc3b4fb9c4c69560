// Command execution for CLI commands.
//
// Information Hiding:
// - Config, logging and telemetry setup shared by every command
// - Model resolution from --provider
// - Server lifecycle and signal handling

package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/richinex/inkwell/agent"
	"github.com/richinex/inkwell/assistant"
	"github.com/richinex/inkwell/blog"
	"github.com/richinex/inkwell/config"
	"github.com/richinex/inkwell/llm"
	"github.com/richinex/inkwell/logging"
	"github.com/richinex/inkwell/observability"
	"github.com/richinex/inkwell/server"
	"github.com/richinex/inkwell/storage"
	"github.com/richinex/inkwell/tools"
)

// DefaultDBPath holds assistant conversations.
const DefaultDBPath = ".inkwell/inkwell.db"

const shutdownTimeout = 10 * time.Second

// ErrNoPost is returned by Blog when the pipeline ends with a failure message.
var ErrNoPost = errors.New("no blog post generated")

// Options holds CLI execution options.
type Options struct {
	// Provider redirects every persona to one provider; empty keeps each
	// persona's own model.
	Provider   string
	ConfigPath string
	MaxIter    int
	Verbose    bool

	Out io.Writer
	In  io.Reader
}

// DefaultOptions returns default CLI options.
func DefaultOptions() Options {
	return Options{MaxIter: 10}
}

func (o Options) out() io.Writer {
	if o.Out == nil {
		return os.Stdout
	}
	return o.Out
}

func (o Options) in() io.Reader {
	if o.In == nil {
		return os.Stdin
	}
	return o.In
}

// runtime is what every command shares after setup.
type runtime struct {
	app     config.App
	resolve llm.Resolver
	metrics *observability.Metrics
	maxIter int
	closers []func(context.Context) error
}

func setup(ctx context.Context, opts Options) (*runtime, error) {
	app, err := config.LoadApp(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.Verbose {
		app.Logging.Level = "debug"
	}
	if err := logging.Init(app.Logging); err != nil {
		return nil, err
	}

	rt := &runtime{app: app}
	if app.Metrics.Enabled {
		m, err := observability.InitMetrics()
		if err != nil {
			return nil, err
		}
		observability.SetGlobalMetrics(m)
		rt.metrics = m
		rt.closers = append(rt.closers, m.Shutdown)
	}
	shutdown, err := observability.InitTracer(ctx, app.TracingConfig())
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, shutdown)

	if opts.Provider != "" {
		if _, err := config.APIKeyFor(opts.Provider); err != nil {
			return nil, err
		}
	}
	resolve, maxIter, err := resolver(opts)
	if err != nil {
		return nil, err
	}
	rt.resolve = resolve.Instrumented(rt.metrics)
	rt.maxIter = maxIter
	return rt, nil
}

func (rt *runtime) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	logger := logging.Component("cli")
	for _, c := range rt.closers {
		if err := c(ctx); err != nil {
			logger.Warn().Err(err).Msg("shutdown")
		}
	}
}

func (rt *runtime) deps(opts Options) (Deps, error) {
	policy, err := rt.app.RetryPolicy()
	if err != nil {
		return Deps{}, err
	}
	return Deps{
		Resolve:       rt.resolve,
		Search:        rt.app.SearchTool(),
		Scrape:        rt.app.ScrapeTool(),
		DirectScrape:  rt.app.DirectScrape(),
		Retry:         policy,
		MaxIterations: rt.maxIter,
		Verbose:       opts.Verbose,
		Out:           opts.out(),
	}, nil
}

// resolver keeps per-persona models unless a provider override is given.
func resolver(opts Options) (llm.Resolver, int, error) {
	maxIter := opts.MaxIter
	if opts.Provider == "" {
		if maxIter <= 0 {
			maxIter = 10
		}
		return llm.EnvResolver(nil, 0), maxIter, nil
	}
	settings, err := config.New(opts.Provider)
	if err != nil {
		return nil, 0, err
	}
	if maxIter <= 0 {
		maxIter = settings.Agent.MaxIterations
	}
	return settings.Resolver(), maxIter, nil
}

// Serve runs the named app's HTTP server until ctx ends or SIGINT/SIGTERM.
func Serve(ctx context.Context, appName string, opts Options) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := setup(ctx, opts)
	if err != nil {
		return err
	}
	defer rt.close()

	d, err := rt.deps(opts)
	if err != nil {
		return err
	}
	if appName == AppBlogger {
		sessions, err := storage.OpenSessionStore(ctx, rt.app.SessionOptions())
		if err != nil {
			return fmt.Errorf("open session store: %w", err)
		}
		defer sessions.Close()
		d.Sessions = sessions
	}
	if appName == AppAssistant {
		conversations, err := openConversations(DefaultDBPath)
		if err != nil {
			return err
		}
		defer conversations.Close()
		d.Conversations = conversations
	}

	o, err := BuildOS(appName, d)
	if err != nil {
		return err
	}
	srv, err := server.New(o, server.WithMetrics(rt.metrics))
	if err != nil {
		return err
	}
	return ListenAndServe(ctx, rt.app.Addr(), srv)
}

// ListenAndServe serves srv on addr and shuts it down when ctx ends.
func ListenAndServe(ctx context.Context, addr string, srv *server.Server) error {
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger := logging.Component("cli")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("os_id", srv.ID()).Str("addr", addr).Msgf("serving; see http://%s/config", displayAddr(addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info().Msg("shutting down")
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func displayAddr(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "localhost" + addr
	}
	return addr
}

// Blog generates a post for topic through the Blog Post Generator workflow.
func Blog(ctx context.Context, topic, sessionID string, opts Options) error {
	rt, err := setup(ctx, opts)
	if err != nil {
		return err
	}
	defer rt.close()

	d, err := rt.deps(opts)
	if err != nil {
		return err
	}
	sessions, err := storage.OpenSessionStore(ctx, rt.app.SessionOptions())
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer sessions.Close()
	d.Sessions = sessions

	o, err := BuildOS(AppBlogger, d)
	if err != nil {
		return err
	}
	return runBlog(ctx, o, topic, sessionID, opts.out())
}

func runBlog(ctx context.Context, o server.OS, topic, sessionID string, w io.Writer) error {
	input, err := json.Marshal(blog.ResearchTopic{Topic: topic})
	if err != nil {
		return err
	}
	wf := o.Workflows[0]
	printTitle(w, fmt.Sprintf("%s: %s", wf.Name, topic))

	result, err := wf.Run(ctx, sessionID, input)
	if err != nil {
		return err
	}
	if isFailureText(result.Content) {
		printStatus(w, false, result.Content)
		return ErrNoPost
	}
	fmt.Fprintln(w, renderMarkdown(result.Content))
	printStatus(w, true, fmt.Sprintf("✓ done in %s", time.Duration(result.DurationMs)*time.Millisecond))
	printFaint(w, "session: %s", result.SessionID)
	return nil
}

// SEO answers question with the SEO team.
func SEO(ctx context.Context, question string, opts Options) error {
	rt, err := setup(ctx, opts)
	if err != nil {
		return err
	}
	defer rt.close()

	d, err := rt.deps(opts)
	if err != nil {
		return err
	}
	o, err := BuildOS(AppSEO, d)
	if err != nil {
		return err
	}
	return runTeam(ctx, o, question, opts.Verbose, opts.out())
}

func runTeam(ctx context.Context, o server.OS, task string, verbose bool, w io.Writer) error {
	tm := o.Teams[0]
	printTitle(w, tm.Name())

	resp := tm.Run(ctx, task)
	if verbose {
		printSteps(w, resp.Steps, maxTeamObservationLen)
		printMemberResponses(w, resp.MemberResponses)
	}
	switch resp.Type {
	case agent.ResponseSuccess:
		fmt.Fprintln(w, renderMarkdown(resp.Result))
		printTokenStats(w, resp.Metadata.TokenStats)
		return nil
	case agent.ResponseTimeout:
		printStatus(w, false, "Timeout. Partial result:")
		fmt.Fprintln(w, resp.PartialResult)
		return errors.New("team run timed out")
	default:
		printStatus(w, false, "Error: "+resp.Error)
		return fmt.Errorf("team run failed: %s", resp.Error)
	}
}

// Chat starts an interactive session with the assistant. History is kept
// in dbPath under sessionID; an empty sessionID starts a new session.
func Chat(ctx context.Context, sessionID, dbPath string, opts Options) error {
	rt, err := setup(ctx, opts)
	if err != nil {
		return err
	}
	defer rt.close()

	a, err := assistant.New(rt.resolve)
	if err != nil {
		return err
	}
	if opts.Verbose {
		a.Verbose(true).WithOutput(opts.out())
	}
	if dbPath == "" {
		dbPath = DefaultDBPath
	}
	store, err := openConversations(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	return chatLoop(ctx, assistant.NewChat(a, store, sessionID, rt.maxIter), opts.in(), opts.out())
}

func chatLoop(ctx context.Context, chat *assistant.Chat, in io.Reader, w io.Writer) error {
	history, err := chat.History(ctx)
	if err != nil {
		return err
	}
	if len(history) > 0 {
		printFaint(w, "Resuming session '%s' (%d messages)", chat.SessionID(), len(history))
	} else {
		printFaint(w, "Session '%s'", chat.SessionID())
	}
	printTitle(w, "Chat with "+assistant.Name+". Type 'exit' to quit.")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(w, "> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}

		resp, err := chat.Send(ctx, input)
		if err != nil {
			printStatus(w, false, "Error: "+err.Error())
			continue
		}
		switch resp.Type {
		case agent.ResponseSuccess:
			fmt.Fprintln(w, renderMarkdown(resp.Result))
		case agent.ResponseFailure:
			printStatus(w, false, "Error: "+resp.Error)
		case agent.ResponseTimeout:
			printStatus(w, false, "Timeout: "+resp.PartialResult)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return scanner.Err()
}

func openConversations(path string) (*storage.SqliteStorage, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	store, err := storage.OpenSqlite(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return store, nil
}

// ListTools prints the tool catalog.
func ListTools(w io.Writer, verbose bool) {
	printTitle(w, "Available tools:")
	fmt.Fprintln(w)
	for _, meta := range tools.ToolCatalog() {
		fmt.Fprintf(w, "  %s\n", meta.Name)
		fmt.Fprintf(w, "    %s\n", meta.Description)
		if verbose && len(meta.Parameters) > 0 {
			fmt.Fprintln(w, "    Parameters:")
			for _, param := range meta.Parameters {
				req := ""
				if param.Required {
					req = "*"
				}
				fmt.Fprintf(w, "      %s%s: %s - %s\n", param.Name, req, param.ParamType, param.Description)
			}
		}
		fmt.Fprintln(w)
	}
}
