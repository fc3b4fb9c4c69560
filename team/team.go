// Team coordinator.
//
// A coordinator model plans sub-goals, delegates each one to a named member,
// optionally reasons with its own tools, and writes one consolidated answer.
// Members can be delegated to more than once.
//
// Information Hiding:
// - Decision format and prompt construction hidden
// - Sub-goal tracking hidden
// - Member invocation and result sharing hidden

package team

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/richinex/inkwell/agent"
	"github.com/richinex/inkwell/internal/jsonutil"
	"github.com/richinex/inkwell/llm"
	"github.com/richinex/inkwell/logging"
	"github.com/richinex/inkwell/model"
	"github.com/richinex/inkwell/observability"
	"github.com/richinex/inkwell/tools"
)

const tracerName = "github.com/richinex/inkwell/team"

// Config holds configuration for a team.
type Config struct {
	Name        string
	Description string
	// Instructions are rendered as a bulleted list for the coordinator.
	Instructions []string
	// Reasoning gives the coordinator a fresh think tool on every run.
	Reasoning bool
	// Tools are extra coordinator tools.
	Tools               []tools.Tool
	Markdown            bool
	ShowMemberResponses bool
	// MaxSteps bounds coordinator decisions per run.
	MaxSteps int
	// MaxMemberIterations is passed to members on delegation.
	MaxMemberIterations int
	MaxSubGoals         int
}

// DefaultConfig returns default team limits.
func DefaultConfig() Config {
	return Config{
		MaxSteps:            10,
		MaxMemberIterations: 10,
		MaxSubGoals:         10,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxSteps <= 0 {
		c.MaxSteps = d.MaxSteps
	}
	if c.MaxMemberIterations <= 0 {
		c.MaxMemberIterations = d.MaxMemberIterations
	}
	if c.MaxSubGoals <= 0 {
		c.MaxSubGoals = d.MaxSubGoals
	}
	return c
}

// decision is returned by the coordinator model for each step.
type decision struct {
	Thought    string               `json:"thought"`
	SubGoals   []subGoalDeclaration `json:"sub_goals,omitempty"`
	Tool       *agent.Action        `json:"tool,omitempty"`
	DelegateTo *string              `json:"delegate_to,omitempty"`
	MemberTask *string              `json:"member_task,omitempty"`
	SubGoalID  *string              `json:"sub_goal_id,omitempty"`
	IsFinal    bool                 `json:"is_final"`
	// FinalAnswer accepts a string or any JSON value.
	FinalAnswer json.RawMessage `json:"final_answer,omitempty"`
}

func (d decision) finalAnswer() string {
	if len(d.FinalAnswer) == 0 || string(d.FinalAnswer) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(d.FinalAnswer, &s); err == nil {
		return s
	}
	return string(d.FinalAnswer)
}

// Team coordinates member agents. Safe for concurrent Runs: all per-run
// state lives on the stack.
type Team struct {
	config   Config
	provider llm.Provider
	members  map[string]Member
	order    []string
	executor *tools.Executor
	verbose  bool
	out      io.Writer
}

// New creates a team led by the coordinator provider.
func New(config Config, coordinator llm.Provider, members ...Member) *Team {
	t := &Team{
		config:   config.withDefaults(),
		provider: coordinator,
		members:  make(map[string]Member, len(members)),
		executor: tools.NewDefaultExecutor(),
		out:      os.Stdout,
	}
	for _, m := range members {
		if _, exists := t.members[m.Name()]; exists {
			continue
		}
		t.members[m.Name()] = m
		t.order = append(t.order, m.Name())
	}
	return t
}

// Name returns the team name.
func (t *Team) Name() string {
	return t.config.Name
}

// Description returns the team description.
func (t *Team) Description() string {
	return t.config.Description
}

// Config returns the team configuration.
func (t *Team) Config() Config {
	return t.config
}

// MemberNames returns member names in registration order.
func (t *Team) MemberNames() []string {
	return append([]string(nil), t.order...)
}

// Verbose streams coordinator tokens to the output writer.
func (t *Team) Verbose(enabled bool) *Team {
	t.verbose = enabled
	return t
}

// WithOutput sets where verbose streaming is written.
func (t *Team) WithOutput(w io.Writer) *Team {
	t.out = w
	return t
}

// ExecuteWithContext lets a team act as a member of another team.
func (t *Team) ExecuteWithContext(ctx context.Context, task string, contextData json.RawMessage, maxIterations int) agent.Response {
	if len(contextData) > 0 {
		task = fmt.Sprintf("%s\n\nCONTEXT DATA:\n```json\n%s\n```", task, string(contextData))
	}
	resp := t.Run(ctx, task)
	meta := agent.Metadata{
		ExecutionTimeMs: resp.Metadata.ExecutionTimeMs,
		AgentName:       t.config.Name,
		TokenUsage: &llm.TokenUsage{
			PromptTokens:     resp.Metadata.TokenStats.PromptTokens,
			CompletionTokens: resp.Metadata.TokenStats.CompletionTokens,
			TotalTokens:      resp.Metadata.TokenStats.TotalTokens,
		},
		LLMCalls: resp.Metadata.TokenStats.LLMCalls,
	}
	switch resp.Type {
	case agent.ResponseSuccess:
		return agent.NewSuccessResponse(resp.Result, resp.Steps, meta)
	case agent.ResponseTimeout:
		return agent.NewTimeoutResponse(resp.PartialResult, resp.Steps, meta)
	default:
		return agent.NewFailureResponse(resp.Error, resp.Steps, meta)
	}
}

// Run coordinates the members to accomplish task.
func (t *Team) Run(ctx context.Context, task string) Response {
	startTime := time.Now()
	stats := &TokenStats{}
	logger := logging.Component("team")

	ctx, span := observability.Tracer(tracerName).Start(ctx, "team.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("team.name", t.config.Name),
		attribute.Int("team.members", len(t.members)),
	)

	registry := t.coordinatorTools()

	var conversation []llm.ChatMessage
	var allSteps []Step
	var memberResponses []MemberResponse
	memberResults := make(map[string]interface{})
	progress := newTaskProgress()
	delegations := 0

	finish := func(r Response) Response {
		r.Steps = allSteps
		r.Metadata = Metadata{
			ExecutionTimeMs: uint64(time.Since(startTime).Milliseconds()),
			TeamName:        t.config.Name,
			TokenStats:      *stats,
			Delegations:     delegations,
		}
		if t.config.ShowMemberResponses {
			r.MemberResponses = memberResponses
		}
		span.SetAttributes(
			attribute.String("team.outcome", r.Type.String()),
			attribute.Int("team.delegations", delegations),
		)
		if !r.IsSuccess() {
			span.SetStatus(codes.Error, r.ResultText())
		}
		return r
	}

	conversation = append(conversation,
		llm.SystemMessage(t.systemPrompt(registry)),
		llm.UserMessage(fmt.Sprintf("Task: %s", task)),
	)

	maxSteps := t.config.MaxSteps
	for step := 0; step < maxSteps; step++ {
		if ctx.Err() != nil {
			return finish(Response{Type: agent.ResponseFailure, Error: fmt.Sprintf("team run cancelled: %v", ctx.Err())})
		}

		remainingSteps := maxSteps - step

		d, err := t.decide(ctx, conversation, stats)
		if err != nil {
			return finish(Response{Type: agent.ResponseFailure, Error: fmt.Sprintf("Coordinator decision failed: %v", err)})
		}

		if len(d.SubGoals) > 0 {
			goals := d.SubGoals
			if len(goals) > t.config.MaxSubGoals {
				goals = goals[:t.config.MaxSubGoals]
			}
			for _, g := range goals {
				progress.addSubGoal(g.ID, g.Description)
			}
		}

		if d.IsFinal {
			final := d.finalAnswer()
			if final == "" {
				final = "Task completed without explicit answer"
			}
			allSteps = append(allSteps, model.Step{Iteration: step, Thought: d.Thought, Observation: &final})
			logger.Debug().Str("team", t.config.Name).Int("delegations", delegations).Msg("team run finished")
			return finish(Response{Type: agent.ResponseSuccess, Result: final})
		}

		switch {
		case d.Tool != nil:
			observation := t.runTool(ctx, registry, d.Tool)
			conversation = append(conversation,
				llm.AssistantMessage(marshalDecision(d)),
				llm.UserMessage(fmt.Sprintf("Tool '%s' result:\n%s\n\nContinue: delegate, use a tool, or set is_final=true.", d.Tool.Tool, observation)),
			)
			action := "tool:" + d.Tool.Tool
			allSteps = append(allSteps, model.Step{Iteration: step, Thought: d.Thought, Action: &action, Observation: &observation})

		case d.DelegateTo != nil && d.MemberTask != nil:
			memberName := *d.DelegateTo
			memberTask := *d.MemberTask

			subGoalID := fmt.Sprintf("goal_%d", step)
			if d.SubGoalID != nil && *d.SubGoalID != "" {
				subGoalID = *d.SubGoalID
			}
			if !progress.hasGoal(subGoalID) {
				progress.addSubGoal(subGoalID, memberTask)
			}

			member, exists := t.members[memberName]
			if !exists {
				errorMsg := fmt.Sprintf("Member '%s' not found. Available members: %s", memberName, strings.Join(t.order, ", "))
				logger.Warn().Str("team", t.config.Name).Str("member", memberName).Msg("delegation to unknown member")
				conversation = append(conversation,
					llm.AssistantMessage(marshalDecision(d)),
					llm.UserMessage(fmt.Sprintf("Error: %s", errorMsg)),
				)
				allSteps = append(allSteps, model.Step{Iteration: step, Thought: d.Thought, Action: &memberName, Observation: &errorMsg})
				continue
			}

			progress.markInProgress(subGoalID, memberName)
			delegations++

			var contextData json.RawMessage
			if len(memberResults) > 0 {
				contextData, _ = json.Marshal(memberResults)
			}

			resp := t.delegate(ctx, member, memberTask, contextData)
			stats.AddUsage(resp.Metadata.TokenUsage)
			stats.LLMCalls += resp.Metadata.LLMCalls

			var resultSummary string
			switch resp.Type {
			case agent.ResponseSuccess:
				progress.markCompleted(subGoalID)
				var value interface{}
				if err := json.Unmarshal([]byte(resp.Result), &value); err != nil {
					value = resp.Result
				}
				memberResults[memberName+"_output"] = value
				resultSummary = fmt.Sprintf("SUCCESS: %s", resp.Result)
			case agent.ResponseFailure:
				progress.markFailed(subGoalID)
				resultSummary = fmt.Sprintf("FAILED: %s", resp.Error)
			case agent.ResponseTimeout:
				progress.markFailed(subGoalID)
				resultSummary = fmt.Sprintf("TIMEOUT: %s", resp.PartialResult)
			}

			memberResponses = append(memberResponses, MemberResponse{
				Member:  memberName,
				Task:    memberTask,
				Content: resp.ResultText(),
				Success: resp.IsSuccess(),
			})

			d.SubGoalID = &subGoalID
			conversation = append(conversation, llm.AssistantMessage(marshalDecision(d)))

			urgencyMsg := fmt.Sprintf("\n\nYou have %d coordination steps remaining.", remainingSteps-1)
			if remainingSteps-1 <= 2 {
				urgencyMsg = fmt.Sprintf("\n\nWARNING: Only %d coordination steps remaining!", remainingSteps-1)
			}

			conversation = append(conversation, llm.UserMessage(fmt.Sprintf(
				"Member '%s' responded.\nResult: %s%s\n%s\n\nIf all sub-goals are complete, set is_final=true and provide the final_answer.",
				memberName, resultSummary, urgencyMsg, progress.board(),
			)))

			action := fmt.Sprintf("%s:%s", memberName, memberTask)
			allSteps = append(allSteps, model.Step{Iteration: step, Thought: d.Thought, Action: &action, Observation: &resultSummary})

		default:
			warning := "Coordinator must delegate to a member, use a tool, or mark the task as final"
			conversation = append(conversation,
				llm.AssistantMessage(marshalDecision(d)),
				llm.UserMessage(fmt.Sprintf("%s\nPlease either delegate to a member or set is_final=true", warning)),
			)
			allSteps = append(allSteps, model.Step{Iteration: step, Thought: d.Thought, Observation: &warning})
		}
	}

	return finish(Response{
		Type:          agent.ResponseTimeout,
		PartialResult: fmt.Sprintf("Team reached max coordination steps. %s", progress.summary()),
	})
}

func (t *Team) systemPrompt(registry *tools.Registry) string {
	memberLines := make([]string, 0, len(t.order))
	for _, name := range t.order {
		memberLines = append(memberLines, fmt.Sprintf("- %s: %s", name, t.members[name].Description()))
	}

	var b strings.Builder
	if t.config.Description != "" {
		b.WriteString(t.config.Description + "\n\n")
	}
	fmt.Fprintf(&b, "You are the coordinator of the team %q. You delegate work to team members and combine their answers.\n\n", t.config.Name)
	fmt.Fprintf(&b, "Team Members:\n%s\n", strings.Join(memberLines, "\n"))

	if registry.Len() > 0 {
		fmt.Fprintf(&b, "\nCoordinator Tools:\n%s\n", registry.Description())
	}

	var instructions []string
	for _, in := range t.config.Instructions {
		if in = strings.TrimSpace(in); in != "" {
			instructions = append(instructions, "- "+in)
		}
	}
	if t.config.Markdown {
		instructions = append(instructions, "- Use markdown to format the final answer.")
	}
	if len(instructions) > 0 {
		fmt.Fprintf(&b, "\n<instructions>\n%s\n</instructions>\n", strings.Join(instructions, "\n"))
	}

	fmt.Fprintf(&b, `
IMPORTANT LIMITS:
- Maximum coordination steps: %d
- Maximum sub-goals to declare: %d

CRITICAL - Passing Data Between Members:
- member_task is the ONLY information a member receives besides earlier member outputs; make it complete

You MUST respond in this EXACT JSON format:
{
  "thought": "your reasoning about what to do next",
  "sub_goals": [{"id": "goal_1", "description": "..."}] or null,
  "tool": {"tool": "tool_name", "input": {...}} or null,
  "delegate_to": "member name or null",
  "member_task": "task for the member as a plain text STRING or null",
  "sub_goal_id": "which sub-goal this addresses or null",
  "is_final": false,
  "final_answer": null
}

Respond with valid JSON only. No extra text.`, t.config.MaxSteps, t.config.MaxSubGoals)

	return b.String()
}

// coordinatorTools builds the per-run tool registry.
func (t *Team) coordinatorTools() *tools.Registry {
	registry := tools.NewRegistry()
	if t.config.Reasoning {
		_ = registry.Register(tools.NewReasoningTool())
	}
	for _, tool := range t.config.Tools {
		_ = registry.Register(tool)
	}
	return registry
}

func (t *Team) runTool(ctx context.Context, registry *tools.Registry, action *agent.Action) string {
	tool, ok := registry.Get(action.Tool)
	if !ok {
		return fmt.Sprintf("Tool failed: tool '%s' not found", action.Tool)
	}
	input := action.Input
	if len(input) == 0 || string(input) == "null" {
		input = json.RawMessage("{}")
	}
	result, err := t.executor.Execute(ctx, tool, input)
	if err != nil {
		return fmt.Sprintf("Tool failed: %v", err)
	}
	if !result.Success() {
		return fmt.Sprintf("Tool failed: %v", result.Error)
	}
	return result.Output
}

func (t *Team) delegate(ctx context.Context, member Member, task string, contextData json.RawMessage) agent.Response {
	ctx, span := observability.Tracer(tracerName).Start(ctx, "team.delegate")
	defer span.End()
	span.SetAttributes(attribute.String("team.member", member.Name()))

	logger := logging.Component("team")
	logger.Info().Str("team", t.config.Name).Str("member", member.Name()).Msg("delegating task")

	if a, ok := member.(*agent.Agent); ok {
		a.Verbose(t.verbose)
	}
	resp := member.ExecuteWithContext(ctx, task, contextData, t.config.MaxMemberIterations)
	if !resp.IsSuccess() {
		span.SetStatus(codes.Error, resp.ResultText())
	}
	return resp
}

// decide asks the coordinator model for the next step.
func (t *Team) decide(ctx context.Context, conversation []llm.ChatMessage, stats *TokenStats) (decision, error) {
	var response string
	var usage *llm.TokenUsage
	var err error

	if t.verbose {
		response, usage, err = t.stream(ctx, conversation)
	} else {
		var resp llm.LLMResponse
		resp, err = t.provider.ChatWithFormat(ctx, conversation, llm.NewJSONObjectFormat())
		response, usage = resp.Content, resp.Usage
	}
	if err != nil {
		return decision{}, fmt.Errorf("LLM chat failed: %w", err)
	}

	stats.LLMCalls++
	stats.AddUsage(usage)

	var d decision
	if err := jsonutil.DecodeInto(response, &d); err != nil {
		return decision{Thought: response}, nil
	}
	return d, nil
}

type streamResult struct {
	usage *llm.TokenUsage
	err   error
}

func (t *Team) stream(ctx context.Context, conversation []llm.ChatMessage) (string, *llm.TokenUsage, error) {
	chunks := make(chan string, 100)
	resultCh := make(chan streamResult, 1)
	go func() {
		defer close(chunks)
		usage, err := t.provider.StreamChat(ctx, conversation, chunks)
		resultCh <- streamResult{usage: usage, err: err}
	}()

	var response strings.Builder
	printedHeader := false
	for chunk := range chunks {
		if !printedHeader {
			fmt.Fprintf(t.out, "\n[%s] ", t.config.Name)
			printedHeader = true
		}
		fmt.Fprint(t.out, chunk)
		response.WriteString(chunk)
	}
	if printedHeader {
		fmt.Fprint(t.out, "\n\n")
	}

	result := <-resultCh
	if result.err != nil {
		return "", nil, result.err
	}
	return response.String(), result.usage, nil
}

func marshalDecision(d decision) string {
	d.SubGoals = nil
	out, err := json.Marshal(d)
	if err != nil {
		return fmt.Sprintf(`{"thought": %q}`, d.Thought)
	}
	return string(out)
}
