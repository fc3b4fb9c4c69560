// ReAct (Reason + Act) loop implementation.
//
// Agents with tools reason in a JSON decision loop and call tools through
// the executor. Agents without tools answer in one structured call.
//
// Information Hiding:
// - ReAct loop internals hidden
// - LLM communication hidden
// - Tool execution coordination hidden
// - Response schema enforcement hidden

package agent

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

	"github.com/richinex/inkwell/internal/jsonutil"
	"github.com/richinex/inkwell/llm"
	"github.com/richinex/inkwell/logging"
	"github.com/richinex/inkwell/model"
	"github.com/richinex/inkwell/observability"
	"github.com/richinex/inkwell/storage"
	"github.com/richinex/inkwell/tools"
)

const tracerName = "github.com/richinex/inkwell/agent"

// Agent executes tasks for one persona.
type Agent struct {
	config       Config
	provider     llm.Provider
	toolRegistry *tools.Registry
	toolExecutor *tools.Executor
	verbose      bool
	out          io.Writer
}

// New creates a new agent with the given configuration and provider.
func New(config Config, provider llm.Provider) *Agent {
	registry := tools.NewRegistry()
	for _, tool := range config.Tools {
		_ = registry.Register(tool) // Ignore duplicate errors - caller's responsibility
	}

	return &Agent{
		config:       config,
		provider:     provider,
		toolRegistry: registry,
		toolExecutor: tools.NewDefaultExecutor(),
		out:          os.Stdout,
	}
}

// WithToolConfig overrides the tool execution configuration.
func (a *Agent) WithToolConfig(config tools.ToolConfig) *Agent {
	a.toolExecutor = tools.NewExecutor(config)
	return a
}

// WithOutput sets where verbose streaming is written.
func (a *Agent) WithOutput(w io.Writer) *Agent {
	a.out = w
	return a
}

// Name returns the agent's name.
func (a *Agent) Name() string {
	return a.config.Name
}

// Description returns the agent's description, falling back to its role.
func (a *Agent) Description() string {
	if a.config.Description != "" {
		return a.config.Description
	}
	return a.config.Role
}

// Config returns a copy of the agent configuration.
func (a *Agent) Config() Config {
	return a.config
}

// Provider returns the model provider.
func (a *Agent) Provider() llm.Provider {
	return a.provider
}

// Verbose enables verbose output (shows LLM reasoning).
func (a *Agent) Verbose(enabled bool) *Agent {
	a.verbose = enabled
	return a
}

// Execute runs a task with the given maximum iterations.
func (a *Agent) Execute(ctx context.Context, task string, maxIterations int) Response {
	return a.executeFull(ctx, task, nil, nil, maxIterations)
}

// ExecuteWithHistory runs a task after prior conversation turns.
func (a *Agent) ExecuteWithHistory(ctx context.Context, task string, history []llm.ChatMessage, maxIterations int) Response {
	return a.executeFull(ctx, task, history, nil, maxIterations)
}

// ExecuteWithContext runs a task with additional context data.
func (a *Agent) ExecuteWithContext(ctx context.Context, task string, contextData json.RawMessage, maxIterations int) Response {
	return a.executeFull(ctx, task, nil, contextData, maxIterations)
}

// ExecuteInSession runs a task with the history stored for sessionID and
// appends the new user and assistant turns on success.
func (a *Agent) ExecuteInSession(ctx context.Context, store storage.ConversationStorage, sessionID, task string, maxIterations int) (Response, error) {
	history, err := store.Load(ctx, sessionID)
	if err != nil {
		return Response{}, fmt.Errorf("load history for session %s: %w", sessionID, err)
	}

	resp := a.ExecuteWithHistory(ctx, task, history, maxIterations)
	if !resp.IsSuccess() {
		return resp, nil
	}

	if err := store.Append(ctx, sessionID, llm.UserMessage(task), llm.AssistantMessage(resp.Result)); err != nil {
		return resp, fmt.Errorf("save history for session %s: %w", sessionID, err)
	}
	return resp, nil
}

func (a *Agent) executeFull(ctx context.Context, task string, history []llm.ChatMessage, contextData json.RawMessage, maxIterations int) Response {
	if maxIterations <= 0 {
		maxIterations = 1
	}

	ctx, span := observability.Tracer(tracerName).Start(ctx, "agent.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("agent.name", a.config.Name),
		attribute.Int("agent.tools", a.toolRegistry.Len()),
		attribute.Bool("agent.structured", a.config.HasResponseSchema()),
	)

	logger := logging.Component("agent")
	logger.Debug().Str("agent", a.config.Name).Int("max_iterations", maxIterations).Msg("agent run started")

	var resp Response
	if a.toolRegistry.Len() == 0 {
		resp = a.answer(ctx, task, history, contextData, maxIterations)
	} else {
		resp = a.react(ctx, task, history, contextData, maxIterations)
	}

	span.SetAttributes(
		attribute.String("agent.outcome", resp.Type.String()),
		attribute.Int("agent.llm_calls", resp.Metadata.LLMCalls),
	)
	if !resp.IsSuccess() {
		span.SetStatus(codes.Error, resp.ResultText())
		logger.Warn().Str("agent", a.config.Name).Str("outcome", resp.Type.String()).Msg(resp.ResultText())
	} else {
		logger.Debug().Str("agent", a.config.Name).Uint64("ms", resp.Metadata.ExecutionTimeMs).Msg("agent run finished")
	}
	return resp
}

// answer handles tool-less agents: one call, with the response schema
// passed as the provider's structured-output format. A reply that does not
// fit the schema is sent back for correction until iterations run out.
func (a *Agent) answer(ctx context.Context, task string, history []llm.ChatMessage, contextData json.RawMessage, maxIterations int) Response {
	run := newTally(a.config.Name)
	var steps []model.Step

	conversation := a.baseConversation(history, a.config.SystemPrompt())
	conversation = append(conversation, llm.UserMessage(withContext(task, contextData)))

	var format *llm.ResponseFormat
	if a.config.HasResponseSchema() {
		format = llm.NewJSONSchemaFormat(a.config.SchemaName(), a.config.ResponseSchema)
		format.JSONSchema.Strict = false
		if a.config.ExpectedOutput != "" {
			format.WithDescription(a.config.ExpectedOutput)
		}
	}

	for iteration := 0; iteration < maxIterations; iteration++ {
		if ctx.Err() != nil {
			return NewFailureResponse(fmt.Sprintf("execution cancelled: %v", ctx.Err()), steps, run.meta())
		}

		var content string
		var usage *llm.TokenUsage
		var err error
		if a.verbose && format == nil {
			content, usage, err = a.stream(ctx, conversation)
		} else {
			var resp llm.LLMResponse
			resp, err = a.provider.ChatWithFormat(ctx, conversation, format)
			content, usage = resp.Content, resp.Usage
		}
		if err != nil {
			return NewFailureResponse(fmt.Sprintf("Failed to generate response: %v", err), steps, run.meta())
		}
		run.record(usage)

		result := strings.TrimSpace(content)
		if format != nil {
			checked, err := conformToSchema(result, a.config.ResponseSchema)
			if err != nil {
				observation := fmt.Sprintf("Response rejected: %v", err)
				steps = append(steps, model.Step{Iteration: iteration, Thought: truncate(result, 200), Observation: &observation})
				conversation = append(conversation,
					llm.AssistantMessage(content),
					llm.UserMessage(fmt.Sprintf("%s\nRespond again with only a JSON object that matches the schema.", observation)),
				)
				continue
			}
			result = checked
		}

		if result == "" {
			observation := "Empty response"
			steps = append(steps, model.Step{Iteration: iteration, Observation: &observation})
			conversation = append(conversation, llm.AssistantMessage(content), llm.UserMessage("Your reply was empty. Please answer the task."))
			continue
		}

		steps = append(steps, model.Step{Iteration: iteration, Thought: "Answered directly", Observation: &result})
		return NewSuccessResponse(result, steps, run.meta())
	}

	return NewTimeoutResponse(maxIterationsReached, steps, run.meta())
}

// react runs the reason/act loop for agents with tools.
func (a *Agent) react(ctx context.Context, task string, history []llm.ChatMessage, contextData json.RawMessage, maxIterations int) Response {
	run := newTally(a.config.Name)
	var steps []model.Step
	var lastToolOutput string

	schemaSection := ""
	if a.config.HasResponseSchema() {
		schemaSection = fmt.Sprintf(
			"\n\nThe final_answer MUST be a JSON object matching this schema:\n%s",
			string(a.config.ResponseSchema),
		)
	}

	systemPrompt := fmt.Sprintf(
		`%s

Available Tools:
%s

You have a maximum of %d iterations.
Respond in this JSON format:
{
  "thought": "your reasoning",
  "action": {"tool": "name", "input": {...}},
  "is_final": false,
  "final_answer": null
}

When complete: is_final=true, action=null, provide final_answer.%s`,
		a.config.SystemPrompt(),
		a.toolRegistry.Description(),
		maxIterations,
		schemaSection,
	)

	conversation := a.baseConversation(history, systemPrompt)
	conversation = append(conversation, llm.UserMessage(fmt.Sprintf("Task: %s", withContext(task, contextData))))

	for iteration := 0; iteration < maxIterations; iteration++ {
		if ctx.Err() != nil {
			return NewFailureResponse(fmt.Sprintf("execution cancelled: %v", ctx.Err()), steps, run.meta())
		}

		remaining := maxIterations - iteration

		decision, usage, err := a.think(ctx, conversation)
		if err != nil {
			return NewFailureResponse(fmt.Sprintf("Failed to reason: %v", err), steps, run.meta())
		}

		run.record(usage)

		if decision.IsFinal {
			result := a.getFinalResult(decision, lastToolOutput)

			if a.config.HasResponseSchema() {
				checked, err := conformToSchema(result, a.config.ResponseSchema)
				if err != nil {
					observation := fmt.Sprintf("final_answer rejected: %v", err)
					conversation = append(conversation,
						llm.AssistantMessage(marshalDecision(decision)),
						llm.UserMessage(observation+"\nProvide the final_answer again as a JSON object matching the schema."),
					)
					steps = append(steps, model.Step{Iteration: iteration, Thought: decision.Thought, Observation: &observation})
					continue
				}
				result = checked
			}

			steps = append(steps, model.Step{
				Iteration:   iteration,
				Thought:     decision.Thought,
				Action:      nil,
				Observation: &result,
			})

			return NewSuccessResponse(result, steps, run.meta())
		}

		if decision.Action != nil {
			observation, toolCall, err := a.executeTool(ctx, decision.Action)

			if toolCall != nil {
				run.toolCalls = append(run.toolCalls, *toolCall)
			}

			if err == nil {
				lastToolOutput = observation
			}

			conversation = append(conversation, llm.AssistantMessage(marshalDecision(decision)))

			urgency := ""
			if remaining <= 2 {
				urgency = fmt.Sprintf("\n\nWARNING: Only %d iterations remaining!", remaining-1)
			}

			observationMsg := observation
			if err != nil {
				observationMsg = fmt.Sprintf("Tool failed: %v", err)
			}

			conversation = append(conversation, llm.UserMessage(fmt.Sprintf(
				"Observation: %s%s\n\nIs the task complete? If yes, set is_final=true.",
				observationMsg, urgency,
			)))

			actionName := decision.Action.Tool
			steps = append(steps, model.Step{
				Iteration:   iteration,
				Thought:     decision.Thought,
				Action:      &actionName,
				Observation: &observationMsg,
			})
			continue
		}

		// No action and not final: accept the thought as an implicit answer
		// once tools have produced something, otherwise nudge the model.
		if hasPriorProgress(steps) && !a.config.HasResponseSchema() {
			result := a.getImplicitResult(decision, lastToolOutput, steps)
			return NewSuccessResponse(result, steps, run.meta())
		}

		observation := "No action specified"
		conversation = append(conversation,
			llm.AssistantMessage(marshalDecision(decision)),
			llm.UserMessage("No action specified. Call a tool, or set is_final=true with a final_answer."),
		)
		steps = append(steps, model.Step{
			Iteration:   iteration,
			Thought:     decision.Thought,
			Action:      nil,
			Observation: &observation,
		})
	}

	return NewTimeoutResponse(maxIterationsReached, steps, run.meta())
}

// baseConversation returns the system prompt followed by prior turns.
// System messages inside history are dropped.
func (a *Agent) baseConversation(history []llm.ChatMessage, systemPrompt string) []llm.ChatMessage {
	conversation := make([]llm.ChatMessage, 0, len(history)+2)
	conversation = append(conversation, llm.SystemMessage(systemPrompt))
	for _, m := range history {
		if m.Role == llm.RoleSystem {
			continue
		}
		conversation = append(conversation, m)
	}
	return conversation
}

// think asks the LLM for the next action.
// Uses streaming when verbose mode is enabled to show tokens in real-time.
func (a *Agent) think(ctx context.Context, conversation []llm.ChatMessage) (Decision, *llm.TokenUsage, error) {
	var response string
	var err error
	var usage *llm.TokenUsage

	if a.verbose {
		response, usage, err = a.stream(ctx, conversation)
	} else {
		var resp llm.LLMResponse
		resp, err = a.provider.ChatWithFormat(ctx, conversation, llm.NewJSONObjectFormat())
		response, usage = resp.Content, resp.Usage
	}

	if err != nil {
		return Decision{}, nil, fmt.Errorf("LLM chat failed: %w", err)
	}

	var decision Decision
	if err := jsonutil.DecodeInto(response, &decision); err != nil {
		// Not JSON: treat as a thought without action.
		return Decision{
			Thought: response,
			IsFinal: false,
		}, usage, nil
	}

	return decision, usage, nil
}

// streamResult holds the result of a streaming call.
type streamResult struct {
	usage *llm.TokenUsage
	err   error
}

// stream shows tokens in real-time (verbose mode) and returns the full text.
func (a *Agent) stream(ctx context.Context, conversation []llm.ChatMessage) (string, *llm.TokenUsage, error) {
	chunks := make(chan string, 100)

	resultCh := make(chan streamResult, 1)
	go func() {
		defer close(chunks)
		usage, err := a.provider.StreamChat(ctx, conversation, chunks)
		resultCh <- streamResult{usage: usage, err: err}
	}()

	var response strings.Builder
	printedHeader := false

	for chunk := range chunks {
		if !printedHeader {
			fmt.Fprintf(a.out, "\n[%s] ", a.config.Name)
			printedHeader = true
		}
		fmt.Fprint(a.out, chunk)
		if f, ok := a.out.(*os.File); ok {
			_ = f.Sync()
		}
		response.WriteString(chunk)
	}

	if printedHeader {
		fmt.Fprint(a.out, "\n\n")
	}

	result := <-resultCh
	if result.err != nil {
		return "", nil, result.err
	}

	return response.String(), result.usage, nil
}

// executeTool runs a tool and returns the observation.
func (a *Agent) executeTool(ctx context.Context, action *Action) (string, *model.ToolCall, error) {
	tool, exists := a.toolRegistry.Get(action.Tool)
	if !exists {
		return "", nil, fmt.Errorf("tool '%s' not found, available: %s", action.Tool, strings.Join(a.toolRegistry.Names(), ", "))
	}

	input := action.Input
	if len(input) == 0 || string(input) == "null" {
		input = json.RawMessage("{}")
	}

	startTime := time.Now()
	result, err := a.toolExecutor.Execute(ctx, tool, input)
	if err != nil {
		return "", nil, fmt.Errorf("tool %q failed: %w", action.Tool, err)
	}

	toolCall := &model.ToolCall{
		Name:       action.Tool,
		InputSize:  len(input),
		OutputSize: len(result.Output),
		DurationMs: uint64(time.Since(startTime).Milliseconds()),
		Success:    result.Success(),
	}

	if result.Success() {
		return result.Output, toolCall, nil
	}

	return "", toolCall, result.Error
}

// Result helpers

func (a *Agent) getFinalResult(decision Decision, lastToolOutput string) string {
	if a.config.ReturnToolOutput && lastToolOutput != "" {
		return lastToolOutput
	}
	if decision.FinalAnswer != nil {
		return *decision.FinalAnswer
	}
	return "Task completed"
}

func (a *Agent) getImplicitResult(decision Decision, lastToolOutput string, steps []model.Step) string {
	if a.config.ReturnToolOutput && lastToolOutput != "" {
		return lastToolOutput
	}
	if decision.Thought != "" {
		return decision.Thought
	}
	if len(steps) > 0 && steps[len(steps)-1].Observation != nil {
		return *steps[len(steps)-1].Observation
	}
	return "Task completed"
}

func hasPriorProgress(steps []model.Step) bool {
	for _, s := range steps {
		if s.Action != nil && s.Observation != nil {
			return true
		}
	}
	return false
}

func marshalDecision(d Decision) string {
	msg := map[string]interface{}{
		"thought":  d.Thought,
		"is_final": d.IsFinal,
	}
	if d.Action != nil {
		msg["action"] = map[string]interface{}{
			"tool":  d.Action.Tool,
			"input": d.Action.Input,
		}
	}
	if d.FinalAnswer != nil {
		msg["final_answer"] = *d.FinalAnswer
	}
	out, err := json.Marshal(msg)
	if err != nil {
		return fmt.Sprintf(`{"thought": %q}`, d.Thought)
	}
	return string(out)
}

func withContext(task string, contextData json.RawMessage) string {
	if len(contextData) == 0 {
		return task
	}
	return fmt.Sprintf("%s\n\nCONTEXT DATA:\n```json\n%s\n```", task, string(contextData))
}

func elapsedMs(start time.Time) uint64 {
	return uint64(time.Since(start).Milliseconds())
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
