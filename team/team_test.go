package team

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/richinex/inkwell/agent"
	"github.com/richinex/inkwell/llm/llmtest"
)

// stubMember records what it was asked and answers with a fixed response.
type stubMember struct {
	name     string
	response agent.Response
	tasks    []string
	contexts []json.RawMessage
}

func (s *stubMember) Name() string        { return s.name }
func (s *stubMember) Description() string { return "stub " + s.name }

func (s *stubMember) ExecuteWithContext(ctx context.Context, task string, contextData json.RawMessage, maxIterations int) agent.Response {
	s.tasks = append(s.tasks, task)
	s.contexts = append(s.contexts, contextData)
	return s.response
}

func success(result string) agent.Response {
	return agent.NewSuccessResponse(result, nil, agent.Metadata{ExecutionTimeMs: 1, AgentName: "stub", LLMCalls: 1})
}

func TestRunDelegatesAndFinishes(t *testing.T) {
	researcher := &stubMember{name: "Researcher", response: success(`{"articles":[{"title":"A"}]}`)}
	writer := &stubMember{name: "Writer", response: success("# Post")}

	coordinator := llmtest.New(
		`{"thought":"plan","sub_goals":[{"id":"g1","description":"research"},{"id":"g2","description":"write"}],"delegate_to":"Researcher","member_task":"find articles","sub_goal_id":"g1","is_final":false}`,
		`{"thought":"write now","delegate_to":"Writer","member_task":"write the post","sub_goal_id":"g2","is_final":false}`,
		`{"thought":"done","is_final":true,"final_answer":"# Post"}`,
	)

	tm := New(Config{Name: "Blogger", ShowMemberResponses: true}, coordinator, researcher, writer)
	resp := tm.Run(context.Background(), "write about batteries")

	if !resp.IsSuccess() {
		t.Fatalf("expected success, got %s: %s", resp.Type, resp.ResultText())
	}
	if resp.Result != "# Post" {
		t.Errorf("result = %q", resp.Result)
	}
	if resp.Metadata.Delegations != 2 {
		t.Errorf("delegations = %d, want 2", resp.Metadata.Delegations)
	}
	if resp.Metadata.TokenStats.LLMCalls != 5 {
		t.Errorf("llm calls = %d, want 5 (3 coordinator + 2 members)", resp.Metadata.TokenStats.LLMCalls)
	}
	if len(resp.MemberResponses) != 2 || resp.MemberResponses[1].Member != "Writer" {
		t.Errorf("member responses = %+v", resp.MemberResponses)
	}

	if len(researcher.contexts) != 1 || researcher.contexts[0] != nil {
		t.Errorf("first member should get no context, got %s", researcher.contexts)
	}
	if len(writer.contexts) != 1 || !strings.Contains(string(writer.contexts[0]), "Researcher_output") {
		t.Errorf("writer context = %s", writer.contexts)
	}

	feedback := coordinator.LastUserMessage(1)
	if !strings.Contains(feedback, "Member 'Researcher' responded.") || !strings.Contains(feedback, "[✓] research") {
		t.Errorf("unexpected feedback: %q", feedback)
	}
	if !strings.Contains(coordinator.SystemPrompt(0), "- Researcher: stub Researcher") {
		t.Errorf("system prompt missing members: %q", coordinator.SystemPrompt(0))
	}
}

func TestRunHidesMemberResponsesByDefault(t *testing.T) {
	m := &stubMember{name: "Solo", response: success("ok")}
	coordinator := llmtest.New(
		`{"thought":"go","delegate_to":"Solo","member_task":"do it","is_final":false}`,
		`{"thought":"done","is_final":true,"final_answer":"ok"}`,
	)

	resp := New(Config{Name: "T"}, coordinator, m).Run(context.Background(), "task")
	if !resp.IsSuccess() {
		t.Fatalf("expected success, got %s", resp.ResultText())
	}
	if resp.MemberResponses != nil {
		t.Errorf("member responses should be hidden, got %+v", resp.MemberResponses)
	}
}

func TestRunReportsUnknownMember(t *testing.T) {
	coordinator := llmtest.New(
		`{"thought":"try","delegate_to":"Ghost","member_task":"boo","is_final":false}`,
		`{"thought":"give up","is_final":true,"final_answer":"no ghost"}`,
	)
	m := &stubMember{name: "Real", response: success("x")}

	resp := New(Config{Name: "T"}, coordinator, m).Run(context.Background(), "task")
	if !resp.IsSuccess() || resp.Result != "no ghost" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	msg := coordinator.LastUserMessage(1)
	if !strings.Contains(msg, "Member 'Ghost' not found") || !strings.Contains(msg, "Real") {
		t.Errorf("unexpected error message: %q", msg)
	}
	if len(m.tasks) != 0 {
		t.Errorf("real member should not be called")
	}
}

func TestRunMemberFailureIsReported(t *testing.T) {
	m := &stubMember{name: "Flaky", response: agent.NewFailureResponse("boom", nil, agent.Metadata{ExecutionTimeMs: 1})}
	coordinator := llmtest.New(
		`{"thought":"go","delegate_to":"Flaky","member_task":"work","sub_goal_id":"g1","is_final":false}`,
		`{"thought":"done","is_final":true,"final_answer":"partial"}`,
	)

	resp := New(Config{Name: "T"}, coordinator, m).Run(context.Background(), "task")
	if !resp.IsSuccess() {
		t.Fatalf("expected success, got %s", resp.ResultText())
	}
	msg := coordinator.LastUserMessage(1)
	if !strings.Contains(msg, "FAILED: boom") || !strings.Contains(msg, "[✗] work") {
		t.Errorf("unexpected feedback: %q", msg)
	}
}

func TestRunUsesReasoningTool(t *testing.T) {
	coordinator := llmtest.New(
		`{"thought":"think first","tool":{"tool":"think","input":{"title":"Plan","thought":"research then write","confidence":0.8}},"is_final":false}`,
		`{"thought":"done","is_final":true,"final_answer":"planned"}`,
	)

	tm := New(Config{Name: "T", Reasoning: true}, coordinator)
	resp := tm.Run(context.Background(), "task")
	if !resp.IsSuccess() {
		t.Fatalf("expected success, got %s", resp.ResultText())
	}
	if !strings.Contains(coordinator.SystemPrompt(0), "think") {
		t.Errorf("system prompt should list the think tool")
	}
	msg := coordinator.LastUserMessage(1)
	if !strings.Contains(msg, "Plan: research then write") {
		t.Errorf("unexpected tool result: %q", msg)
	}

	// A second run starts with a fresh reasoning log.
	coordinator.Push(
		llmtest.Reply{Content: `{"thought":"again","tool":{"tool":"think","input":{"thought":"second"}},"is_final":false}`},
		llmtest.Reply{Content: `{"thought":"done","is_final":true,"final_answer":"ok"}`},
	)
	tm.Run(context.Background(), "task")
	msg = coordinator.LastUserMessage(3)
	if strings.Contains(msg, "research then write") {
		t.Errorf("reasoning state leaked across runs: %q", msg)
	}
}

func TestRunTimesOut(t *testing.T) {
	coordinator := llmtest.New(
		`{"thought":"hmm","is_final":false}`,
		`{"thought":"hmm","is_final":false}`,
	)

	resp := New(Config{Name: "T", MaxSteps: 2}, coordinator).Run(context.Background(), "task")
	if resp.Type != agent.ResponseTimeout {
		t.Fatalf("expected timeout, got %s", resp.Type)
	}
	if !strings.HasPrefix(resp.PartialResult, "Team reached max coordination steps.") {
		t.Errorf("partial result = %q", resp.PartialResult)
	}
	if !strings.Contains(coordinator.LastUserMessage(1), "Please either delegate to a member or set is_final=true") {
		t.Errorf("coordinator should be nudged after an empty decision")
	}
}

func TestRunCoordinatorError(t *testing.T) {
	coordinator := llmtest.New().Push(llmtest.Reply{Err: errors.New("rate limited")})

	resp := New(Config{Name: "T"}, coordinator).Run(context.Background(), "task")
	if resp.Type != agent.ResponseFailure {
		t.Fatalf("expected failure, got %s", resp.Type)
	}
	if !strings.Contains(resp.Error, "rate limited") {
		t.Errorf("error = %q", resp.Error)
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	coordinator := llmtest.New(`{"is_final":true,"final_answer":"x"}`)
	resp := New(Config{Name: "T"}, coordinator).Run(ctx, "task")
	if resp.Type != agent.ResponseFailure {
		t.Fatalf("expected failure, got %s", resp.Type)
	}
	if coordinator.CallCount() != 0 {
		t.Errorf("coordinator should not be called after cancellation")
	}
}

func TestRunWithAgentMemberAndStreaming(t *testing.T) {
	member := agent.New(agent.Config{Name: "Writer", Role: "Writes posts"}, llmtest.New("Drafted post")).
		WithOutput(&bytes.Buffer{})
	coordinator := llmtest.New(
		`{"thought":"delegate","delegate_to":"Writer","member_task":"draft","is_final":false}`,
		`{"thought":"done","is_final":true,"final_answer":{"title":"Drafted post"}}`,
	)

	var out bytes.Buffer
	tm := New(Config{Name: "Blogger"}, coordinator, member).Verbose(true).WithOutput(&out)
	resp := tm.Run(context.Background(), "task")
	if !resp.IsSuccess() {
		t.Fatalf("expected success, got %s", resp.ResultText())
	}
	if resp.Result != `{"title":"Drafted post"}` {
		t.Errorf("structured final answer = %q", resp.Result)
	}
	if !strings.Contains(out.String(), "[Blogger]") {
		t.Errorf("expected streamed coordinator output, got %q", out.String())
	}
	if !strings.Contains(coordinator.LastUserMessage(1), "SUCCESS: Drafted post") {
		t.Errorf("unexpected feedback: %q", coordinator.LastUserMessage(1))
	}
}

func TestTeamAsMember(t *testing.T) {
	inner := New(Config{Name: "Inner", Description: "nested team"},
		llmtest.New(`{"thought":"done","is_final":true,"final_answer":"inner result"}`))

	var _ Member = inner
	resp := inner.ExecuteWithContext(context.Background(), "task", json.RawMessage(`{"a":1}`), 5)
	if !resp.IsSuccess() || resp.Result != "inner result" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Metadata.AgentName != "Inner" {
		t.Errorf("agent name = %q", resp.Metadata.AgentName)
	}
}
