// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package kernel

import (
	"context"
	"iter"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/agentkernel/pkg/llmport"
	"github.com/kadirpekel/agentkernel/pkg/message"
	"github.com/kadirpekel/agentkernel/pkg/mode"
	"github.com/kadirpekel/agentkernel/pkg/mstore"
	"github.com/kadirpekel/agentkernel/pkg/toolport"
)

// twoStageGen is a mode.Generator with an empty setup/cleanup body, for
// tests that only care about isolation side effects, not mode behavior.
func twoStageGen() mode.Generator {
	return func(ctx context.Context, fr *mode.Frame) iter.Seq2[mode.Stage, error] {
		return func(yield func(mode.Stage, error) bool) {
			if !yield(mode.StageEntered, nil) {
				return
			}
			yield(mode.StageExiting, nil)
		}
	}
}

// scriptedLLM returns one canned Response per call to Complete, in order,
// then repeats the last response if Complete is called more times than
// scripted (guards against an infinite test loop masking a real bug).
type scriptedLLM struct {
	responses []*llmport.Response
	calls     int
}

func (s *scriptedLLM) Name() string                    { return "scripted" }
func (s *scriptedLLM) Supports(llmport.Capability) bool { return true }
func (s *scriptedLLM) Close() error                     { return nil }
func (s *scriptedLLM) Stream(ctx context.Context, req *llmport.Request) iter.Seq2[*llmport.Response, error] {
	return func(yield func(*llmport.Response, error) bool) {}
}
func (s *scriptedLLM) Extract(ctx context.Context, req *llmport.Request, schema map[string]any) (*llmport.Response, error) {
	return s.Complete(ctx, req)
}
func (s *scriptedLLM) Complete(ctx context.Context, req *llmport.Request) (*llmport.Response, error) {
	i := s.calls
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	s.calls++
	return s.responses[i], nil
}

type fakeWeatherTool struct{ calls int }

func (f *fakeWeatherTool) Name() string           { return "get_weather" }
func (f *fakeWeatherTool) Description() string    { return "returns the weather" }
func (f *fakeWeatherTool) Schema() map[string]any { return nil }
func (f *fakeWeatherTool) Call(ctx context.Context, args map[string]any) (any, error) {
	f.calls++
	return map[string]any{"forecast": "sunny"}, nil
}

var _ toolport.Tool = (*fakeWeatherTool)(nil)

func newTestAgent(t *testing.T, llm llmport.LLM) *Agent {
	t.Helper()
	a := New("test-agent", "you are a helpful assistant", nil, llm)
	require.NoError(t, a.Initialize(context.Background()))
	return a
}

func TestAgent_CallSingleTurnNoTools(t *testing.T) {
	llm := &scriptedLLM{responses: []*llmport.Response{{Text: "hello back"}}}
	a := newTestAgent(t, llm)

	out, err := a.Call(context.Background(), "hi")
	require.NoError(t, err)
	require.Equal(t, "hello back", out.Text())
	require.Equal(t, StateReady, a.State())
}

func TestAgent_ExecuteRunsToolRoundTrip(t *testing.T) {
	llm := &scriptedLLM{responses: []*llmport.Response{
		{ToolCalls: []mstore.FormattedToolCall{{ID: "c1", FunctionName: "get_weather", ArgumentsRaw: "{}"}}},
		{Text: "it is sunny"},
	}}
	tool := &fakeWeatherTool{}
	a := newTestAgent(t, llm)
	a.RegisterTool(tool)

	_, err := a.Append(message.RoleUser, "what's the weather?")
	require.NoError(t, err)

	var final *message.Message
	for m, err := range a.Execute(context.Background()) {
		require.NoError(t, err)
		final = m
	}

	require.Equal(t, 1, tool.calls)
	require.NotNil(t, final)
	require.Equal(t, "it is sunny", final.Text())

	msgs := a.Messages()
	var sawTool bool
	for _, m := range msgs {
		if m.Role == message.RoleTool {
			sawTool = true
		}
	}
	require.True(t, sawTool, "the tool round trip must append a Tool message to the store")
}

func TestAgent_CallForcesMaxIterationsOne(t *testing.T) {
	llm := &scriptedLLM{responses: []*llmport.Response{
		{ToolCalls: []mstore.FormattedToolCall{{ID: "c1", FunctionName: "get_weather", ArgumentsRaw: "{}"}}},
		{Text: "should never get here"},
	}}
	tool := &fakeWeatherTool{}
	a := newTestAgent(t, llm)
	a.RegisterTool(tool)

	out, err := a.Call(context.Background(), "weather?")
	require.NoError(t, err)
	require.True(t, out.HasPendingToolCalls(), "Call with max_iterations=1 must stop after the first assistant turn, leaving tool_calls unresolved")
	require.Equal(t, 0, tool.calls, "Call must not resolve pending tool calls past the single forced iteration")
}

func TestAgent_ExecuteRejectsWhenClosed(t *testing.T) {
	llm := &scriptedLLM{responses: []*llmport.Response{{Text: "x"}}}
	a := newTestAgent(t, llm)
	require.NoError(t, a.Close(context.Background()))

	for _, err := range a.Execute(context.Background()) {
		require.ErrorIs(t, err, ErrAgentClosed)
		break
	}
}

func TestAgent_AppendRejectsBeforeInitialize(t *testing.T) {
	llm := &scriptedLLM{responses: []*llmport.Response{{Text: "x"}}}
	a := New("uninitialized", "", nil, llm)
	_, err := a.Append(message.RoleUser, "hi")
	require.ErrorIs(t, err, ErrNotReady)
}

func TestAgent_RevertToVersion(t *testing.T) {
	llm := &scriptedLLM{responses: []*llmport.Response{{Text: "x"}}}
	a := newTestAgent(t, llm)

	a.Append(message.RoleUser, "one")
	v1 := a.VersionID()
	a.Append(message.RoleUser, "two")

	require.Len(t, a.Messages(), 3) // system + two user messages

	_, err := a.RevertToVersion(v1)
	require.NoError(t, err)
	require.Len(t, a.Messages(), 2)
}

func TestAgent_ForkClonesMessagesAndToolsIndependently(t *testing.T) {
	llm := &scriptedLLM{responses: []*llmport.Response{{Text: "x"}}}
	a := newTestAgent(t, llm)
	a.RegisterTool(&fakeWeatherTool{})
	a.Append(message.RoleUser, "hi")

	forked := a.Fork("forked-agent")
	require.Len(t, forked.Messages(), len(a.Messages()))
	require.Len(t, forked.ToolDefinitions(), 1, "fork must carry over registered tools")

	forked.Append(message.RoleUser, "only on the fork")
	require.NotEqual(t, len(a.Messages()), len(forked.Messages()), "mutating the fork must not affect the original agent's message log")
}

func TestAgent_ModeConfigIsolationRestoresConfigOnExit(t *testing.T) {
	llm := &scriptedLLM{responses: []*llmport.Response{{Text: "x"}}}
	a := newTestAgent(t, llm)
	original := a.config.Model

	fr, err := a.Mode(context.Background(), "cfgmode", nil, mode.IsolationConfig, twoStageGen())
	require.NoError(t, err)

	a.config.Model = "mutated-inside-mode"

	require.NoError(t, a.ModeExit(context.Background(), fr))
	require.Equal(t, original, a.config.Model, "IsolationConfig must restore the config snapshot captured at entry")
}

func TestAgent_ModeThreadIsolationRevertsVersionOnExit(t *testing.T) {
	llm := &scriptedLLM{responses: []*llmport.Response{{Text: "x"}}}
	a := newTestAgent(t, llm)

	fr, err := a.Mode(context.Background(), "threaded", nil, mode.IsolationThread, twoStageGen())
	require.NoError(t, err)

	_, err = a.Append(message.RoleUser, "inside the mode")
	require.NoError(t, err)
	_, err = a.Append(message.RoleUser, "also inside the mode")
	require.NoError(t, err)
	require.Len(t, a.Messages(), 3) // system + the two appends above

	require.NoError(t, a.ModeExit(context.Background(), fr))
	require.Len(t, a.Messages(), 1, "IsolationThread must revert to the version captured at mode entry on exit")
}

func TestAgent_ModeForkIsolationMergesOnDecision(t *testing.T) {
	llm := &scriptedLLM{responses: []*llmport.Response{{Text: "x"}}}
	a := newTestAgent(t, llm)
	baseline := len(a.Messages())

	fr, err := a.Mode(context.Background(), "forked", nil, mode.IsolationFork, twoStageGen())
	require.NoError(t, err)

	forked, ok := fr.State["fork_agent"].(*Agent)
	require.True(t, ok, "IsolationFork must expose the forked Agent via Frame.State[\"fork_agent\"]")
	_, err = forked.Append(message.RoleUser, "only on the fork")
	require.NoError(t, err)

	fr.State["fork_merge"] = true
	require.NoError(t, a.ModeExit(context.Background(), fr))

	require.Equal(t, baseline+1, len(a.Messages()), "merge=true must copy the fork's new tail messages back onto the parent")
}

func TestAgent_ModeForkIsolationDiscardsWithoutDecision(t *testing.T) {
	llm := &scriptedLLM{responses: []*llmport.Response{{Text: "x"}}}
	a := newTestAgent(t, llm)
	baseline := len(a.Messages())

	fr, err := a.Mode(context.Background(), "forked", nil, mode.IsolationFork, twoStageGen())
	require.NoError(t, err)

	forked := fr.State["fork_agent"].(*Agent)
	_, err = forked.Append(message.RoleUser, "only on the fork")
	require.NoError(t, err)

	require.NoError(t, a.ModeExit(context.Background(), fr))

	require.Equal(t, baseline, len(a.Messages()), "without fork_merge=true the fork's messages must never reach the parent")
}

func TestAgent_RegisterModeInvokableExposesEnterTool(t *testing.T) {
	llm := &scriptedLLM{responses: []*llmport.Response{{Text: "x"}}}
	a := newTestAgent(t, llm)

	a.RegisterMode("research", mode.IsolationNone, twoStageGen(), true)

	defs := a.ToolDefinitions()
	var found bool
	for _, d := range defs {
		if d.Name == "enter_research" {
			found = true
		}
	}
	require.True(t, found, "RegisterMode with invokable=true must expose an enter_<mode> tool")

	out, err := a.Invoke(context.Background(), "call-1", "enter_research", nil)
	require.NoError(t, err)
	require.Contains(t, out.Text(), "queued")
	require.True(t, a.hasPendingTransition(), "invoking enter_<mode> must queue a mode transition rather than switch immediately")
}

func TestAgent_RegisterModeNonInvokableExposesNoTool(t *testing.T) {
	llm := &scriptedLLM{responses: []*llmport.Response{{Text: "x"}}}
	a := newTestAgent(t, llm)

	a.RegisterMode("silent", mode.IsolationNone, twoStageGen(), false)
	require.Empty(t, a.ToolDefinitions())
}

func TestAgent_InvokeRunsOneToolDirectly(t *testing.T) {
	llm := &scriptedLLM{responses: []*llmport.Response{{Text: "x"}}}
	a := newTestAgent(t, llm)
	a.RegisterTool(&fakeWeatherTool{})

	out, err := a.Invoke(context.Background(), "call-1", "get_weather", nil)
	require.NoError(t, err)
	require.Equal(t, "call-1", out.ToolCallID)
}
