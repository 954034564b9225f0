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
	"encoding/json"
	"fmt"
	"iter"
	"time"

	"github.com/kadirpekel/agentkernel/pkg/event"
	"github.com/kadirpekel/agentkernel/pkg/llmport"
	"github.com/kadirpekel/agentkernel/pkg/message"
	"github.com/kadirpekel/agentkernel/pkg/toolexec"
)

// ExecuteParams configures one Execute call.
type ExecuteParams struct {
	MaxIterations  int
	ResponseSchema map[string]any
}

// ExecuteOption configures ExecuteParams.
type ExecuteOption func(*ExecuteParams)

// WithMaxIterations bounds the reasoning loop (default 10).
func WithMaxIterations(n int) ExecuteOption { return func(p *ExecuteParams) { p.MaxIterations = n } }

// WithResponseSchema requests structured extraction via the LanguageModel
// port's Extract method instead of Complete.
func WithResponseSchema(schema map[string]any) ExecuteOption {
	return func(p *ExecuteParams) { p.ResponseSchema = schema }
}

const defaultMaxIterations = 10

// Call runs a single turn and returns the final assistant message. If
// userInput is non-empty it is appended as a User message first.
func (a *Agent) Call(ctx context.Context, userInput string, opts ...ExecuteOption) (*message.Message, error) {
	if userInput != "" {
		if _, err := a.Append(message.RoleUser, userInput); err != nil {
			return nil, err
		}
	}

	allOpts := append([]ExecuteOption{WithMaxIterations(1)}, opts...)
	var last *message.Message
	for m, err := range a.Execute(ctx, allOpts...) {
		if err != nil {
			return nil, err
		}
		last = m
	}
	if last == nil {
		return nil, newError("Agent", "Call", fmt.Errorf("execute produced no assistant message"))
	}
	return last, nil
}

// Execute drives the multi-turn reasoning loop, yielding each message as
// it is produced. The returned sequence is lazy: the Executing state
// transition happens on the first pull and reverts to Ready when
// iteration stops, including early consumer-side termination.
func (a *Agent) Execute(ctx context.Context, opts ...ExecuteOption) iter.Seq2[*message.Message, error] {
	params := ExecuteParams{MaxIterations: defaultMaxIterations}
	for _, o := range opts {
		o(&params)
	}

	return func(yield func(*message.Message, error) bool) {
		if err := a.requireMutable(); err != nil {
			yield(nil, err)
			return
		}
		nested := a.state.load() == StateExecuting
		a.state.store(StateExecuting)
		defer func() {
			if !nested {
				a.state.store(StateReady)
			}
		}()

		router := a.modes.Current()
		ec := router.Apply(ctx, event.Execute, event.Before, &params)
		if ec.Interrupted() {
			return
		}

		for iteration := 0; iteration < params.MaxIterations; iteration++ {
			if ctx.Err() != nil {
				yield(nil, ctx.Err())
				return
			}

			iterBefore := router.Apply(ctx, event.ExecuteIter, event.Before, iteration)
			if iterBefore.Interrupted() {
				return
			}
			iterStart := time.Now()

			toolMsgs, err := a.resolvePending(ctx)
			if err != nil {
				if !a.handleExecuteError(ctx, router, yield, err) {
					return
				}
			}
			for _, tm := range toolMsgs {
				if !yield(tm, nil) {
					return
				}
			}

			if err := a.applyPendingTransition(ctx); err != nil {
				if !a.handleExecuteError(ctx, router, yield, err) {
					return
				}
			}

			assistant, err := a.runOneLLMStep(ctx, &params)
			if err != nil {
				if !a.handleExecuteError(ctx, router, yield, err) {
					return
				}
				router.Apply(ctx, event.ExecuteIter, event.After, iteration)
				a.recorder.RecordIteration(a.name, iteration, time.Since(iterStart))
				continue
			}

			if !yield(assistant, nil) {
				return
			}

			router.Apply(ctx, event.ExecuteIter, event.After, iteration)
			a.recorder.RecordIteration(a.name, iteration, time.Since(iterStart))

			if !assistant.HasPendingToolCalls() && !a.hasPendingTransition() {
				break
			}
		}

		router.Apply(ctx, event.Execute, event.After, &params)
	}
}

// handleExecuteError emits execute:error (interceptable: a handler may
// supply a fallback assistant message via SetOutput) and reports whether
// the loop should continue (true) or stop (false, yielding the error).
func (a *Agent) handleExecuteError(ctx context.Context, router *event.Router, yield func(*message.Message, error) bool, cause error) bool {
	ec := router.Apply(ctx, event.Execute+":error", event.Error, cause)
	if fallback, ok := ec.Output.(*message.Message); ok && fallback != nil {
		a.mu.Lock()
		a.attachBackref(fallback)
		a.store.Append(fallback)
		a.mu.Unlock()
		return yield(fallback, nil)
	}
	yield(nil, cause)
	return false
}

func (a *Agent) lastMessage() *message.Message {
	msgs := a.store.Messages()
	if len(msgs) == 0 {
		return nil
	}
	return msgs[len(msgs)-1]
}

// resolvePending resolves the tool calls pending on the current last
// assistant message, if any. Because this only ever runs immediately
// after the prior iteration appended the assistant, with nothing
// appended since, every tool call on it is by construction unanswered.
func (a *Agent) resolvePending(ctx context.Context) ([]*message.Message, error) {
	last := a.lastMessage()
	if last == nil || !last.HasPendingToolCalls() {
		return nil, nil
	}

	calls := make([]toolexec.Call, len(last.ToolCalls))
	for i, tc := range last.ToolCalls {
		var args map[string]any
		_ = json.Unmarshal([]byte(tc.ArgumentsRaw), &args)
		calls[i] = toolexec.Call{ID: tc.ID, Name: tc.FunctionName, Args: args}
	}

	start := time.Now()
	responses := a.executor.InvokeMany(ctx, calls)
	for _, r := range responses {
		a.recorder.RecordToolCall(r.ToolName, time.Since(start), r.IsError)
	}

	toolMsgs, err := toolexec.ToolMessages(responses)
	if err != nil {
		return nil, newError("ToolExecutor", "resolve_pending", err)
	}

	a.mu.Lock()
	for _, m := range toolMsgs {
		a.attachBackref(m)
	}
	a.store.Extend(toolMsgs)
	a.mu.Unlock()

	return toolMsgs, nil
}

// runOneLLMStep materializes the conversation, calls the LanguageModel
// port, converts the result into an Assistant message, and appends it.
func (a *Agent) runOneLLMStep(ctx context.Context, params *ExecuteParams) (*message.Message, error) {
	formatted := a.store.MaterializeForLLM()
	req := &llmport.Request{
		Messages:          formatted,
		Tools:             a.tools.Definitions(),
		Config:            a.config.Clone(),
		SystemInstruction: a.systemPrompt,
	}

	router := a.modes.Current()
	router.Apply(ctx, event.LLMComplete, event.Before, req)

	start := time.Now()
	var resp *llmport.Response
	var err error
	if params.ResponseSchema != nil {
		resp, err = a.llm.Extract(ctx, req, params.ResponseSchema)
	} else {
		resp, err = a.llm.Complete(ctx, req)
	}
	duration := time.Since(start)

	if err != nil {
		router.Apply(ctx, event.LLMComplete+":error", event.Error, err)
		return nil, &LLMError{Err: err, Retryable: false}
	}

	modelName := a.config.Model
	var prompt, completion int
	if resp.Usage != nil {
		prompt, completion = resp.Usage.PromptTokens, resp.Usage.CompletionTokens
	}
	a.recorder.RecordLLMComplete(modelName, duration, prompt, completion)
	router.Apply(ctx, event.LLMComplete, event.After, resp)

	assistant := a.convertResponse(resp)

	a.mu.Lock()
	a.attachBackref(assistant)
	a.store.Append(assistant)
	a.mu.Unlock()

	return assistant, nil
}

func (a *Agent) convertResponse(resp *llmport.Response) *message.Message {
	toolCalls := make([]message.ToolCall, len(resp.ToolCalls))
	for i, tc := range resp.ToolCalls {
		toolCalls[i] = message.ToolCall{ID: tc.ID, FunctionName: tc.FunctionName, ArgumentsRaw: tc.ArgumentsRaw}
	}

	var m *message.Message
	if resp.Structured != nil {
		m = message.NewAssistantStructured(resp.Text, resp.Structured)
		m.ToolCalls = toolCalls
	} else {
		m = message.NewAssistantMessage(resp.Text, toolCalls)
	}
	m.Reasoning = resp.Reasoning
	m.Refusal = resp.Refusal
	if resp.Usage != nil {
		m.Usage = &message.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return m
}
