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

// Package toolexec implements parallel tool invocation with emission in
// the assistant's tool_calls order regardless of completion order, and
// synthetic-error responses instead of propagated exceptions: a failed
// call is wrapped into a result value, never bubbled out as a bare error
// on the caller-facing Execute path. Fan-out uses golang.org/x/sync/errgroup.
package toolexec

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/agentkernel/pkg/event"
	"github.com/kadirpekel/agentkernel/pkg/logging"
	"github.com/kadirpekel/agentkernel/pkg/message"
	"github.com/kadirpekel/agentkernel/pkg/toolport"
)

// Registry is the tool lookup the executor needs. The Agent kernel passes
// its live, mutable registry; Executor looks each tool up at invocation
// time, so a registration made during InvokeMany is visible to calls that
// have not yet looked up their tool.
type Registry interface {
	Lookup(name string) (toolport.Tool, bool)
}

// Call is one requested invocation.
type Call struct {
	ID   string
	Name string
	Args map[string]any
}

// Response is the result of one Call, always produced — failures are
// carried as data, never as a returned error.
type Response struct {
	ToolCallID string
	ToolName   string
	Content    string
	IsError    bool
}

// BeforeCallParams is the typed parameter record for tool:call/before.
type BeforeCallParams struct {
	Call Call
	// Synthetic, if set by a handler, short-circuits the real invocation
	// and is used verbatim as the response content.
	Synthetic *string
}

// AfterCallParams is the typed parameter record for tool:call/after.
type AfterCallParams struct {
	Call     Call
	Response Response
}

// ErrorCallParams is the typed parameter record for tool:call/error.
type ErrorCallParams struct {
	Call Call
	Err  error
	// Fallback, if set by a handler, replaces the error content.
	Fallback *string
}

// Executor is the ToolExecutor.
type Executor struct {
	registry Registry
	router   *event.Router
	logger   *slog.Logger
}

// New creates an Executor bound to a tool registry and event router.
func New(registry Registry, router *event.Router) *Executor {
	return &Executor{registry: registry, router: router, logger: logging.With("tool_executor")}
}

// Invoke runs a single tool call and always returns a Response, never a
// bare error.
func (e *Executor) Invoke(ctx context.Context, call Call) Response {
	before := &BeforeCallParams{Call: call}
	// Apply passes *before* by pointer as Params; a Before handler mutates
	// it in place to request a short circuit.
	e.router.Apply(ctx, event.ToolCall, event.Before, before)
	if before.Synthetic != nil {
		resp := Response{ToolCallID: call.ID, ToolName: call.Name, Content: *before.Synthetic}
		e.emitAfter(ctx, call, resp)
		return resp
	}

	tool, ok := e.registry.Lookup(call.Name)
	if !ok {
		resp := e.errorResponse(ctx, call, fmt.Errorf("toolexec: tool %q not found", call.Name))
		return resp
	}

	result, err := tool.Call(ctx, call.Args)
	if err != nil {
		return e.errorResponse(ctx, call, err)
	}

	content, encErr := encodeContent(result)
	if encErr != nil {
		return e.errorResponse(ctx, call, encErr)
	}

	resp := Response{ToolCallID: call.ID, ToolName: call.Name, Content: content}
	e.emitAfter(ctx, call, resp)
	return resp
}

func (e *Executor) errorResponse(ctx context.Context, call Call, err error) Response {
	params := &ErrorCallParams{Call: call, Err: err}
	e.router.Apply(ctx, event.ToolCall+":error", event.Error, params)

	content := fmt.Sprintf(`{"error":%q}`, err.Error())
	if params.Fallback != nil {
		content = *params.Fallback
	}
	resp := Response{ToolCallID: call.ID, ToolName: call.Name, Content: content, IsError: true}
	e.logger.Warn("tool call failed", "tool", call.Name, "id", call.ID, "error", err)
	e.emitAfter(ctx, call, resp)
	return resp
}

func (e *Executor) emitAfter(ctx context.Context, call Call, resp Response) {
	e.router.Apply(ctx, event.ToolCall, event.After, &AfterCallParams{Call: call, Response: resp})
}

// InvokeMany runs N calls concurrently and returns their responses in the
// same order as calls, regardless of completion order: each goroutine
// writes into a pre-allocated slot by index, so join order never
// reorders emission.
func (e *Executor) InvokeMany(ctx context.Context, calls []Call) []Response {
	out := make([]Response, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		i, call := i, call
		g.Go(func() error {
			out[i] = e.Invoke(gctx, call)
			return nil
		})
	}
	// Errors are never returned by Invoke, so g.Wait only ever reports
	// context cancellation; a cancelled call still commits whatever
	// Response it had already produced.
	_ = g.Wait()
	return out
}

func encodeContent(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("toolexec: encoding result: %w", err)
	}
	return string(b), nil
}

// PendingCalls extracts the Call list for every tool_call on an assistant
// message that resolvePending-style logic (kernel package) determined is
// still unanswered.
func PendingCalls(msg *message.Message, unanswered map[string]bool) []Call {
	calls := make([]Call, 0, len(msg.ToolCalls))
	for _, tc := range msg.ToolCalls {
		if !unanswered[tc.ID] {
			continue
		}
		var args map[string]any
		_ = json.Unmarshal([]byte(tc.ArgumentsRaw), &args)
		calls = append(calls, Call{ID: tc.ID, Name: tc.FunctionName, Args: args})
	}
	return calls
}

// ToolMessages converts Responses into Tool messages, in order, ready for
// Store.Extend.
func ToolMessages(responses []Response) ([]*message.Message, error) {
	out := make([]*message.Message, 0, len(responses))
	for _, r := range responses {
		m, err := message.NewToolMessage(r.ToolCallID, r.ToolName, r.Content)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
