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

// Package event implements a typed pub/sub router with interceptable
// (before/around) and signal (after/error) phases, priority ordering,
// predicates, and sync/async bridging.
package event

import "time"

// Phase is the lifecycle phase an event handler registers for.
type Phase string

const (
	// Before is the only phase that may short-circuit via Interrupt.
	Before Phase = "before"
	// Around wraps the underlying operation.
	Around Phase = "around"
	// After is signal-only: observation, no interception.
	After Phase = "after"
	// Error is signal-only, fired when the operation or a Before handler failed.
	Error Phase = "error"
)

// Classification distinguishes interceptable events (Before/Around) from
// signal-only events (After/Error/state-change).
type Classification int

const (
	Interceptable Classification = iota
	Signal
)

// Priority constants are ergonomic sugar; the underlying type stays a
// plain int32 since callers need finer-grained ordering than a fixed
// enum of names can express.
const (
	PriorityHighest int32 = 100
	PriorityDefault int32 = 0
	PriorityLowest  int32 = -100
)

// Params is the marker interface every typed event parameter record
// implements. Handlers receive a *Context wrapping one of these.
type Params any

// Context is the mutable dispatch context passed to every handler for one
// emission.
type Context struct {
	Name      string
	Phase     Phase
	Params    Params
	Output    any
	emittedAt time.Time

	interrupted     bool
	interruptReason string
	interruptErr    error
}

// Interrupted reports whether a Before-phase handler short-circuited this
// dispatch.
func (c *Context) Interrupted() bool { return c.interrupted }

// InterruptReason returns the reason string attached by Interrupt, if any.
func (c *Context) InterruptReason() string { return c.interruptReason }

// InterruptErr returns the error attached by Interrupt, if the short
// circuit originated from a handler error.
func (c *Context) InterruptErr() error { return c.interruptErr }

// Interrupt stops iteration over remaining handlers for this dispatch and
// marks the Context interrupted. Only meaningful from a Before handler;
// calling it from an After/Error handler is a no-op observed by nothing
// (those phases never check Interrupted()).
func (c *Context) Interrupt(reason string, err error) {
	c.interrupted = true
	c.interruptReason = reason
	c.interruptErr = err
}

// SetOutput records a handler-supplied result, either to short-circuit a
// Before dispatch or to report an Around handler's wrapped result.
func (c *Context) SetOutput(v any) { c.Output = v }
