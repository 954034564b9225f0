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
	"sync/atomic"
)

// Task is a handle to work submitted onto the Agent's scheduler, the
// minimal cross-thread submission surface for a non-async caller that
// wants to fire work off the current goroutine and join on it later.
type Task struct {
	done chan struct{}
	val  any
	err  error
}

// Join blocks until the task completes, or ctx is cancelled first.
func (t *Task) Join(ctx context.Context) (any, error) {
	select {
	case <-t.done:
		return t.val, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TaskStats reports aggregate counts over the lifetime of a Tasks set.
type TaskStats struct {
	Created   int64
	Completed int64
	Failed    int64
	Running   int64
}

// Tasks is the Agent's task scheduler surface. It does not itself limit
// concurrency — concurrent tool fan-out goes through ToolExecutor's
// errgroup-based InvokeMany instead; Tasks exists for ad hoc work a
// caller wants to submit off the current goroutine and join later.
type Tasks struct {
	created   atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	running   atomic.Int64
}

func newTasks() *Tasks { return &Tasks{} }

// Create submits fn to run on its own goroutine and returns a Task handle.
func (t *Tasks) Create(ctx context.Context, fn func(context.Context) (any, error)) *Task {
	t.created.Add(1)
	t.running.Add(1)
	task := &Task{done: make(chan struct{})}
	go func() {
		defer close(task.done)
		defer t.running.Add(-1)
		val, err := fn(ctx)
		task.val, task.err = val, err
		if err != nil {
			t.failed.Add(1)
		} else {
			t.completed.Add(1)
		}
	}()
	return task
}

// Stats returns a snapshot of task counters.
func (t *Tasks) Stats() TaskStats {
	return TaskStats{
		Created:   t.created.Load(),
		Completed: t.completed.Load(),
		Failed:    t.failed.Load(),
		Running:   t.running.Load(),
	}
}

// Count returns the number of tasks currently running.
func (t *Tasks) Count() int { return int(t.running.Load()) }
