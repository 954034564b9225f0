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
	"sync"

	"github.com/kadirpekel/agentkernel/pkg/toolport"
)

// toolRegistry is the Agent's dynamic tool set, guarded by an RWMutex.
// The ToolExecutor looks each tool up at invocation time, so a
// registration that lands while InvokeMany is running is visible to any
// call that has not yet looked up its tool.
type toolRegistry struct {
	mu    sync.RWMutex
	tools map[string]toolport.Tool
}

func newToolRegistry() *toolRegistry {
	return &toolRegistry{tools: make(map[string]toolport.Tool)}
}

func (r *toolRegistry) Register(t toolport.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

func (r *toolRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

func (r *toolRegistry) Lookup(name string) (toolport.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Definitions returns the provider-facing Definition for every registered
// tool, the shape the LanguageModel port advertises to the model.
func (r *toolRegistry) Definitions() []toolport.Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]toolport.Definition, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, toolport.DefinitionOf(t))
	}
	return out
}
