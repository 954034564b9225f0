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

// Package toolport defines the Tool port: the external collaborator
// interface a registered capability must satisfy. Tool discovery (MCP,
// filesystem) is explicitly out of scope — this package only fixes the
// shape a discovered tool is adapted to: a single synchronous call
// taking plain map[string]any args. SchemaFromStruct can derive a tool's
// JSON schema from a Go struct via invopop/jsonschema.
package toolport

import (
	"context"
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// Tool is a registered capability the LLM may invoke.
type Tool interface {
	// Name is the unique tool identifier the LLM uses in a tool_call.
	Name() string

	// Description is surfaced to the LLM to decide when to call this tool.
	Description() string

	// Schema returns the JSON schema of this tool's arguments, or nil if
	// it takes none.
	Schema() map[string]any

	// Call executes the tool. Responses may be any JSON-serializable
	// value; the executor wraps them into a Tool message.
	Call(ctx context.Context, args map[string]any) (any, error)
}

// Definition is the provider-facing description of a Tool, the shape a
// LanguageModel port consumes when advertising available tools.
type Definition struct {
	Name        string
	Description string
	Schema      map[string]any
}

// DefinitionOf builds a Definition from a live Tool.
func DefinitionOf(t Tool) Definition {
	return Definition{Name: t.Name(), Description: t.Description(), Schema: t.Schema()}
}

// SchemaFromStruct derives a JSON schema for a tool's typed argument
// struct using reflection, for tools that opt into typed arguments instead
// of a hand-written schema map. args should be a pointer to a zero-value
// struct, e.g. SchemaFromStruct(&WeatherArgs{}).
func SchemaFromStruct(args any) map[string]any {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}
	schema := reflector.Reflect(args)

	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{}
	}
	return out
}
