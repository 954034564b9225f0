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

// Package kconfig defines the kernel's typed generation configuration
// record: a fixed struct with the recognized fields plus an Extras
// escape hatch for anything else, consulted only by LanguageModel port
// implementations.
package kconfig

import (
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Model is the generation configuration snapshot threaded through a turn.
// A *Model is what ModeManager's "config" isolation level snapshots and
// restores, and what Agent.Execute passes to the LanguageModel port.
type Model struct {
	// Model names the LLM to call (provider-specific identifier).
	Model string `yaml:"model" mapstructure:"model"`

	// Temperature controls sampling randomness.
	Temperature *float64 `yaml:"temperature,omitempty" mapstructure:"temperature"`

	// MaxTokens bounds the response length.
	MaxTokens *int `yaml:"max_tokens,omitempty" mapstructure:"max_tokens"`

	// TopP controls nucleus sampling.
	TopP *float64 `yaml:"top_p,omitempty" mapstructure:"top_p"`

	// Timeout bounds a single LanguageModel.Complete call.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`

	// FallbackModels are tried in order if Model's provider reports a
	// retryable LLMError; retry/fallback routing itself is an external
	// collaborator, this field only carries the ordering.
	FallbackModels []string `yaml:"fallback_models,omitempty" mapstructure:"fallback_models"`

	// Debug enables verbose per-turn logging.
	Debug bool `yaml:"debug" mapstructure:"debug"`

	// InstructorMode selects structured-extraction behavior for
	// response_model calls.
	InstructorMode string `yaml:"instructor_mode,omitempty" mapstructure:"instructor_mode"`

	// Extras holds provider-specific keys not recognized above.
	Extras map[string]any `yaml:"extras,omitempty" mapstructure:"extras"`
}

// DefaultTimeout is the default per-call LLM timeout.
const DefaultTimeout = 30 * time.Second

// Default returns a Model with the documented defaults applied.
func Default() *Model {
	return &Model{Timeout: DefaultTimeout}
}

// Clone deep-copies a Model so callers (mode isolation, version snapshots)
// never share mutable state across turns.
func (m *Model) Clone() *Model {
	if m == nil {
		return nil
	}
	clone := *m
	if m.Temperature != nil {
		t := *m.Temperature
		clone.Temperature = &t
	}
	if m.MaxTokens != nil {
		mt := *m.MaxTokens
		clone.MaxTokens = &mt
	}
	if m.TopP != nil {
		tp := *m.TopP
		clone.TopP = &tp
	}
	if m.FallbackModels != nil {
		clone.FallbackModels = append([]string(nil), m.FallbackModels...)
	}
	if m.Extras != nil {
		clone.Extras = make(map[string]any, len(m.Extras))
		for k, v := range m.Extras {
			clone.Extras[k] = v
		}
	}
	return &clone
}

// DecodeExtras decodes Extras into a caller-provided struct, the pattern
// an event handler or LanguageModel port implementation uses to read
// provider-specific keys without the kernel knowing their shape.
func (m *Model) DecodeExtras(into any) error {
	if m == nil || len(m.Extras) == 0 {
		return nil
	}
	return mapstructure.Decode(m.Extras, into)
}

// LoadModel parses a Model from its YAML form, the shape a caller
// embedding this kernel in a larger YAML-configured application uses to
// hand it a generation config snapshot.
func LoadModel(data []byte) (*Model, error) {
	m := Default()
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, err
	}
	return m, nil
}

// YAML renders a Model back to its YAML form, the inverse of LoadModel.
// ModeManager's config isolation level does not use it; it snapshots
// with Clone.
func (m *Model) YAML() ([]byte, error) {
	return yaml.Marshal(m)
}

// StripParallelToolCalls removes the "parallel_tool_calls" extras key and
// leaves every other key untouched. It acts only when called: the kernel
// does not call it itself, and nothing stops a later handler from setting
// the key again.
func (m *Model) StripParallelToolCalls() {
	if m == nil || m.Extras == nil {
		return
	}
	delete(m.Extras, "parallel_tool_calls")
}
