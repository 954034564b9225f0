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

package kconfig

import "testing"

func TestModel_CloneIsIndependent(t *testing.T) {
	temp := 0.7
	m := &Model{Model: "gpt", Temperature: &temp, Extras: map[string]any{"k": "v"}}
	clone := m.Clone()

	*clone.Temperature = 0.1
	clone.Extras["k"] = "changed"

	if *m.Temperature != 0.7 {
		t.Fatalf("Clone must deep-copy Temperature, original was mutated to %v", *m.Temperature)
	}
	if m.Extras["k"] != "v" {
		t.Fatalf("Clone must deep-copy Extras, original was mutated to %v", m.Extras["k"])
	}
}

func TestModel_YAMLRoundTrip(t *testing.T) {
	temp := 0.5
	m := &Model{Model: "gpt-test", Temperature: &temp, Timeout: DefaultTimeout}

	data, err := m.YAML()
	if err != nil {
		t.Fatalf("YAML() error = %v", err)
	}

	loaded, err := LoadModel(data)
	if err != nil {
		t.Fatalf("LoadModel() error = %v", err)
	}
	if loaded.Model != "gpt-test" {
		t.Fatalf("Model = %q, want %q", loaded.Model, "gpt-test")
	}
	if loaded.Temperature == nil || *loaded.Temperature != 0.5 {
		t.Fatalf("Temperature = %v, want 0.5", loaded.Temperature)
	}
}

func TestModel_DecodeExtras(t *testing.T) {
	m := &Model{Extras: map[string]any{"timeout_ms": 500}}
	var into struct {
		TimeoutMS int `mapstructure:"timeout_ms"`
	}
	if err := m.DecodeExtras(&into); err != nil {
		t.Fatalf("DecodeExtras() error = %v", err)
	}
	if into.TimeoutMS != 500 {
		t.Fatalf("TimeoutMS = %d, want 500", into.TimeoutMS)
	}
}

func TestModel_StripParallelToolCalls(t *testing.T) {
	m := &Model{Extras: map[string]any{"parallel_tool_calls": true, "other": 1}}
	m.StripParallelToolCalls()
	if _, ok := m.Extras["parallel_tool_calls"]; ok {
		t.Fatal("StripParallelToolCalls must remove the key")
	}
	if _, ok := m.Extras["other"]; !ok {
		t.Fatal("StripParallelToolCalls must not touch unrelated keys")
	}
}
