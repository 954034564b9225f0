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

package llmport

import (
	"context"
	"errors"
	"iter"
	"testing"
)

type streamingLLM struct {
	chunks []*Response
	err    error
}

func (s *streamingLLM) Name() string                    { return "streaming" }
func (s *streamingLLM) Supports(Capability) bool         { return true }
func (s *streamingLLM) Close() error                     { return nil }
func (s *streamingLLM) Complete(ctx context.Context, req *Request) (*Response, error) {
	return nil, errors.New("not used in this test")
}
func (s *streamingLLM) Extract(ctx context.Context, req *Request, schema map[string]any) (*Response, error) {
	return nil, errors.New("not used in this test")
}
func (s *streamingLLM) Stream(ctx context.Context, req *Request) iter.Seq2[*Response, error] {
	return func(yield func(*Response, error) bool) {
		if s.err != nil {
			yield(nil, s.err)
			return
		}
		for _, c := range s.chunks {
			if !yield(c, nil) {
				return
			}
		}
	}
}

func TestAggregate_ReturnsFinalNonPartialResponse(t *testing.T) {
	llm := &streamingLLM{chunks: []*Response{
		{Text: "hel", Partial: true},
		{Text: "hello", Partial: false},
	}}
	resp, err := Aggregate(context.Background(), llm, &Request{})
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if resp.Text != "hello" {
		t.Fatalf("Aggregate() = %q, want the final aggregated chunk", resp.Text)
	}
}

func TestAggregate_PropagatesStreamError(t *testing.T) {
	llm := &streamingLLM{err: errors.New("stream failed")}
	_, err := Aggregate(context.Background(), llm, &Request{})
	if err == nil {
		t.Fatal("Aggregate must propagate a mid-stream error")
	}
}
