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

package obs

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// InitTracerProvider installs a process-wide TracerProvider. Without an
// exporter configured the provider still samples and shapes spans (so
// span/parent relationships are correct for any exporter wired in later);
// it simply has nowhere to send them, a safe no-op default for when
// tracing is disabled.
func InitTracerProvider() trace.TracerProvider {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	return tp
}

// Tracer returns the named tracer from the global provider. The helpers
// in this file open an iteration span and tool-call spans on it; the
// Agent kernel does not open spans itself.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// StartIterationSpan opens the span for one reasoning-loop iteration.
func StartIterationSpan(ctx context.Context, tracer trace.Tracer, agentName string, iteration int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "agent.iteration",
		trace.WithAttributes(
			attribute.String("agent.name", agentName),
			attribute.Int("agent.iteration", iteration),
		))
}

// StartToolSpan opens a child span for one tool invocation.
func StartToolSpan(ctx context.Context, tracer trace.Tracer, toolName string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "tool.call", trace.WithAttributes(attribute.String("tool.name", toolName)))
}
