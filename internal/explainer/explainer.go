// Package explainer backs "forge explain": given a captured compile/link
// failure, it asks an LLM provider for a short diagnosis and suggested
// fix. It never runs automatically — only this explicit, opt-in path
// touches the network, so build orchestration itself stays fully offline.
package explainer

import (
	"context"
	"fmt"
	"strings"

	"github.com/forgebuild/forge/internal/llm"
)

// Failure is a captured task failure worth explaining.
type Failure struct {
	// Task labels the compile/link/archive step that failed (e.g. "main.cpp" or "hello:link").
	Task string
	// Compiler is the tool invoked (compiler, linker, or archiver).
	Compiler string
	// Args is the argument list that was run.
	Args []string
	// ExitCode is the process exit status.
	ExitCode int
	// Output is the captured combined stdout+stderr.
	Output string
}

const systemPrompt = "You are a terse build-failure diagnostician for a C/C++ build tool. " +
	"Given one failed compile, link, or archive invocation, identify the most likely root " +
	"cause and suggest one concrete fix. Answer in at most four sentences; do not restate " +
	"the full command line or the full captured output back to the user."

// ProviderFactory constructs an llm.Provider, or returns an error if its
// prerequisites (an API key, typically) aren't available.
type ProviderFactory func(ctx context.Context) (llm.Provider, error)

// DefaultProviders tries Anthropic's Claude first, falling back to
// Google's Gemini if Claude's prerequisites are missing or the call fails.
func DefaultProviders() []ProviderFactory {
	return []ProviderFactory{
		func(ctx context.Context) (llm.Provider, error) { return llm.NewClaudeProvider() },
		func(ctx context.Context) (llm.Provider, error) { return llm.NewGeminiProvider(ctx) },
	}
}

// Explain asks the first available provider in providers to diagnose f,
// falling through to the next provider on any error.
func Explain(ctx context.Context, f Failure, providers []ProviderFactory) (string, error) {
	if len(providers) == 0 {
		providers = DefaultProviders()
	}

	req := &llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: renderFailure(f)},
		},
		MaxTokens: 300,
	}

	var errs []string
	for _, newProvider := range providers {
		provider, err := newProvider(ctx)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}

		resp, err := provider.Complete(ctx, req)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", provider.Name(), err))
			continue
		}
		return resp.Content, nil
	}

	return "", fmt.Errorf("explainer: no provider could explain the failure: %s", strings.Join(errs, "; "))
}

func renderFailure(f Failure) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Task %q failed (%s, exit code %d).\n", f.Task, f.Compiler, f.ExitCode)
	fmt.Fprintf(&sb, "Command: %s %s\n", f.Compiler, strings.Join(f.Args, " "))
	sb.WriteString("Captured output:\n")
	sb.WriteString(f.Output)
	return sb.String()
}
