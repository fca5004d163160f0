package llm

import (
	"os"
	"testing"
)

// setTestAPIKey sets ANTHROPIC_API_KEY for the duration of a test and
// returns a cleanup function restoring the previous value.
func setTestAPIKey(t *testing.T, key string) func() {
	t.Helper()
	original := os.Getenv("ANTHROPIC_API_KEY")
	if key == "" {
		_ = os.Unsetenv("ANTHROPIC_API_KEY")
	} else {
		_ = os.Setenv("ANTHROPIC_API_KEY", key)
	}
	return func() {
		if original != "" {
			_ = os.Setenv("ANTHROPIC_API_KEY", original)
		} else {
			_ = os.Unsetenv("ANTHROPIC_API_KEY")
		}
	}
}

func TestNewClaudeProvider_NoAPIKey(t *testing.T) {
	cleanup := setTestAPIKey(t, "")
	defer cleanup()

	_, err := NewClaudeProvider()
	if err == nil {
		t.Error("expected error when ANTHROPIC_API_KEY is not set")
	}
}

func TestNewClaudeProvider_WithAPIKey(t *testing.T) {
	cleanup := setTestAPIKey(t, "test-key")
	defer cleanup()

	provider, err := NewClaudeProvider()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider == nil {
		t.Error("expected non-nil provider")
	}
}

func TestClaudeProvider_Name(t *testing.T) {
	cleanup := setTestAPIKey(t, "test-key")
	defer cleanup()

	provider, err := NewClaudeProvider()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := provider.Name(); got != "claude" {
		t.Errorf("Name() = %q, want %q", got, "claude")
	}
}

func TestToAnthropicMessages_UserMessage(t *testing.T) {
	msgs := []Message{
		{Role: RoleUser, Content: "why did main.cpp fail to link?"},
	}

	result := toAnthropicMessages(msgs)
	if len(result) != 1 {
		t.Fatalf("expected 1 message, got %d", len(result))
	}
}

func TestToAnthropicMessages_AssistantMessage(t *testing.T) {
	msgs := []Message{
		{Role: RoleAssistant, Content: "the linker is missing -lmathkit"},
	}

	result := toAnthropicMessages(msgs)
	if len(result) != 1 {
		t.Fatalf("expected 1 message, got %d", len(result))
	}
}

func TestToAnthropicMessages_ToolCall(t *testing.T) {
	msgs := []Message{
		{
			Role:    RoleAssistant,
			Content: "",
			ToolCalls: []ToolCall{
				{
					ID:   "call-123",
					Name: "read_build_log",
					Arguments: map[string]any{
						"task": "main.cpp",
					},
				},
			},
		},
	}

	result := toAnthropicMessages(msgs)
	if len(result) != 1 {
		t.Fatalf("expected 1 message, got %d", len(result))
	}
}

func TestToAnthropicMessages_ToolResult(t *testing.T) {
	msgs := []Message{
		{
			Role: RoleUser,
			ToolResult: &ToolResult{
				CallID:  "call-123",
				Content: "main.cpp:3:1: error: expected ';'",
				IsError: false,
			},
		},
	}

	result := toAnthropicMessages(msgs)
	if len(result) != 1 {
		t.Fatalf("expected 1 message, got %d", len(result))
	}
}

func TestToAnthropicTools(t *testing.T) {
	tools := []ToolDef{
		{
			Name:        "read_build_log",
			Description: "Read a compile task's captured output",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"task": map[string]any{
						"type":        "string",
						"description": "Task label to read",
					},
				},
				"required": []string{"task"},
			},
		},
	}

	result := toAnthropicTools(tools)
	if len(result) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(result))
	}
}

func TestToAnthropicTools_Empty(t *testing.T) {
	result := toAnthropicTools(nil)
	if result != nil {
		t.Errorf("expected nil for empty tools, got %v", result)
	}
}

// TestClaudeProvider_Complete_Integration is skipped unless ANTHROPIC_API_KEY
// is set. It makes a real API call and incurs costs.
func TestClaudeProvider_Complete_Integration(t *testing.T) {
	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		t.Skip("ANTHROPIC_API_KEY not set, skipping integration test")
	}

	provider, err := NewClaudeProvider()
	if err != nil {
		t.Fatalf("NewClaudeProvider error: %v", err)
	}

	req := &CompletionRequest{
		SystemPrompt: "You explain native build failures briefly.",
		Messages: []Message{
			{Role: RoleUser, Content: "undefined reference to `main'"},
		},
		MaxTokens: 100,
	}

	resp, err := provider.Complete(t.Context(), req)
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}

	if resp == nil {
		t.Fatal("expected non-nil response")
	}
	if resp.Content == "" {
		t.Error("expected non-empty content")
	}
}
