// Package errmsg provides enhanced error message formatting with actionable suggestions.
package errmsg

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/forgebuild/forge/internal/project"
)

// ErrorContext provides additional context for error formatting
type ErrorContext struct {
	ProjectName string // The project being built (for suggestions)
}

// Format returns a formatted error message with possible causes and suggestions.
// The context parameter is optional - pass nil for generic formatting.
func Format(err error, ctx *ErrorContext) string {
	if err == nil {
		return ""
	}

	errMsg := err.Error()

	var configErr *project.ConfigError
	if errors.As(err, &configErr) {
		return formatConfigError(configErr, ctx)
	}

	var fsErr *project.FilesystemError
	if errors.As(err, &fsErr) {
		return formatFilesystemError(fsErr, ctx)
	}

	var buildErr *project.BuildFailedError
	if errors.As(err, &buildErr) {
		return formatBuildFailedError(buildErr, ctx)
	}

	var cycleErr *project.CycleError
	if errors.As(err, &cycleErr) {
		return formatCycleError(cycleErr, ctx)
	}

	var artifactErr *project.MissingArtifactError
	if errors.As(err, &artifactErr) {
		return formatMissingArtifactError(artifactErr, ctx)
	}

	// Check for network errors
	var netErr net.Error
	if errors.As(err, &netErr) {
		return formatNetworkError(netErr, ctx)
	}

	// Check for connection-related errors by message
	if isNetworkError(errMsg) {
		return formatGenericNetworkError(errMsg, ctx)
	}

	// Check for "not found" errors
	if isNotFoundError(errMsg) {
		return formatNotFoundError(errMsg, ctx)
	}

	// Check for permission errors
	if isPermissionError(errMsg) {
		return formatPermissionError(errMsg, ctx)
	}

	// Return original error for unrecognized types
	return errMsg
}

func formatConfigError(err *project.ConfigError, ctx *ErrorContext) string {
	var sb strings.Builder
	sb.WriteString(err.Error())
	sb.WriteString("\n")

	sb.WriteString("\nPossible causes:\n")
	sb.WriteString("  - The project descriptor is missing a required key\n")
	sb.WriteString("  - A configuration references an unrecognized target kind\n")
	sb.WriteString("  - Two configurations share a name, or more than one is marked default\n")

	sb.WriteString("\nSuggestions:\n")
	sb.WriteString(fmt.Sprintf("  - Check the %q key in %s's project descriptor\n", err.Key, err.Project))
	sb.WriteString("  - Run 'forge -S' to print the expected descriptor schema\n")

	return sb.String()
}

func formatFilesystemError(err *project.FilesystemError, ctx *ErrorContext) string {
	var sb strings.Builder
	sb.WriteString(err.Error())
	sb.WriteString("\n")

	sb.WriteString("\nPossible causes:\n")
	sb.WriteString("  - The path does not exist relative to the project root\n")
	sb.WriteString("  - The output directory could not be created\n")
	sb.WriteString("  - The descriptor itself is unreadable (permissions, or it was deleted)\n")

	sb.WriteString("\nSuggestions:\n")
	sb.WriteString(fmt.Sprintf("  - Verify %s exists relative to %s\n", err.Path, err.Project))
	sb.WriteString("  - Check file and directory permissions\n")

	return sb.String()
}

func formatBuildFailedError(err *project.BuildFailedError, ctx *ErrorContext) string {
	var sb strings.Builder
	sb.WriteString(err.Error())
	sb.WriteString("\n")

	sb.WriteString("\nPossible causes:\n")
	sb.WriteString("  - A compile error in the reported task's source file\n")
	sb.WriteString("  - A linker error: missing symbol, or a library path that does not resolve\n")

	sb.WriteString("\nSuggestions:\n")
	sb.WriteString(fmt.Sprintf("  - Inspect the output of the %q task:\n", err.Task))
	for _, line := range strings.Split(strings.TrimRight(err.Output, "\n"), "\n") {
		sb.WriteString("      " + line + "\n")
	}
	sb.WriteString("  - Run with '-t 0' to see the task's full output\n")

	return sb.String()
}

func formatCycleError(err *project.CycleError, ctx *ErrorContext) string {
	var sb strings.Builder
	sb.WriteString(err.Error())
	sb.WriteString("\n")

	sb.WriteString("\nPossible causes:\n")
	sb.WriteString("  - Two or more projects depend on each other, directly or transitively\n")

	sb.WriteString("\nSuggestions:\n")
	sb.WriteString("  - Break the cycle: " + strings.Join(err.Chain, " -> ") + "\n")
	sb.WriteString("  - Move the shared code into a project neither side depends on\n")

	return sb.String()
}

func formatMissingArtifactError(err *project.MissingArtifactError, ctx *ErrorContext) string {
	var sb strings.Builder
	sb.WriteString(err.Error())
	sb.WriteString("\n")

	sb.WriteString("\nPossible causes:\n")
	sb.WriteString("  - The configuration has not been built yet\n")
	sb.WriteString("  - The build produced a different output path than expected\n")

	sb.WriteString("\nSuggestions:\n")
	sb.WriteString(fmt.Sprintf("  - Build %s before running it: forge %s\n", err.Project, err.Project))
	sb.WriteString(fmt.Sprintf("  - Check output_path/output_name against %s\n", err.Path))

	return sb.String()
}

func formatNetworkError(err net.Error, ctx *ErrorContext) string {
	var sb strings.Builder
	sb.WriteString(err.Error())
	sb.WriteString("\n")

	sb.WriteString("\nPossible causes:\n")
	if err.Timeout() {
		sb.WriteString("  - Request timed out\n")
		sb.WriteString("  - Slow or unstable network connection\n")
	} else {
		sb.WriteString("  - Network connectivity issue\n")
		sb.WriteString("  - DNS resolution failure\n")
	}
	sb.WriteString("  - Firewall or proxy blocking the connection\n")

	sb.WriteString("\nSuggestions:\n")
	sb.WriteString("  - Check your internet connection\n")
	sb.WriteString("  - Try again in a few minutes\n")
	if err.Timeout() {
		sb.WriteString("  - Check if you're behind a slow proxy\n")
	}

	return sb.String()
}

func formatGenericNetworkError(errMsg string, ctx *ErrorContext) string {
	var sb strings.Builder
	sb.WriteString(errMsg)
	sb.WriteString("\n")

	sb.WriteString("\nPossible causes:\n")
	sb.WriteString("  - Network connectivity issue\n")
	sb.WriteString("  - DNS resolution failure\n")
	sb.WriteString("  - Service temporarily unavailable\n")

	sb.WriteString("\nSuggestions:\n")
	sb.WriteString("  - Check your internet connection\n")
	sb.WriteString("  - Try again in a few minutes\n")

	return sb.String()
}

func formatNotFoundError(errMsg string, ctx *ErrorContext) string {
	var sb strings.Builder
	sb.WriteString(errMsg)
	sb.WriteString("\n")

	sb.WriteString("\nPossible causes:\n")
	sb.WriteString("  - A referenced path or package does not exist\n")
	sb.WriteString("  - Typo in a project or configuration name\n")

	sb.WriteString("\nSuggestions:\n")
	if ctx != nil && ctx.ProjectName != "" {
		sb.WriteString(fmt.Sprintf("  - Check %s's project descriptor for the offending path\n", ctx.ProjectName))
	} else {
		sb.WriteString("  - Check the project descriptor for the offending path\n")
	}

	return sb.String()
}

func formatPermissionError(errMsg string, ctx *ErrorContext) string {
	var sb strings.Builder
	sb.WriteString(errMsg)
	sb.WriteString("\n")

	sb.WriteString("\nPossible causes:\n")
	sb.WriteString("  - Insufficient permissions on $FORGE_HOME or the output directory\n")
	sb.WriteString("  - File or directory owned by a different user\n")

	sb.WriteString("\nSuggestions:\n")
	sb.WriteString("  - Check permissions on ~/.forge and the project's output directory\n")

	return sb.String()
}

// isNetworkError checks if the error message indicates a network issue
func isNetworkError(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "connection refused") ||
		strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "no such host") ||
		strings.Contains(lower, "network is unreachable") ||
		strings.Contains(lower, "dial tcp") ||
		strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "i/o timeout")
}

// isNotFoundError checks if the error message indicates something not found
func isNotFoundError(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "not found") ||
		strings.Contains(lower, "404") ||
		strings.Contains(lower, "does not exist")
}

// isPermissionError checks if the error message indicates a permission issue
func isPermissionError(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "permission denied") ||
		strings.Contains(lower, "access denied") ||
		strings.Contains(lower, "operation not permitted")
}
