package model

import "fmt"

// Supported language tags.
const (
	LanguageJavaScript = "javascript"
	LanguagePython     = "python"
	LanguageJava       = "java"
	LanguageCSharp     = "csharp"
	LanguageCpp        = "cpp"
	LanguageC          = "c"
	LanguageGo         = "go"
)

// DefaultTimeoutS is the execution timeout used when a request does not set one.
const DefaultTimeoutS = 10

// Execution result kinds. Exactly one applies to any execution.
const (
	KindSuccess             = "success"
	KindCompileError        = "compile_error"
	KindRuntimeError        = "runtime_error"
	KindTimedOut            = "timed_out"
	KindToolMissing         = "tool_missing"
	KindUnsupportedLanguage = "unsupported_language"
)

// ExecutionRequest asks for one program to be run.
type ExecutionRequest struct {
	Source   string `json:"code"`
	Language string `json:"language"`
	TimeoutS int    `json:"timeout_s,omitempty"`
}

// ExecutionResult is the classified outcome of an execution. Kind selects
// which of the other fields are meaningful.
type ExecutionResult struct {
	Kind       string `json:"kind"`
	Language   string `json:"language"`
	Stdout     string `json:"stdout,omitempty"`
	Stderr     string `json:"stderr,omitempty"`
	Tool       string `json:"tool,omitempty"`
	ExitCode   int    `json:"exit_code"`
	TimeoutS   int    `json:"timeout_s,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	Truncated  bool   `json:"truncated,omitempty"`
}

// Success returns a result carrying the program's standard output.
func Success(stdout string) ExecutionResult {
	return ExecutionResult{Kind: KindSuccess, Stdout: stdout}
}

// CompileError returns a result carrying compiler diagnostics.
func CompileError(stderr string, exitCode int) ExecutionResult {
	return ExecutionResult{Kind: KindCompileError, Stderr: stderr, ExitCode: exitCode}
}

// RuntimeError returns a result for a program that exited non-zero.
func RuntimeError(stderr string, exitCode int) ExecutionResult {
	return ExecutionResult{Kind: KindRuntimeError, Stderr: stderr, ExitCode: exitCode}
}

// TimedOut returns a result for an invocation killed at its deadline.
func TimedOut(timeoutS int) ExecutionResult {
	return ExecutionResult{Kind: KindTimedOut, TimeoutS: timeoutS, ExitCode: -1}
}

// ToolMissing returns a result for a toolchain binary absent from the host.
func ToolMissing(tool string) ExecutionResult {
	return ExecutionResult{Kind: KindToolMissing, Tool: tool, ExitCode: -1}
}

// UnsupportedLanguage returns a result for an unknown language tag.
func UnsupportedLanguage(language string) ExecutionResult {
	return ExecutionResult{Kind: KindUnsupportedLanguage, Language: language, ExitCode: -1}
}

// OK reports whether the program ran to a zero exit.
func (r ExecutionResult) OK() bool {
	return r.Kind == KindSuccess
}

// Message renders the result as the text shown to a user.
func (r ExecutionResult) Message() string {
	switch r.Kind {
	case KindSuccess:
		return r.Stdout
	case KindCompileError:
		return "Compilation Error: " + r.Stderr
	case KindRuntimeError:
		return "Runtime Error: " + r.Stderr
	case KindTimedOut:
		return fmt.Sprintf("Execution timed out after %d seconds", r.TimeoutS)
	case KindToolMissing:
		return fmt.Sprintf("Required program '%s' not found. Please ensure it's installed.", r.Tool)
	case KindUnsupportedLanguage:
		return fmt.Sprintf("Execution not supported for language: %s", r.Language)
	default:
		return ""
	}
}
