// Package assist implements the AI helper features: test generation, bug
// review and code generation, all backed by an llm.Generator.
package assist

import (
	"context"
	"errors"
	"fmt"

	"github.com/TanviPoddar/CodeGenie/internal/llm"
)

const maxTokens = 2000

// Suggestion types reported by FindBugs.
const (
	TypeBug          = "bug"
	TypeInefficiency = "inefficiency"
	TypeStyle        = "style"
)

// ErrInvalidInput is returned when code or language is missing.
var ErrInvalidInput = errors.New("code and language must be provided")

// ErrInvalidPrompt is returned by GenerateCode when prompt or language is empty.
var ErrInvalidPrompt = errors.New("prompt and language must be provided")

// Suggestion is one issue found in a piece of code.
type Suggestion struct {
	Type         string `json:"type"`
	Line         int    `json:"line"`
	Description  string `json:"description"`
	OriginalCode string `json:"originalCode"`
	FixCode      string `json:"fixCode"`
}

// fallbackSuggestion is returned when the model's reply cannot be decoded.
var fallbackSuggestion = Suggestion{
	Type:        TypeStyle,
	Line:        1,
	Description: "Could not automatically detect specific issues. Manual code review recommended.",
}

// Assistant wraps a Generator with the prompts for each feature.
type Assistant struct {
	gen llm.Generator
}

// New creates an Assistant.
func New(gen llm.Generator) *Assistant {
	return &Assistant{gen: gen}
}

// GenerateTests returns test code for code, written for a common test
// framework of language.
func (a *Assistant) GenerateTests(ctx context.Context, code, language string) (string, error) {
	if code == "" || language == "" {
		return "", ErrInvalidInput
	}
	user := fmt.Sprintf("Given the following %[1]s code:\n\n```%[1]s\n%[2]s\n```\n\n"+
		"Generate comprehensive test cases for this code. Include unit tests for different scenarios, edge cases, and expected behaviors.\n"+
		"Return only the test code in %[1]s, formatted for a common testing framework for %[1]s.", language, code)

	out, err := a.gen.Generate(ctx, llm.Prompt{
		System:    "You are an expert software developer and tester. Generate comprehensive test cases for the provided code.",
		User:      user,
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("generate tests: %w", err)
	}
	return llm.StripCodeFence(out), nil
}

// FindBugs asks for a review of code. A reply that cannot be decoded yields
// a single style suggestion recommending manual review.
func (a *Assistant) FindBugs(ctx context.Context, code, language string) ([]Suggestion, error) {
	if code == "" || language == "" {
		return nil, ErrInvalidInput
	}
	user := fmt.Sprintf("Analyze the following %[1]s code for potential bugs, inefficiencies, or best practice violations:\n\n"+
		"```%[1]s\n%[2]s\n```\n\n"+
		"For each issue, provide the type of issue (bug, inefficiency, or style), the line number, a description, "+
		"the original problematic code snippet and a suggested fix.\n\n"+
		"Return your analysis as a JSON array of objects with the following structure:\n"+
		`[{"type": "bug|inefficiency|style", "line": 123, "description": "...", "originalCode": "...", "fixCode": "..."}]`,
		language, code)

	out, err := a.gen.Generate(ctx, llm.Prompt{
		System:    "You are an expert code reviewer. Analyze the provided code for bugs and suggest fixes.",
		User:      user,
		MaxTokens: maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("find bugs: %w", err)
	}

	var suggestions []Suggestion
	if err := llm.ExtractJSONArray(out, &suggestions); err != nil {
		return []Suggestion{fallbackSuggestion}, nil
	}
	if suggestions == nil {
		suggestions = []Suggestion{}
	}
	return suggestions, nil
}

// GenerateCode writes language code that does what prompt describes.
func (a *Assistant) GenerateCode(ctx context.Context, prompt, language string) (string, error) {
	if prompt == "" || language == "" {
		return "", ErrInvalidPrompt
	}
	out, err := a.gen.Generate(ctx, llm.Prompt{
		System:    fmt.Sprintf("You are an expert %s programmer. Generate clean, efficient, and well-documented code.", language),
		User:      fmt.Sprintf("Write %s code that accomplishes the following:\n\n%s\n\nReturn only the code, well-documented with comments explaining the approach and key parts.", language, prompt),
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return llm.StripCodeFence(out), nil
}
