package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/TanviPoddar/CodeGenie/internal/backend"
	"github.com/TanviPoddar/CodeGenie/internal/model"
	"github.com/TanviPoddar/CodeGenie/internal/pipeline"
	"github.com/TanviPoddar/CodeGenie/internal/sandbox"
	"github.com/TanviPoddar/CodeGenie/internal/store"
)

const (
	mcpServerName    = "codegenie"
	mcpServerVersion = "0.1.0"

	// maxToolOutput caps the text returned to the client.
	maxToolOutput = 4000
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve code execution and builds as MCP tools over stdio",
	Long: `Run an MCP server on stdin/stdout exposing the tools code_run, build_start
and build_status. Logs go to stderr.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	defer logger.Sync()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	tools := &mcpTools{
		registry: a.registry,
		pipeline: a.pipeline,
		backend:  cfg.Sandbox.Isolation,
	}
	s := server.NewMCPServer(mcpServerName, mcpServerVersion)
	tools.register(s)

	serveErr := server.ServeStdio(s)

	ctx, cancel := context.WithTimeout(context.Background(), pipelineDrainTimeout)
	defer cancel()
	if err := a.pipeline.Shutdown(ctx); err != nil {
		logger.Warnw("pipeline shutdown", "error", err)
	}
	return serveErr
}

// mcpTools implements the tool handlers.
type mcpTools struct {
	registry *backend.Registry
	pipeline *pipeline.Orchestrator
	backend  string
}

func (t *mcpTools) register(s *server.MCPServer) {
	langs := strings.Join(sandbox.Languages(), ", ")

	s.AddTool(mcp.Tool{
		Name:        "code_run",
		Description: fmt.Sprintf("Execute a program in the CodeGenie sandbox. Supported languages: %s.", langs),
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"language": map[string]any{
					"type":        "string",
					"description": "Programming language (" + langs + ")",
				},
				"code": map[string]any{
					"type":        "string",
					"description": "Source code to execute",
				},
				"timeout_s": map[string]any{
					"type":        "integer",
					"description": "Timeout in seconds for each compile or run step (optional)",
				},
			},
			Required: []string{"language", "code"},
		},
	}, t.handleCodeRun)

	s.AddTool(mcp.Tool{
		Name:        "build_start",
		Description: "Start a build: static analysis, unit testing, build and deployment. Returns the build ID.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"language": map[string]any{
					"type":        "string",
					"description": "Programming language (" + langs + ")",
				},
				"code": map[string]any{
					"type":        "string",
					"description": "Source code to build",
				},
			},
			Required: []string{"language", "code"},
		},
	}, t.handleBuildStart)

	s.AddTool(mcp.Tool{
		Name:        "build_status",
		Description: "Get the status and stages of a build.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"build_id": map[string]any{
					"type":        "string",
					"description": "ID returned by build_start",
				},
				"wait_s": map[string]any{
					"type":        "integer",
					"description": "Seconds to wait for the build to finish before answering (optional)",
				},
			},
			Required: []string{"build_id"},
		},
	}, t.handleBuildStatus)
}

func (t *mcpTools) handleCodeRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]any)
	if args == nil {
		return errResult("error: invalid arguments"), nil
	}

	language, _ := args["language"].(string)
	code, _ := args["code"].(string)
	if language == "" || code == "" {
		return errResult("error: 'language' and 'code' are required"), nil
	}
	timeout := 0
	if v, ok := args["timeout_s"].(float64); ok {
		timeout = int(v)
	}

	exec, err := t.registry.Resolve(t.backend)
	if err != nil {
		return errResult(fmt.Sprintf("error: %v", err)), nil
	}

	res := exec.Execute(ctx, model.ExecutionRequest{Source: code, Language: language, TimeoutS: timeout})
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: truncate(res.Message())}},
		IsError: !res.OK(),
	}, nil
}

func (t *mcpTools) handleBuildStart(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]any)
	if args == nil {
		return errResult("error: invalid arguments"), nil
	}

	language, _ := args["language"].(string)
	code, _ := args["code"].(string)

	id, err := t.pipeline.StartBuild(ctx, code, language)
	if errors.Is(err, pipeline.ErrInvalidRequest) {
		return errResult("error: 'language' and 'code' are required"), nil
	}
	if err != nil {
		return errResult(fmt.Sprintf("error: %v", err)), nil
	}
	return textResult(fmt.Sprintf("Build started: %s", id)), nil
}

func (t *mcpTools) handleBuildStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]any)
	if args == nil {
		return errResult("error: invalid arguments"), nil
	}

	id, _ := args["build_id"].(string)
	if id == "" {
		return errResult("error: 'build_id' is required"), nil
	}

	var b *model.Build
	var err error
	if w, ok := args["wait_s"].(float64); ok && w > 0 {
		waitCtx, cancel := context.WithTimeout(ctx, time.Duration(w)*time.Second)
		b, err = t.pipeline.Wait(waitCtx, id)
		cancel()
		if errors.Is(err, context.DeadlineExceeded) {
			b, err = t.pipeline.GetBuildStatus(ctx, id)
		}
	} else {
		b, err = t.pipeline.GetBuildStatus(ctx, id)
	}
	if errors.Is(err, store.ErrNotFound) {
		return errResult(fmt.Sprintf("error: build %s not found", id)), nil
	}
	if err != nil {
		return errResult(fmt.Sprintf("error: %v", err)), nil
	}

	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return errResult(fmt.Sprintf("error: %v", err)), nil
	}
	return textResult(truncate(string(data))), nil
}

// truncate cuts text to at most maxToolOutput bytes on a rune boundary.
func truncate(text string) string {
	if len(text) <= maxToolOutput {
		return text
	}
	cut := maxToolOutput
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "\n... (output truncated)"
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: text}},
	}
}

func errResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: text}},
		IsError: true,
	}
}
