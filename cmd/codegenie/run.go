package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/TanviPoddar/CodeGenie/internal/model"
	"github.com/TanviPoddar/CodeGenie/internal/sandbox"
)

// exitError carries a process exit code without an error message.
type exitError struct {
	code int
}

func (e exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

var (
	languageFlag string
	timeoutFlag  int
	backendFlag  string
)

var runCmd = &cobra.Command{
	Use:   "run FILE",
	Short: "Execute a source file in the sandbox",
	Long: `Execute a single source file through the execution engine and print its
output. Compile and runtime failures are printed and exit with status 1.

When --language is omitted it is inferred from the file extension.

Examples:
  codegenie run hello.py
  codegenie run --language cpp --timeout 5 main.cpp`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&languageFlag, "language", "l", "", "Source language (python, javascript, java, csharp, cpp, c, go)")
	runCmd.Flags().IntVarP(&timeoutFlag, "timeout", "t", 0, "Timeout in seconds for each compile or run step")
	runCmd.Flags().StringVar(&backendFlag, "backend", "", "Execution backend (process, docker, auto); defaults to sandbox.isolation")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	path := args[0]
	source, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading source: %w", err)
	}

	language := languageFlag
	if language == "" {
		language = languageForFile(path)
		if language == "" {
			return fmt.Errorf("cannot infer language of %s; pass --language", path)
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	defer logger.Sync()

	reg, cli, err := newRegistry(cfg, logger)
	if err != nil {
		return err
	}
	if cli != nil {
		defer cli.Close()
	}

	name := backendFlag
	if name == "" {
		name = cfg.Sandbox.Isolation
	}
	exec, err := reg.Resolve(name)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res := exec.Execute(ctx, model.ExecutionRequest{
		Source:   string(source),
		Language: language,
		TimeoutS: timeoutFlag,
	})
	return printResult(cmd, res)
}

func printResult(cmd *cobra.Command, res model.ExecutionResult) error {
	if res.OK() {
		fmt.Fprint(cmd.OutOrStdout(), res.Stdout)
		return nil
	}
	fmt.Fprintln(cmd.ErrOrStderr(), res.Message())
	return exitError{code: 1}
}

// languageForFile maps a file extension to a supported language tag.
func languageForFile(path string) string {
	ext := filepath.Ext(path)
	if ext == "" {
		return ""
	}
	for _, lang := range sandbox.Languages() {
		if sandbox.Extension(lang) == ext {
			return lang
		}
	}
	return ""
}
