package sandbox

import (
	"path/filepath"
	"sort"

	"github.com/TanviPoddar/CodeGenie/internal/model"
)

// binaryName is the compiled artifact name inside the scratch directory.
const binaryName = "main"

// Command is one toolchain invocation. Tools lists candidate binaries in
// preference order; the first one present on the host is used. A tool that
// starts with "./" refers to a file in the scratch directory.
type Command struct {
	Tools []string
	Args  []string
}

// Language describes how to run source code written in one language.
type Language struct {
	Name       string
	SourceFile string
	Image      string
	// Compile is nil for interpreted and managed languages.
	Compile *Command
	Run     Command
}

// Compiled reports whether the language uses the two-phase compile/run protocol.
func (l Language) Compiled() bool {
	return l.Compile != nil
}

var languages = map[string]Language{
	model.LanguageJavaScript: {
		Name:       model.LanguageJavaScript,
		SourceFile: "main.js",
		Image:      "node:22-slim",
		Run:        Command{Tools: []string{"node"}, Args: []string{"main.js"}},
	},
	model.LanguagePython: {
		Name:       model.LanguagePython,
		SourceFile: "main.py",
		Image:      "python:3.12-slim",
		Run:        Command{Tools: []string{"python3", "python"}, Args: []string{"main.py"}},
	},
	model.LanguageJava: {
		Name:       model.LanguageJava,
		SourceFile: "Main.java",
		Image:      "eclipse-temurin:21-jdk",
		Run:        Command{Tools: []string{"java"}, Args: []string{"Main.java"}},
	},
	model.LanguageCSharp: {
		Name:       model.LanguageCSharp,
		SourceFile: "Main.cs",
		Image:      "mcr.microsoft.com/dotnet/sdk:10.0",
		Run:        Command{Tools: []string{"dotnet"}, Args: []string{"run", "Main.cs"}},
	},
	model.LanguageCpp: {
		Name:       model.LanguageCpp,
		SourceFile: "main.cpp",
		Image:      "gcc:14",
		Compile:    &Command{Tools: []string{"g++"}, Args: []string{"main.cpp", "-O2", "-o", binaryName}},
		Run:        Command{Tools: []string{"./" + binaryName}},
	},
	model.LanguageC: {
		Name:       model.LanguageC,
		SourceFile: "main.c",
		Image:      "gcc:14",
		Compile:    &Command{Tools: []string{"gcc"}, Args: []string{"main.c", "-O2", "-o", binaryName}},
		Run:        Command{Tools: []string{"./" + binaryName}},
	},
	model.LanguageGo: {
		Name:       model.LanguageGo,
		SourceFile: "main.go",
		Image:      "golang:1.23-alpine",
		Run:        Command{Tools: []string{"go"}, Args: []string{"run", "main.go"}},
	},
}

// LookupLanguage returns the definition for a language tag.
func LookupLanguage(name string) (Language, bool) {
	l, ok := languages[name]
	return l, ok
}

// Languages returns the supported language tags, sorted.
func Languages() []string {
	names := make([]string, 0, len(languages))
	for name := range languages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Extension returns the source file extension for a language, or "" when the
// language is not supported.
func Extension(name string) string {
	l, ok := languages[name]
	if !ok {
		return ""
	}
	return filepath.Ext(l.SourceFile)
}
