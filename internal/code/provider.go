package code

import (
	"context"
	"fmt"
	"strings"
)

// Request is a program to execute.
type Request struct {
	SourceCode string
	Language   string
	Stdin      string
}

// Submission is the result of a single code execution.
type Submission struct {
	Token         string
	Stdout        string
	Stderr        string
	CompileOutput string
	Status        string
	Time          string
	Memory        int
}

// Execution statuses shared by the providers. Judge0 reports its own
// descriptions, which use the same wording.
const (
	StatusAccepted          = "Accepted"
	StatusCompilationError  = "Compilation Error"
	StatusRuntimeError      = "Runtime Error"
	StatusTimeLimitExceeded = "Time Limit Exceeded"
)

// Output is what a user sees for the run: compiler diagnostics followed by
// stdout and stderr. A run that printed nothing yields "" unless it failed,
// in which case the status is reported instead.
func (s *Submission) Output() string {
	var b strings.Builder
	b.WriteString(s.CompileOutput)
	b.WriteString(s.Stdout)
	b.WriteString(s.Stderr)
	if b.Len() == 0 && s.Status != "" && s.Status != StatusAccepted {
		return s.Status
	}
	return b.String()
}

// Provider defines the interface each code execution provider must implement.
type Provider interface {
	Execute(ctx context.Context, req Request) (*Submission, error)
}

// Language describes how each provider runs one source language.
type Language struct {
	Name      string
	Extension string
	Judge0ID  int
	Image     string
}

var languages = map[string]Language{
	"python":     {Name: "python", Extension: ".py", Judge0ID: 71, Image: "python:3.12-alpine"},
	"javascript": {Name: "javascript", Extension: ".js", Judge0ID: 63, Image: "node:20-alpine"},
	"cpp":        {Name: "cpp", Extension: ".cpp", Judge0ID: 54, Image: "gcc:13"},
}

// LookupLanguage returns the execution settings for name.
func LookupLanguage(name string) (Language, error) {
	lang, ok := languages[name]
	if !ok {
		return Language{}, fmt.Errorf("unsupported language: %s", name)
	}
	return lang, nil
}

// Supported reports whether name is an executable language.
func Supported(name string) bool {
	_, ok := languages[name]
	return ok
}
