package code

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// LocalConfig names the toolchain binaries used by LocalProvider.
type LocalConfig struct {
	Python string // default "python3"
	Node   string // default "node"
	CXX    string // default "g++"
}

// LocalProvider runs programs as subprocesses of the service. It offers no
// isolation and is meant for development.
type LocalProvider struct {
	cfg LocalConfig
}

var _ Provider = (*LocalProvider)(nil)

func NewLocalProvider(cfg LocalConfig) *LocalProvider {
	if cfg.Python == "" {
		cfg.Python = "python3"
	}
	if cfg.Node == "" {
		cfg.Node = "node"
	}
	if cfg.CXX == "" {
		cfg.CXX = "g++"
	}
	return &LocalProvider{cfg: cfg}
}

// Execute writes the source to a temporary directory and runs it with stdin
// attached. Stdout and stderr are captured together in the order written. A
// non-zero exit status is reported through Submission.Status, not as an error.
func (p *LocalProvider) Execute(ctx context.Context, req Request) (*Submission, error) {
	lang, err := LookupLanguage(req.Language)
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp("", "synthide-run-")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	src := filepath.Join(dir, "main"+lang.Extension)
	if err := os.WriteFile(src, []byte(req.SourceCode), 0o600); err != nil {
		return nil, fmt.Errorf("write source: %w", err)
	}

	var argv []string
	switch lang.Name {
	case "python":
		argv = []string{p.cfg.Python, src}
	case "javascript":
		argv = []string{p.cfg.Node, src}
	case "cpp":
		bin := filepath.Join(dir, "main")
		out, err := exec.CommandContext(ctx, p.cfg.CXX, src, "-o", bin).CombinedOutput()
		if ctx.Err() != nil {
			return nil, fmt.Errorf("compile: %w", ctx.Err())
		}
		if err != nil {
			var exitErr *exec.ExitError
			if !errors.As(err, &exitErr) {
				return nil, fmt.Errorf("compile: %w", err)
			}
			return &Submission{CompileOutput: string(out), Status: StatusCompilationError}, nil
		}
		argv = []string{bin}
	}

	var output bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Stdin = strings.NewReader(req.Stdin)
	cmd.Stdout = &output
	cmd.Stderr = &output

	start := time.Now()
	err = cmd.Run()
	elapsed := time.Since(start)

	sub := &Submission{
		Stdout: output.String(),
		Status: StatusAccepted,
		Time:   fmt.Sprintf("%.3f", elapsed.Seconds()),
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("run %s: %w", lang.Name, ctx.Err())
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("run %s: %w", lang.Name, err)
		}
		sub.Status = StatusRuntimeError
	}
	return sub, nil
}
