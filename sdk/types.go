package synthide

import (
	"fmt"
	"strings"
	"time"
)

// HealthResponse is returned by the /health endpoint.
type HealthResponse struct {
	Status string `json:"status"`
}

// --- Languages ---

// Language identifies the runtime a submission is executed with.
type Language string

const (
	LanguagePython     Language = "python"
	LanguageJavaScript Language = "javascript"
	LanguageCpp        Language = "cpp"
)

// Languages lists every language the execution service accepts.
var Languages = []Language{LanguagePython, LanguageJavaScript, LanguageCpp}

// Valid reports whether l is a supported language.
func (l Language) Valid() bool {
	for _, known := range Languages {
		if l == known {
			return true
		}
	}
	return false
}

// ParseLanguage resolves a user-supplied language name. Matching is
// case-insensitive and accepts a few common aliases.
func ParseLanguage(s string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "python", "py", "python3":
		return LanguagePython, nil
	case "javascript", "js", "node":
		return LanguageJavaScript, nil
	case "cpp", "c++", "cxx":
		return LanguageCpp, nil
	}
	return "", fmt.Errorf("synthide: unsupported language %q", s)
}

var templates = map[Language]string{
	LanguagePython:     "def main():\n    # Write your code here\n    \nif __name__ == \"__main__\":\n    main()",
	LanguageJavaScript: "function main() {\n    // Write your code here\n}\n\nmain();",
	LanguageCpp:        "#include <iostream>\nusing namespace std;\n\nint main() {\n    // Write your code here\n    return 0;\n}",
}

// Template returns the starter program shown for a fresh editor buffer.
func Template(l Language) string {
	if t, ok := templates[l]; ok {
		return t
	}
	return "// Start coding..."
}

// --- Runs ---

// RunRequest is one submission of source code for execution.
// It is treated as immutable once handed to a Submitter.
type RunRequest struct {
	SourceCode string
	Language   Language
	Stdin      string
}

// Validate checks the request before any network call is made.
func (r RunRequest) Validate() error {
	if r.SourceCode == "" {
		return ErrEmptySource
	}
	if !r.Language.Valid() {
		return fmt.Errorf("%w: %q", ErrUnsupportedLanguage, r.Language)
	}
	return nil
}

// RunHandle identifies a submitted run for its lifetime.
type RunHandle struct {
	RunID       string
	SubmittedAt time.Time
}

// IsZero reports whether h was never assigned a run id.
func (h RunHandle) IsZero() bool {
	return h.RunID == ""
}

// RunCodeRequest is the wire body of POST /run-code.
type RunCodeRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
	Input    string `json:"input"`
}

// RunCodeResponse is returned by POST /run-code.
type RunCodeResponse struct {
	RunID string `json:"run_id"`
}

// OutputResponse is returned by GET /get-output/{run_id}.
// A nil Output means the run is still in progress; a non-nil empty string is
// a finished run that printed nothing.
type OutputResponse struct {
	Output *string `json:"output,omitempty"`
}

// Ready reports whether the run has reached a terminal result.
func (r *OutputResponse) Ready() bool {
	return r != nil && r.Output != nil
}

// --- Assist ---

// ExplainRequest is the body of POST /explain-code.
type ExplainRequest struct {
	Code     string   `json:"code"`
	Language Language `json:"language"`
}

// ExplainResponse is returned by POST /explain-code.
type ExplainResponse struct {
	Explanation *string `json:"explanation,omitempty"`
}

// GenerateRequest is the body of POST /generate-code.
type GenerateRequest struct {
	Prompt   string   `json:"prompt"`
	Language Language `json:"language"`
	Template string   `json:"template,omitempty"`
}

// GenerateResponse is returned by POST /generate-code.
type GenerateResponse struct {
	Code *string `json:"code,omitempty"`
}
