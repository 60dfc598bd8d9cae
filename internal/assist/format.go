package assist

import (
	"regexp"
	"strings"
)

var fenceRE = regexp.MustCompile("(?i)^```[a-z+]*\\n?|```$")

// StripFences removes a leading ```lang line and a trailing ``` that models
// add despite being told not to.
func StripFences(s string) string {
	return strings.TrimSpace(fenceRE.ReplaceAllString(strings.TrimSpace(s), ""))
}

// WrapInMain places generated statements inside the language's entry point.
func WrapInMain(code, language string) string {
	code = strings.TrimSpace(code)
	body := strings.ReplaceAll(code, "\n", "\n    ")

	switch language {
	case "python":
		return "def main():\n    " + body + "\n\nif __name__ == \"__main__\":\n    main()"
	case "cpp":
		return "#include <iostream>\nusing namespace std;\n\nint main() {\n    " + body + "\n    return 0;\n}"
	case "javascript":
		return "function main() {\n    " + body + "\n}\n\nmain();"
	default:
		return "Unsupported language: " + language
	}
}
