package synthide

// OutcomeKind classifies how a run ended.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota + 1
	OutcomeSubmissionError
	OutcomePollingError
	OutcomeTimedOut
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeSubmissionError:
		return "submission_error"
	case OutcomePollingError:
		return "polling_error"
	case OutcomeTimedOut:
		return "timed_out"
	}
	return "unknown"
}

// Outcome is the single terminal result of a run.
type Outcome struct {
	Kind   OutcomeKind
	Handle RunHandle
	// Output is set for OutcomeSuccess and may be empty.
	Output string
	// Attempts is the number of status queries issued.
	Attempts int
	Err      error
}

// User-facing status lines for failed runs.
const (
	StatusSubmissionError = "Error sending code to backend"
	StatusPollingError    = "Error fetching output"
	StatusTimedOut        = "Execution timed out or error occurred."
)

// Status maps the outcome to the one line shown to the user.
func (o Outcome) Status() string {
	switch o.Kind {
	case OutcomeSuccess:
		return o.Output
	case OutcomeSubmissionError:
		return StatusSubmissionError
	case OutcomePollingError:
		return StatusPollingError
	case OutcomeTimedOut:
		return StatusTimedOut
	}
	return ""
}

// Succeeded reports whether the run produced output.
func (o Outcome) Succeeded() bool { return o.Kind == OutcomeSuccess }
