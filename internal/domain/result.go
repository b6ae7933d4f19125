package domain

import "fmt"

// Outcome classifies what a handler execution produced.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRetryable
	OutcomeTerminal
)

// Result is the sum type handlers return from Execute. Handlers never
// finalize job rows themselves; the dispatcher does, based on this value.
type Result struct {
	Outcome Outcome
	// Reason is a short, non-sensitive identifier surfaced through the
	// status API (e.g. "rate_limited", "calendar_not_found").
	Reason string
	// Err carries diagnostic detail for logs and last_error.
	Err error
}

// Success reports terminal success.
func Success() Result {
	return Result{Outcome: OutcomeSuccess}
}

// RetryableFailure reports a transient failure the dispatcher should retry
// with backoff until attempts are exhausted.
func RetryableFailure(reason string, err error) Result {
	return Result{Outcome: OutcomeRetryable, Reason: reason, Err: err}
}

// TerminalFailure reports an unrecoverable failure. No retries follow,
// regardless of remaining attempts.
func TerminalFailure(reason string, err error) Result {
	return Result{Outcome: OutcomeTerminal, Reason: reason, Err: err}
}

// Failed reports whether the result is any kind of failure.
func (r Result) Failed() bool {
	return r.Outcome != OutcomeSuccess
}

// ErrorText renders the reason and diagnostic detail for last_error.
func (r Result) ErrorText() string {
	switch {
	case r.Reason == "" && r.Err == nil:
		return ""
	case r.Err == nil:
		return r.Reason
	case r.Reason == "":
		return r.Err.Error()
	}
	return fmt.Sprintf("%s: %v", r.Reason, r.Err)
}
