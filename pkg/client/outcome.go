package client

import "github.com/grovetools/nicepick/pkg/wire"

// OutcomeKind is how a session ended.
type OutcomeKind int

const (
	OutcomeDismissed OutcomeKind = iota
	OutcomeSelected
)

func (k OutcomeKind) String() string {
	if k == OutcomeSelected {
		return "selected"
	}
	return "dismissed"
}

// Outcome is the result of a completed session.
type Outcome struct {
	Kind    OutcomeKind
	Session string
	Entry   wire.Entry
}

// Process exit codes for the picker command.
const (
	ExitSelected  = 0
	ExitDismissed = 1
	ExitError     = 2
)

// ExitCode maps a Pick result to the process exit code.
func ExitCode(out *Outcome, err error) int {
	switch {
	case err != nil || out == nil:
		return ExitError
	case out.Kind == OutcomeSelected:
		return ExitSelected
	default:
		return ExitDismissed
	}
}
