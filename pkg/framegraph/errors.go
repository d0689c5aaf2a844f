package framegraph

import (
	"errors"
	"fmt"
	"strings"
)

// Precondition failures. They are raised with panic(*Error) because they
// indicate a malformed frame, not a runtime condition.
var (
	ErrDoubleWrite   = errors.New("resource version already has a writer")
	ErrIllegalUsage  = errors.New("usage not supported by imported render target")
	ErrInvalidHandle = errors.New("invalid or stale resource handle")
	ErrState         = errors.New("operation not allowed in current state")
	ErrCycle         = errors.New("dependency cycle")
	ErrForwarded     = errors.New("resource was forwarded")
	ErrUndeclared    = errors.New("resource not declared by pass")
)

// Error describes a precondition failure: which operation, pass and
// resource were involved and what went wrong.
type Error struct {
	Op       string
	Pass     string
	Resource string
	Detail   string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("framegraph: ")
	b.WriteString(e.Op)
	if e.Pass != "" {
		fmt.Fprintf(&b, ": pass %q", e.Pass)
	}
	if e.Resource != "" {
		fmt.Fprintf(&b, ": resource %q", e.Resource)
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	if e.Detail != "" {
		b.WriteString(" (")
		b.WriteString(e.Detail)
		b.WriteString(")")
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Recover turns a precondition panic into an error. It must be deferred
// directly:
//
//	defer framegraph.Recover(&err)
//
// Panics that are not *Error are re-raised.
func Recover(errp *error) {
	r := recover()
	if r == nil {
		return
	}
	if fe, ok := r.(*Error); ok {
		*errp = fe
		return
	}
	panic(r)
}

// fail logs the failure with frame context and aborts the current operation.
func (fg *FrameGraph) fail(e *Error) {
	fg.log.Error("precondition failed",
		"op", e.Op,
		"pass", e.Pass,
		"resource", e.Resource,
		"error", e.Err)
	panic(e)
}
