package segy

import "fmt"

// MalformedHeaderError reports a file or trace header that cannot serve as
// a spatial index: a declared field is absent, out of range, or its values
// are inconsistent across traces. Not recoverable; the caller aborts this
// cube and moves on.
type MalformedHeaderError struct {
	Path   string
	Field  string
	Reason string
}

func (e *MalformedHeaderError) Error() string {
	return fmt.Sprintf("%s: malformed header field %q: %s", e.Path, e.Field, e.Reason)
}

// InconsistentTraceLengthError reports a trace whose sample count differs
// from the declared count and cannot be normalized under the configured
// length policy. Trace is the sequential index when the trace was reached
// by a scan, or -1 for a random-access read; Offset locates the trace
// header in the file either way.
type InconsistentTraceLengthError struct {
	Path   string
	Trace  int
	Offset int64
	Got    int
	Want   int
}

func (e *InconsistentTraceLengthError) Error() string {
	if e.Trace >= 0 {
		return fmt.Sprintf("%s: trace %d (offset %d) has %d samples, declared %d",
			e.Path, e.Trace, e.Offset, e.Got, e.Want)
	}
	return fmt.Sprintf("%s: trace at offset %d has %d samples, declared %d",
		e.Path, e.Offset, e.Got, e.Want)
}
