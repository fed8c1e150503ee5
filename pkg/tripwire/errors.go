package tripwire

import "fmt"

// ResolutionError reports an entity or identifier that resolved to nothing
// when a match was required. It is raised synchronously at registration
// time, never deferred to first execution.
type ResolutionError struct {
	Target string
	Reason string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve %s: %s", e.Target, e.Reason)
}

// StalenessError reports a fingerprint mismatch between the source a caller
// instrumented against and the source the substrate currently observes.
type StalenessError struct {
	Unit string
	Want string
	Got  string
}

func (e *StalenessError) Error() string {
	return fmt.Sprintf("source of %q has changed: fingerprint %s, expected %s", e.Unit, e.Got, e.Want)
}

// ConditionError reports a condition that references an unavailable binding
// or failed during evaluation.
type ConditionError struct {
	Detail string
	Err    error
}

func (e *ConditionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("condition error: %s: %v", e.Detail, e.Err)
	}
	return fmt.Sprintf("condition error: %s", e.Detail)
}

func (e *ConditionError) Unwrap() error { return e.Err }

// RedirectError reports a goto target that was unresolved or ambiguous at
// the moment the redirect attempted to fire.
type RedirectError struct {
	Target string
	Reason string
	Err    error
}

func (e *RedirectError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("redirect to %s failed: %s: %v", e.Target, e.Reason, e.Err)
	}
	return fmt.Sprintf("redirect to %s failed: %s", e.Target, e.Reason)
}

func (e *RedirectError) Unwrap() error { return e.Err }

// CallbackError wraps a failure inside an executed callback. It propagates
// out through the instrumented execution point, exactly as if the original
// code had raised there.
type CallbackError struct {
	Handler string
	Err     error
}

func (e *CallbackError) Error() string {
	return fmt.Sprintf("callback of handler %s failed: %v", e.Handler, e.Err)
}

func (e *CallbackError) Unwrap() error { return e.Err }
