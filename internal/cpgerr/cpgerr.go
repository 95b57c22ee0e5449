// Package cpgerr defines the extraction error taxonomy. Each error
// kind is a distinct type so callers can errors.As on it; all carry
// enough context (method fullName, signature, file name) to locate the
// offending input.
package cpgerr

import "fmt"

// SchemaViolation is raised when an edge is attempted between kinds the
// schema forbids, or a required property is missing. Recovered locally:
// the current method's staged nodes are rolled back out of the store
// and the pipeline continues with the next method.
type SchemaViolation struct {
	MethodFullName string
	Signature      string
	Reason         string
}

func (e *SchemaViolation) Error() string {
	return fmt.Sprintf("schema violation in %s%s: %s", e.MethodFullName, e.Signature, e.Reason)
}

// CompileError is raised when the source compiler fails. Aborts the
// extraction run before any deletions are committed.
type CompileError struct {
	Filename string
	Cause    error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile error in %s: %v", e.Filename, e.Cause)
}
func (e *CompileError) Unwrap() error { return e.Cause }

// DriverUnavailable is raised when a remote driver disconnects.
// Surfaced verbatim; retries are the caller's responsibility.
type DriverUnavailable struct {
	Backend string
	Cause   error
}

func (e *DriverUnavailable) Error() string {
	return fmt.Sprintf("driver %s unavailable: %v", e.Backend, e.Cause)
}
func (e *DriverUnavailable) Unwrap() error { return e.Cause }

// MissingInput is raised when a requested file does not exist. Fails
// the load() that requested it; state is unchanged.
type MissingInput struct {
	Path string
}

func (e *MissingInput) Error() string {
	return fmt.Sprintf("missing input: %s", e.Path)
}

// PhantomTarget is raised (non-fatally) when a call-graph edge
// references a method whose body is unknown. The pipeline emits a
// phantom METHOD head, records the CALL edge, and continues.
type PhantomTarget struct {
	MethodFullName string
	Signature      string
}

func (e *PhantomTarget) Error() string {
	return fmt.Sprintf("phantom call target: %s%s", e.MethodFullName, e.Signature)
}
