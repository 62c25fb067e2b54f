// Package errs defines the typed error taxonomy shared by the Memory Core,
// Fact Extractor, Reconciler, and transport layers (spec.md §7). Each kind
// wraps an underlying cause and carries enough structure for the HTTP layer
// to map it to a status code without string-matching.
package errs

import "fmt"

// Kind classifies an error for retry policy and transport mapping.
type Kind string

const (
	KindConfig      Kind = "config"      // startup-only, non-retriable
	KindStorage     Kind = "storage"     // retriable, exponential backoff
	KindProvider    Kind = "provider"    // LLM/embed/rerank, retriable
	KindParse       Kind = "parse"       // returned text does not match schema
	KindExtraction  Kind = "extraction"  // Fact Extractor gave up after retry
	KindReconcile   Kind = "reconcile"   // Reconciler aborted, no partial apply
	KindNotFound    Kind = "not_found"
	KindPermission  Kind = "permission"
	KindValidation  Kind = "validation"
)

// Error is the common shape for every typed error in the taxonomy.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is supports errors.Is comparisons by Kind alone (ignoring Message/Cause),
// so callers can write errors.Is(err, errs.NotFound("")) style sentinels,
// or more simply check e.(*Error).Kind == errs.KindNotFound.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func newErr(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func ConfigError(message string, cause error) *Error     { return newErr(KindConfig, message, cause) }
func StorageError(message string, cause error) *Error    { return newErr(KindStorage, message, cause) }
func ProviderError(message string, cause error) *Error   { return newErr(KindProvider, message, cause) }
func ParseError(message string, cause error) *Error      { return newErr(KindParse, message, cause) }
func ExtractionError(message string, cause error) *Error { return newErr(KindExtraction, message, cause) }
func ReconcileError(message string, cause error) *Error  { return newErr(KindReconcile, message, cause) }
func NotFound(message string) *Error                     { return newErr(KindNotFound, message, nil) }
func PermissionError(message string) *Error               { return newErr(KindPermission, message, nil) }
func ValidationError(message string) *Error               { return newErr(KindValidation, message, nil) }
