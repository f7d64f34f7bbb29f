package analysis

import "fmt"

// ErrorKind partitions analysis failures.
type ErrorKind string

// Analysis failure kinds.
const (
	// KindParseFailed means the SQL was rejected by the scanner or parser.
	KindParseFailed ErrorKind = "parse_failed"
	// KindUnsupported means the SQL parsed but a required extraction step
	// could not proceed.
	KindUnsupported ErrorKind = "unsupported"
)

// AnalysisError is the failure domain of AnalyzeSelect and AnalyzeWrite.
type AnalysisError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// Error returns the printable representation.
func (e *AnalysisError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying cause.
func (e *AnalysisError) Unwrap() error { return e.Err }

func parseFailed(msg string, err error) *AnalysisError {
	return &AnalysisError{Kind: KindParseFailed, Message: msg, Err: err}
}

func unsupported(format string, args ...any) *AnalysisError {
	return &AnalysisError{Kind: KindUnsupported, Message: fmt.Sprintf(format, args...)}
}
