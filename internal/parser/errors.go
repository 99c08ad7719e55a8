// errors.go - Parse failure taxonomy for export documents
package parser

import "fmt"

// FormatError reports that a document is not valid JSON at all. It is
// fatal to that document's analysis.
type FormatError struct {
	Err error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid JSON document: %v", e.Err)
	}
	return "invalid JSON document"
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// StructureError reports valid JSON that lacks the expected export shape:
// a non-empty array whose first element carries a "Logs" field. Callers
// surface it as "no data available".
type StructureError struct {
	Reason string
}

func (e *StructureError) Error() string {
	return fmt.Sprintf("unexpected document structure: %s", e.Reason)
}
