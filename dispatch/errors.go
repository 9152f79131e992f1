package dispatch

import (
	"fmt"

	"github.com/randalmurphal/esdiag/parser"
)

// ClassificationError reports a classification reply that was neither
// "yes" nor "no".
type ClassificationError struct {
	Reply string
}

// Error implements the error interface.
func (e *ClassificationError) Error() string {
	return fmt.Sprintf("dispatch: %v: engine replied %q", parser.ErrAmbiguousClassification, e.Reply)
}

// Unwrap returns parser.ErrAmbiguousClassification for errors.Is.
func (e *ClassificationError) Unwrap() error {
	return parser.ErrAmbiguousClassification
}
