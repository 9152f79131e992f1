package conversation

import (
	"errors"
	"fmt"
)

// ErrBudgetUnsatisfiable indicates the token budget cannot hold even the
// protected part of the history.
var ErrBudgetUnsatisfiable = errors.New("token budget cannot be satisfied")

// BudgetError reports the state of a history that could not be trimmed
// under its budget.
type BudgetError struct {
	Tokens   int // tokens left after all permitted evictions
	Budget   int
	Messages int // messages left after all permitted evictions
}

// Error implements the error interface.
func (e *BudgetError) Error() string {
	return fmt.Sprintf("conversation: %v: %d tokens in %d messages exceeds budget of %d",
		ErrBudgetUnsatisfiable, e.Tokens, e.Messages, e.Budget)
}

// Unwrap returns ErrBudgetUnsatisfiable for errors.Is.
func (e *BudgetError) Unwrap() error {
	return ErrBudgetUnsatisfiable
}
