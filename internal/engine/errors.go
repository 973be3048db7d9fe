package engine

import (
	"fmt"
	"strings"
)

// CycleError reports a dependency cycle in the declaration graph. It is
// always returned before any provider call is made.
type CycleError struct {
	Cycle []string // first element repeated at the end
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Cycle, " -> "))
}

// ProviderCallError reports the failure of one resource's operation.
type ProviderCallError struct {
	Address   string
	Operation string // create, update, delete, resolve
	Err       error
}

func (e *ProviderCallError) Error() string {
	return fmt.Sprintf("%s: %s failed: %v", e.Address, e.Operation, e.Err)
}

func (e *ProviderCallError) Unwrap() error {
	return e.Err
}

// ApplyError describes a partially applied plan. Nothing is rolled back:
// Succeeded resources are recorded in the returned state.
type ApplyError struct {
	Errors    []*ProviderCallError
	Succeeded []string
	Failed    []string
	Skipped   []string // dependents of failed resources
	Untouched []string // not reached because the apply halted
}

func (e *ApplyError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("%d resource(s) failed: %s", len(e.Errors), strings.Join(msgs, "; "))
}

func (e *ApplyError) Unwrap() []error {
	errs := make([]error, 0, len(e.Errors))
	for _, err := range e.Errors {
		errs = append(errs, err)
	}
	return errs
}
