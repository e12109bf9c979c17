// Package errors collects the failures raised while compiling a flow. A flow may fail for several independent reasons
// (one per dataset or destination) and all of them are reported together.
package errors

import (
	"fmt"
	"sort"
	"strings"
)

type ErrorCode string

const (
	// A flow spec is missing a required value.
	ValueRequired ErrorCode = "ValueRequired"

	// A flow spec carries a value that cannot be used.
	InvalidValue ErrorCode = "InvalidValue"

	// A destination is listed more than once.
	DuplicateDestination ErrorCode = "DuplicateDestination"

	// No path satisfies one dataset of the flow.
	PathNotFound ErrorCode = "PathNotFound"

	// A path was found but its jobs could not be built.
	PlanFailed ErrorCode = "PlanFailed"

	// A resolved hop lacks its template or executor.
	HopIncomplete ErrorCode = "HopIncomplete"

	// The flow compiled to an empty dag.
	EmptyDag ErrorCode = "EmptyDag"
)

// CompileError is a single compilation failure about a subject (a flow, a dataset or an edge).
type CompileError struct {
	code        ErrorCode
	subject     string
	description string
}

func (err CompileError) Code() ErrorCode {
	return err.code
}

func (err CompileError) Subject() string {
	return err.subject
}

func (err CompileError) Description() string {
	return err.description
}

func (err CompileError) Error() string {
	return fmt.Sprintf("Code: %s, Subject: %s, Description: %s", err.code, err.subject, err.description)
}

// CompileErrors accumulates errors of a compilation. It is not safe for concurrent use.
type CompileErrors interface {
	error
	Collect(e ...*CompileError)
	HasErrors() bool
	ErrorCount() int
	Errors() []*CompileError
}

type compileErrors struct {
	errs []*CompileError
}

func (c *compileErrors) Collect(e ...*CompileError) {
	for _, err := range e {
		if err != nil {
			c.errs = append(c.errs, err)
		}
	}
}

func (c *compileErrors) HasErrors() bool {
	return len(c.errs) > 0
}

func (c *compileErrors) ErrorCount() int {
	return len(c.errs)
}

// Errors returns the collected errors ordered by code then subject.
func (c *compileErrors) Errors() []*CompileError {
	res := append([]*CompileError{}, c.errs...)
	sort.SliceStable(res, func(i, j int) bool {
		if res[i].code != res[j].code {
			return res[i].code < res[j].code
		}

		return res[i].subject < res[j].subject
	})

	return res
}

func (c *compileErrors) Error() string {
	msgs := make([]string, 0, len(c.errs))
	for _, err := range c.Errors() {
		msgs = append(msgs, err.Error())
	}

	return fmt.Sprintf("Collected Errors: %d\n\t%s", len(msgs), strings.Join(msgs, "\n\t"))
}

func NewCompileErrors() CompileErrors {
	return &compileErrors{}
}

func NewValueRequiredErr(subject, key string) *CompileError {
	return &CompileError{
		code:        ValueRequired,
		subject:     subject,
		description: fmt.Sprintf("Value required [%v].", key),
	}
}

func NewInvalidValueErr(subject, key, value string) *CompileError {
	return &CompileError{
		code:        InvalidValue,
		subject:     subject,
		description: fmt.Sprintf("Invalid value [%v] for [%v].", value, key),
	}
}

func NewDuplicateDestinationErr(subject, destination string) *CompileError {
	return &CompileError{
		code:        DuplicateDestination,
		subject:     subject,
		description: fmt.Sprintf("Destination [%v] listed more than once.", destination),
	}
}

func NewPathNotFoundErr(subject string, cause error) *CompileError {
	return &CompileError{
		code:        PathNotFound,
		subject:     subject,
		description: fmt.Sprintf("No path found: %v", cause),
	}
}

func NewPlanFailedErr(subject string, cause error) *CompileError {
	return &CompileError{
		code:        PlanFailed,
		subject:     subject,
		description: fmt.Sprintf("Failed to build job plans: %v", cause),
	}
}

func NewHopIncompleteErr(edgeID, missing string) *CompileError {
	return &CompileError{
		code:        HopIncomplete,
		subject:     edgeID,
		description: fmt.Sprintf("Hop has no [%v].", missing),
	}
}

func NewEmptyDagErr(subject string) *CompileError {
	return &CompileError{
		code:        EmptyDag,
		subject:     subject,
		description: "Flow compiled to an empty dag.",
	}
}
