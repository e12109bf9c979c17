package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompileErrors(t *testing.T) {
	errs := NewCompileErrors()
	assert.False(t, errs.HasErrors())

	errs.Collect(NewPathNotFoundErr("flow-b", fmt.Errorf("unreachable")), nil)
	errs.Collect(NewValueRequiredErr("flow-a", "source"), NewPathNotFoundErr("flow-a", fmt.Errorf("unreachable")))
	assert.True(t, errs.HasErrors())
	assert.Equal(t, 3, errs.ErrorCount())

	sorted := errs.Errors()
	assert.Equal(t, PathNotFound, sorted[0].Code())
	assert.Equal(t, "flow-a", sorted[0].Subject())
	assert.Equal(t, "flow-b", sorted[1].Subject())
	assert.Equal(t, ValueRequired, sorted[2].Code())
	assert.Contains(t, errs.Error(), "Collected Errors: 3")
	assert.Contains(t, sorted[2].Description(), "source")
}
