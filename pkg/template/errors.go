package template

import (
	"fmt"

	"github.com/flyteorg/flytestdlib/errors"
	pkgErrors "github.com/pkg/errors"
)

// Error codes raised while loading and resolving templates.
const (
	ErrSpecNotFound errors.ErrorCode = "SpecNotFound"
	ErrTemplate     errors.ErrorCode = "TemplateError"
	ErrInvalidURI   errors.ErrorCode = "InvalidURI"
)

var ErrLocationEmpty = fmt.Errorf("template location is empty")
var ErrTemplateNotFound = fmt.Errorf("template not found")

func IsNotFound(err error) bool {
	return pkgErrors.Cause(err) == ErrTemplateNotFound || errors.IsCausedBy(err, ErrSpecNotFound)
}
