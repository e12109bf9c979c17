package validators

import (
	"strings"

	"github.com/flyteorg/flowcompiler/pkg/compiler/errors"
	"github.com/flyteorg/flowcompiler/pkg/spec"
)

var requiredFlowKeys = []string{
	spec.FlowGroupKey,
	spec.FlowNameKey,
	spec.FlowSourceIdentifierKey,
}

// ValidateFlowSpec collects everything that keeps flowSpec from being compiled and reports whether it is valid.
func ValidateFlowSpec(flowSpec *spec.FlowSpec, errs errors.CompileErrors) (ok bool) {
	before := errs.ErrorCount()
	subject := flowSpec.String()
	cfg := flowSpec.GetConfig()
	for _, key := range missingKeys(cfg, requiredFlowKeys...) {
		errs.Collect(errors.NewValueRequiredErr(subject, key))
	}

	for _, key := range []string{spec.FlowGroupKey, spec.FlowNameKey} {
		if v := cfg.GetString(key, ""); strings.ContainsAny(v, "/ ") {
			errs.Collect(errors.NewInvalidValueErr(subject, key, v))
		}
	}

	destinations := flowSpec.Destinations()
	if len(destinations) == 0 {
		errs.Collect(errors.NewValueRequiredErr(subject, spec.FlowDestinationIdentifierKey))
	}

	for _, d := range duplicates(destinations) {
		errs.Collect(errors.NewDuplicateDestinationErr(subject, d))
	}

	return errs.ErrorCount() == before
}
