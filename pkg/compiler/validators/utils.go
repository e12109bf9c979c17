package validators

import (
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/flyteorg/flowcompiler/pkg/spec"
)

// missingKeys returns the keys without a non empty value in cfg.
func missingKeys(cfg spec.Config, keys ...string) []string {
	var res []string
	for _, k := range keys {
		if len(cfg.GetString(k, "")) == 0 {
			res = append(res, k)
		}
	}

	return res
}

// duplicates returns the values listed more than once, in sorted order.
func duplicates(values []string) []string {
	seen := sets.NewString()
	dups := sets.NewString()
	for _, v := range values {
		if seen.Has(v) {
			dups.Insert(v)
		}

		seen.Insert(v)
	}

	return dups.List()
}
