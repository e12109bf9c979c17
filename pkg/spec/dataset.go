package spec

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// DatasetDescriptor describes where a dataset lives and how it is stored.
type DatasetDescriptor struct {
	Platform   string
	Path       string
	Format     string
	Encryption string
}

// NewDatasetDescriptor reads the descriptor stored under prefix.
func NewDatasetDescriptor(cfg Config, prefix string) DatasetDescriptor {
	sub := cfg.SubConfig(prefix)
	return DatasetDescriptor{
		Platform:   sub.GetString(DatasetPlatformKey, ""),
		Path:       sub.GetString(DatasetPathKey, ""),
		Format:     sub.GetString(DatasetFormatKey, ""),
		Encryption: sub.GetString(DatasetEncryptionKey, ""),
	}
}

// Contains reports whether a dataset described by other can be consumed where d is expected. Empty attributes of d
// match anything.
func (d DatasetDescriptor) Contains(other DatasetDescriptor) bool {
	match := func(expected, actual string) bool {
		return len(expected) == 0 || strings.EqualFold(expected, actual) || len(actual) == 0
	}

	return match(d.Platform, other.Platform) && match(d.Format, other.Format) && match(d.Encryption, other.Encryption)
}

func (d DatasetDescriptor) String() string {
	return fmt.Sprintf("%s:%s:%s", d.Platform, d.Format, d.Path)
}

// indexedPaths returns the index -> value entries of the keys prefix.<n>.
func indexedPaths(cfg Config, prefix string) map[int]string {
	res := map[int]string{}
	p := prefix + "."
	for k, v := range cfg {
		if !strings.HasPrefix(k, p) {
			continue
		}

		idx, err := strconv.Atoi(strings.TrimPrefix(k, p))
		if err != nil || idx < 0 {
			continue
		}

		res[idx] = v
	}

	return res
}

// SplitByDatasetDescriptors returns one FlowSpec per indexed input dataset descriptor. Each sub-spec inherits all the
// configuration of flowSpec and overrides the input and output paths; the output path defaults to the input path.
// A spec without indexed descriptors is returned as the single element.
func SplitByDatasetDescriptors(flowSpec *FlowSpec) []*FlowSpec {
	cfg := flowSpec.GetConfig()
	inputs := indexedPaths(cfg, FlowInputDatasetDescriptorPrefix)
	if len(inputs) == 0 {
		return []*FlowSpec{flowSpec}
	}

	outputs := indexedPaths(cfg, FlowOutputDatasetDescriptorPrefix)
	indexes := make([]int, 0, len(inputs))
	for idx := range inputs {
		indexes = append(indexes, idx)
	}

	sort.Ints(indexes)

	base := cfg.Copy()
	for idx := range inputs {
		delete(base, fmt.Sprintf("%s.%d", FlowInputDatasetDescriptorPrefix, idx))
	}

	for idx := range outputs {
		delete(base, fmt.Sprintf("%s.%d", FlowOutputDatasetDescriptorPrefix, idx))
	}

	res := make([]*FlowSpec, 0, len(indexes))
	for _, idx := range indexes {
		input := inputs[idx]
		output, ok := outputs[idx]
		if !ok || len(output) == 0 {
			output = input
		}

		sub := base.Copy()
		sub[FlowInputDatasetDescriptorPrefix+"."+DatasetPathKey] = input
		sub[FlowOutputDatasetDescriptorPrefix+"."+DatasetPathKey] = output
		res = append(res, flowSpec.WithConfig(sub))
	}

	return res
}
