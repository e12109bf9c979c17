// Package loader decodes the files defining the data nodes and flow edges of a flow graph.
//
// A graph directory holds one file per node at <nodeId>/<file> and one file per edge at
// <sourceId>/<destinationId>/<file>. Files are java style properties (.properties, .conf) or yaml/json documents
// (.yaml, .yml, .json); nested yaml keys are flattened with '.'.
package loader

import (
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/ghodss/yaml"
	"github.com/magiconair/properties"
	"github.com/pkg/errors"

	"github.com/flyteorg/flowcompiler/pkg/flowgraph"
	"github.com/flyteorg/flowcompiler/pkg/spec"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindDataNode
	KindFlowEdge
)

var ErrUnsupportedFormat = fmt.Errorf("unsupported definition format")

// Definitions are the raw configs of a graph, nodes keyed by node id and edges by edge id.
type Definitions struct {
	Nodes map[string]spec.Config
	Edges map[string]spec.Config
}

func NewDefinitions() *Definitions {
	return &Definitions{
		Nodes: map[string]spec.Config{},
		Edges: map[string]spec.Config{},
	}
}

// KindOf classifies a slash separated path relative to the graph root.
func KindOf(relPath string) Kind {
	switch len(strings.Split(strings.Trim(relPath, "/"), "/")) {
	case 2:
		return KindDataNode
	case 3:
		return KindFlowEdge
	}

	return KindUnknown
}

// IsDefinitionFile reports whether name has one of the supported extensions.
func IsDefinitionFile(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".properties", ".conf", ".yaml", ".yml", ".json":
		return true
	}

	return false
}

// Decode parses raw according to the extension of name.
func Decode(name string, raw []byte) (spec.Config, error) {
	switch strings.ToLower(path.Ext(name)) {
	case ".properties", ".conf":
		l := &properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
		p, err := l.LoadBytes(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse properties [%s]", name)
		}

		return spec.Config(p.Map()), nil
	case ".yaml", ".yml", ".json":
		doc := map[string]interface{}{}
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, errors.Wrapf(err, "failed to parse document [%s]", name)
		}

		cfg := spec.Config{}
		flatten("", doc, cfg)
		return cfg, nil
	}

	return nil, errors.Wrapf(ErrUnsupportedFormat, "[%s]", name)
}

func flatten(prefix string, doc map[string]interface{}, out spec.Config) {
	for k, v := range doc {
		key := k
		if len(prefix) > 0 {
			key = prefix + "." + k
		}

		switch t := v.(type) {
		case map[string]interface{}:
			flatten(key, t, out)
		case []interface{}:
			parts := make([]string, 0, len(t))
			for _, p := range t {
				parts = append(parts, fmt.Sprintf("%v", p))
			}

			out[key] = strings.Join(parts, ",")
		case nil:
			out[key] = ""
		default:
			out[key] = fmt.Sprintf("%v", t)
		}
	}
}

// Add decodes the definition stored at relPath and records it. Ids missing from the file are taken from the path,
// ids contradicting the path are rejected.
func (d *Definitions) Add(relPath string, raw []byte) error {
	cfg, err := Decode(relPath, raw)
	if err != nil {
		return err
	}

	parts := strings.Split(strings.Trim(relPath, "/"), "/")
	switch KindOf(relPath) {
	case KindDataNode:
		if err := defaultOrMatch(cfg, flowgraph.DataNodeIDKey, parts[0], relPath); err != nil {
			return err
		}

		id := cfg[flowgraph.DataNodeIDKey]
		if _, ok := d.Nodes[id]; ok {
			return fmt.Errorf("data node [%s] defined twice, second definition at [%s]", id, relPath)
		}

		d.Nodes[id] = cfg
	case KindFlowEdge:
		if err := defaultOrMatch(cfg, flowgraph.FlowEdgeSourceKey, parts[0], relPath); err != nil {
			return err
		}

		if err := defaultOrMatch(cfg, flowgraph.FlowEdgeDestinationKey, parts[1], relPath); err != nil {
			return err
		}

		name := strings.TrimSuffix(parts[2], path.Ext(parts[2]))
		if err := defaultOrMatch(cfg, flowgraph.FlowEdgeNameKey, name, relPath); err != nil {
			return err
		}

		id := flowgraph.EdgeID(cfg[flowgraph.FlowEdgeSourceKey], cfg[flowgraph.FlowEdgeDestinationKey],
			cfg[flowgraph.FlowEdgeNameKey])
		if _, ok := d.Edges[id]; ok {
			return fmt.Errorf("flow edge [%s] defined twice, second definition at [%s]", id, relPath)
		}

		d.Edges[id] = cfg
	default:
		return fmt.Errorf("[%s] is neither a data node nor a flow edge definition", relPath)
	}

	return nil
}

func defaultOrMatch(cfg spec.Config, key, expected, relPath string) error {
	v, ok := cfg[key]
	if !ok || len(v) == 0 {
		cfg[key] = expected
		return nil
	}

	if v != expected {
		return fmt.Errorf("[%s] = [%s] in [%s] does not match the location [%s]", key, v, relPath, expected)
	}

	return nil
}

// LoadFS reads every definition file of fsys. Files with other extensions are ignored.
func LoadFS(fsys fs.FS) (*Definitions, error) {
	var files []string
	err := fs.WalkDir(fsys, ".", func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if entry.IsDir() {
			if p != "." && strings.HasPrefix(entry.Name(), ".") {
				return fs.SkipDir
			}

			return nil
		}

		if IsDefinitionFile(p) && KindOf(p) != KindUnknown {
			files = append(files, p)
		}

		return nil
	})

	if err != nil {
		return nil, errors.Wrap(err, "failed to walk flow graph definitions")
	}

	sort.Strings(files)
	defs := NewDefinitions()
	for _, f := range files {
		raw, err := fs.ReadFile(fsys, f)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read [%s]", f)
		}

		if err := defs.Add(f, raw); err != nil {
			return nil, err
		}
	}

	return defs, nil
}
