package flowgraph

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/flyteorg/flytestdlib/errors"
	"github.com/mitchellh/mapstructure"

	"github.com/flyteorg/flowcompiler/pkg/spec"
)

// Data node configuration keys.
const (
	DataNodeIDKey         = "data.node.id"
	DataNodeClassKey      = "data.node.class"
	DataNodeIsActiveKey   = "data.node.isActive"
	DataNodeFsURIKey      = "fs.uri"
	DataNodeHTTPDomainKey = "data.node.http.domain"
	DataNodeSQLURLKey     = "data.node.sql.url"
)

// Data node type tags.
const (
	BaseDataNodeType       = "BaseDataNode"
	FileSystemDataNodeType = "FileSystemDataNode"
	HdfsDataNodeType       = "HdfsDataNode"
	AdlsDataNodeType       = "AdlsDataNode"
	LocalFSDataNodeType    = "LocalFSDataNode"
	HTTPDataNodeType       = "HttpDataNode"
	SQLDataNodeType        = "SqlDataNode"
)

// DataNode is a vertex of the flow graph: a place data lives in. Two data nodes are the same node iff their ids are
// equal.
type DataNode interface {
	ID() string
	RawConfig() spec.Config
	IsActive() bool
	SetActive(active bool)
	// FsURI is the file system the node stores data in, empty for nodes that are not file system backed.
	FsURI() string
}

type DataNodeFactory func(cfg spec.Config) (DataNode, error)

var (
	dataNodeFactoriesMu sync.RWMutex
	dataNodeFactories   = map[string]DataNodeFactory{
		BaseDataNodeType:       newBaseDataNodeFromConfig,
		FileSystemDataNodeType: newFileSystemDataNodeFactory(),
		HdfsDataNodeType:       newFileSystemDataNodeFactory("hdfs"),
		AdlsDataNodeType:       newFileSystemDataNodeFactory("adl", "abfs", "abfss"),
		LocalFSDataNodeType:    newFileSystemDataNodeFactory("file"),
		HTTPDataNodeType:       newHTTPDataNode,
		SQLDataNodeType:        newSQLDataNode,
	}
)

// RegisterDataNodeType makes a data node implementation available under a type tag. Registering an existing tag
// replaces its factory.
func RegisterDataNodeType(tag string, factory DataNodeFactory) {
	dataNodeFactoriesMu.Lock()
	defer dataNodeFactoriesMu.Unlock()
	dataNodeFactories[tag] = factory
}

// typeTag accepts fully qualified class names and keeps the last component only.
func typeTag(class string) string {
	if idx := strings.LastIndex(class, "."); idx >= 0 {
		return class[idx+1:]
	}

	return class
}

// NewDataNode instantiates the data node described by cfg. The type is read from data.node.class and defaults to a
// file system node when fs.uri is set.
func NewDataNode(cfg spec.Config) (DataNode, error) {
	tag := typeTag(cfg.GetString(DataNodeClassKey, ""))
	if len(tag) == 0 {
		tag = BaseDataNodeType
		if cfg.HasPath(DataNodeFsURIKey) {
			tag = FileSystemDataNodeType
		}
	}

	dataNodeFactoriesMu.RLock()
	factory, ok := dataNodeFactories[tag]
	dataNodeFactoriesMu.RUnlock()
	if !ok {
		return nil, errors.Errorf(ErrUnknownType, "no data node type registered for [%s]", tag)
	}

	return factory(cfg)
}

type dataNodeDefinition struct {
	ID         string `mapstructure:"data.node.id"`
	IsActive   bool   `mapstructure:"data.node.isActive"`
	FsURI      string `mapstructure:"fs.uri"`
	HTTPDomain string `mapstructure:"data.node.http.domain"`
	SQLURL     string `mapstructure:"data.node.sql.url"`
}

func decodeConfig(cfg spec.Config, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})

	if err != nil {
		return err
	}

	return decoder.Decode(map[string]string(cfg))
}

func decodeDataNode(cfg spec.Config) (*dataNodeDefinition, error) {
	def := &dataNodeDefinition{IsActive: true}
	if err := decodeConfig(cfg, def); err != nil {
		return nil, errors.Wrapf(ErrInvalidConfig, err, "failed to decode data node config")
	}

	if len(def.ID) == 0 {
		return nil, errors.Errorf(ErrInvalidConfig, "data node config is missing [%s]", DataNodeIDKey)
	}

	if strings.Contains(def.ID, EdgeIDSeparator) {
		return nil, errors.Errorf(ErrInvalidConfig, "data node id [%s] must not contain [%s]", def.ID, EdgeIDSeparator)
	}

	return def, nil
}

// BaseDataNode carries an id and an activity flag.
type BaseDataNode struct {
	id     string
	cfg    spec.Config
	active atomic.Bool
}

func (n *BaseDataNode) ID() string {
	return n.id
}

func (n *BaseDataNode) RawConfig() spec.Config {
	return n.cfg
}

func (n *BaseDataNode) IsActive() bool {
	return n.active.Load()
}

func (n *BaseDataNode) SetActive(active bool) {
	n.active.Store(active)
}

func (n *BaseDataNode) FsURI() string {
	return ""
}

func (n *BaseDataNode) String() string {
	return n.id
}

func NewBaseDataNode(id string, active bool) *BaseDataNode {
	n := &BaseDataNode{
		id:  id,
		cfg: spec.Config{DataNodeIDKey: id, DataNodeIsActiveKey: fmt.Sprintf("%t", active)},
	}

	n.active.Store(active)
	return n
}

func newBaseDataNode(def *dataNodeDefinition, cfg spec.Config) *BaseDataNode {
	n := &BaseDataNode{
		id:  def.ID,
		cfg: cfg.Copy(),
	}

	n.active.Store(def.IsActive)
	return n
}

func newBaseDataNodeFromConfig(cfg spec.Config) (DataNode, error) {
	def, err := decodeDataNode(cfg)
	if err != nil {
		return nil, err
	}

	return newBaseDataNode(def, cfg), nil
}

// FileSystemDataNode is a data node backed by a file system addressed by fs.uri.
type FileSystemDataNode struct {
	*BaseDataNode
	fsURI string
}

func (n *FileSystemDataNode) FsURI() string {
	return n.fsURI
}

// NewFileSystemDataNode validates fsURI against the accepted schemes, any scheme is accepted when none is given.
func NewFileSystemDataNode(id, fsURI string, active bool, schemes ...string) (*FileSystemDataNode, error) {
	cfg := spec.Config{
		DataNodeIDKey:       id,
		DataNodeIsActiveKey: fmt.Sprintf("%t", active),
		DataNodeFsURIKey:    fsURI,
	}

	n, err := newFileSystemDataNodeFactory(schemes...)(cfg)
	if err != nil {
		return nil, err
	}

	return n.(*FileSystemDataNode), nil
}

func newFileSystemDataNodeFactory(schemes ...string) DataNodeFactory {
	return func(cfg spec.Config) (DataNode, error) {
		def, err := decodeDataNode(cfg)
		if err != nil {
			return nil, err
		}

		if len(def.FsURI) == 0 {
			return nil, errors.Errorf(ErrInvalidConfig, "data node [%s] is missing [%s]", def.ID, DataNodeFsURIKey)
		}

		u, err := url.Parse(def.FsURI)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidConfig, err, "data node [%s] has an invalid fs uri", def.ID)
		}

		if len(u.Scheme) == 0 {
			return nil, errors.Errorf(ErrInvalidConfig, "fs uri [%s] of data node [%s] has no scheme", def.FsURI, def.ID)
		}

		if len(schemes) > 0 && !containsFold(schemes, u.Scheme) {
			return nil, errors.Errorf(ErrInvalidConfig, "fs uri [%s] of data node [%s] must use one of %v", def.FsURI,
				def.ID, schemes)
		}

		return &FileSystemDataNode{
			BaseDataNode: newBaseDataNode(def, cfg),
			fsURI:        def.FsURI,
		}, nil
	}
}

func containsFold(values []string, v string) bool {
	for _, s := range values {
		if strings.EqualFold(s, v) {
			return true
		}
	}

	return false
}

// HTTPDataNode is a data node reached through an http domain.
type HTTPDataNode struct {
	*BaseDataNode
	domain string
}

func (n *HTTPDataNode) Domain() string {
	return n.domain
}

func newHTTPDataNode(cfg spec.Config) (DataNode, error) {
	def, err := decodeDataNode(cfg)
	if err != nil {
		return nil, err
	}

	if len(def.HTTPDomain) == 0 {
		return nil, errors.Errorf(ErrInvalidConfig, "data node [%s] is missing [%s]", def.ID, DataNodeHTTPDomainKey)
	}

	return &HTTPDataNode{
		BaseDataNode: newBaseDataNode(def, cfg),
		domain:       def.HTTPDomain,
	}, nil
}

// SQLDataNode is a data node living in a database reached through a connection url.
type SQLDataNode struct {
	*BaseDataNode
	url string
}

func (n *SQLDataNode) URL() string {
	return n.url
}

func newSQLDataNode(cfg spec.Config) (DataNode, error) {
	def, err := decodeDataNode(cfg)
	if err != nil {
		return nil, err
	}

	if len(def.SQLURL) == 0 {
		return nil, errors.Errorf(ErrInvalidConfig, "data node [%s] is missing [%s]", def.ID, DataNodeSQLURLKey)
	}

	return &SQLDataNode{
		BaseDataNode: newBaseDataNode(def, cfg),
		url:          def.SQLURL,
	}, nil
}
