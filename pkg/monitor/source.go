package monitor

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/flyteorg/flytestdlib/logger"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/flyteorg/flowcompiler/pkg/flowgraph/loader"
)

// ConfigMapPathSeparator stands for '/' in config map keys, which may not contain slashes.
const ConfigMapPathSeparator = "__"

// Source produces complete snapshots of the graph definitions.
type Source interface {
	Load(ctx context.Context) (*loader.Definitions, error)
}

// Watcher is implemented by sources able to announce changes between resyncs. Watch blocks until ctx is done.
type Watcher interface {
	Watch(ctx context.Context, notify func()) error
}

// DirectorySource reads the definitions below a local directory.
type DirectorySource struct {
	root string
}

func (d *DirectorySource) Load(_ context.Context) (*loader.Definitions, error) {
	return loader.LoadFS(os.DirFS(d.root))
}

func (d *DirectorySource) Watch(ctx context.Context, notify func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create watcher")
	}

	defer func() {
		if err := w.Close(); err != nil {
			logger.Warnf(ctx, "failed to close watcher of [%s]: %v", d.root, err)
		}
	}()

	if err := d.watchTree(w, d.root); err != nil {
		return err
	}

	logger.Infof(ctx, "watching flow graph directory [%s]", d.root)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}

			logger.Debugf(ctx, "flow graph change [%s] on [%s]", event.Op, event.Name)
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := d.watchTree(w, event.Name); err != nil {
						logger.Warnf(ctx, "failed to watch new directory [%s]: %v", event.Name, err)
					}
				}
			}

			notify()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}

			logger.Warnf(ctx, "error watching flow graph directory [%s]: %v", d.root, err)
		}
	}
}

// watchTree adds dir and its non hidden sub directories, fsnotify watches are not recursive.
func (d *DirectorySource) watchTree(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !entry.IsDir() {
			return nil
		}

		if p != d.root && strings.HasPrefix(entry.Name(), ".") {
			return filepath.SkipDir
		}

		return errors.Wrapf(w.Add(p), "failed to watch [%s]", p)
	})
}

func NewDirectorySource(root string) *DirectorySource {
	return &DirectorySource{root: root}
}

// ConfigMapSource reads the definitions from the data of a config map. Each key is the relative path of a definition
// file with '/' replaced by ConfigMapPathSeparator.
type ConfigMapSource struct {
	client    kubernetes.Interface
	namespace string
	name      string
}

func (c *ConfigMapSource) Load(ctx context.Context) (*loader.Definitions, error) {
	cm, err := c.client.CoreV1().ConfigMaps(c.namespace).Get(ctx, c.name, metav1.GetOptions{})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get config map [%s/%s]", c.namespace, c.name)
	}

	keys := maps.Keys(cm.Data)
	slices.Sort(keys)
	defs := loader.NewDefinitions()
	for _, key := range keys {
		relPath := strings.ReplaceAll(key, ConfigMapPathSeparator, "/")
		if !loader.IsDefinitionFile(relPath) || loader.KindOf(relPath) == loader.KindUnknown {
			logger.Debugf(ctx, "skipping config map key [%s]", key)
			continue
		}

		if err := defs.Add(relPath, []byte(cm.Data[key])); err != nil {
			return nil, err
		}
	}

	return defs, nil
}

func NewConfigMapSource(client kubernetes.Interface, namespace, name string) *ConfigMapSource {
	return &ConfigMapSource{
		client:    client,
		namespace: namespace,
		name:      name,
	}
}
