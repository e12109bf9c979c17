package template

import (
	"context"
	"fmt"

	"github.com/flyteorg/flytestdlib/promutils"
	"github.com/flyteorg/flytestdlib/storage"
)

//go:generate mockery -all -output=mocks -case=underscore

// Catalog resolves template URIs referenced by flow edges into parsed FlowTemplates.
type Catalog interface {
	GetTemplate(ctx context.Context, uri string) (*FlowTemplate, error)
	// Remove drops any cached copy so the next GetTemplate reads the backing store again.
	Remove(ctx context.Context, uri string) error
}

func NewCatalog(ctx context.Context, cfg *Config, dataStore *storage.DataStore, scope promutils.Scope) (Catalog, error) {
	root := storage.DataReference(cfg.Root)
	switch cfg.Policy {
	case PolicyActive:
		return NewActiveCatalog(NewPassthroughCatalog(dataStore, root), scope), nil
	case PolicyLRU:
		return NewLRUCatalog(NewPassthroughCatalog(dataStore, root), cfg.Size, scope)
	case PolicyPassThrough:
		return NewPassthroughCatalog(dataStore, root), nil
	}

	return nil, fmt.Errorf("empty template catalog config")
}
