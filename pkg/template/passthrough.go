package template

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"github.com/flyteorg/flytestdlib/errors"
	"github.com/flyteorg/flytestdlib/storage"
)

type passthroughCatalog struct {
	dataStore *storage.DataStore
	root      storage.DataReference
}

// Location maps a template URI to the reference it is stored under. URIs carrying a scheme are used as is, anything
// else is taken relative to the catalog root.
func (p *passthroughCatalog) Location(ctx context.Context, uri string) (storage.DataReference, error) {
	if len(uri) == 0 {
		return "", ErrLocationEmpty
	}

	u, err := url.Parse(uri)
	if err != nil {
		return "", errors.Wrapf(ErrInvalidURI, err, "invalid template uri [%s]", uri)
	}

	if len(u.Scheme) > 0 {
		return storage.DataReference(uri), nil
	}

	if len(p.root) == 0 {
		return "", errors.Errorf(ErrInvalidURI, "relative template uri [%s] without a catalog root", uri)
	}

	return p.dataStore.ConstructReference(ctx, p.root, strings.Split(strings.Trim(uri, "/"), "/")...)
}

func (p *passthroughCatalog) GetTemplate(ctx context.Context, uri string) (*FlowTemplate, error) {
	loc, err := p.Location(ctx, uri)
	if err != nil {
		return nil, err
	}

	m, err := p.dataStore.Head(ctx, loc)
	if err != nil {
		return nil, errors.Wrapf(ErrSpecNotFound, err, "failed to look up template [%s]", uri)
	}

	if !m.Exists() {
		return nil, errors.Wrapf(ErrSpecNotFound, ErrTemplateNotFound, "template [%s] does not exist at [%s]", uri, loc)
	}

	rawReader, err := p.dataStore.ReadRaw(ctx, loc)
	if err != nil {
		return nil, errors.Wrapf(ErrSpecNotFound, err, "failed to read template [%s]", uri)
	}

	buf := bytes.NewBuffer(nil)
	_, err = buf.ReadFrom(rawReader)
	if err != nil {
		return nil, err
	}

	err = rawReader.Close()
	if err != nil {
		return nil, err
	}

	return Parse(uri, buf.Bytes())
}

func (p *passthroughCatalog) Remove(ctx context.Context, uri string) error {
	return nil
}

func NewPassthroughCatalog(dataStore *storage.DataStore, root storage.DataReference) Catalog {
	return &passthroughCatalog{
		dataStore: dataStore,
		root:      root,
	}
}
