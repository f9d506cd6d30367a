package twins

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// ListModels returns every model on the instance.
func (c *Client) ListModels(ctx context.Context, opts ListModelsOptions) ([]ModelData, error) {
	q := url.Values{}
	if opts.IncludeDefinitions {
		q.Set("includeModelDefinition", "true")
	}
	for _, id := range opts.DependenciesFor {
		q.Add("dependenciesFor", id)
	}
	models, err := listAll[ModelData](ctx, c, "list models", c.endpoint(q, "models"))
	if err != nil {
		return nil, err
	}
	if opts.IncludeDefinitions {
		for _, m := range models {
			c.models.Add(m.ID, m)
		}
	}
	return models, nil
}

// GetModel returns one model with its definition. Definitions are served
// from the cache when possible.
func (c *Client) GetModel(ctx context.Context, id string) (ModelData, error) {
	if m, ok := c.models.Get(id); ok {
		return m, nil
	}
	q := url.Values{"includeModelDefinition": {"true"}}
	var m ModelData
	if err := c.do(ctx, "get model "+id, http.MethodGet, c.endpoint(q, "models", id), nil, "", &m); err != nil {
		return ModelData{}, err
	}
	c.models.Add(m.ID, m)
	return m, nil
}

// CreateModels uploads DTDL documents in one batch.
func (c *Client) CreateModels(ctx context.Context, docs []json.RawMessage) ([]ModelData, error) {
	if len(docs) == 0 {
		return nil, fmt.Errorf("create models: no models given")
	}
	var created []ModelData
	if err := c.do(ctx, "create models", http.MethodPost, c.endpoint(nil, "models"), docs, "", &created); err != nil {
		return nil, err
	}
	return created, nil
}

// DeleteModel deletes one model. The service refuses while other models
// still extend it or use it as a component.
func (c *Client) DeleteModel(ctx context.Context, id string) error {
	defer c.models.Remove(id)
	return c.do(ctx, "delete model "+id, http.MethodDelete, c.endpoint(nil, "models", id), nil, "", nil)
}

// DecommissionModel marks a model so no new twins can be created from it.
func (c *Client) DecommissionModel(ctx context.Context, id string) error {
	defer c.models.Remove(id)
	patch := Patch{}.Replace("/decommissioned", true)
	return c.do(ctx, "decommission model "+id, http.MethodPatch, c.endpoint(nil, "models", id), patch, "application/json-patch+json", nil)
}

// CachedModels reports how many model definitions are cached.
func (c *Client) CachedModels() int {
	return c.models.Len()
}
