package twins

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
)

// GetTwin returns the raw JSON of a twin.
func (c *Client) GetTwin(ctx context.Context, id string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.do(ctx, "get twin "+id, http.MethodGet, c.endpoint(nil, "digitaltwins", id), nil, "", &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// GetBasicTwin returns a twin decoded into a BasicTwin.
func (c *Client) GetBasicTwin(ctx context.Context, id string) (*BasicTwin, error) {
	var twin BasicTwin
	if err := c.do(ctx, "get twin "+id, http.MethodGet, c.endpoint(nil, "digitaltwins", id), nil, "", &twin); err != nil {
		return nil, err
	}
	return &twin, nil
}

// CreateTwin creates or replaces a twin.
func (c *Client) CreateTwin(ctx context.Context, twin BasicTwin) (*BasicTwin, error) {
	var created BasicTwin
	if err := c.do(ctx, "create twin "+twin.ID, http.MethodPut, c.endpoint(nil, "digitaltwins", twin.ID), twin, "", &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateTwin applies a JSON Patch to a twin.
func (c *Client) UpdateTwin(ctx context.Context, id string, patch Patch) error {
	return c.do(ctx, "update twin "+id, http.MethodPatch, c.endpoint(nil, "digitaltwins", id), patch, "application/json-patch+json", nil)
}

// DeleteTwin deletes a twin. The service refuses while it has relationships.
func (c *Client) DeleteTwin(ctx context.Context, id string) error {
	return c.do(ctx, "delete twin "+id, http.MethodDelete, c.endpoint(nil, "digitaltwins", id), nil, "", nil)
}

// CreateRelationship creates or replaces a relationship on its source twin.
func (c *Client) CreateRelationship(ctx context.Context, rel BasicRelationship) (*BasicRelationship, error) {
	var created BasicRelationship
	target := c.endpoint(nil, "digitaltwins", rel.SourceID, "relationships", rel.ID)
	if err := c.do(ctx, "create relationship "+rel.ID, http.MethodPut, target, rel, "", &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// GetRelationship returns the raw JSON of one relationship.
func (c *Client) GetRelationship(ctx context.Context, twinID, relID string) (json.RawMessage, error) {
	var raw json.RawMessage
	target := c.endpoint(nil, "digitaltwins", twinID, "relationships", relID)
	if err := c.do(ctx, "get relationship "+relID, http.MethodGet, target, nil, "", &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// DeleteRelationship deletes one relationship of a twin.
func (c *Client) DeleteRelationship(ctx context.Context, twinID, relID string) error {
	target := c.endpoint(nil, "digitaltwins", twinID, "relationships", relID)
	return c.do(ctx, "delete relationship "+relID, http.MethodDelete, target, nil, "", nil)
}

// ListRelationships returns the outgoing relationships of a twin, optionally
// only those with the given name.
func (c *Client) ListRelationships(ctx context.Context, twinID, name string) ([]BasicRelationship, error) {
	q := url.Values{}
	if name != "" {
		q.Set("relationshipName", name)
	}
	return listAll[BasicRelationship](ctx, c, "list relationships of "+twinID, c.endpoint(q, "digitaltwins", twinID, "relationships"))
}

// ListIncomingRelationships returns the relationships that target a twin.
func (c *Client) ListIncomingRelationships(ctx context.Context, twinID string) ([]IncomingRelationship, error) {
	return listAll[IncomingRelationship](ctx, c, "list incoming relationships of "+twinID, c.endpoint(nil, "digitaltwins", twinID, "incomingrelationships"))
}

// FindParent returns the source of the first incoming relationship named
// name, or "" if there is none.
func (c *Client) FindParent(ctx context.Context, childID, name string) (string, error) {
	incoming, err := c.ListIncomingRelationships(ctx, childID)
	if err != nil {
		return "", err
	}
	for _, rel := range incoming {
		if rel.RelationshipName == name {
			return rel.SourceID, nil
		}
	}
	return "", nil
}
