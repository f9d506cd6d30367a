package twins

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// DefaultQuery selects every twin.
const DefaultQuery = "SELECT * FROM DIGITALTWINS"

// Query runs a twins query and returns every result item, following
// continuation tokens.
func (c *Client) Query(ctx context.Context, query string) ([]json.RawMessage, error) {
	var items []json.RawMessage
	req := queryRequest{Query: query}
	for {
		var resp queryResponse
		if err := c.do(ctx, "query", http.MethodPost, c.endpoint(nil, "query"), req, "", &resp); err != nil {
			return nil, err
		}
		items = append(items, resp.Value...)
		if resp.ContinuationToken == "" {
			return items, nil
		}
		req = queryRequest{ContinuationToken: resp.ContinuationToken}
	}
}

// TwinIDs runs query and returns the $dtId of every result item. Items
// without one are reported through skipped.
func (c *Client) TwinIDs(ctx context.Context, query string) (ids []string, skipped []json.RawMessage, err error) {
	items, err := c.Query(ctx, query)
	if err != nil {
		return nil, nil, err
	}
	for _, item := range items {
		var head struct {
			ID string `json:"$dtId"`
		}
		if err := json.Unmarshal(item, &head); err != nil || head.ID == "" {
			skipped = append(skipped, item)
			continue
		}
		ids = append(ids, head.ID)
	}
	return ids, skipped, nil
}

// CreateEventRoute creates or replaces an event route.
func (c *Client) CreateEventRoute(ctx context.Context, route EventRoute) error {
	if route.ID == "" {
		return fmt.Errorf("create event route: route id is required")
	}
	body := EventRoute{EndpointName: route.EndpointName, Filter: route.Filter}
	return c.do(ctx, "create event route "+route.ID, http.MethodPut, c.endpoint(nil, "eventroutes", route.ID), body, "", nil)
}

// GetEventRoute returns one event route.
func (c *Client) GetEventRoute(ctx context.Context, id string) (*EventRoute, error) {
	var route EventRoute
	if err := c.do(ctx, "get event route "+id, http.MethodGet, c.endpoint(nil, "eventroutes", id), nil, "", &route); err != nil {
		return nil, err
	}
	return &route, nil
}

// ListEventRoutes returns every event route.
func (c *Client) ListEventRoutes(ctx context.Context) ([]EventRoute, error) {
	return listAll[EventRoute](ctx, c, "list event routes", c.endpoint(nil, "eventroutes"))
}

// DeleteEventRoute deletes one event route.
func (c *Client) DeleteEventRoute(ctx context.Context, id string) error {
	return c.do(ctx, "delete event route "+id, http.MethodDelete, c.endpoint(nil, "eventroutes", id), nil, "", nil)
}
