package twins

import (
	"encoding/json"
	"fmt"
	"time"
)

// ModelData is a model as stored by the service.
type ModelData struct {
	ID             string            `json:"id"`
	DisplayName    map[string]string `json:"displayName,omitempty"`
	Description    map[string]string `json:"description,omitempty"`
	UploadTime     *time.Time        `json:"uploadTime,omitempty"`
	Decommissioned bool              `json:"decommissioned"`
	Model          json.RawMessage   `json:"model,omitempty"`
}

// ListModelsOptions narrows ListModels.
type ListModelsOptions struct {
	IncludeDefinitions bool
	DependenciesFor    []string
}

// TwinMetadata is the $metadata section of a twin.
type TwinMetadata struct {
	ModelID string `json:"$model"`
}

// BasicTwin is a digital twin with its custom properties kept in Contents.
type BasicTwin struct {
	ID       string
	ETag     string
	Metadata TwinMetadata
	Contents map[string]any
}

func (t BasicTwin) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(t.Contents)+3)
	for k, v := range t.Contents {
		out[k] = v
	}
	out["$dtId"] = t.ID
	if t.ETag != "" {
		out["$etag"] = t.ETag
	}
	out["$metadata"] = t.Metadata
	return json.Marshal(out)
}

func (t *BasicTwin) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*t = BasicTwin{Contents: make(map[string]any)}
	for k, v := range raw {
		var err error
		switch k {
		case "$dtId":
			err = json.Unmarshal(v, &t.ID)
		case "$etag":
			err = json.Unmarshal(v, &t.ETag)
		case "$metadata":
			err = json.Unmarshal(v, &t.Metadata)
		default:
			var value any
			err = json.Unmarshal(v, &value)
			t.Contents[k] = value
		}
		if err != nil {
			return fmt.Errorf("twin field %s: %w", k, err)
		}
	}
	return nil
}

// BasicRelationship is a relationship with its custom properties kept in
// Properties.
type BasicRelationship struct {
	ID         string
	SourceID   string
	TargetID   string
	Name       string
	ETag       string
	Properties map[string]any
}

func (r BasicRelationship) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Properties)+5)
	for k, v := range r.Properties {
		out[k] = v
	}
	out["$relationshipId"] = r.ID
	out["$sourceId"] = r.SourceID
	out["$targetId"] = r.TargetID
	out["$relationshipName"] = r.Name
	if r.ETag != "" {
		out["$etag"] = r.ETag
	}
	return json.Marshal(out)
}

func (r *BasicRelationship) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = BasicRelationship{Properties: make(map[string]any)}
	for k, v := range raw {
		var err error
		switch k {
		case "$relationshipId":
			err = json.Unmarshal(v, &r.ID)
		case "$sourceId":
			err = json.Unmarshal(v, &r.SourceID)
		case "$targetId":
			err = json.Unmarshal(v, &r.TargetID)
		case "$relationshipName":
			err = json.Unmarshal(v, &r.Name)
		case "$etag":
			err = json.Unmarshal(v, &r.ETag)
		default:
			var value any
			err = json.Unmarshal(v, &value)
			r.Properties[k] = value
		}
		if err != nil {
			return fmt.Errorf("relationship field %s: %w", k, err)
		}
	}
	return nil
}

// IncomingRelationship points at a relationship whose target is the queried twin.
type IncomingRelationship struct {
	RelationshipID   string `json:"relationshipId"`
	SourceID         string `json:"sourceId"`
	RelationshipName string `json:"relationshipName"`
	RelationshipLink string `json:"relationshipLink"`
}

// EventRoute sends twin events matching Filter to an endpoint.
type EventRoute struct {
	ID           string `json:"id,omitempty"`
	EndpointName string `json:"endpointName"`
	Filter       string `json:"filter"`
}

// PatchOp is one JSON Patch operation.
type PatchOp struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
}

// Patch is a JSON Patch document.
type Patch []PatchOp

func (p Patch) Add(path string, value any) Patch {
	return append(p, PatchOp{Op: "add", Path: path, Value: value})
}

func (p Patch) Replace(path string, value any) Patch {
	return append(p, PatchOp{Op: "replace", Path: path, Value: value})
}

func (p Patch) Remove(path string) Patch {
	return append(p, PatchOp{Op: "remove", Path: path})
}

// page is the envelope of paged list endpoints.
type page[T any] struct {
	Value    []T    `json:"value"`
	NextLink string `json:"nextLink,omitempty"`
}

type queryRequest struct {
	Query             string `json:"query,omitempty"`
	ContinuationToken string `json:"continuationToken,omitempty"`
}

type queryResponse struct {
	Value             []json.RawMessage `json:"value"`
	ContinuationToken string            `json:"continuationToken,omitempty"`
}
