package twins

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vk/twinctl/internal/dtdl"
	"github.com/vk/twinctl/internal/purge"
)

// ModelStore exposes a Client as the model source and sink of a purge.
type ModelStore struct {
	client *Client
	// Snapshot holds the listed models with definitions after ListModels.
	Snapshot []ModelData
}

func NewModelStore(c *Client) *ModelStore {
	return &ModelStore{client: c}
}

// ListModels lists every model with its definition and reads the references
// out of the DTDL.
func (s *ModelStore) ListModels(ctx context.Context) ([]purge.Model, error) {
	data, err := s.client.ListModels(ctx, ListModelsOptions{IncludeDefinitions: true})
	if err != nil {
		return nil, err
	}
	s.Snapshot = data
	return ToPurgeModels(data)
}

func (s *ModelStore) DeleteModel(ctx context.Context, id string) error {
	return s.client.DeleteModel(ctx, id)
}

// ToPurgeModels converts service models to purge models. References made by
// interfaces declared inline in a definition count as references of the
// model that declares them.
func ToPurgeModels(data []ModelData) ([]purge.Model, error) {
	models := make([]purge.Model, 0, len(data))
	for _, md := range data {
		m := purge.Model{ID: md.ID}
		if len(md.Model) == 0 {
			models = append(models, m)
			continue
		}

		ifaces, err := dtdl.ParseDocuments([]json.RawMessage{md.Model})
		if err != nil {
			return nil, fmt.Errorf("failed to parse definition of model %s: %w", md.ID, err)
		}
		declared := make(map[string]bool, len(ifaces))
		for _, iface := range ifaces {
			declared[iface.ID] = true
		}
		for _, iface := range ifaces {
			for _, ref := range iface.Extends {
				if !declared[ref] {
					m.Extends = append(m.Extends, ref)
				}
			}
			for _, ref := range iface.Components {
				if !declared[ref] {
					m.Components = append(m.Components, ref)
				}
			}
		}
		models = append(models, m)
	}
	return models, nil
}
