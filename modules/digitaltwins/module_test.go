package digitaltwins

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/twinctl/internal/registry"
	"github.com/vk/twinctl/internal/registry/registrytest"
	"github.com/vk/twinctl/internal/twins"
	"github.com/vk/twinctl/internal/twins/twinstest"
)

const spaceModel = `{"@id":"dtmi:example:Space;1","@type":"Interface","@context":"dtmi:dtdl:context;2"}`

func TestCreateDigitalTwin(t *testing.T) {
	// --- Arrange ---
	srv := twinstest.NewServer(t)
	srv.AddModels(t, spaceModel)
	env, out := registrytest.NewEnv(t, srv)

	// --- Act ---
	err := CreateDigitalTwin(context.Background(), env, []string{
		"dtmi:example:Space;1", "floor1",
		"DisplayName", "string", "Floor 1",
		"Temperature", "double", "21.5",
	})

	// --- Assert ---
	require.NoError(t, err)
	twin, ok := srv.Twin("floor1")
	require.True(t, ok)
	assert.Equal(t, "Floor 1", twin["DisplayName"])
	assert.Equal(t, 21.5, twin["Temperature"])
	assert.Contains(t, out.String(), "Twin 'floor1' created successfully!")
}

func TestCreateDigitalTwin_GeneratesID(t *testing.T) {
	srv := twinstest.NewServer(t)
	srv.AddModels(t, spaceModel)
	env, _ := registrytest.NewEnv(t, srv)

	require.NoError(t, CreateDigitalTwin(context.Background(), env, []string{"dtmi:example:Space;1"}))

	ids := srv.TwinIDs()
	require.Len(t, ids, 1)
	_, err := uuid.Parse(ids[0])
	assert.NoError(t, err)
}

func TestCreateDigitalTwin_BadArguments(t *testing.T) {
	srv := twinstest.NewServer(t)
	env, _ := registrytest.NewEnv(t, srv)
	ctx := context.Background()

	assert.True(t, registry.IsUsage(CreateDigitalTwin(ctx, env, nil)))
	assert.True(t, registry.IsUsage(CreateDigitalTwin(ctx, env, []string{"m", "t", "A", "double"})))
	assert.True(t, registry.IsUsage(CreateDigitalTwin(ctx, env, []string{"m", "t", "A", "double", "warm"})))
	assert.Empty(t, srv.Calls())
}

func TestUpdateDigitalTwin(t *testing.T) {
	// --- Arrange ---
	srv := twinstest.NewServer(t)
	srv.PutTwin("room21", "dtmi:example:Space;1", map[string]any{"Temperature": 0.0, "Old": "x"})
	env, _ := registrytest.NewEnv(t, srv)
	ctx := context.Background()

	// --- Act ---
	err := UpdateDigitalTwin(ctx, env, []string{
		"room21",
		"replace", "/Temperature", "double", "22.5",
		"add", "/Occupied", "boolean", "true",
		"remove", "/Old", "string", "-",
	})

	// --- Assert ---
	require.NoError(t, err)
	twin, _ := srv.Twin("room21")
	assert.Equal(t, 22.5, twin["Temperature"])
	assert.Equal(t, true, twin["Occupied"])
	assert.NotContains(t, twin, "Old")

	assert.True(t, registry.IsUsage(UpdateDigitalTwin(ctx, env, []string{"room21", "replace", "/a", "double"})))
	assert.True(t, registry.IsUsage(UpdateDigitalTwin(ctx, env, []string{"room21", "replace", "/a", "double", "1", "add"})))
}

func TestTwinLifecycle(t *testing.T) {
	// --- Arrange ---
	srv := twinstest.NewServer(t)
	srv.PutTwin("floor1", "dtmi:example:Space;1", nil)
	srv.PutTwin("room21", "dtmi:example:Space;1", nil)
	env, out := registrytest.NewEnv(t, srv)
	ctx := context.Background()

	// --- Act & Assert ---
	require.NoError(t, CreateRelationship(ctx, env, []string{
		"floor1", "contains", "room21", "floor_to_room_edge",
		"ownershipUser", "string", "Contoso",
	}))
	rels := srv.Relationships("floor1")
	require.Len(t, rels, 1)
	assert.Equal(t, "room21", rels[0].TargetID)
	assert.Equal(t, map[string]any{"ownershipUser": "Contoso"}, rels[0].Properties)
	assert.Contains(t, out.String(), "Relationship floor_to_room_edge of type contains created successfully from floor1 to room21!")

	require.NoError(t, GetRelationships(ctx, env, []string{"floor1"}))
	assert.Contains(t, out.String(), `"$relationshipId": "floor_to_room_edge"`)
	assert.Contains(t, out.String(), "Found 1 relationship(s)")

	require.NoError(t, GetRelationship(ctx, env, []string{"floor1", "floor_to_room_edge"}))
	require.NoError(t, GetIncomingRelationships(ctx, env, []string{"room21"}))
	assert.Contains(t, out.String(), "Relationship: contains from floor1 | floor_to_room_edge")

	err := DeleteDigitalTwin(ctx, env, []string{"room21"})
	var apiErr *twins.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 400, apiErr.Status)

	require.NoError(t, DeleteRelationship(ctx, env, []string{"floor1", "contains", "floor_to_room_edge"}))
	require.NoError(t, DeleteDigitalTwin(ctx, env, []string{"room21"}))
	assert.Equal(t, []string{"floor1"}, srv.TwinIDs())

	require.NoError(t, GetDigitalTwin(ctx, env, []string{"floor1"}))
	assert.Contains(t, out.String(), `"$dtId": "floor1"`)

	assert.True(t, twins.IsNotFound(GetDigitalTwin(ctx, env, []string{"room21"})))
}

func TestRegister(t *testing.T) {
	r := registry.New()
	(&Module{}).Register(r)

	require.NoError(t, r.Validate(context.Background()))
	assert.Len(t, r.ByCategory(registry.Twins), 9)
}
