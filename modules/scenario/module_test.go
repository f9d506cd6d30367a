package scenario

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/twinctl/internal/registry"
	"github.com/vk/twinctl/internal/registry/registrytest"
	"github.com/vk/twinctl/internal/twins/twinstest"
)

func TestSetupBuildingScenario(t *testing.T) {
	// --- Arrange ---
	srv := twinstest.NewServer(t)
	srv.PutTwin("leftover", "dtmi:example:Old;1", nil)
	env, out := registrytest.NewEnv(t, srv)
	env.Settings.ModelsDir = filepath.Join("..", "..", "Models")

	// --- Act ---
	err := SetupBuildingScenario(context.Background(), env, nil)

	// --- Assert ---
	require.NoError(t, err, out.String())
	assert.Equal(t, []string{"floor1", "room21", "thermostat67"}, srv.TwinIDs())
	assert.ElementsMatch(t, []string{"dtmi:contosocom:DigitalTwins:Thermostat;1", "dtmi:contosocom:DigitalTwins:Space;1"}, srv.ModelIDs())

	thermostat, _ := srv.Twin("thermostat67")
	assert.Equal(t, "1.3.9", thermostat["FirmwareVersion"])
	assert.Equal(t, 0.0, thermostat["Temperature"])

	rels := srv.Relationships("room21")
	require.Len(t, rels, 1)
	assert.Equal(t, "room_to_therm_edge", rels[0].ID)
	assert.Equal(t, "Comms Division", rels[0].Properties["ownershipDepartment"])
}

func TestSetupBuildingScenario_ContinuesAfterFailedStep(t *testing.T) {
	// --- Arrange ---
	srv := twinstest.NewServer(t)
	env, out := registrytest.NewEnv(t, srv)
	env.Settings.ModelsDir = filepath.Join("..", "..", "Models")

	// Models already uploaded: the first step fails with a conflict.
	require.NoError(t, SetupBuildingScenario(context.Background(), env, nil))

	// --- Act ---
	err := SetupBuildingScenario(context.Background(), env, nil)

	// --- Assert ---
	assert.ErrorContains(t, err, "1 of 6 scenario step(s) failed")
	assert.Contains(t, out.String(), "Response 409")
	assert.Equal(t, []string{"floor1", "room21", "thermostat67"}, srv.TwinIDs())
	assert.Len(t, srv.Relationships("floor1"), 1)
}

func TestObserveProperties(t *testing.T) {
	// --- Arrange ---
	srv := twinstest.NewServer(t)
	srv.PutTwin("room21", "dtmi:example:Space;1", map[string]any{"Temperature": 21.5})
	env, out := registrytest.NewEnv(t, srv)
	env.Settings.ObserveInterval = 10 * time.Millisecond
	input := make(chan string)
	env.Input = input

	// --- Act ---
	done := make(chan error, 1)
	go func() {
		done <- ObserveProperties(context.Background(), env, []string{"room21", "Temperature", "missing", "Temperature"})
	}()
	require.Eventually(t, func() bool {
		return strings.Count(out.String(), "$dtId: room21, Temperature: 21.5") >= 2
	}, 2*time.Second, 5*time.Millisecond)
	input <- ""

	// --- Assert ---
	require.NoError(t, <-done)
	assert.Contains(t, out.String(), "Response 404")
}

func TestObserveProperties_StopsOnCancel(t *testing.T) {
	srv := twinstest.NewServer(t)
	env, _ := registrytest.NewEnv(t, srv)
	env.Input = make(chan string)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, ObserveProperties(ctx, env, []string{"a", "b"}))
}

func TestObserveProperties_Usage(t *testing.T) {
	srv := twinstest.NewServer(t)
	env, _ := registrytest.NewEnv(t, srv)
	ctx := context.Background()

	assert.True(t, registry.IsUsage(ObserveProperties(ctx, env, []string{"a"})))
	assert.True(t, registry.IsUsage(ObserveProperties(ctx, env, []string{"a", "b", "c"})))
	assert.True(t, registry.IsUsage(ObserveProperties(ctx, env, strings.Fields("a b c d e f g h i j"))))
}

func TestPropertyLine(t *testing.T) {
	assert.Equal(t, "$dtId: t1, Temperature: 20", PropertyLine([]byte(`{"$dtId":"t1","Temperature":20}`), "Temperature"))
	assert.Equal(t, "$dtId: <$dtId not found>, X: <property not found>", PropertyLine([]byte(`{}`), "X"))
	assert.Contains(t, PropertyLine([]byte(`nope`), "X"), "invalid twin document")
}
