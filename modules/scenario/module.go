// Package scenario registers the building sample commands.
package scenario

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/vk/twinctl/internal/registry"
	"github.com/vk/twinctl/modules/digitaltwins"
	"github.com/vk/twinctl/modules/models"
	"github.com/vk/twinctl/modules/tools"
)

const maxObserved = 4

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the commands with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterCommand(&registry.RegisteredCommand{
		Name:     "SetupBuildingScenario",
		Usage:    "",
		Help:     "Loads a set of models and creates a very simple example twins graph",
		Category: registry.Scenario,
		Fn:       SetupBuildingScenario,
	})
	r.RegisterCommand(&registry.RegisteredCommand{
		Name:     "ObserveProperties",
		Usage:    "<twin-id> <property-name> [<twin-id> <property-name>]...",
		Help:     "Prints the selected properties of up to four twins until a line is entered",
		Category: registry.Scenario,
		Fn:       ObserveProperties,
	})
}

// SetupBuildingScenario replaces every twin with one floor containing one
// room containing one thermostat. Failures of single steps are printed and
// the remaining steps still run.
func SetupBuildingScenario(ctx context.Context, env *registry.Env, args []string) error {
	env.Out.Out("Initializing Building Scenario...")
	env.Out.Alert("Deleting all twins...")
	if err := tools.DeleteAllTwins(ctx, env); err != nil {
		return err
	}
	env.Out.Out("Creating 1 floor, 1 room and 1 thermostat...")

	steps := []struct {
		fn   registry.HandlerFunc
		args []string
	}{
		{models.CreateModels, []string{"ThermostatModel", "SpaceModel"}},
		{digitaltwins.CreateDigitalTwin, []string{
			"dtmi:contosocom:DigitalTwins:Space;1", "floor1",
			"DisplayName", "string", "Floor 1",
			"Location", "string", "Puget Sound",
			"Temperature", "double", "0",
			"ComfortIndex", "double", "0",
		}},
		{digitaltwins.CreateDigitalTwin, []string{
			"dtmi:contosocom:DigitalTwins:Space;1", "room21",
			"DisplayName", "string", "Room 21",
			"Location", "string", "Puget Sound",
			"Temperature", "double", "0",
			"ComfortIndex", "double", "0",
		}},
		{digitaltwins.CreateDigitalTwin, []string{
			"dtmi:contosocom:DigitalTwins:Thermostat;1", "thermostat67",
			"DisplayName", "string", "Thermostat 67",
			"Location", "string", "Puget Sound",
			"FirmwareVersion", "string", "1.3.9",
			"Temperature", "double", "0",
			"ComfortIndex", "double", "0",
		}},
		{digitaltwins.CreateRelationship, []string{
			"floor1", "contains", "room21", "floor_to_room_edge",
			"ownershipUser", "string", "Contoso",
			"ownershipDepartment", "string", "Comms Division",
		}},
		{digitaltwins.CreateRelationship, []string{
			"room21", "contains", "thermostat67", "room_to_therm_edge",
			"ownershipUser", "string", "Contoso",
			"ownershipDepartment", "string", "Comms Division",
		}},
	}

	failed := 0
	for i, step := range steps {
		if i == 0 {
			env.Out.Out("Uploading %s models", strings.Join(step.args, ", "))
		}
		if i == 1 {
			env.Out.Out("Creating SpaceModel and Thermostat...")
		}
		if i == 4 {
			env.Out.Out("Creating edges between the Floor, Room and Thermostat")
		}
		if err := step.fn(ctx, env, step.args); err != nil {
			env.Out.Failure(err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d scenario step(s) failed", failed, len(steps))
	}
	return nil
}

// ObserveProperties polls the given twin/property pairs every
// ObserveInterval until a line is entered, the input ends or ctx is done.
func ObserveProperties(ctx context.Context, env *registry.Env, args []string) error {
	if len(args) < 2 {
		return registry.Usagef("Please provide at least one pair of twin-id and property name to observe")
	}
	if len(args)%2 != 0 || len(args) > 2*maxObserved {
		return registry.Usagef("Please provide pairs of twin-id and property names (up to %d) to observe", maxObserved)
	}

	env.Out.Alert("Starting observation...")
	env.Out.Alert("Press enter to end observation")

	interval := env.Settings.ObserveInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		observe(ctx, env, args)
		select {
		case <-ctx.Done():
			return nil
		case <-env.Input:
			return nil
		case <-ticker.C:
		}
	}
}

func observe(ctx context.Context, env *registry.Env, pairs []string) {
	for i := 0; i < len(pairs); i += 2 {
		id, prop := pairs[i], pairs[i+1]
		raw, err := env.Twins.GetTwin(ctx, id)
		if err != nil {
			env.Out.Failure(err)
			continue
		}
		env.Out.Out("%s", PropertyLine(raw, prop))
	}
}

// PropertyLine renders one observed property of a twin document.
func PropertyLine(raw []byte, prop string) string {
	var twin map[string]any
	if err := json.Unmarshal(raw, &twin); err != nil {
		return fmt.Sprintf("invalid twin document: %v", err)
	}
	id, ok := twin["$dtId"]
	if !ok {
		id = "<$dtId not found>"
	}
	value, ok := twin[prop]
	if !ok {
		value = "<property not found>"
	}
	return fmt.Sprintf("$dtId: %v, %s: %v", id, prop, value)
}
