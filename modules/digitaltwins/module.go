// Package digitaltwins registers the twin and relationship commands.
package digitaltwins

import (
	"context"

	"github.com/google/uuid"

	"github.com/vk/twinctl/internal/console"
	"github.com/vk/twinctl/internal/registry"
	"github.com/vk/twinctl/internal/twins"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the commands with the registry.
func (m *Module) Register(r *registry.Registry) {
	for _, cmd := range []*registry.RegisteredCommand{
		{Name: "CreateDigitalTwin", Usage: "<model-id> <twin-id> <property-name-0> <prop-type-0> <prop-value-0> ...", Help: "Creates a twin; a random id is used when none is given", Fn: CreateDigitalTwin},
		{Name: "UpdateDigitalTwin", Usage: "<twin-id> <operation-0> <path-0> <value-schema-0> <value-0> ...", Help: "Applies JSON Patch operations to a twin", Fn: UpdateDigitalTwin},
		{Name: "GetDigitalTwin", Usage: "<twin-id>", Help: "Shows one twin", Fn: GetDigitalTwin},
		{Name: "DeleteDigitalTwin", Usage: "<twin-id>", Help: "Deletes a twin without relationships", Fn: DeleteDigitalTwin},
		{Name: "CreateRelationship", Usage: "<source-twin-id> <relationship-name> <target-twin-id> <relationship-id> <property-name-0> <prop-type-0> <prop-value-0> ...", Help: "Creates a relationship between two twins", Fn: CreateRelationship},
		{Name: "DeleteRelationship", Usage: "<source-twin-id> <relationship-name> <relationship-id>", Help: "Deletes a relationship", Fn: DeleteRelationship},
		{Name: "GetRelationships", Usage: "<twin-id> [relationship-name]", Help: "Lists the outgoing relationships of a twin", Fn: GetRelationships},
		{Name: "GetRelationship", Usage: "<source-twin-id> <relationship-id>", Help: "Shows one relationship", Fn: GetRelationship},
		{Name: "GetIncomingRelationships", Usage: "<twin-id>", Help: "Lists the relationships targeting a twin", Fn: GetIncomingRelationships},
	} {
		cmd.Category = registry.Twins
		r.RegisterCommand(cmd)
	}
}

func CreateDigitalTwin(ctx context.Context, env *registry.Env, args []string) error {
	env.Out.Alert("Preparing...")
	if len(args) < 1 {
		return registry.Usagef("Please specify a model id as the first argument")
	}
	twin := twins.BasicTwin{
		ID:       uuid.NewString(),
		Metadata: twins.TwinMetadata{ModelID: args[0]},
	}
	if len(args) > 1 {
		twin.ID = args[1]
	}
	if len(args) > 2 {
		props, err := console.Properties(args[2:])
		if err != nil {
			return registry.Usagef("%v", err)
		}
		twin.Contents = props
	}

	env.Out.Alert("Submitting...")
	if _, err := env.Twins.CreateTwin(ctx, twin); err != nil {
		return err
	}
	env.Out.Ok("Twin '%s' created successfully!", twin.ID)
	return nil
}

func UpdateDigitalTwin(ctx context.Context, env *registry.Env, args []string) error {
	if len(args) < 5 {
		return registry.Usagef("Please specify a twin id and at least one set of patch operations (op|path|schema|value)")
	}
	ops := args[1:]
	if len(ops)%4 != 0 {
		return registry.Usagef("Incomplete operation info. Each operation needs 4 parameters: op|path|schema|value")
	}

	var patch twins.Patch
	for i := 0; i < len(ops); i += 4 {
		v, err := console.ConvertStringToType(ops[i+2], ops[i+3])
		if err != nil {
			return registry.Usagef("operation %d: %v", i/4, err)
		}
		op := twins.PatchOp{Op: ops[i], Path: ops[i+1]}
		if op.Op != "remove" {
			op.Value = v
		}
		patch = append(patch, op)
	}

	env.Out.Alert("Submitting...")
	if err := env.Twins.UpdateTwin(ctx, args[0], patch); err != nil {
		return err
	}
	env.Out.Ok("Twin '%s' updated successfully!", args[0])
	return nil
}

func GetDigitalTwin(ctx context.Context, env *registry.Env, args []string) error {
	if len(args) != 1 {
		return registry.Usagef("Please specify the id of the twin you wish to retrieve")
	}
	env.Out.Alert("Submitting...")
	raw, err := env.Twins.GetTwin(ctx, args[0])
	if err != nil {
		return err
	}
	env.Out.Response("", raw)
	return nil
}

func DeleteDigitalTwin(ctx context.Context, env *registry.Env, args []string) error {
	if len(args) != 1 {
		return registry.Usagef("Please specify the id of the twin you wish to delete")
	}
	env.Out.Alert("Submitting...")
	if err := env.Twins.DeleteTwin(ctx, args[0]); err != nil {
		return err
	}
	env.Out.Ok("Twin '%s' deleted successfully!", args[0])
	return nil
}

func CreateRelationship(ctx context.Context, env *registry.Env, args []string) error {
	if len(args) < 4 {
		return registry.Usagef("To create a relationship you must specify at least source twin, relationship name, target twin and relationship id")
	}
	rel := twins.BasicRelationship{
		SourceID: args[0],
		Name:     args[1],
		TargetID: args[2],
		ID:       args[3],
	}
	if len(args) > 4 {
		props, err := console.Properties(args[4:])
		if err != nil {
			return registry.Usagef("To add properties to relationships specify triples of propName schema value")
		}
		rel.Properties = props
	}

	env.Out.Alert("Submitting...")
	if _, err := env.Twins.CreateRelationship(ctx, rel); err != nil {
		return err
	}
	env.Out.Ok("Relationship %s of type %s created successfully from %s to %s!", rel.ID, rel.Name, rel.SourceID, rel.TargetID)
	return nil
}

func DeleteRelationship(ctx context.Context, env *registry.Env, args []string) error {
	if len(args) != 3 {
		return registry.Usagef("To delete a relationship you must specify the twin id, relationship name and relationship id")
	}
	env.Out.Alert("Submitting...")
	if err := env.Twins.DeleteRelationship(ctx, args[0], args[2]); err != nil {
		return err
	}
	env.Out.Ok("Relationship '%s' for twin '%s' of type '%s' deleted successfully!", args[2], args[0], args[1])
	return nil
}

func GetRelationships(ctx context.Context, env *registry.Env, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return registry.Usagef("To list relationships you must specify the twin id")
	}
	name := ""
	if len(args) == 2 {
		name = args[1]
	}
	env.Out.Alert("Submitting...")
	rels, err := env.Twins.ListRelationships(ctx, args[0], name)
	if err != nil {
		return err
	}
	for _, rel := range rels {
		env.Out.JSON("", rel)
	}
	env.Out.Alert("Found %d relationship(s)", len(rels))
	return nil
}

func GetRelationship(ctx context.Context, env *registry.Env, args []string) error {
	if len(args) != 2 {
		return registry.Usagef("To retrieve a relationship you must specify the twin id, and relationship id")
	}
	env.Out.Alert("Submitting...")
	raw, err := env.Twins.GetRelationship(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	env.Out.Response("", raw)
	return nil
}

func GetIncomingRelationships(ctx context.Context, env *registry.Env, args []string) error {
	if len(args) != 1 {
		return registry.Usagef("To list incoming relationships you must specify the twin id")
	}
	env.Out.Alert("Submitting...")
	incoming, err := env.Twins.ListIncomingRelationships(ctx, args[0])
	if err != nil {
		return err
	}
	for _, rel := range incoming {
		env.Out.Ok("Relationship: %s from %s | %s", rel.RelationshipName, rel.SourceID, rel.RelationshipID)
	}
	env.Out.Out("--Completed--")
	return nil
}
