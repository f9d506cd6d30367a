// Package routes registers the event route commands.
package routes

import (
	"context"
	"strings"

	"github.com/vk/twinctl/internal/registry"
	"github.com/vk/twinctl/internal/twins"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the commands with the registry.
func (m *Module) Register(r *registry.Registry) {
	for _, cmd := range []*registry.RegisteredCommand{
		{Name: "CreateEventRoute", Usage: "<route-id> <endpoint-id> <filter>", Help: "Routes twin events matching the filter to an endpoint", Fn: CreateEventRoute},
		{Name: "GetEventRoute", Usage: "<route-id>", Help: "Shows one event route", Fn: GetEventRoute},
		{Name: "GetEventRoutes", Usage: "", Help: "Lists every event route", Fn: GetEventRoutes},
		{Name: "DeleteEventRoute", Usage: "<route-id>", Help: "Deletes an event route", Fn: DeleteEventRoute},
	} {
		cmd.Category = registry.Routes
		r.RegisterCommand(cmd)
	}
}

// CreateEventRoute joins every argument after the endpoint into the filter.
func CreateEventRoute(ctx context.Context, env *registry.Env, args []string) error {
	if len(args) < 3 {
		return registry.Usagef("To create an event route you must specify the route id, the endpoint id and a filter")
	}
	route := twins.EventRoute{
		ID:           args[0],
		EndpointName: args[1],
		Filter:       strings.Join(args[2:], " "),
	}
	env.Out.Alert("Submitting...")
	if err := env.Twins.CreateEventRoute(ctx, route); err != nil {
		return err
	}
	env.Out.Ok("Command completed")
	return nil
}

func GetEventRoute(ctx context.Context, env *registry.Env, args []string) error {
	if len(args) != 1 {
		return registry.Usagef("To retrieve an event route you must specify the route id")
	}
	env.Out.Alert("Submitting...")
	route, err := env.Twins.GetEventRoute(ctx, args[0])
	if err != nil {
		return err
	}
	printRoute(env, *route)
	return nil
}

func GetEventRoutes(ctx context.Context, env *registry.Env, args []string) error {
	env.Out.Alert("Submitting...")
	routes, err := env.Twins.ListEventRoutes(ctx)
	if err != nil {
		return err
	}
	for _, route := range routes {
		printRoute(env, route)
	}
	return nil
}

func DeleteEventRoute(ctx context.Context, env *registry.Env, args []string) error {
	if len(args) != 1 {
		return registry.Usagef("To delete an event route you must specify the route id")
	}
	env.Out.Alert("Submitting...")
	if err := env.Twins.DeleteEventRoute(ctx, args[0]); err != nil {
		return err
	}
	env.Out.Ok("Command completed")
	return nil
}

func printRoute(env *registry.Env, route twins.EventRoute) {
	env.Out.Out("Route %s to %s", route.ID, route.EndpointName)
	env.Out.Out("  Filter: %s", route.Filter)
}
