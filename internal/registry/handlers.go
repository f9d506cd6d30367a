package registry

import (
	"context"
	"errors"

	"github.com/vk/twinctl/internal/archive"
	"github.com/vk/twinctl/internal/config"
	"github.com/vk/twinctl/internal/console"
	"github.com/vk/twinctl/internal/twins"
)

// ErrExit is returned by a command to end the shell.
var ErrExit = errors.New("exit requested")

// Category groups commands in the help output.
type Category int

const (
	Models Category = iota
	Twins
	Query
	Routes
	Scenario
	Tools
)

// Categories lists every category in help order.
var Categories = []Category{Models, Twins, Query, Routes, Scenario, Tools}

// Heading is the help section title of the category.
func (c Category) Heading() string {
	switch c {
	case Models:
		return "Managing DigitalTwins Models"
	case Twins:
		return "Managing Digital Twins and Relationships"
	case Query:
		return "Querying the Twins Graph"
	case Routes:
		return "Managing Event Routes"
	case Scenario:
		return "Building Scenario Samples"
	case Tools:
		return "Tools"
	default:
		return "Other"
	}
}

// Env is everything a command handler may use.
type Env struct {
	Twins    *twins.Client
	Out      *console.Printer
	Settings *config.Settings
	// Input delivers the lines typed while a long-running command is active.
	Input <-chan string
	// Archive is nil when archiving is not configured.
	Archive  *archive.Archiver
	Registry *Registry
}

// HandlerFunc runs one command. args excludes the command name.
type HandlerFunc func(ctx context.Context, env *Env, args []string) error

// RegisteredCommand is one entry of the command table.
type RegisteredCommand struct {
	Name     string
	Usage    string
	Help     string
	Category Category
	Fn       HandlerFunc
}
