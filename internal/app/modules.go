package app

import (
	"github.com/vk/twinctl/internal/registry"
	"github.com/vk/twinctl/modules/digitaltwins"
	"github.com/vk/twinctl/modules/models"
	"github.com/vk/twinctl/modules/query"
	"github.com/vk/twinctl/modules/routes"
	"github.com/vk/twinctl/modules/scenario"
	"github.com/vk/twinctl/modules/tools"
)

// coreModules is the definitive list of all command modules that are
// compiled into the twinctl binary.
var coreModules = []registry.Module{
	&models.Module{},
	&digitaltwins.Module{},
	&query.Module{},
	&routes.Module{},
	&scenario.Module{},
	&tools.Module{},
}
