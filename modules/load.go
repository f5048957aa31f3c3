package modules

import (
	"github.com/iota-uz/franchise-core/modules/aggregation"
	"github.com/iota-uz/franchise-core/modules/hierarchy"
	"github.com/iota-uz/franchise-core/modules/partition"
	"github.com/iota-uz/franchise-core/modules/permission"
	"github.com/iota-uz/franchise-core/modules/tenant"
	"github.com/iota-uz/franchise-core/pkg/application"
)

// BuiltInModules in registration order: hierarchy needs tenant's quota
// gate, permission needs hierarchy's service, aggregation needs both
// permission's checker and tenant's gate.
var BuiltInModules = []application.Module{
	tenant.NewModule(),
	hierarchy.NewModule(),
	permission.NewModule(),
	partition.NewModule(),
	aggregation.NewModule(),
}

func Load(app application.Application, mods ...application.Module) error {
	for _, module := range mods {
		if err := module.Register(app); err != nil {
			return err
		}
	}
	return nil
}
