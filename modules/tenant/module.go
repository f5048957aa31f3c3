package tenant

import (
	"embed"

	"github.com/iota-uz/franchise-core/modules/tenant/infrastructure/persistence"
	"github.com/iota-uz/franchise-core/modules/tenant/services"
	"github.com/iota-uz/franchise-core/pkg/application"
)

//go:embed infrastructure/persistence/schema/tenant-schema.sql
var migrationFiles embed.FS

func NewModule() application.Module {
	return &Module{}
}

type Module struct{}

func (m *Module) Register(app application.Application) error {
	app.Migrations().RegisterSchema(&migrationFiles)

	app.RegisterServices(
		services.NewTenantService(persistence.NewTenantRepository()),
	)
	return nil
}

func (m *Module) Name() string {
	return "tenant"
}
