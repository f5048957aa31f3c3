package hierarchy

import (
	"embed"

	"github.com/iota-uz/franchise-core/modules/hierarchy/infrastructure/persistence"
	"github.com/iota-uz/franchise-core/modules/hierarchy/services"
	tenantservices "github.com/iota-uz/franchise-core/modules/tenant/services"
	"github.com/iota-uz/franchise-core/pkg/application"
)

//go:embed infrastructure/persistence/schema/hierarchy-schema.sql
var migrationFiles embed.FS

func NewModule() application.Module {
	return &Module{}
}

type Module struct{}

func (m *Module) Register(app application.Application) error {
	app.Migrations().RegisterSchema(&migrationFiles)

	gate := app.Service(tenantservices.TenantService{}).(*tenantservices.TenantService)
	app.RegisterServices(
		services.NewHierarchyService(persistence.NewHierarchyRepository(), gate),
	)
	return nil
}

func (m *Module) Name() string {
	return "hierarchy"
}
