package permission

import (
	"embed"

	hierarchyservices "github.com/iota-uz/franchise-core/modules/hierarchy/services"
	"github.com/iota-uz/franchise-core/modules/permission/infrastructure/persistence"
	"github.com/iota-uz/franchise-core/modules/permission/services"
	"github.com/iota-uz/franchise-core/pkg/application"
	"github.com/iota-uz/franchise-core/pkg/configuration"
)

//go:embed infrastructure/persistence/schema/permission-schema.sql
var migrationFiles embed.FS

func NewModule() application.Module {
	return &Module{}
}

type Module struct{}

func (m *Module) Register(app application.Application) error {
	app.Migrations().RegisterSchema(&migrationFiles)

	conf := configuration.Use()
	implication := services.DefaultImplicationTable()
	if path := conf.Permission.ImplicationTablePath; path != "" {
		loaded, err := services.LoadImplicationTable(path)
		if err != nil {
			return err
		}
		implication = loaded
	}

	hierarchySvc := app.Service(hierarchyservices.HierarchyService{}).(*hierarchyservices.HierarchyService)
	permissionSvc := services.NewPermissionService(
		persistence.NewGrantRepository(),
		hierarchySvc,
		implication,
	)

	app.RegisterServices(
		permissionSvc,
		services.NewNodeAccessChecker(permissionSvc),
	)
	return nil
}

func (m *Module) Name() string {
	return "permission"
}
