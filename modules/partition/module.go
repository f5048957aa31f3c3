package partition

import (
	"embed"

	"github.com/iota-uz/franchise-core/modules/partition/infrastructure/persistence"
	"github.com/iota-uz/franchise-core/modules/partition/services"
	"github.com/iota-uz/franchise-core/pkg/application"
)

//go:embed infrastructure/persistence/schema/partition-schema.sql
var migrationFiles embed.FS

func NewModule() application.Module {
	return &Module{}
}

type Module struct{}

func (m *Module) Register(app application.Application) error {
	app.Migrations().RegisterSchema(&migrationFiles)

	app.RegisterServices(
		services.NewPartitionService(persistence.NewPartitionRepository()),
	)
	return nil
}

func (m *Module) Name() string {
	return "partition"
}
