package aggregation

import (
	"embed"

	domaincache "github.com/iota-uz/franchise-core/modules/aggregation/domain/cache"
	"github.com/iota-uz/franchise-core/modules/aggregation/infrastructure/cache"
	"github.com/iota-uz/franchise-core/modules/aggregation/infrastructure/persistence"
	"github.com/iota-uz/franchise-core/modules/aggregation/services"
	permissionservices "github.com/iota-uz/franchise-core/modules/permission/services"
	tenantservices "github.com/iota-uz/franchise-core/modules/tenant/services"
	"github.com/iota-uz/franchise-core/pkg/application"
	"github.com/iota-uz/franchise-core/pkg/configuration"
)

//go:embed infrastructure/persistence/schema/aggregation-schema.sql
var migrationFiles embed.FS

func NewModule() application.Module {
	return &Module{}
}

type Module struct{}

func (m *Module) Register(app application.Application) error {
	app.Migrations().RegisterSchema(&migrationFiles)

	conf := configuration.Use()
	var resultCache domaincache.Cache
	if conf.Aggregation.CacheBackend == "redis" {
		redisCache, err := cache.NewRedisCacheFromURL(conf.RedisURL)
		if err != nil {
			return err
		}
		resultCache = redisCache
	} else {
		resultCache = cache.NewMemoryCache()
	}

	checker := app.Service(permissionservices.NodeAccessChecker{}).(*permissionservices.NodeAccessChecker)
	gate := app.Service(tenantservices.TenantService{}).(*tenantservices.TenantService)

	metricRepo := persistence.NewMetricRepository()
	aggregationSvc := services.NewAggregationService(
		metricRepo,
		metricRepo,
		persistence.NewJobRepository(),
		resultCache,
		checker,
		gate,
		app.EventPublisher(),
		conf.Aggregation.CachePrefix,
		conf.Aggregation.CacheTTL,
		conf.Aggregation.FetchTimeout,
	)
	app.EventPublisher().Subscribe(aggregationSvc.OnRecordsWritten)

	app.RegisterServices(aggregationSvc)
	return nil
}

func (m *Module) Name() string {
	return "aggregation"
}
