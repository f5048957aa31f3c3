package main

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iota-uz/franchise-core/modules"
	"github.com/iota-uz/franchise-core/pkg/application"
	"github.com/iota-uz/franchise-core/pkg/composables"
	"github.com/iota-uz/franchise-core/pkg/configuration"
	"github.com/iota-uz/franchise-core/pkg/eventbus"
)

func connectDB(ctx context.Context) (*pgxpool.Pool, error) {
	conf := configuration.Use()
	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(connectCtx, conf.Database.ConnectionString())
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "database unreachable")
	}
	return pool, nil
}

// bootstrap builds the application container with every built-in module
// registered and the pool placed in the context for the composables layer.
func bootstrap(ctx context.Context) (application.Application, context.Context, func(), error) {
	conf := configuration.Use()
	pool, err := connectDB(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	app := application.New(&application.ApplicationOptions{
		Pool:     pool,
		EventBus: eventbus.NewEventPublisher(conf.Logger()),
	})
	if err := modules.Load(app, modules.BuiltInModules...); err != nil {
		pool.Close()
		return nil, nil, nil, err
	}

	return app, composables.WithPool(ctx, pool), pool.Close, nil
}
