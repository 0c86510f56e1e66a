package repo

import (
	"context"
	"fmt"

	"quickcart/internal/config"
	"quickcart/internal/database"
)

// Store bundles the repositories of one backing store.
type Store struct {
	Products ProductRepo
	Orders   OrderRepo
	Health   database.Service
}

// Open connects the configured store and brings its schema or indexes up
// to date.
func Open(ctx context.Context, cfg *config.Config) (*Store, error) {
	switch cfg.Driver {
	case config.StoreMongo:
		db, err := database.ConnectMongo(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return nil, err
		}
		health := database.NewMongoService(db)
		if err := CreateMongoIndexes(ctx, db); err != nil {
			_ = health.Close()
			return nil, err
		}
		return &Store{
			Products: NewMongoProductRepo(db),
			Orders:   NewMongoOrderRepo(db),
			Health:   health,
		}, nil
	case config.StorePostgres:
		db, err := database.NewPostgres(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(db); err != nil {
			_ = db.Close()
			return nil, err
		}
		return &Store{
			Products: NewProductRepo(db),
			Orders:   NewOrderRepo(db),
			Health:   database.NewPostgresService(db, cfg.Postgres.Database),
		}, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
