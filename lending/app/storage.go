package app

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Astemirdum/lending-service/lending/config"
	"github.com/Astemirdum/lending-service/lending/internal/model"
	"github.com/Astemirdum/lending-service/lending/internal/repository"
	"github.com/Astemirdum/lending-service/lending/migrations"
	"github.com/Astemirdum/lending-service/pkg/boltdb"
	"github.com/Astemirdum/lending-service/pkg/postgres"
)

type storage struct {
	repo      repository.Repository
	members   repository.ResourceStore[model.Member]
	students  repository.ResourceStore[model.Student]
	employees repository.ResourceStore[model.Employee]
}

func openStorage(ctx context.Context, cfg *config.Config, log *zap.Logger) (*storage, error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		db, err := postgres.NewPostgresDB(ctx, &cfg.Database, migrations.MigrationFiles)
		if err != nil {
			return nil, errors.Wrap(err, "db init")
		}
		return &storage{
			repo:      repository.NewPostgresRepository(db, log),
			members:   repository.NewPostgresResourceStore[model.Member](db, repository.KindMember, log),
			students:  repository.NewPostgresResourceStore[model.Student](db, repository.KindStudent, log),
			employees: repository.NewPostgresResourceStore[model.Employee](db, repository.KindEmployee, log),
		}, nil
	case config.DriverBolt:
		client, err := boltdb.NewBoltDB(cfg.Bolt, repository.BoltBuckets...)
		if err != nil {
			return nil, errors.Wrap(err, "bolt init")
		}
		return &storage{
			repo:      repository.NewBoltRepository(client, log),
			members:   repository.NewBoltResourceStore[model.Member](client, repository.KindMember),
			students:  repository.NewBoltResourceStore[model.Student](client, repository.KindStudent),
			employees: repository.NewBoltResourceStore[model.Employee](client, repository.KindEmployee),
		}, nil
	}
	return nil, errors.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}
