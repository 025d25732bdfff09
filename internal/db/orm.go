package db

import (
	"github.com/pkg/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"terminal-telemetry/internal/model"
)

// DB wraps the sqlite connection shared by the registry and entity stores.
type DB struct {
	ORM *gorm.DB
}

// Open opens the SQLite database using GORM and runs migrations.
func Open(path string) (*DB, error) {
	g, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open database %s", path)
	}
	if err := migrate(g); err != nil {
		_ = closeORM(g)
		return nil, err
	}
	return &DB{ORM: g}, nil
}

func (d *DB) Close() error { return closeORM(d.ORM) }

// migrate ensures the schema for all models exists.
func migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&model.SlaveDevice{},
		&model.RegisterMapping{},
		&model.StorageTank{},
		&model.TankReading{},
		&model.LoadingArm{},
		&model.Weighbridge{},
		&model.Order{},
	)
	return errors.Wrap(err, "migrate schema")
}

func closeORM(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
