// Package database opens the gorm connection backing the job store.
package database

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"jobrunner/src/infrastructure/config"
)

// sqlite serializes writers at the file level; busy_timeout makes concurrent
// writers wait instead of failing with SQLITE_BUSY.
const sqlitePragmas = "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"

// Open connects to the store selected by cfg.Driver.
func Open(store config.StoreConfig, pg config.PostgresConfig) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	switch store.Driver {
	case config.DriverSQLite:
		db, err := gorm.Open(sqlite.Open(store.Path+sqlitePragmas), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store %s: %w", store.Path, err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get underlying *sql.DB: %w", err)
		}
		// One connection keeps every statement on the same serialized writer.
		sqlDB.SetMaxOpenConns(1)
		return db, nil
	case config.DriverPostgres:
		db, err := gorm.Open(postgres.Open(pg.DSN()), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", store.Driver)
	}
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying *sql.DB: %w", err)
	}
	return sqlDB.Close()
}
