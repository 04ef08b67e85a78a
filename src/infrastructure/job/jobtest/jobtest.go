// Package jobtest provides a file-backed job store for tests.
package jobtest

import (
	"context"
	"path/filepath"
	"testing"

	"gorm.io/gorm"

	"jobrunner/src/infrastructure/config"
	"jobrunner/src/infrastructure/database"
	"jobrunner/src/infrastructure/job"
)

// OpenDB opens a sqlite database at path and closes it on cleanup.
func OpenDB(t testing.TB, path string) *gorm.DB {
	t.Helper()

	db, err := database.Open(config.StoreConfig{Driver: config.DriverSQLite, Path: path}, config.PostgresConfig{})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close(db)
	})
	return db
}

// NewRepository returns a repository over a fresh database in t.TempDir().
func NewRepository(t testing.TB) *job.GormJobRepository {
	t.Helper()
	return NewRepositoryAt(t, filepath.Join(t.TempDir(), "jobs.db"))
}

// NewRepositoryAt returns a migrated repository over the database at path.
func NewRepositoryAt(t testing.TB, path string) *job.GormJobRepository {
	t.Helper()

	repo, err := job.NewGormJobRepository(OpenDB(t, path), 1)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	if err := repo.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return repo
}
