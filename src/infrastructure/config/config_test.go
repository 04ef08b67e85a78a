package config_test

import (
	"testing"
	"time"

	"github.com/spf13/viper"

	"jobrunner/src/infrastructure/config"
)

func TestLoadDefaults(t *testing.T) {
	v := viper.New()
	config.SetDefaults(v)

	cfg, err := config.Load(v)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.PoolSize != 4 {
		t.Errorf("PoolSize = %d, want 4", cfg.PoolSize)
	}
	if cfg.Store.Driver != config.DriverSQLite {
		t.Errorf("Store.Driver = %q, want %q", cfg.Store.Driver, config.DriverSQLite)
	}
	if cfg.Store.Path != "jobs.db" {
		t.Errorf("Store.Path = %q, want %q", cfg.Store.Path, "jobs.db")
	}
	if cfg.Server.ShutdownTimeout != 5*time.Second {
		t.Errorf("Server.ShutdownTimeout = %v, want 5s", cfg.Server.ShutdownTimeout)
	}
	if cfg.Worker.StopTimeout != 0 {
		t.Errorf("Worker.StopTimeout = %v, want 0", cfg.Worker.StopTimeout)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("POOL_SIZE", "8")
	t.Setenv("STORE_PATH", "/tmp/other.db")
	t.Setenv("WORKER_JOB_TIMEOUT", "1500ms")

	v := viper.New()
	config.SetDefaults(v)

	cfg, err := config.Load(v)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.PoolSize != 8 {
		t.Errorf("PoolSize = %d, want 8", cfg.PoolSize)
	}
	if cfg.Store.Path != "/tmp/other.db" {
		t.Errorf("Store.Path = %q, want /tmp/other.db", cfg.Store.Path)
	}
	if cfg.Worker.JobTimeout != 1500*time.Millisecond {
		t.Errorf("Worker.JobTimeout = %v, want 1.5s", cfg.Worker.JobTimeout)
	}
}

func TestValidate(t *testing.T) {
	valid := func() config.Config {
		return config.Config{
			PoolSize: 2,
			Store:    config.StoreConfig{Driver: config.DriverSQLite, Path: "jobs.db", NodeID: 1},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *config.Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *config.Config) {}},
		{name: "zero pool", mutate: func(c *config.Config) { c.PoolSize = 0 }, wantErr: true},
		{name: "unknown driver", mutate: func(c *config.Config) { c.Store.Driver = "mysql" }, wantErr: true},
		{name: "sqlite without path", mutate: func(c *config.Config) { c.Store.Path = "" }, wantErr: true},
		{name: "postgres without path", mutate: func(c *config.Config) {
			c.Store.Driver = config.DriverPostgres
			c.Store.Path = ""
		}},
		{name: "node id out of range", mutate: func(c *config.Config) { c.Store.NodeID = 2048 }, wantErr: true},
		{name: "negative timeout", mutate: func(c *config.Config) { c.Worker.JobTimeout = -time.Second }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
