package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/production-planner/internal/data/repos/production"
	"github.com/yungbote/production-planner/internal/data/repos/testutil"
	"github.com/yungbote/production-planner/internal/platform/dbctx"
	"github.com/yungbote/production-planner/internal/platform/logger"
)

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("SQLITE_PATH", "/tmp/x.db")
	cfg := ConfigFromEnv()
	if cfg.Driver != DriverSQLite || cfg.SQLitePath != "/tmp/x.db" {
		t.Fatalf("config: driver=%q path=%q", cfg.Driver, cfg.SQLitePath)
	}
	if cfg.Host != "localhost" || cfg.Port != "5432" {
		t.Fatalf("postgres defaults: host=%q port=%q", cfg.Host, cfg.Port)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(Config{Driver: "oracle"}, logger.Nop()); err == nil {
		t.Fatalf("want error for unknown driver")
	}
}

func TestSQLiteRoundTrip(t *testing.T) {
	svc, err := Open(Config{Driver: DriverSQLite, SQLitePath: filepath.Join(t.TempDir(), "planner.db")}, logger.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer svc.Close()
	if err := svc.AutoMigrateAll(); err != nil {
		t.Fatalf("AutoMigrateAll: %v", err)
	}

	gw := production.NewGormGateway(svc.DB(), logger.Nop())
	dbc := dbctx.From(context.Background())
	m := testutil.Manifest(uuid.New(), 10, 10)
	if _, err := gw.CreateManifest(dbc, m); err != nil {
		t.Fatalf("CreateManifest: %v", err)
	}
	got, err := gw.GetManifest(dbc, m.ID)
	if err != nil {
		t.Fatalf("GetManifest: %v", err)
	}
	if len(got.Scenes) != 2 || len(got.Jobs) != 5 || got.Scenes[0].PrimaryAssets[0] != m.Assets[0].ID {
		t.Fatalf("round trip: scenes=%d jobs=%d", len(got.Scenes), len(got.Jobs))
	}
	if err := gw.DeleteManifest(dbc, m.ID); err != nil {
		t.Fatalf("DeleteManifest: %v", err)
	}
	if jobs, _ := gw.GetJobs(dbc, m.ID); len(jobs) != 0 {
		t.Fatalf("jobs survived delete")
	}
}
