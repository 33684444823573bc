package db

import (
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/production-planner/internal/domain/production"
	"github.com/yungbote/production-planner/internal/platform/envutil"
	"github.com/yungbote/production-planner/internal/platform/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Driver     string
	DSN        string
	Host       string
	Port       string
	User       string
	Password   string
	Name       string
	SQLitePath string
}

func ConfigFromEnv() Config {
	return Config{
		Driver:     strings.ToLower(envutil.String("DB_DRIVER", DriverPostgres)),
		DSN:        envutil.String("DATABASE_URL", ""),
		Host:       envutil.String("POSTGRES_HOST", "localhost"),
		Port:       envutil.String("POSTGRES_PORT", "5432"),
		User:       envutil.String("POSTGRES_USER", "postgres"),
		Password:   envutil.String("POSTGRES_PASSWORD", ""),
		Name:       envutil.String("POSTGRES_NAME", "production_planner"),
		SQLitePath: envutil.String("SQLITE_PATH", "production_planner.db"),
	}
}

type Service struct {
	db     *gorm.DB
	driver string
	log    *logger.Logger
}

func Open(cfg Config, log *logger.Logger) (*Service, error) {
	serviceLog := log.With("service", "DatabaseService")
	gcfg := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLogger.Default.LogMode(gormLogger.Warn),
	}

	var (
		conn *gorm.DB
		err  error
	)
	switch cfg.Driver {
	case DriverSQLite:
		path := cfg.SQLitePath
		if !strings.Contains(path, "?") {
			path += "?_foreign_keys=on&_busy_timeout=5000"
		}
		log.Info("Opening SQLite...", "path", cfg.SQLitePath)
		conn, err = gorm.Open(sqlite.Open(path), gcfg)
	case DriverPostgres, "":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name)
		}
		log.Info("Connecting to Postgres...", "host", cfg.Host, "database", cfg.Name)
		conn, err = gorm.Open(postgres.Open(dsn), gcfg)
		cfg.Driver = DriverPostgres
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.Driver)
	}
	if err != nil {
		log.Error("Failed to open database", "driver", cfg.Driver, "error", err)
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	return &Service{db: conn, driver: cfg.Driver, log: serviceLog}, nil
}

// AutoMigrateAll creates the production tables. Postgres also gets the
// cascading foreign keys from children to their manifest.
func (s *Service) AutoMigrateAll() error {
	s.log.Info("Auto migrating production tables...")
	err := s.db.AutoMigrate(
		&production.ProductionManifest{},
		&production.ProductionScene{},
		&production.ProductionAsset{},
		&production.ProductionJob{},
	)
	if err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	if s.driver != DriverPostgres {
		return nil
	}
	s.log.Info("Configuring foreign key relationships...")
	for _, table := range []string{"production_scene", "production_asset", "production_job"} {
		name := "fk_" + table + "_manifest_id"
		stmt := fmt.Sprintf(`
      DO $$
      BEGIN
        IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = '%[2]s') THEN
          ALTER TABLE "%[1]s"
          ADD CONSTRAINT "%[2]s"
          FOREIGN KEY ("manifest_id")
          REFERENCES "production_manifest"("id")
          ON DELETE CASCADE;
        END IF;
      END $$;`, table, name)
		if err := s.db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("add %s: %w", name, err)
		}
	}
	return nil
}

func (s *Service) DB() *gorm.DB {
	return s.db
}

func (s *Service) Driver() string {
	return s.driver
}

func (s *Service) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
