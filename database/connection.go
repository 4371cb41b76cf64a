// database/connection.go
package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/gewnthar/parkalerts/config"
	"github.com/gewnthar/parkalerts/logging"
	"github.com/gewnthar/parkalerts/models"
)

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = errors.New("record not found")

const slowQueryThreshold = 500 * time.Millisecond

// Store owns the connection pool for the four tables the service persists.
type Store struct {
	db     *gorm.DB
	driver string
	logger *slog.Logger
}

// Open connects to the configured engine and migrates the schema.
func Open(cfg config.DatabaseConfig) (*Store, error) {
	logger := logging.ForService("database")

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(sqliteDSN(cfg.Path))
	case "mysql":
		dialector = mysql.Open(mysqlDSN(cfg))
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logging.NewGormAdapter(logger, slowQueryThreshold, cfg.Debug),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	if cfg.Driver == "mysql" {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(25)
		sqlDB.SetConnMaxLifetime(5 * time.Minute)
	}

	store := &Store{db: db, driver: cfg.Driver, logger: logger}
	if err := store.migrate(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	logger.Info("database ready", "driver", cfg.Driver)
	return store, nil
}

// sqliteDSN enables WAL so the read API is not blocked by a sync transaction.
func sqliteDSN(path string) string {
	return fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON", path)
}

func mysqlDSN(cfg config.DatabaseConfig) string {
	port := cfg.Port
	if port == "" {
		port = "3306"
	}
	mc := mysqldriver.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, port)
	mc.DBName = cfg.DBName
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.Params = map[string]string{"charset": "utf8mb4"}
	return mc.FormatDSN()
}

func (s *Store) migrate() error {
	err := s.db.AutoMigrate(
		&models.Reserve{},
		&models.ParkMapping{},
		&models.Alert{},
		&models.SyncRun{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Ping verifies the connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	s.logger.Info("database connection closed")
	return nil
}

// Driver returns the configured engine name.
func (s *Store) Driver() string {
	return s.driver
}

// DB exposes the underlying handle for maintenance tasks and tests.
func (s *Store) DB() *gorm.DB {
	return s.db
}
