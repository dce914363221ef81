package database

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/glebarez/sqlite"
	"github.com/spotterhq/spotter/internal/config"
	"github.com/spotterhq/spotter/internal/model"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Manager handles database connections and operations.
type Manager struct {
	DB             *gorm.DB
	SqlDB          *sql.DB
	IsValid        bool
	Local          bool // true when running on SQLite
	SqliteFilePath string
	Logger         *slog.Logger

	// Config holds the Postgres connection and the slow query threshold
	// used for both drivers.
	Config config.DatabaseConfig
}

// NewManager creates a new database manager.
func NewManager(log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{Logger: log}
}

// Connect opens the configured database. driver is "postgres" or "sqlite".
// A Postgres connection that cannot be opened or pinged falls back to the
// SQLite file at sqlitePath.
func (m *Manager) Connect(driver, sqlitePath string) error {
	var err error
	m.SqliteFilePath = sqlitePath

	switch driver {
	case "postgres":
		m.DB, err = m.GetPostgresDB()
		if err == nil {
			m.SqlDB, err = m.DB.DB()
		}
		if err == nil {
			err = m.SqlDB.Ping()
		}
		if err != nil {
			m.Logger.Error("Failed to connect to Postgres DB, trying SQLite", "error", err)
			return m.connectSqlite(sqlitePath)
		}
		m.Logger.Info("Connected to database", "driver", driver)
		m.SqlDB.SetMaxOpenConns(10)
		m.IsValid = true
		return nil
	case "sqlite":
		return m.connectSqlite(sqlitePath)
	default:
		return fmt.Errorf("unknown database driver: %s", driver)
	}
}

func (m *Manager) connectSqlite(path string) error {
	var err error
	m.Local = true
	m.DB, err = m.GetSqliteDB(path)
	if err != nil || m.DB == nil {
		m.IsValid = false
		return fmt.Errorf("failed to get local SQLite DB: %w", err)
	}
	m.SqlDB, err = m.DB.DB()
	if err != nil {
		m.IsValid = false
		return fmt.Errorf("failed to access sql interface: %w", err)
	}
	m.IsValid = true
	return nil
}

// PostgresDSN renders cfg as a libpq keyword/value connection string.
func PostgresDSN(cfg config.DatabaseConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(`host=%s port=%s user=%s password=%s dbname=%s sslmode=%s`,
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database, sslMode)
}

// gormLogger sends GORM warnings, errors and queries slower than slow to
// the manager's slog logger.
func (m *Manager) gormLogger() logger.Interface {
	if m.Config.SlowQuery <= 0 {
		return logger.Discard
	}
	return logger.New(
		slog.NewLogLogger(m.Logger.Handler(), slog.LevelWarn),
		logger.Config{
			SlowThreshold:             m.Config.SlowQuery,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)
}

// GetPostgresDB opens the Postgres database described by m.Config.
func (m *Manager) GetPostgresDB() (*gorm.DB, error) {
	m.Logger.Debug("Connecting to Postgres DB",
		"host", m.Config.Host,
		"database", m.Config.Database)

	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  PostgresDSN(m.Config),
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		CreateBatchSize:        1000,
		Logger:                 m.gormLogger(),
	})
}

// GetSqliteDB opens the SQLite file at path. An empty path opens a shared
// in-memory database.
func (m *Manager) GetSqliteDB(path string) (*gorm.DB, error) {
	dsn := path
	if dsn == "" {
		dsn = "file::memory:?cache=shared"
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		CreateBatchSize:        500,
		Logger:                 m.gormLogger(),
	})
	if err != nil {
		m.IsValid = false
		return nil, err
	}
	if path != "" {
		m.Logger.Info("Using local SQLite DB", "path", path)
	} else {
		m.Logger.Info("Using local SQLite DB in memory")
	}

	// set PRAGMAS
	pragmas := []string{
		"PRAGMA user_version = 1;",
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA cache_size = -32000;",
		"PRAGMA temp_store = MEMORY;",
		"PRAGMA busy_timeout = 5000;",
	}

	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("error setting PRAGMA: %w", err)
		}
	}

	return db, nil
}

// Setup migrates tables.
func (m *Manager) Setup() error {
	if m.DB == nil {
		return fmt.Errorf("database not connected")
	}

	m.Logger.Info("Migrating schema")
	if err := m.DB.AutoMigrate(model.DatabaseModels...); err != nil {
		m.IsValid = false
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	m.Logger.Info("Database setup complete")
	return nil
}

// Close releases the underlying connection pool.
func (m *Manager) Close() error {
	if m.SqlDB == nil {
		return nil
	}
	return m.SqlDB.Close()
}
