package repository

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"wgd/internal/logging"
	"wgd/internal/model"
)

// sqliteParams make every transaction take the write lock up front and wait
// for a competing writer instead of failing with SQLITE_BUSY.
const sqliteParams = "_busy_timeout=5000&_txlock=immediate&_foreign_keys=1"

// NewDB opens the SQLite database, runs migrations and verifies the schema
// version. A version mismatch returns *SchemaMismatchError.
func NewDB(dsn string, log zerolog.Logger) (*gorm.DB, error) {
	if dsn == "" {
		dsn = "wgd.sqlite"
	}

	if err := ensureDirForSQLite(dsn); err != nil {
		return nil, err
	}

	dbLogger := logger.New(
		logging.GormWriter{Log: logging.Component(log, "store")},
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(sqlite.Open(withParams(dsn)), &gorm.Config{
		Logger:  dbLogger,
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One connection serializes every transaction in this process.
	sqlDB.SetMaxOpenConns(1)

	// An existing database with a foreign schema is rejected before any
	// migration touches it.
	if db.Migrator().HasTable(&model.SchemaDatum{}) {
		found, err := SchemaVersion(db)
		if err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("read schema version: %w", err)
		}
		if found != "" && found != model.CurrentSchemaVersion {
			_ = sqlDB.Close()
			return nil, &SchemaMismatchError{Found: found, Want: model.CurrentSchemaVersion}
		}
	}

	if err := db.AutoMigrate(&model.User{}, &model.Task{}, &model.TaskParticipation{}, &model.Reminder{}, &model.SchemaDatum{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate db: %w", err)
	}

	if err := checkSchemaVersion(db); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	return db, nil
}

func checkSchemaVersion(db *gorm.DB) error {
	datum := model.SchemaDatum{Key: model.SchemaVersionKey}
	err := db.Where(model.SchemaDatum{Key: model.SchemaVersionKey}).
		Attrs(model.SchemaDatum{Value: model.CurrentSchemaVersion}).
		FirstOrCreate(&datum).Error
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if datum.Value != model.CurrentSchemaVersion {
		return &SchemaMismatchError{Found: datum.Value, Want: model.CurrentSchemaVersion}
	}
	return nil
}

// SchemaVersion returns the stored schema marker.
func SchemaVersion(db *gorm.DB) (string, error) {
	var datum model.SchemaDatum
	if err := db.Where(model.SchemaDatum{Key: model.SchemaVersionKey}).First(&datum).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return datum.Value, nil
}

func withParams(dsn string) string {
	if strings.Contains(dsn, "_txlock=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&" + sqliteParams
	}
	return dsn + "?" + sqliteParams
}

// ensureDirForSQLite creates parent dir for SQLite file if needed.
func ensureDirForSQLite(dsn string) error {
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		return nil
	}
	clean := strings.TrimPrefix(dsn, "file:")
	clean = strings.Split(clean, "?")[0]
	dir := filepath.Dir(clean)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create db dir %q: %w", dir, err)
	}
	return nil
}
