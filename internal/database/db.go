package database

import (
	"fmt"
	"time"

	"github.com/acme/enrollment/internal/config"
	"github.com/acme/enrollment/internal/models"

	charmlog "github.com/charmbracelet/log"
	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open connects to the configured store and creates the schema if absent.
func Open(cfg *config.Config, log *charmlog.Logger) (*gorm.DB, error) {
	gcfg := &gorm.Config{
		TranslateError: true,
		Logger: gormlogger.New(
			log.StandardLog(charmlog.StandardLogOptions{ForceLevel: charmlog.WarnLevel}),
			gormlogger.Config{
				SlowThreshold:             200 * time.Millisecond,
				LogLevel:                  gormlogger.Warn,
				IgnoreRecordNotFoundError: true,
			},
		),
	}

	var (
		db  *gorm.DB
		err error
	)
	switch cfg.DBDriver {
	case config.DriverSQLite:
		db, err = OpenSQLite(cfg.DBDSN, gcfg)
	default:
		db, err = openPostgres(cfg.DBDSN, gcfg, log)
	}
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func openPostgres(dsn string, gcfg *gorm.Config, log *charmlog.Logger) (*gorm.DB, error) {
	const maxAttempts = 10

	var (
		db  *gorm.DB
		err error
	)
	for i := 1; i <= maxAttempts; i++ {
		log.Info("connecting to database", "attempt", i, "max", maxAttempts)

		db, err = gorm.Open(postgres.Open(dsn), gcfg)
		if err == nil {
			log.Info("connected to database")
			return db, nil
		}

		log.Warn("database connection failed", "err", err)
		time.Sleep(2 * time.Second)
	}
	return nil, fmt.Errorf("connect to postgres after %d attempts: %w", maxAttempts, err)
}

// OpenSQLite opens an embedded database. The pool is pinned to a single
// connection: it keeps ":memory:" databases alive and serializes writers,
// which is what makes the enrollment capacity check atomic on SQLite.
func OpenSQLite(dsn string, gcfg *gorm.Config) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), gcfg)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(0)

	for _, pragma := range []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000"} {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("sqlite %q: %w", pragma, err)
		}
	}
	return db, nil
}

// Migrate creates the three tables, their foreign keys and the
// (student_id, course_id) unique index.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Course{},
		&models.Enrollment{},
	); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
