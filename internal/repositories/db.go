// Package repositories provides data access layer implementations.
// It handles all database operations and data persistence logic.
package repositories

import (
	"time"

	"disputedesk/internal/config"
	"disputedesk/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Tables lists every persisted model in migration order.
var Tables = []interface{}{
	&models.User{},
	&models.Wallet{},
	&models.Transaction{},
	&models.BalanceDelta{},
	&models.LedgerAction{},
	&models.FraudAlert{},
	&models.PreDisputeAlert{},
	&models.InstantResolution{},
	&models.DisputeCase{},
	&models.AuditEntry{},
}

// InitDB opens the Postgres connection, configures the pool and migrates the schema.
func InitDB(cfg *config.Config, log *logrus.Logger) (*gorm.DB, error) {
	db, err := Open(cfg.DSN(), log)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.DBConnMaxIdleTime)

	if err := AutoMigrate(db); err != nil {
		return nil, err
	}

	log.WithField("db", cfg.DBName).Info("PostgreSQL connected & migrations applied")
	return db, nil
}

// Open connects with a gorm logger that writes through logrus and ignores
// "record not found".
func Open(dsn string, log *logrus.Logger) (*gorm.DB, error) {
	gormLogger := logger.New(
		log,
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	return gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLogger})
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Tables...)
}

// ResetDatabase drops and recreates every table.
func ResetDatabase(db *gorm.DB) error {
	if err := db.Migrator().DropTable(Tables...); err != nil {
		return err
	}
	return AutoMigrate(db)
}
