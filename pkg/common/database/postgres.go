package database

import (
	"fmt"

	"github.com/synaptica-ai/patientpy/pkg/common/config"
	"github.com/synaptica-ai/patientpy/pkg/common/logger"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open connects to the clinical source database named by cfg.SourceDriver.
func Open(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.SourceDriver {
	case "postgres", "":
		dialector = postgres.Open(PostgresDSN(cfg))
	case "sqlite":
		if cfg.SourceDSN == "" {
			return nil, fmt.Errorf("SOURCE_DSN is required for the sqlite driver")
		}
		dialector = sqlite.Open(cfg.SourceDSN)
	default:
		return nil, fmt.Errorf("unsupported source driver %q", cfg.SourceDriver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		logger.Log.WithError(err).WithField("driver", cfg.SourceDriver).Error("Failed to connect to source database")
		return nil, err
	}

	logger.Log.WithField("driver", cfg.SourceDriver).Info("Connected to source database")
	return db, nil
}

// PostgresDSN returns SOURCE_DSN when set, otherwise a DSN built from the POSTGRES_* settings.
func PostgresDSN(cfg *config.Config) string {
	if cfg.SourceDSN != "" {
		return cfg.SourceDSN
	}
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		cfg.PostgresHost,
		cfg.PostgresUser,
		cfg.PostgresPassword,
		cfg.PostgresDB,
		cfg.PostgresPort,
		cfg.PostgresSSLMode,
	)
}

func Close(db *gorm.DB) error {
	if db != nil {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}
