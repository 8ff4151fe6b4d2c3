package db

import (
	"log"
	"time"

	"bridge-backend/internal/config"
	"bridge-backend/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// InitDB connects to postgres and migrates the bridge schema.
func InitDB() {
	var err error

	if config.AppConfig == nil || config.AppConfig.Database.DSN == "" {
		log.Fatalf("Database DSN is required")
	}

	dsn := config.AppConfig.Database.DSN

	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		SkipDefaultTransaction:                   true,
		PrepareStmt:                              true,
		Logger:                                   logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		log.Fatalf("Failed to get sql.DB handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	log.Println("✅ Database connected successfully")

	// Transition history is append-only; AutoMigrate only ever adds columns.
	if err := DB.AutoMigrate(
		&models.BridgeTransaction{},
		&models.StateTransition{},
	); err != nil {
		log.Fatalf("AutoMigrate failed: %v", err)
	}

	log.Println("✅ Database schema migrated successfully")
}
