package db

import (
	"os"
	"path/filepath"

	"github.com/axiomenetwork/coinflip-relayer/internal/config"
	log "github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type DatabaseManager struct {
	ledgerDb *gorm.DB
	secretDb *gorm.DB
}

func NewDatabaseManager() *DatabaseManager {
	dm := &DatabaseManager{}
	dm.initDB()
	return dm
}

func (dm *DatabaseManager) initDB() {
	dbDir := config.AppConfig.DbDir
	if err := os.MkdirAll(dbDir, os.ModePerm); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}

	ledgerPath := filepath.Join(dbDir, "ledger.db")
	ledgerDb, err := gorm.Open(sqlite.Open(ledgerPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		log.Fatalf("Failed to connect to ledger database: %v", err)
	}
	dm.ledgerDb = ledgerDb
	log.Debugf("Ledger database connected successfully, path: %s", ledgerPath)

	secretPath := filepath.Join(dbDir, "secret.db")
	secretDb, err := gorm.Open(sqlite.Open(secretPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		log.Fatalf("Failed to connect to secret database: %v", err)
	}
	dm.secretDb = secretDb
	log.Debugf("Secret database connected successfully, path: %s", secretPath)

	dm.autoMigrate()
	log.Debugf("Database migration completed successfully")
}

func (dm *DatabaseManager) autoMigrate() {
	if err := dm.ledgerDb.AutoMigrate(
		&VaultBalance{},
		&Bet{},
		&SweepEntry{},
	); err != nil {
		log.Fatalf("Failed to migrate ledger database: %v", err)
	}
	if err := dm.secretDb.AutoMigrate(
		&PendingSecret{},
	); err != nil {
		log.Fatalf("Failed to migrate secret database: %v", err)
	}
}

func (dm *DatabaseManager) GetLedgerDB() *gorm.DB {
	return dm.ledgerDb
}

func (dm *DatabaseManager) GetSecretDB() *gorm.DB {
	return dm.secretDb
}
