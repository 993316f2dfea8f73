// Package datastore persists verification audit records and the gym
// location registry behind a GORM-backed store.
package datastore

import (
	"log"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/gymcheck/gymcheck-go/internal/conf"
	"github.com/gymcheck/gymcheck-go/internal/errors"
)

// Interface abstracts the underlying database implementation.
type Interface interface {
	Open() error
	Close() error

	SaveVerification(record *VerificationRecord) error
	GetVerification(id uint) (VerificationRecord, error)
	RecentVerifications(userID string, limit int) ([]VerificationRecord, error)
	CountVerificationsForDate(userID, date string) (int64, error)

	SaveLocation(location *Location) error
	GetAllLocations() ([]Location, error)
	DeleteLocation(name string) error
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB *gorm.DB
}

// SQLiteStore is the SQLite-backed store.
type SQLiteStore struct {
	DataStore
	Settings *conf.Settings
}

// New creates a store from settings. SQLite is the only backend.
func New(settings *conf.Settings) Interface {
	return &SQLiteStore{Settings: settings}
}

// Open sets up the SQLite database connection and runs migrations.
func (store *SQLiteStore) Open() error {
	path := store.Settings.Database.Path
	if path == "" {
		path = "gymcheck.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.New(err).
				Component("datastore").
				Category(errors.CategoryDatabase).
				Context("path", path).
				Build()
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: createGormLogger()})
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("path", path).
			Build()
	}

	store.DB = db
	return performAutoMigration(db, store.Settings.Debug, path)
}

// Close releases the underlying connection pool.
func (store *SQLiteStore) Close() error {
	if store.DB == nil {
		return nil
	}
	sqlDB, err := store.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveVerification inserts one audit record.
func (ds *DataStore) SaveVerification(record *VerificationRecord) error {
	if err := ds.DB.Create(record).Error; err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return nil
}

// GetVerification fetches one audit record by id.
func (ds *DataStore) GetVerification(id uint) (VerificationRecord, error) {
	var record VerificationRecord
	err := ds.DB.First(&record, id).Error
	return record, err
}

// RecentVerifications returns a user's latest attempts, newest first.
func (ds *DataStore) RecentVerifications(userID string, limit int) ([]VerificationRecord, error) {
	var records []VerificationRecord
	err := ds.DB.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

// CountVerificationsForDate counts a user's attempts on one calendar day.
func (ds *DataStore) CountVerificationsForDate(userID, date string) (int64, error) {
	var count int64
	err := ds.DB.Model(&VerificationRecord{}).
		Where("user_id = ? AND date = ?", userID, date).
		Count(&count).Error
	return count, err
}

// SaveLocation inserts or updates a registered gym by name.
func (ds *DataStore) SaveLocation(location *Location) error {
	var existing Location
	err := ds.DB.Where("name = ?", location.Name).First(&existing).Error
	switch {
	case err == nil:
		location.ID = existing.ID
		location.CreatedAt = existing.CreatedAt
		return ds.DB.Save(location).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ds.DB.Create(location).Error
	default:
		return err
	}
}

// GetAllLocations returns the full location registry.
func (ds *DataStore) GetAllLocations() ([]Location, error) {
	var locations []Location
	err := ds.DB.Order("name ASC").Find(&locations).Error
	return locations, err
}

// DeleteLocation removes a registered gym by name.
func (ds *DataStore) DeleteLocation(name string) error {
	return ds.DB.Where("name = ?", name).Delete(&Location{}).Error
}

// performAutoMigration automates database migrations with error handling.
func performAutoMigration(db *gorm.DB, debug bool, connectionInfo string) error {
	if err := db.AutoMigrate(&VerificationRecord{}, &Location{}); err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("path", connectionInfo).
			Build()
	}

	if debug {
		log.Printf("SQLite database connection initialized: %s", connectionInfo)
	}

	return nil
}

// createGormLogger configures and returns a new GORM logger instance.
func createGormLogger() gormlogger.Interface {
	return gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold: 200 * time.Millisecond,
			LogLevel:      gormlogger.Warn,
			Colorful:      false,
		},
	)
}
