// Package persistence is the sqlite-backed store for the `users` table of
// spec §6, built the way the teacher's
// internal/pkg/infrastructure/repositories/database package opens and
// migrates a gorm connection: a ConnectorFunc injected into a constructor
// that AutoMigrates and returns a narrow Datastore interface.
package persistence

import (
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

//go:generate moq -rm -out users_mock.go . Datastore

// UserRecord is the gorm model for the `users` table: chat PK, name, hash,
// clientToken, accessToken, refreshToken, tokenExpire, timestamp, all hex
// encoded in the application layer before being stored as text here.
type UserRecord struct {
	Chat         int64 `gorm:"primaryKey"`
	Name         string `gorm:"uniqueIndex"`
	Hash         string
	ClientToken  string
	AccessToken  string
	RefreshToken string
	TokenExpire  int64
	Timestamp    time.Time
}

func (UserRecord) TableName() string { return "users" }

// Datastore is the persistence contract the user manager depends on. It
// knows nothing about tokens, ciphers, or the OAuth flow; it only
// round-trips UserRecord rows.
type Datastore interface {
	LoadUsers() ([]UserRecord, error)
	SaveUser(u UserRecord) error
	DeleteUser(chat int64) error
}

type store struct {
	db *gorm.DB
}

// ConnectorFunc is injected into NewDatabaseConnection, mirroring the
// teacher's database.ConnectorFunc split between "how to open" and "what to
// do once opened".
type ConnectorFunc func() (*gorm.DB, error)

// NewSQLiteConnector opens the on-disk sqlite file used for the bridge's
// users table. Unlike the teacher's device catalog (which also supports
// postgres for multi-instance deployments) this table is small and
// single-writer, so only the sqlite path is carried forward; see DESIGN.md
// for why the postgres driver was dropped.
func NewSQLiteConnector(path string, log zerolog.Logger) ConnectorFunc {
	return func() (*gorm.DB, error) {
		db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}

		db.Exec("PRAGMA foreign_keys = ON")
		sqldb, err := db.DB()
		if err == nil {
			sqldb.SetMaxOpenConns(1)
		}

		return db, nil
	}
}

// NewDatabaseConnection opens the connection via connect and migrates the
// users table.
func NewDatabaseConnection(connect ConnectorFunc) (Datastore, error) {
	db, err := connect()
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&UserRecord{}); err != nil {
		return nil, err
	}

	return &store{db: db}, nil
}

func (s *store) LoadUsers() ([]UserRecord, error) {
	var rows []UserRecord
	err := s.db.Find(&rows).Error
	return rows, err
}

func (s *store) SaveUser(u UserRecord) error {
	u.Timestamp = time.Now().UTC()
	return s.db.Save(&u).Error
}

func (s *store) DeleteUser(chat int64) error {
	return s.db.Delete(&UserRecord{}, "chat = ?", chat).Error
}
