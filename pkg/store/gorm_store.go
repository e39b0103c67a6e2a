package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"carbonq/pkg/domain"
)

const migrateLockID int64 = 82278227

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations under an advisory lock
// so concurrent service starts do not race the schema.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&UserModel{}, &QueryModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// SaveUser registers or updates a user.
func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "password_hash", "status", "updated_at"}),
	}).Create(&model).Error
}

// HasUserEmail checks if email exists.
func (s *GormStore) HasUserEmail(email string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// AppendQuery durably records one delivered query event.
func (s *GormStore) AppendQuery(record domain.QueryRecord) error {
	model := queryToModel(record)
	return s.db.Create(&model).Error
}

// ListQueriesByUser returns every record of a user, newest first.
func (s *GormStore) ListQueriesByUser(userID string) ([]domain.QueryRecord, error) {
	return s.listQueries("user_id = ?", userID)
}

// ListQueriesSince returns a user's records newer than since, newest first.
func (s *GormStore) ListQueriesSince(userID string, since time.Time) ([]domain.QueryRecord, error) {
	return s.listQueries("user_id = ? AND created_at >= ?", userID, since.UTC())
}

// ListRecentQueries returns a user's N most recent records, newest first.
func (s *GormStore) ListRecentQueries(userID string, limit int) ([]domain.QueryRecord, error) {
	if limit <= 0 {
		return []domain.QueryRecord{}, nil
	}
	var models []QueryModel
	if err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	return queriesFromModels(models), nil
}

func (s *GormStore) listQueries(cond string, args ...any) ([]domain.QueryRecord, error) {
	var models []QueryModel
	if err := s.db.Where(cond, args...).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	return queriesFromModels(models), nil
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Status:       string(u.Status),
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	status := domain.UserStatus(m.Status)
	if status == "" {
		status = domain.StatusActive
	}
	return domain.User{
		ID:           m.ID,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Status:       status,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func queryToModel(r domain.QueryRecord) QueryModel {
	var meta datatypes.JSON
	if len(r.Metadata) > 0 {
		raw, err := json.Marshal(r.Metadata)
		if err == nil {
			meta = datatypes.JSON(raw)
		}
	}
	return QueryModel{
		ID:          r.ID,
		UserID:      r.UserID,
		Platform:    string(r.Platform),
		CarbonGrams: r.CarbonGrams,
		Metadata:    meta,
		CreatedAt:   r.CreatedAt,
	}
}

func queryFromModel(m QueryModel) domain.QueryRecord {
	var meta map[string]string
	if len(m.Metadata) > 0 {
		_ = json.Unmarshal(m.Metadata, &meta)
	}
	return domain.QueryRecord{
		ID:          m.ID,
		UserID:      m.UserID,
		Platform:    domain.Platform(m.Platform),
		CarbonGrams: m.CarbonGrams,
		Metadata:    meta,
		CreatedAt:   m.CreatedAt,
	}
}

func queriesFromModels(models []QueryModel) []domain.QueryRecord {
	records := make([]domain.QueryRecord, 0, len(models))
	for _, m := range models {
		records = append(records, queryFromModel(m))
	}
	return records
}
