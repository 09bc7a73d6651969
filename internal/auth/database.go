package auth

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateUser(ctx context.Context, user *UserRecord) error {
	return d.db.WithContext(ctx).Create(user).Error
}

func (d *Database) UsernameExists(ctx context.Context, username string) (bool, error) {
	var count int64
	err := d.db.WithContext(ctx).Unscoped().Model(&UserRecord{}).
		Where("username = ?", username).
		Count(&count).Error
	return count > 0, err
}

func (d *Database) GetUserByUsername(ctx context.Context, username string) (*UserRecord, error) {
	var user UserRecord
	if err := d.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (d *Database) GetUserByID(ctx context.Context, userID string) (*UserRecord, error) {
	var user UserRecord
	if err := d.db.WithContext(ctx).Where("user_id = ?", userID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (d *Database) UpdateUser(ctx context.Context, user *UserRecord) error {
	return d.db.WithContext(ctx).Save(user).Error
}

func (d *Database) TouchLastLogin(ctx context.Context, userID string, at time.Time) error {
	return d.db.WithContext(ctx).Model(&UserRecord{}).
		Where("user_id = ?", userID).
		Update("last_login_at", at).Error
}

func (d *Database) CreateSession(ctx context.Context, session *SessionRecord) error {
	return d.db.WithContext(ctx).Create(session).Error
}

// GetUserBySessionHash resolves a live session to its user in one query.
func (d *Database) GetUserBySessionHash(ctx context.Context, tokenHash string, now time.Time) (*UserRecord, error) {
	var user UserRecord
	err := d.db.WithContext(ctx).
		Joins("JOIN sessions ON sessions.user_id = users.user_id").
		Where("sessions.token_hash = ? AND sessions.expires_at > ?", tokenHash, now).
		First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (d *Database) DeleteSessionByHash(ctx context.Context, tokenHash string) error {
	return d.db.WithContext(ctx).Where("token_hash = ?", tokenHash).Delete(&SessionRecord{}).Error
}

// DeleteExpiredSessions removes every session that expired before now and
// returns how many were removed.
func (d *Database) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	result := d.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&SessionRecord{})
	return result.RowsAffected, result.Error
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
