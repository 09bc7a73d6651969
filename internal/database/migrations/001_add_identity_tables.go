package migrations

import (
	"github.com/ksred/tradejournal/internal/auth"
	"gorm.io/gorm"
)

// AddIdentityTables creates the users and sessions tables
func AddIdentityTables(db *gorm.DB) error {
	if err := db.AutoMigrate(&auth.UserRecord{}); err != nil {
		return err
	}

	if err := db.AutoMigrate(&auth.SessionRecord{}); err != nil {
		return err
	}

	return nil
}
