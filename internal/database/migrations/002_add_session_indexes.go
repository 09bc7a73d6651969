package migrations

import "gorm.io/gorm"

// AddSessionIndexes adds the composite indexes used by session resolution and
// organization lookups.
func AddSessionIndexes(db *gorm.DB) error {
	indexes := []string{
		// Session resolution filters on hash and expiry together
		`CREATE INDEX IF NOT EXISTS idx_sessions_token_expiry
		 ON sessions(token_hash, expires_at)`,

		// Listing the members of an organization
		`CREATE INDEX IF NOT EXISTS idx_users_org_username
		 ON users(org_id, username)`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}

	return nil
}
