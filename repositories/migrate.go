package repositories

import "gorm.io/gorm"

// AutoMigrate creates or updates all tables owned by the conversation core.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&roomRecord{},
		&attendeeRecord{},
		&appConfigRecord{},
	)
}
