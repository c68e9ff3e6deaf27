package repository

import "gorm.io/gorm"

// Migrate creates or updates the schema for every table the
// repositories touch. Used at startup and by the test harness.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&userModel{},
		&bookingModel{},
		&groupRequestModel{},
		&notificationModel{},
	)
}
