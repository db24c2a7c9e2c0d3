package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/roadwatch/roadwatch/internal/models"
)

// schema lists the tables owned by the notification service, referenced tables first.
var schema = []any{
	&models.User{},
	&models.Notification{},
}

// AutoMigrate creates or updates the schema for the notification subsystem.
func AutoMigrate(db *gorm.DB) error {
	for _, model := range schema {
		if err := db.AutoMigrate(model); err != nil {
			return fmt.Errorf("database: migrate %T: %w", model, err)
		}
	}
	return nil
}
