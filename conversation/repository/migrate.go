package repository

import (
	"provider-messaging/backend/conversation/models"

	"gorm.io/gorm"
)

// Migrate creates or updates the conversation and message tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&models.Conversation{}, &models.Message{})
}
