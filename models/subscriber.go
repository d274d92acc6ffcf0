package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Subscriber is a digest recipient managed through the web front end
type Subscriber struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	Preferences  *string   `json:"preferences"` // raw option string, e.g. "Ethereum Classic Solana Classic"
	Unsubscribed bool      `gorm:"default:false" json:"unsubscribed"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// BeforeSave normalizes the email address
func (s *Subscriber) BeforeSave(tx *gorm.DB) error {
	s.Email = strings.ToLower(strings.TrimSpace(s.Email))
	return nil
}

// Preference converts the row into the value the report builder consumes
func (s Subscriber) Preference() UserPreference {
	return UserPreference{
		Email:        s.Email,
		RawOptions:   s.Preferences,
		Unsubscribed: s.Unsubscribed,
	}
}

// MigrateSubscriberModels creates the roster table
func MigrateSubscriberModels(db *gorm.DB) error {
	return db.AutoMigrate(&Subscriber{})
}
