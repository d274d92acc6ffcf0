package roster

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"price_digest/models"
)

// Roster lists the digest recipients
type Roster interface {
	Users(ctx context.Context) ([]models.UserPreference, error)
}

// RosterError means the subscriber list could not be read. No digest can be built without it.
type RosterError struct {
	Source string
	Cause  error
}

func (e *RosterError) Error() string {
	return fmt.Sprintf("roster %s: %v", e.Source, e.Cause)
}

func (e *RosterError) Unwrap() error {
	return e.Cause
}

// DBRoster reads subscribers managed by the web front end
type DBRoster struct {
	db *gorm.DB
}

func NewDBRoster(db *gorm.DB) *DBRoster {
	return &DBRoster{db: db}
}

// Users returns every subscriber, including unsubscribed ones, ordered by signup
func (r *DBRoster) Users(ctx context.Context) ([]models.UserPreference, error) {
	var subs []models.Subscriber
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&subs).Error; err != nil {
		return nil, &RosterError{Source: "database", Cause: err}
	}
	out := make([]models.UserPreference, len(subs))
	for i, s := range subs {
		out[i] = s.Preference()
	}
	return out, nil
}
