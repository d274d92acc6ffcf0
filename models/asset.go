package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Asset is the dimension row for one tracked instrument, keyed by display name
type Asset struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"uniqueIndex;not null" json:"name"`
	Ticker    string    `gorm:"not null" json:"ticker"`
	CreatedAt time.Time `json:"created_at"`
}

// AssetData is one daily close for an asset. Rows are append-only.
type AssetData struct {
	ID         uint                `gorm:"primaryKey" json:"id"`
	AssetID    uint                `gorm:"uniqueIndex:idx_asset_date;not null" json:"asset_id"`
	Asset      Asset               `gorm:"foreignKey:AssetID" json:"asset,omitempty"`
	Date       time.Time           `gorm:"uniqueIndex:idx_asset_date;type:date;not null" json:"date"`
	ClosePrice decimal.Decimal     `gorm:"type:decimal(18,8);not null" json:"close_price"`
	MarketCap  decimal.NullDecimal `gorm:"type:decimal(24,2)" json:"market_cap"`
	Volume     decimal.Decimal     `gorm:"type:decimal(24,2);not null" json:"volume"`
	CreatedAt  time.Time           `json:"created_at"`
}

func (Asset) TableName() string {
	return "assets"
}

func (AssetData) TableName() string {
	return "asset_data"
}

// MigrateAssetModels creates the time-series tables
func MigrateAssetModels(db *gorm.DB) error {
	return db.AutoMigrate(&Asset{}, &AssetData{})
}
