package controllers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"price_digest/models"
)

const dateLayout = "2006-01-02"

// AssetDataController serves the persisted daily closes
type AssetDataController struct {
	db *gorm.DB
}

// NewAssetDataController creates a new asset data controller
func NewAssetDataController(db *gorm.DB) *AssetDataController {
	return &AssetDataController{db: db}
}

type closeResponse struct {
	Ticker     string              `json:"ticker"`
	Name       string              `json:"name"`
	Date       string              `json:"date"`
	ClosePrice decimal.Decimal     `json:"close_price"`
	MarketCap  decimal.NullDecimal `json:"market_cap"`
	Volume     decimal.Decimal     `json:"volume"`
}

func toCloseResponse(asset models.Asset, row models.AssetData) closeResponse {
	return closeResponse{
		Ticker:     asset.Ticker,
		Name:       asset.Name,
		Date:       row.Date.UTC().Format(dateLayout),
		ClosePrice: row.ClosePrice,
		MarketCap:  row.MarketCap,
		Volume:     row.Volume,
	}
}

func parseDay(s string) (time.Time, bool) {
	d, err := time.ParseInLocation(dateLayout, s, time.UTC)
	return d, err == nil
}

// findAsset looks an asset up by ticker, case-insensitively
func (ac *AssetDataController) findAsset(ticker string) (models.Asset, error) {
	var asset models.Asset
	err := ac.db.Where("UPPER(ticker) = ?", strings.ToUpper(ticker)).Order("id").First(&asset).Error
	return asset, err
}

func (ac *AssetDataController) findClose(assetID uint, day time.Time) (models.AssetData, error) {
	var row models.AssetData
	err := ac.db.Where("asset_id = ? AND date = ?", assetID, day).First(&row).Error
	return row, err
}

// GetClose returns one asset's close on a day
// GET /api/v1/data/:ticker/:date
func (ac *AssetDataController) GetClose(c *gin.Context) {
	day, ok := parseDay(c.Param("date"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid date format, expected YYYY-MM-DD"})
		return
	}

	asset, err := ac.findAsset(c.Param("ticker"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Unknown ticker"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch asset"})
		return
	}

	row, err := ac.findClose(asset.ID, day)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No data for this date"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch data"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": toCloseResponse(asset, row)})
}

// GetAllCloses returns every asset's close on a day
// GET /api/v1/alldata/:date
func (ac *AssetDataController) GetAllCloses(c *gin.Context) {
	day, ok := parseDay(c.Param("date"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid date format, expected YYYY-MM-DD"})
		return
	}

	var rows []models.AssetData
	if err := ac.db.Preload("Asset").Where("date = ?", day).Order("asset_id").Find(&rows).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch data"})
		return
	}

	data := make([]closeResponse, 0, len(rows))
	for _, row := range rows {
		data = append(data, toCloseResponse(row.Asset, row))
	}

	c.JSON(http.StatusOK, gin.H{
		"date":  day.Format(dateLayout),
		"count": len(data),
		"data":  data,
	})
}

// Compare returns the change in an asset's close between two days
// GET /api/v1/compare/:ticker/:date1/:date2
func (ac *AssetDataController) Compare(c *gin.Context) {
	from, ok1 := parseDay(c.Param("date1"))
	to, ok2 := parseDay(c.Param("date2"))
	if !ok1 || !ok2 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid date format, expected YYYY-MM-DD"})
		return
	}
	if from.Equal(to) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Dates must differ"})
		return
	}
	if to.Before(from) {
		from, to = to, from
	}

	asset, err := ac.findAsset(c.Param("ticker"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Unknown ticker"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch asset"})
		return
	}

	rows := make([]models.AssetData, 2)
	for i, day := range []time.Time{from, to} {
		row, err := ac.findClose(asset.ID, day)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "No data for " + day.Format(dateLayout)})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch data"})
			return
		}
		rows[i] = row
	}

	diff := rows[1].ClosePrice.Sub(rows[0].ClosePrice)
	resp := gin.H{
		"ticker":     asset.Ticker,
		"name":       asset.Name,
		"from":       toCloseResponse(asset, rows[0]),
		"to":         toCloseResponse(asset, rows[1]),
		"difference": diff,
	}
	if rows[0].ClosePrice.IsZero() {
		resp["percent_change"] = nil
	} else {
		resp["percent_change"] = diff.Div(rows[0].ClosePrice).Mul(decimal.NewFromInt(100)).Round(2)
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
