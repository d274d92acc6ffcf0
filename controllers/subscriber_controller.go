package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"price_digest/middleware"
	"price_digest/models"
)

// SubscriberController handles signup and unsubscribe requests
type SubscriberController struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewSubscriberController creates a new subscriber controller
func NewSubscriberController(db *gorm.DB, logger *zap.Logger) *SubscriberController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubscriberController{db: db, logger: logger}
}

// Signup adds a subscriber or re-activates an existing one
// POST /signup
func (sc *SubscriberController) Signup(c *gin.Context) {
	var request struct {
		Email       string `form:"email" json:"email" binding:"required,email"`
		Preferences string `form:"preferences" json:"preferences"`
	}
	if err := c.ShouldBind(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A valid email address is required"})
		return
	}

	email := strings.ToLower(strings.TrimSpace(request.Email))
	var prefs *string
	if p := strings.TrimSpace(request.Preferences); p != "" {
		prefs = &p
	}

	var sub models.Subscriber
	err := sc.db.Where("email = ?", email).First(&sub).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		sub = models.Subscriber{Email: email, Preferences: prefs}
		if err := sc.db.Create(&sub).Error; err != nil {
			sc.logger.Error("signup failed", zap.String("email", email), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to subscribe"})
			return
		}
		sc.logger.Info("subscriber added", zap.Uint("id", sub.ID))
		c.JSON(http.StatusCreated, gin.H{"message": "Subscribed", "data": sub})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to subscribe"})
	default:
		sub.Preferences = prefs
		sub.Unsubscribed = false
		if err := sc.db.Save(&sub).Error; err != nil {
			sc.logger.Error("signup update failed", zap.Uint("id", sub.ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to subscribe"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Subscription updated", "data": sub})
	}
}

// Unsubscribe opts an email out of the digest. Unknown addresses get the same
// answer so the form cannot be used to probe the roster.
// POST /unsubscribe
func (sc *SubscriberController) Unsubscribe(c *gin.Context) {
	var request struct {
		Email string `form:"email" json:"email" binding:"required,email"`
	}
	if err := c.ShouldBind(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A valid email address is required"})
		return
	}

	if err := sc.optOut(request.Email); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to unsubscribe"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "You have been unsubscribed"})
}

// UnsubscribeByToken handles the one-click link from the digest footer
// GET /unsubscribe?token=
func (sc *SubscriberController) UnsubscribeByToken(c *gin.Context) {
	email := c.GetString(middleware.SubscriberEmailKey)
	if email == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing subscriber"})
		return
	}

	if err := sc.optOut(email); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to unsubscribe"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "You have been unsubscribed", "email": email})
}

func (sc *SubscriberController) optOut(email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	res := sc.db.Model(&models.Subscriber{}).Where("email = ?", email).UpdateColumn("unsubscribed", true)
	if res.Error != nil {
		sc.logger.Error("unsubscribe failed", zap.String("email", email), zap.Error(res.Error))
		return res.Error
	}
	if res.RowsAffected > 0 {
		sc.logger.Info("subscriber opted out", zap.String("email", email))
	}
	return nil
}
