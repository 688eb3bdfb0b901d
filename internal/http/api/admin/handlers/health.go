package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/storechat/admission/internal/db"
	"github.com/storechat/admission/internal/kvstore"
	"gorm.io/gorm"
)

const healthPingTimeout = 2 * time.Second

// HealthHandler serves health check endpoints.
type HealthHandler struct {
	db *gorm.DB
	kv kvstore.Store
}

// NewHealthHandler constructs a HealthHandler. kv may be nil.
func NewHealthHandler(conn *gorm.DB, kv kvstore.Store) *HealthHandler {
	return &HealthHandler{db: conn, kv: kv}
}

// Healthz checks store connectivity. The database is required; redis is reported only.
func (h *HealthHandler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthPingTimeout)
	defer cancel()

	redisStatus := "disabled"
	if h.kv != nil {
		redisStatus = "ok"
		if errPing := h.kv.Ping(ctx); errPing != nil {
			log.WithError(errPing).Warn("health: redis ping failed")
			redisStatus = "down"
		}
	}

	if errPing := db.Ping(ctx, h.db); errPing != nil {
		log.WithError(errPing).Warn("health: database ping failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "database": "down", "redis": redisStatus})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "database": "ok", "redis": redisStatus})
}
