package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/storechat/admission/internal/audit"
	admissionhttp "github.com/storechat/admission/internal/http"
	"github.com/storechat/admission/internal/settings"
)

// SettingsHandler reads and writes DB-backed runtime settings.
type SettingsHandler struct {
	store *settings.Store
	sink  audit.Sink
}

// NewSettingsHandler constructs a SettingsHandler.
func NewSettingsHandler(store *settings.Store, sink audit.Sink) *SettingsHandler {
	if sink == nil {
		sink = audit.Discard{}
	}
	return &SettingsHandler{store: store, sink: sink}
}

type updateSettingRequest struct {
	Value json.RawMessage `json:"value" binding:"required"`
}

// List returns every known key with its current value; unset keys are null.
func (h *SettingsHandler) List(c *gin.Context) {
	values := make(gin.H, len(settings.KnownKeys()))
	for _, key := range settings.KnownKeys() {
		raw, ok := h.store.Value(key)
		if !ok {
			values[key] = nil
			continue
		}
		values[key] = raw
	}
	resp := gin.H{"settings": values, "updated_at": nil}
	if updatedAt := h.store.UpdatedAt(); !updatedAt.IsZero() {
		resp["updated_at"] = updatedAt
	}
	c.JSON(http.StatusOK, resp)
}

// Update stores one setting and refreshes the snapshot.
func (h *SettingsHandler) Update(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	if !settings.IsKnownKey(key) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown setting"})
		return
	}
	var body updateSettingRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	if err := h.store.Set(c.Request.Context(), key, body.Value); err != nil {
		log.WithError(err).Error("admin: update setting failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update setting failed"})
		return
	}
	h.sink.LogEvent(audit.Entry{
		Type:     audit.EventSettingsChanged,
		Severity: audit.SeverityInfo,
		Data:     map[string]any{"key": key},
		Metadata: map[string]any{"operator": admissionhttp.OperatorFromContext(c)},
	})
	c.JSON(http.StatusOK, gin.H{"key": key, "value": body.Value})
}
