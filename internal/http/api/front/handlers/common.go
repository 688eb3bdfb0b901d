package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/storechat/admission/internal/admission"
	admissionhttp "github.com/storechat/admission/internal/http"
)

// writeError reports denials with their reason code and hides anything else.
func writeError(c *gin.Context, action string, err error) {
	if _, ok := admission.ReasonOf(err); ok {
		admissionhttp.AbortWithDenial(c, err)
		return
	}
	log.WithError(err).Errorf("front: %s failed", action)
	c.JSON(http.StatusInternalServerError, gin.H{"error": action + " failed"})
}

func invalidBody(c *gin.Context) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
}
