package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/newrality/transcribe/pkg/models"
)

// ModelsResponse lists the known Whisper models and the active one.
type ModelsResponse struct {
	Models []string `json:"models"`
	Active string   `json:"active"`
}

// HandleListModels handles GET /api/v1/models (unauthenticated).
func HandleListModels(activeModel string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, ModelsResponse{
			Models: models.Names(),
			Active: activeModel,
		})
	}
}
