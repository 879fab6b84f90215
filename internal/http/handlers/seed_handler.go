package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/escrow-platform/internal/http/handlers/common"
	"github.com/ignatzorin/escrow-platform/internal/service"
)

// SeedHandler доступен только в development окружении.
type SeedHandler struct {
	seed *service.SeedService
}

// NewSeedHandler создаёт хэндлер демо-данных.
func NewSeedHandler(seed *service.SeedService) *SeedHandler {
	return &SeedHandler{seed: seed}
}

// Seed обрабатывает POST /api/seed.
func (h *SeedHandler) Seed(c *gin.Context) {
	result, err := h.seed.Seed(c.Request.Context())
	if err != nil {
		common.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "демо-данные созданы",
		"users":   result.Users,
	})
}
