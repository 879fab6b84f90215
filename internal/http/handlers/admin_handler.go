package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-platform/internal/http/handlers/common"
	"github.com/ignatzorin/escrow-platform/internal/service"
)

// AdminHandler предоставляет HTTP слой административных операций.
type AdminHandler struct {
	admin *service.AdminService
}

// NewAdminHandler создаёт хэндлер.
func NewAdminHandler(admin *service.AdminService) *AdminHandler {
	return &AdminHandler{admin: admin}
}

// Initialize обрабатывает POST /api/admin/initialize.
func (h *AdminHandler) Initialize(c *gin.Context) {
	callerID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	var req struct {
		AdminID      uuid.UUID `json:"admin_id" binding:"required"`
		FeeCollector uuid.UUID `json:"fee_collector" binding:"required"`
		FeeBps       int64     `json:"fee_bps"`
		MinFee       int64     `json:"min_fee"`
	}
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	cfg, err := h.admin.Initialize(c.Request.Context(), callerID, service.InitializeParams{
		AdminID:      req.AdminID,
		FeeCollector: req.FeeCollector,
		FeeBps:       req.FeeBps,
		MinFee:       req.MinFee,
	})
	if err != nil {
		common.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"config": cfg})
}

// Transfer обрабатывает POST /api/admin/transfer.
func (h *AdminHandler) Transfer(c *gin.Context) {
	callerID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	var req struct {
		NewAdminID uuid.UUID `json:"new_admin_id" binding:"required"`
	}
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	cfg, err := h.admin.SetAdmin(c.Request.Context(), callerID, req.NewAdminID)
	if err != nil {
		common.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"config": cfg})
}

// SetFee обрабатывает POST /api/admin/fee.
func (h *AdminHandler) SetFee(c *gin.Context) {
	callerID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	var req struct {
		FeeBps int64 `json:"fee_bps"`
		MinFee int64 `json:"min_fee"`
	}
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	cfg, err := h.admin.SetFee(c.Request.Context(), callerID, req.FeeBps, req.MinFee)
	if err != nil {
		common.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"config": cfg})
}

// GetAdmin обрабатывает GET /api/admin.
func (h *AdminHandler) GetAdmin(c *gin.Context) {
	adminID, err := h.admin.GetAdmin(c.Request.Context())
	if err != nil {
		common.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"admin_id": adminID})
}

// GetFee обрабатывает GET /api/admin/fee.
func (h *AdminHandler) GetFee(c *gin.Context) {
	cfg, err := h.admin.GetFee(c.Request.Context())
	if err != nil {
		common.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"fee_bps": cfg.FeeBps, "min_fee": cfg.MinFee})
}
