package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-platform/internal/http/handlers/common"
	"github.com/ignatzorin/escrow-platform/internal/service"
)

// EscrowHandler предоставляет HTTP слой жизненного цикла сделок.
type EscrowHandler struct {
	escrows *service.EscrowService
	refunds *service.RefundService
}

// NewEscrowHandler создаёт хэндлер.
func NewEscrowHandler(escrows *service.EscrowService, refunds *service.RefundService) *EscrowHandler {
	return &EscrowHandler{escrows: escrows, refunds: refunds}
}

// Create обрабатывает POST /api/escrows.
func (h *EscrowHandler) Create(c *gin.Context) {
	callerID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	var req struct {
		SellerID           uuid.UUID  `json:"seller_id" binding:"required"`
		ArbiterID          uuid.UUID  `json:"arbiter_id" binding:"required"`
		Token              string     `json:"token" binding:"required"`
		Amount             int64      `json:"amount" binding:"required"`
		RefundDeadline     *time.Time `json:"refund_deadline"`
		AllowPartialRefund bool       `json:"allow_partial_refund"`
	}
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	escrow, err := h.escrows.Create(c.Request.Context(), service.CreateParams{
		BuyerID:            callerID,
		SellerID:           req.SellerID,
		ArbiterID:          req.ArbiterID,
		Token:              req.Token,
		Amount:             req.Amount,
		RefundDeadline:     req.RefundDeadline,
		AllowPartialRefund: req.AllowPartialRefund,
	})
	if err != nil {
		common.RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"escrow": escrow})
}

// CreateBulk обрабатывает POST /api/escrows/bulk: продавцы и суммы
// передаются параллельными массивами, создаются все сделки или ни одной.
func (h *EscrowHandler) CreateBulk(c *gin.Context) {
	callerID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	var req struct {
		ArbiterID          uuid.UUID   `json:"arbiter_id" binding:"required"`
		Token              string      `json:"token" binding:"required"`
		SellerIDs          []uuid.UUID `json:"seller_ids" binding:"required"`
		Amounts            []int64     `json:"amounts" binding:"required"`
		RefundDeadline     *time.Time  `json:"refund_deadline"`
		AllowPartialRefund bool        `json:"allow_partial_refund"`
	}
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	escrows, err := h.escrows.CreateBulk(c.Request.Context(), callerID, req.ArbiterID, req.Token, req.SellerIDs, req.Amounts, req.RefundDeadline, req.AllowPartialRefund)
	if err != nil {
		common.RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"escrows": escrows})
}

// List обрабатывает GET /api/escrows?start=&limit= — постраничный каталог
// идентификаторов.
func (h *EscrowHandler) List(c *gin.Context) {
	var start, limit int64 = 0, 20
	if v := c.Query("start"); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			start = parsed
		}
	}
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			limit = parsed
		}
	}

	ids, err := h.escrows.ListIDs(c.Request.Context(), start, limit)
	if err != nil {
		common.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ids": ids})
}

// Get обрабатывает GET /api/escrows/:id.
func (h *EscrowHandler) Get(c *gin.Context) {
	id, err := common.ParseIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	escrow, err := h.escrows.Get(c.Request.Context(), id)
	if err != nil {
		common.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"escrow": escrow})
}

// Fund обрабатывает POST /api/escrows/:id/fund.
func (h *EscrowHandler) Fund(c *gin.Context) {
	callerID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}
	id, err := common.ParseIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	escrow, err := h.escrows.Fund(c.Request.Context(), id, callerID)
	if err != nil {
		common.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"escrow": escrow})
}

// Release обрабатывает POST /api/escrows/:id/release. Без amount
// выпускается весь остаток, с amount — часть суммы.
func (h *EscrowHandler) Release(c *gin.Context) {
	callerID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}
	id, err := common.ParseIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req struct {
		Amount *int64 `json:"amount"`
	}
	if c.Request.ContentLength > 0 {
		if err := common.BindAndValidate(c, &req); err != nil {
			common.RespondBadRequest(c, err.Error())
			return
		}
	}

	var escrow interface{}
	if req.Amount != nil {
		escrow, err = h.escrows.ReleasePartial(c.Request.Context(), id, callerID, *req.Amount)
	} else {
		escrow, err = h.escrows.Release(c.Request.Context(), id, callerID)
	}
	if err != nil {
		common.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"escrow": escrow})
}

// Refund обрабатывает POST /api/escrows/:id/refund.
func (h *EscrowHandler) Refund(c *gin.Context) {
	callerID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}
	id, err := common.ParseIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	escrow, err := h.escrows.Refund(c.Request.Context(), id, callerID)
	if err != nil {
		common.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"escrow": escrow})
}

// TransitionStatus обрабатывает POST /api/escrows/:id/status.
func (h *EscrowHandler) TransitionStatus(c *gin.Context) {
	callerID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}
	id, err := common.ParseIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	escrow, err := h.escrows.TransitionStatus(c.Request.Context(), id, req.Status, callerID)
	if err != nil {
		common.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"escrow": escrow})
}

// ResolveDispute обрабатывает POST /api/escrows/:id/resolve.
func (h *EscrowHandler) ResolveDispute(c *gin.Context) {
	callerID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}
	id, err := common.ParseIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req struct {
		Resolution string `json:"resolution" binding:"required"`
	}
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	escrow, err := h.escrows.ResolveDispute(c.Request.Context(), id, callerID, req.Resolution)
	if err != nil {
		common.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"escrow": escrow})
}

// ListRefunds обрабатывает GET /api/escrows/:id/refunds.
func (h *EscrowHandler) ListRefunds(c *gin.Context) {
	id, err := common.ParseIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	requests, err := h.refunds.ListByEscrow(c.Request.Context(), id)
	if err != nil {
		common.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"refund_requests": requests})
}

// RefundHistory обрабатывает GET /api/escrows/:id/refund-history.
func (h *EscrowHandler) RefundHistory(c *gin.Context) {
	id, err := common.ParseIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	entries, err := h.refunds.HistoryByEscrow(c.Request.Context(), id)
	if err != nil {
		common.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"history": entries})
}
