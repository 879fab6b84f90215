package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-platform/internal/http/handlers/common"
	"github.com/ignatzorin/escrow-platform/internal/models"
	"github.com/ignatzorin/escrow-platform/internal/service"
	"github.com/ignatzorin/escrow-platform/internal/storage"
)

// RefundHandler предоставляет HTTP слой заявок на возврат.
type RefundHandler struct {
	refunds  *service.RefundService
	evidence *storage.EvidenceStorage
}

// NewRefundHandler создаёт хэндлер.
func NewRefundHandler(refunds *service.RefundService, evidence *storage.EvidenceStorage) *RefundHandler {
	return &RefundHandler{refunds: refunds, evidence: evidence}
}

// Submit обрабатывает POST /api/escrows/:id/refund-requests.
func (h *RefundHandler) Submit(c *gin.Context) {
	callerID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}
	escrowID, err := common.ParseIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req struct {
		Amount      int64  `json:"amount" binding:"required"`
		Reason      string `json:"reason" binding:"required"`
		Description string `json:"description"`
	}
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	request, err := h.refunds.Submit(c.Request.Context(), service.SubmitParams{
		EscrowID:    escrowID,
		BuyerID:     callerID,
		Amount:      req.Amount,
		Reason:      req.Reason,
		Description: req.Description,
	})
	if err != nil {
		common.RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"refund_request": request})
}

// Get обрабатывает GET /api/refund-requests/:id.
func (h *RefundHandler) Get(c *gin.Context) {
	id, err := common.ParseIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	request, err := h.refunds.GetRequest(c.Request.Context(), id)
	if err != nil {
		common.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"refund_request": request})
}

// Approve обрабатывает POST /api/refund-requests/:id/approve.
func (h *RefundHandler) Approve(c *gin.Context) {
	h.process(c, h.refunds.Approve)
}

// Process обрабатывает POST /api/refund-requests/:id/process.
func (h *RefundHandler) Process(c *gin.Context) {
	h.process(c, h.refunds.Process)
}

// Cancel обрабатывает POST /api/refund-requests/:id/cancel.
func (h *RefundHandler) Cancel(c *gin.Context) {
	h.process(c, h.refunds.Cancel)
}

// Reject обрабатывает POST /api/refund-requests/:id/reject.
func (h *RefundHandler) Reject(c *gin.Context) {
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
		Reason string `json:"reason" binding:"required"`
	}
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	request, err := h.refunds.Reject(c.Request.Context(), id, callerID, req.Reason)
	if err != nil {
		common.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"refund_request": request})
}

// UploadEvidence обрабатывает POST /api/refund-requests/:id/evidence —
// multipart загрузку подтверждения (изображение или PDF).
func (h *RefundHandler) UploadEvidence(c *gin.Context) {
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

	fileHeader, err := c.FormFile("file")
	if err != nil {
		common.RespondBadRequest(c, "файл обязателен")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		common.RespondBadRequest(c, "не удалось открыть файл")
		return
	}
	defer file.Close()

	path, _, err := h.evidence.Save(c.Request.Context(), callerID, fileHeader.Filename, file)
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	request, err := h.refunds.AttachEvidence(c.Request.Context(), id, callerID, path)
	if err != nil {
		// Заявка не приняла файл: подчищаем хранилище.
		_ = h.evidence.Delete(c.Request.Context(), path)
		common.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"refund_request": request})
}

// HistoryAll обрабатывает GET /api/refund-history.
func (h *RefundHandler) HistoryAll(c *gin.Context) {
	limit, offset := common.GetPagination(c)

	entries, err := h.refunds.HistoryAll(c.Request.Context(), limit, offset)
	if err != nil {
		common.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"history": entries})
}

// process — общий путь операций над заявкой без тела запроса.
func (h *RefundHandler) process(c *gin.Context, op func(ctx context.Context, id int64, callerID uuid.UUID) (*models.RefundRequest, error)) {
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

	request, err := op(c.Request.Context(), id, callerID)
	if err != nil {
		common.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"refund_request": request})
}
