package transport

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kwasham/numzy/internal/entity"
	"github.com/kwasham/numzy/internal/service"
)

type ReceiptHandler struct {
	receiptService service.ReceiptService
}

func NewReceiptHandler(receiptService service.ReceiptService) *ReceiptHandler {
	return &ReceiptHandler{receiptService: receiptService}
}

// ReviewRequest is the body of POST /receipts/:id/review.
type ReviewRequest struct {
	Reviewed *bool  `json:"reviewed" binding:"required"`
	Note     string `json:"note"`
}

func (h *ReceiptHandler) UploadReceipt(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no file provided"})
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to open uploaded file"})
		return
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read uploaded file"})
		return
	}

	receipt, err := h.receiptService.UploadReceipt(c.Request.Context(), &service.UploadRequest{
		FileName:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, entity.UploadResponse{
		ID:     receipt.ID,
		Status: receipt.Status,
	})
}

func (h *ReceiptHandler) GetReceipt(c *gin.Context) {
	id := c.Param("id")

	receipt, err := h.receiptService.GetReceipt(c.Request.Context(), id)
	if err != nil {
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, receipt)
}

func (h *ReceiptHandler) GetStatus(c *gin.Context) {
	id := c.Param("id")

	status, err := h.receiptService.GetStatus(c.Request.Context(), id)
	if err != nil {
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, status)
}

func (h *ReceiptHandler) ListReceipts(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	status := c.Query("status")

	receipts, err := h.receiptService.ListReceipts(c.Request.Context(), status, limit, offset)
	if err != nil {
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}

	if receipts == nil {
		receipts = []*entity.Receipt{}
	}

	c.JSON(http.StatusOK, gin.H{
		"receipts": receipts,
		"count":    len(receipts),
		"limit":    limit,
		"offset":   offset,
	})
}

func (h *ReceiptHandler) DownloadReceiptFile(c *gin.Context) {
	id := c.Param("id")
	variant := c.Query("variant")

	reader, contentType, err := h.receiptService.GetReceiptFile(c.Request.Context(), id, variant)
	if err != nil {
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	defer reader.Close()

	c.DataFromReader(http.StatusOK, -1, contentType, reader, nil)
}

func (h *ReceiptHandler) ReviewReceipt(c *gin.Context) {
	id := c.Param("id")

	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	receipt, err := h.receiptService.ReviewReceipt(c.Request.Context(), id, *req.Reviewed, req.Note)
	if err != nil {
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, receipt)
}

func (h *ReceiptHandler) DeleteReceipt(c *gin.Context) {
	id := c.Param("id")

	if err := h.receiptService.DeleteReceipt(c.Request.Context(), id); err != nil {
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Receipt deleted successfully"})
}

func (h *ReceiptHandler) GetStats(c *gin.Context) {
	stats, err := h.receiptService.GetStats(c.Request.Context())
	if err != nil {
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, stats)
}

func statusFromError(err error) int {
	switch {
	case errors.Is(err, entity.ErrReceiptNotFound), errors.Is(err, entity.ErrFileNotFound):
		return http.StatusNotFound
	case errors.Is(err, entity.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, entity.ErrInvalidStatus):
		return http.StatusConflict
	case errors.Is(err, entity.ErrEmptyFile),
		errors.Is(err, entity.ErrFileTooLarge),
		errors.Is(err, entity.ErrUnsupportedType),
		errors.Is(err, entity.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
