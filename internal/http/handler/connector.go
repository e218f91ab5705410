package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"notifications.app/engine/internal/http/dto"
	"notifications.app/engine/internal/service"
	"notifications.app/engine/internal/store"
)

type ConnectorHandler struct {
	status service.DeliveryStatusService
	admin  service.AdminService
}

func NewConnectorHandler(status service.DeliveryStatusService, admin service.AdminService) *ConnectorHandler {
	return &ConnectorHandler{status: status, admin: admin}
}

// Status records the outcome a connector service reports for a pending delivery.
func (h *ConnectorHandler) Status(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.ConnectorStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid connector status", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	historyID, err := uuid.Parse(req.HistoryID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	details := req.Details
	if req.Outcome != "" {
		if details == nil {
			details = map[string]any{}
		}
		details["outcome"] = req.Outcome
	}

	h2, err := h.status.Complete(ctx, service.StatusUpdate{
		HistoryID:  historyID,
		Successful: *req.Successful,
		Sent:       req.Sent,
		Details:    details,
	})
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "history not found"})
		return
	case errors.Is(err, store.ErrAlreadyFinal):
		c.JSON(http.StatusConflict, gin.H{"error": "history already final"})
		return
	case err != nil:
		slog.ErrorContext(ctx, "failed to record connector status", "error", err, "history_id", req.HistoryID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record status"})
		return
	}

	c.JSON(http.StatusOK, dto.ConnectorStatusResponse{HistoryID: h2.ID.String(), Status: string(h2.Status)})
}

// Payload serves the body of an event whose connector message was too large to publish.
func (h *ConnectorHandler) Payload(c *gin.Context) {
	ctx := c.Request.Context()

	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	p, err := h.admin.Payload(ctx, eventID)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "payload not found"})
		return
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to load payload", "error", err, "event_id", eventID.String())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load payload"})
		return
	}

	c.JSON(http.StatusOK, dto.PayloadResponse{EventID: p.EventID.String(), OrgID: p.OrgID, Payload: p.Contents})
}
