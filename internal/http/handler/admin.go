package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"notifications.app/engine/internal/http/dto"
	"notifications.app/engine/internal/service"
)

type AdminHandler struct {
	admin service.AdminService
}

func NewAdminHandler(admin service.AdminService) *AdminHandler {
	return &AdminHandler{admin: admin}
}

func (h *AdminHandler) PurgeAggregations(c *gin.Context) {
	ctx := c.Request.Context()

	n, err := h.admin.PurgeAggregations(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to purge aggregations", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to purge aggregations"})
		return
	}
	c.JSON(http.StatusOK, dto.PurgeResponse{Deleted: n})
}
