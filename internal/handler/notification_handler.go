package handler

import (
	"strconv"

	apperr "Photo_Archive/internal/errors"
	"Photo_Archive/internal/middleware"
	"Photo_Archive/internal/service"

	"github.com/gin-gonic/gin"
)

type NotificationHandler struct {
	svc *service.NotificationService
	mod *service.ModerationService
}

func NewNotificationHandler(svc *service.NotificationService, mod *service.ModerationService) *NotificationHandler {
	return &NotificationHandler{svc: svc, mod: mod}
}

// Inbox 游标分页
func (h *NotificationHandler) Inbox(c *gin.Context) {
	cursor, _ := strconv.ParseUint(c.Query("cursor"), 10, 64)
	list, next, err := h.svc.Inbox(c.Request.Context(), middleware.UserID(c), cursor, queryInt(c, "limit", 20))
	if err != nil {
		apperr.HandleError(c, err)
		return
	}
	apperr.HandleSuccess(c, gin.H{"list": list, "next_cursor": next})
}

// Stats 用户统计与徽章
func (h *NotificationHandler) Stats(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		apperr.HandleError(c, err)
		return
	}
	stats, badges, err := h.mod.OwnerStats(c.Request.Context(), id)
	if err != nil {
		apperr.HandleError(c, err)
		return
	}
	apperr.HandleSuccess(c, gin.H{"stats": stats, "badges": badges})
}
