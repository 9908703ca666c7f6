package handler

import (
	apperr "Photo_Archive/internal/errors"
	"Photo_Archive/internal/middleware"
	"Photo_Archive/internal/service"

	"github.com/gin-gonic/gin"
)

type EngagementHandler struct {
	svc *service.EngagementService
}

func NewEngagementHandler(svc *service.EngagementService) *EngagementHandler {
	return &EngagementHandler{svc: svc}
}

// ToggleLike 点赞/取消点赞
func (h *EngagementHandler) ToggleLike(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		apperr.HandleError(c, err)
		return
	}
	res, err := h.svc.ToggleLike(c.Request.Context(), middleware.UserID(c), id)
	if err != nil {
		apperr.HandleError(c, err)
		return
	}
	apperr.HandleSuccess(c, res)
}

func (h *EngagementHandler) View(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		apperr.HandleError(c, err)
		return
	}
	counted, err := h.svc.RecordView(c.Request.Context(), middleware.UserID(c), id)
	if err != nil {
		apperr.HandleError(c, err)
		return
	}
	apperr.HandleSuccess(c, gin.H{"counted": counted})
}

// LikeStatus 当前用户是否已赞以及总赞数
func (h *EngagementHandler) LikeStatus(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		apperr.HandleError(c, err)
		return
	}
	ctx := c.Request.Context()
	liked, err := h.svc.IsLiked(ctx, middleware.UserID(c), id)
	if err != nil {
		apperr.HandleError(c, err)
		return
	}
	cnt, err := h.svc.LikeCount(ctx, id)
	if err != nil {
		apperr.HandleError(c, err)
		return
	}
	apperr.HandleSuccess(c, gin.H{"liked": liked, "count": cnt})
}
