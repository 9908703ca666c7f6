package handler

import (
	"time"

	apperr "Photo_Archive/internal/errors"
	"Photo_Archive/internal/middleware"
	"Photo_Archive/internal/model"
	"Photo_Archive/internal/service"

	"github.com/gin-gonic/gin"
)

type ModerationHandler struct {
	queue *service.ModerationQueue
	mod   *service.ModerationService
}

func NewModerationHandler(queue *service.ModerationQueue, mod *service.ModerationService) *ModerationHandler {
	return &ModerationHandler{queue: queue, mod: mod}
}

type reasonReq struct {
	Reason string `json:"reason"`
}

type suspendReq struct {
	Until  time.Time `json:"until" binding:"required"`
	Reason string    `json:"reason"`
}

func (h *ModerationHandler) Queue(c *gin.Context) {
	var kind model.ContentKind
	if k := c.Query("kind"); k != "" {
		parsed, ok := model.ParseKind(k)
		if !ok {
			apperr.HandleError(c, apperr.BadRequest("unknown content kind"))
			return
		}
		kind = parsed
	}
	list, err := h.queue.List(c.Request.Context(), kind)
	if err != nil {
		apperr.HandleError(c, err)
		return
	}
	apperr.HandleSuccess(c, gin.H{"list": list})
}

func (h *ModerationHandler) Approve(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		apperr.HandleError(c, err)
		return
	}
	item, err := h.queue.Approve(c.Request.Context(), id, middleware.UserID(c))
	if err != nil {
		apperr.HandleError(c, err)
		return
	}
	apperr.HandleSuccess(c, item)
}

func (h *ModerationHandler) Reject(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		apperr.HandleError(c, err)
		return
	}
	var req reasonReq
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.HandleError(c, apperr.BadRequest("invalid params"))
		return
	}
	item, err := h.queue.Reject(c.Request.Context(), id, middleware.UserID(c), req.Reason)
	if err != nil {
		apperr.HandleError(c, err)
		return
	}
	apperr.HandleSuccess(c, item)
}

// Edit 请求体为 字段名->新值，仅限 title/body/location
func (h *ModerationHandler) Edit(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		apperr.HandleError(c, err)
		return
	}
	var fields map[string]string
	if err := c.ShouldBindJSON(&fields); err != nil || len(fields) == 0 {
		apperr.HandleError(c, apperr.BadRequest("invalid params"))
		return
	}
	item, err := h.mod.EditApproved(c.Request.Context(), id, middleware.UserID(c), fields)
	if err != nil {
		apperr.HandleError(c, err)
		return
	}
	apperr.HandleSuccess(c, item)
}

func (h *ModerationHandler) Delete(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		apperr.HandleError(c, err)
		return
	}
	var req reasonReq
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.HandleError(c, apperr.BadRequest("invalid params"))
		return
	}
	item, err := h.mod.DeleteApproved(c.Request.Context(), id, middleware.UserID(c), req.Reason)
	if err != nil {
		apperr.HandleError(c, err)
		return
	}
	apperr.HandleSuccess(c, item)
}

func (h *ModerationHandler) Suspend(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		apperr.HandleError(c, err)
		return
	}
	var req suspendReq
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.HandleError(c, apperr.BadRequest("invalid params"))
		return
	}
	if err := h.mod.SuspendUser(c.Request.Context(), id, middleware.UserID(c), req.Until, req.Reason); err != nil {
		apperr.HandleError(c, err)
		return
	}
	apperr.HandleSuccess(c, gin.H{"user_id": id, "suspended_until": req.Until})
}
