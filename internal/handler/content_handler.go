package handler

import (
	apperr "Photo_Archive/internal/errors"
	"Photo_Archive/internal/middleware"
	"Photo_Archive/internal/model"
	"Photo_Archive/internal/service"

	"github.com/gin-gonic/gin"
)

type ContentHandler struct {
	svc   *service.ContentService
	mod   *service.ModerationService
	quota *service.QuotaResolver
}

func NewContentHandler(svc *service.ContentService, mod *service.ModerationService, quota *service.QuotaResolver) *ContentHandler {
	return &ContentHandler{svc: svc, mod: mod, quota: quota}
}

type SubmitReq struct {
	ParentID uint64 `json:"parent_id"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	Location string `json:"location"`
}

// Submit 每种内容一个路由，kind 由路由决定
func (h *ContentHandler) Submit(kind model.ContentKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SubmitReq
		if err := c.ShouldBindJSON(&req); err != nil {
			apperr.HandleError(c, apperr.BadRequest("invalid params"))
			return
		}
		item, err := h.svc.Submit(c.Request.Context(), middleware.UserID(c), service.SubmitInput{
			Kind:     kind,
			ParentID: req.ParentID,
			Title:    req.Title,
			Body:     req.Body,
			Location: req.Location,
		})
		if err != nil {
			apperr.HandleError(c, err)
			return
		}
		apperr.HandleSuccess(c, item)
	}
}

func (h *ContentHandler) Get(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		apperr.HandleError(c, err)
		return
	}
	item, err := h.svc.Get(c.Request.Context(), middleware.UserID(c), middleware.IsModerator(c), id)
	if err != nil {
		apperr.HandleError(c, err)
		return
	}
	apperr.HandleSuccess(c, item)
}

func (h *ContentHandler) ByLocation(c *gin.Context) {
	list, err := h.svc.ByLocation(c.Request.Context(), c.Param("location"))
	if err != nil {
		apperr.HandleError(c, err)
		return
	}
	apperr.HandleSuccess(c, gin.H{"list": list})
}

func (h *ContentHandler) Recent(c *gin.Context) {
	kind, ok := model.ParseKind(c.Param("kind"))
	if !ok {
		apperr.HandleError(c, apperr.BadRequest("unknown content kind"))
		return
	}
	list, err := h.svc.Recent(c.Request.Context(), kind, queryInt(c, "limit", 20))
	if err != nil {
		apperr.HandleError(c, err)
		return
	}
	apperr.HandleSuccess(c, gin.H{"list": list})
}

func (h *ContentHandler) Children(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		apperr.HandleError(c, err)
		return
	}
	kind, ok := model.ParseKind(c.Param("kind"))
	if !ok {
		apperr.HandleError(c, apperr.BadRequest("unknown content kind"))
		return
	}
	list, err := h.svc.Children(c.Request.Context(), id, kind)
	if err != nil {
		apperr.HandleError(c, err)
		return
	}
	apperr.HandleSuccess(c, gin.H{"list": list})
}

func (h *ContentHandler) Search(c *gin.Context) {
	list, err := h.svc.Search(c.Request.Context(), c.Query("q"))
	if err != nil {
		apperr.HandleError(c, err)
		return
	}
	apperr.HandleSuccess(c, gin.H{"list": list})
}

// Withdraw 作者撤回自己的内容
func (h *ContentHandler) Withdraw(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		apperr.HandleError(c, err)
		return
	}
	item, err := h.mod.Withdraw(c.Request.Context(), id, middleware.UserID(c))
	if err != nil {
		apperr.HandleError(c, err)
		return
	}
	apperr.HandleSuccess(c, item)
}

func (h *ContentHandler) Quota(c *gin.Context) {
	st, err := h.quota.Resolve(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		apperr.HandleError(c, err)
		return
	}
	apperr.HandleSuccess(c, st)
}
