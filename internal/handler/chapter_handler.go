package handler

import (
	"github.com/damoang/angple-rules/internal/common"
	"github.com/damoang/angple-rules/internal/domain"
	"github.com/damoang/angple-rules/internal/middleware"
	"github.com/damoang/angple-rules/internal/service"
	"github.com/gin-gonic/gin"
)

// ChapterHandler handles chapter propagation HTTP requests
type ChapterHandler struct {
	propagation *service.PropagationService
}

// NewChapterHandler creates a new ChapterHandler
func NewChapterHandler(propagation *service.PropagationService) *ChapterHandler {
	return &ChapterHandler{propagation: propagation}
}

// Reconcile handles POST /api/v2/clubs/:club_id/chapter-rules/reconcile
// 나중에 생긴 챕터에 기존 규칙을 채워 넣는다
func (h *ChapterHandler) Reconcile(c *gin.Context) {
	created, err := h.propagation.Reconcile(c.Request.Context(), middleware.GetUserID(c), c.Param("club_id"))
	if err != nil {
		common.ErrorResponse(c, err)
		return
	}
	common.V2Success(c, gin.H{"club_id": c.Param("club_id"), "created": created})
}

// SetStatus handles PUT /api/v2/chapter-rules/:id/status
func (h *ChapterHandler) SetStatus(c *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, common.Invalid("status is required"))
		return
	}
	record, err := h.propagation.SetChapterStatus(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), domain.RuleStatus(req.Status))
	if err != nil {
		common.ErrorResponse(c, err)
		return
	}
	common.V2Success(c, record)
}

// ListForRule handles GET /api/v2/rules/:id/chapters
func (h *ChapterHandler) ListForRule(c *gin.Context) {
	records, err := h.propagation.ListForRule(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		common.ErrorResponse(c, err)
		return
	}
	common.V2Success(c, records)
}
