package handler

import (
	"context"

	"github.com/damoang/angple-rules/internal/common"
	"github.com/damoang/angple-rules/internal/domain"
	"github.com/damoang/angple-rules/internal/middleware"
	"github.com/damoang/angple-rules/internal/service"
	"github.com/gin-gonic/gin"
)

// AdoptionHandler handles rule adoption HTTP requests
type AdoptionHandler struct {
	adoptions *service.AdoptionService
}

// NewAdoptionHandler creates a new AdoptionHandler
func NewAdoptionHandler(adoptions *service.AdoptionService) *AdoptionHandler {
	return &AdoptionHandler{adoptions: adoptions}
}

// AdoptRequest body of POST /rules/:id/adoptions
type AdoptRequest struct {
	ClubID  string `json:"club_id"`
	NodeID  string `json:"node_id"`
	Message string `json:"message"`
}

// Adopt handles POST /api/v2/rules/:id/adoptions
// @Summary 다른 포럼의 규칙 채택
func (h *AdoptionHandler) Adopt(c *gin.Context) {
	var req AdoptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, common.ErrInvalidForum)
		return
	}
	target, err := ForumParams{ClubID: req.ClubID, NodeID: req.NodeID}.adoptionTarget()
	if err != nil {
		common.ErrorResponse(c, err)
		return
	}

	adoption, err := h.adoptions.Adopt(c.Request.Context(), middleware.GetUserID(c), service.AdoptInput{
		RuleID:  c.Param("id"),
		Target:  target,
		Message: req.Message,
	})
	if err != nil {
		common.ErrorResponse(c, err)
		return
	}
	common.V2Created(c, adoption)
}

// Review handles POST /api/v2/adoptions/:id/review
// body: {"action": "accept" | "reject"}
func (h *AdoptionHandler) Review(c *gin.Context) {
	h.act(c, h.adoptions.Review)
}

// Remove handles POST /api/v2/adoptions/:id/removal
// body: {"action": "removeadoption" | "re-adopt"}
func (h *AdoptionHandler) Remove(c *gin.Context) {
	h.act(c, h.adoptions.Remove)
}

// Archive handles POST /api/v2/adoptions/:id/archive
// body: {"action": "archive" | "unarchive"}
func (h *AdoptionHandler) Archive(c *gin.Context) {
	h.act(c, h.adoptions.Archive)
}

type adoptionAction func(ctx context.Context, userID, id, act string) (*domain.RuleAdoption, error)

func (h *AdoptionHandler) act(c *gin.Context, fn adoptionAction) {
	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, common.ErrInvalidAction)
		return
	}
	adoption, err := fn(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), req.Action)
	if err != nil {
		common.ErrorResponse(c, err)
		return
	}
	common.V2Success(c, adoption)
}

// Delete handles DELETE /api/v2/adoptions/:id
func (h *AdoptionHandler) Delete(c *gin.Context) {
	if err := h.adoptions.Delete(c.Request.Context(), middleware.GetUserID(c), c.Param("id")); err != nil {
		common.ErrorResponse(c, err)
		return
	}
	common.V2Success(c, gin.H{"id": c.Param("id"), "deleted": true})
}

// History handles GET /api/v2/adoptions/:id/history
func (h *AdoptionHandler) History(c *gin.Context) {
	history, err := h.adoptions.History(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		common.ErrorResponse(c, err)
		return
	}
	common.V2Success(c, history)
}
