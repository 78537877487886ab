package handler

import (
	"strconv"
	"strings"

	"github.com/damoang/angple-rules/internal/common"
	"github.com/damoang/angple-rules/internal/domain"
	"github.com/damoang/angple-rules/internal/middleware"
	"github.com/damoang/angple-rules/internal/service"
	"github.com/gin-gonic/gin"
)

// MaxMultipartMemory multipart 메모리 한도, 초과분은 임시 파일로
const MaxMultipartMemory = 32 << 20

// RuleHandler handles rule HTTP requests
type RuleHandler struct {
	rules   *service.RuleService
	listing *service.ListingService
}

// NewRuleHandler creates a new RuleHandler
func NewRuleHandler(rules *service.RuleService, listing *service.ListingService) *RuleHandler {
	return &RuleHandler{rules: rules, listing: listing}
}

// CreateRuleRequest JSON body of POST /rules
type CreateRuleRequest struct {
	ForumParams
	DraftID      string   `json:"draft_id"`
	Title        string   `json:"title" binding:"required"`
	Description  string   `json:"description"`
	Category     string   `json:"category"`
	Significance string   `json:"significance"`
	Tags         []string `json:"tags"`
	Domain       string   `json:"domain"`
	IsPublic     bool     `json:"is_public"`
	Status       string   `json:"status"`
}

// UpdateRuleRequest JSON body of PATCH /rules/:id
type UpdateRuleRequest struct {
	Title               *string  `json:"title"`
	Description         *string  `json:"description"`
	Category            *string  `json:"category"`
	Significance        *string  `json:"significance"`
	Tags                []string `json:"tags"`
	Domain              *string  `json:"domain"`
	RemoveAttachmentIDs []uint64 `json:"remove_attachment_ids"`
}

// ListRules handles GET /api/v2/rules
// @Summary 규칙 목록
// @Param filter query string false "global | active | proposed | draft | all"
// @Param club_id query string false "클럽 ID"
// @Param node_id query string false "노드 ID"
// @Param chapter_id query string false "챕터 ID"
// @Param search query string false "검색어"
// @Param cursor query string false "next_cursor of the previous page"
func (h *RuleHandler) ListRules(c *gin.Context) {
	forum, err := forumQuery(c)
	if err != nil {
		common.ErrorResponse(c, err)
		return
	}
	page, limit := parsePagination(c)

	res, err := h.listing.List(c.Request.Context(), middleware.GetUserID(c), service.ListQuery{
		Forum:  forum,
		Filter: service.ListFilter(c.DefaultQuery("filter", string(service.FilterActive))),
		Search: c.Query("search"),
		Page:   page,
		Limit:  limit,
		Cursor: c.Query("cursor"),
	})
	if err != nil {
		common.ErrorResponse(c, err)
		return
	}
	common.V2SuccessWithPagination(c, res.Entries, res.Pagination)
}

// CreateRule handles POST /api/v2/rules
// Accepts JSON, or multipart/form-data when attachments are sent.
func (h *RuleHandler) CreateRule(c *gin.Context) {
	in, err := bindCreate(c)
	if err != nil {
		common.ErrorResponse(c, err)
		return
	}

	rule, err := h.rules.Create(c.Request.Context(), middleware.GetUserID(c), in)
	if err != nil {
		common.ErrorResponse(c, err)
		return
	}
	common.V2Created(c, rule)
}

func bindCreate(c *gin.Context) (service.CreateRuleInput, error) {
	var req CreateRuleRequest
	var attachments []service.FileUpload

	if isMultipart(c) {
		form, err := c.MultipartForm()
		if err != nil {
			return service.CreateRuleInput{}, common.Invalid("malformed multipart body")
		}
		req = CreateRuleRequest{
			ForumParams: ForumParams{
				ClubID:    c.PostForm("club_id"),
				NodeID:    c.PostForm("node_id"),
				ChapterID: c.PostForm("chapter_id"),
			},
			DraftID:      c.PostForm("draft_id"),
			Title:        c.PostForm("title"),
			Description:  c.PostForm("description"),
			Category:     c.PostForm("category"),
			Significance: c.PostForm("significance"),
			Tags:         formList(c, "tags"),
			Domain:       c.PostForm("domain"),
			Status:       c.PostForm("status"),
		}
		req.IsPublic, _ = strconv.ParseBool(c.DefaultPostForm("is_public", "false"))
		if attachments, err = readAttachments(form); err != nil {
			return service.CreateRuleInput{}, err
		}
	} else if err := c.ShouldBindJSON(&req); err != nil {
		return service.CreateRuleInput{}, common.Invalid("title is required")
	}

	forum, err := req.Ref()
	if err != nil {
		return service.CreateRuleInput{}, err
	}
	in := service.CreateRuleInput{
		DraftID:      strings.TrimSpace(req.DraftID),
		Forum:        forum,
		Title:        req.Title,
		Description:  req.Description,
		Category:     req.Category,
		Significance: req.Significance,
		Tags:         req.Tags,
		Domain:       req.Domain,
		IsPublic:     req.IsPublic,
		Attachments:  attachments,
	}
	if req.Status != "" {
		status, ok := domain.ParseRuleStatus(req.Status)
		if !ok {
			return service.CreateRuleInput{}, common.Invalid("unknown status " + req.Status)
		}
		in.Status = status
	}
	return in, nil
}

// GetRule handles GET /api/v2/rules/:id
func (h *RuleHandler) GetRule(c *gin.Context) {
	detail, err := h.rules.Get(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		common.ErrorResponse(c, err)
		return
	}
	common.V2Success(c, detail)
}

// UpdateRule handles PATCH /api/v2/rules/:id
func (h *RuleHandler) UpdateRule(c *gin.Context) {
	in, err := bindUpdate(c)
	if err != nil {
		common.ErrorResponse(c, err)
		return
	}

	rule, err := h.rules.Update(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), in)
	if err != nil {
		common.ErrorResponse(c, err)
		return
	}
	common.V2Success(c, rule)
}

func bindUpdate(c *gin.Context) (service.UpdateRuleInput, error) {
	if !isMultipart(c) {
		var req UpdateRuleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			return service.UpdateRuleInput{}, common.Invalid("malformed request body")
		}
		return service.UpdateRuleInput{
			Title:               req.Title,
			Description:         req.Description,
			Category:            req.Category,
			Significance:        req.Significance,
			Tags:                req.Tags,
			Domain:              req.Domain,
			RemoveAttachmentIDs: req.RemoveAttachmentIDs,
		}, nil
	}

	form, err := c.MultipartForm()
	if err != nil {
		return service.UpdateRuleInput{}, common.Invalid("malformed multipart body")
	}
	attachments, err := readAttachments(form)
	if err != nil {
		return service.UpdateRuleInput{}, err
	}
	removed, err := formIDs(c, "remove_attachment_ids")
	if err != nil {
		return service.UpdateRuleInput{}, err
	}
	return service.UpdateRuleInput{
		Title:               formValue(c, "title"),
		Description:         formValue(c, "description"),
		Category:            formValue(c, "category"),
		Significance:        formValue(c, "significance"),
		Tags:                formList(c, "tags"),
		Domain:              formValue(c, "domain"),
		RemoveAttachmentIDs: removed,
		Attachments:         attachments,
	}, nil
}

// DeleteRule handles DELETE /api/v2/rules/:id
func (h *RuleHandler) DeleteRule(c *gin.Context) {
	if err := h.rules.SoftDelete(c.Request.Context(), middleware.GetUserID(c), c.Param("id")); err != nil {
		common.ErrorResponse(c, err)
		return
	}
	common.V2Success(c, gin.H{"id": c.Param("id"), "deleted": true})
}

// ReviewRule handles POST /api/v2/rules/:id/review
// body: {"action": "accept" | "reject"}
func (h *RuleHandler) ReviewRule(c *gin.Context) {
	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, common.ErrInvalidAction)
		return
	}
	rule, err := h.rules.AcceptProposed(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), req.Action)
	if err != nil {
		common.ErrorResponse(c, err)
		return
	}
	common.V2Success(c, rule)
}

// ArchiveRule handles POST /api/v2/rules/:id/archive
// body: {"action": "archive" | "unarchive"}
func (h *RuleHandler) ArchiveRule(c *gin.Context) {
	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, common.ErrInvalidAction)
		return
	}
	rule, err := h.rules.Archive(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), req.Action)
	if err != nil {
		common.ErrorResponse(c, err)
		return
	}
	common.V2Success(c, rule)
}

// SetVisibility handles PUT /api/v2/rules/:id/visibility
func (h *RuleHandler) SetVisibility(c *gin.Context) {
	var req struct {
		IsPublic *bool `json:"is_public" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, common.Invalid("is_public is required"))
		return
	}
	rule, err := h.rules.SetVisibility(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), *req.IsPublic)
	if err != nil {
		common.ErrorResponse(c, err)
		return
	}
	common.V2Success(c, rule)
}

// React handles POST /api/v2/rules/:id/reactions
// Sending the current reaction again removes it.
func (h *RuleHandler) React(c *gin.Context) {
	var req struct {
		Kind string `json:"kind" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, common.Invalid("kind is required"))
		return
	}
	summary, err := h.rules.React(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), domain.ReactionKind(req.Kind))
	if err != nil {
		common.ErrorResponse(c, err)
		return
	}
	common.V2Success(c, summary)
}

// ListVersions handles GET /api/v2/rules/:id/versions
func (h *RuleHandler) ListVersions(c *gin.Context) {
	versions, err := h.rules.Versions(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		common.ErrorResponse(c, err)
		return
	}
	common.V2Success(c, versions)
}
