package handler

import (
	"io"
	"mime/multipart"
	"strconv"
	"strings"

	"github.com/damoang/angple-rules/internal/common"
	"github.com/damoang/angple-rules/internal/domain"
	"github.com/damoang/angple-rules/internal/service"
	"github.com/gin-gonic/gin"
)

// 첨부파일 한 개당 최대 크기
const maxAttachmentSize = 10 << 20

// ForumParams club_id, node_id and chapter_id as sent in queries and bodies
type ForumParams struct {
	ClubID    string `json:"club_id" form:"club_id"`
	NodeID    string `json:"node_id" form:"node_id"`
	ChapterID string `json:"chapter_id" form:"chapter_id"`
}

// Ref returns the forum named by p. At most one id may be set; none means global.
func (p ForumParams) Ref() (domain.ForumRef, error) {
	var refs []domain.ForumRef
	if id := strings.TrimSpace(p.ClubID); id != "" {
		refs = append(refs, domain.Club(id))
	}
	if id := strings.TrimSpace(p.NodeID); id != "" {
		refs = append(refs, domain.Node(id))
	}
	if id := strings.TrimSpace(p.ChapterID); id != "" {
		refs = append(refs, domain.ChapterForum(id))
	}
	switch len(refs) {
	case 0:
		return domain.Global(), nil
	case 1:
		return refs[0], nil
	default:
		return domain.ForumRef{}, common.Invalid("only one of club_id, node_id or chapter_id may be given")
	}
}

// adoptionTarget forum receiving an adoption, exactly one of club_id or node_id
func (p ForumParams) adoptionTarget() (domain.ForumRef, error) {
	forum, err := p.Ref()
	if err != nil || !forum.IsAdoptionTarget() {
		return domain.ForumRef{}, common.ErrInvalidForum
	}
	return forum, nil
}

// forumQuery reads the forum from the query string
func forumQuery(c *gin.Context) (domain.ForumRef, error) {
	return ForumParams{
		ClubID:    c.Query("club_id"),
		NodeID:    c.Query("node_id"),
		ChapterID: c.Query("chapter_id"),
	}.Ref()
}

// parsePagination page, limit from query. Bounds are enforced by the listing service.
func parsePagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	return page, limit
}

// actionRequest body of the review/archive/removal endpoints
type actionRequest struct {
	Action string `json:"action" binding:"required"`
}

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/form-data")
}

// readAttachments loads every "attachments" file part of a multipart form
func readAttachments(form *multipart.Form) ([]service.FileUpload, error) {
	if form == nil {
		return nil, nil
	}
	headers := form.File["attachments"]
	uploads := make([]service.FileUpload, 0, len(headers))
	for _, fh := range headers {
		if fh.Size > maxAttachmentSize {
			return nil, common.Invalid("attachment " + fh.Filename + " exceeds 10MB")
		}
		f, err := fh.Open()
		if err != nil {
			return nil, common.Invalid("cannot read attachment " + fh.Filename)
		}
		data, err := io.ReadAll(io.LimitReader(f, maxAttachmentSize+1))
		_ = f.Close()
		if err != nil {
			return nil, common.Invalid("cannot read attachment " + fh.Filename)
		}
		mimeType := fh.Header.Get("Content-Type")
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		uploads = append(uploads, service.FileUpload{Name: fh.Filename, MimeType: mimeType, Data: data})
	}
	return uploads, nil
}

// formValue returns a pointer to the form field when the client sent it
func formValue(c *gin.Context, key string) *string {
	if v, ok := c.GetPostForm(key); ok {
		return &v
	}
	return nil
}

// formList accepts repeated fields as well as a single comma separated value
func formList(c *gin.Context, key string) []string {
	values, ok := c.GetPostFormArray(key)
	if !ok {
		return nil
	}
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	if out == nil {
		out = []string{}
	}
	return out
}

func formIDs(c *gin.Context, key string) ([]uint64, error) {
	var ids []uint64
	for _, raw := range formList(c, key) {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, common.Invalid(key + " must be numeric ids")
		}
		ids = append(ids, id)
	}
	return ids, nil
}
