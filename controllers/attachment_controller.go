package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/attachguard/models"
	"github.com/cppla/attachguard/utils"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// sortColumns maps the sort_by values accepted by ListAttachments to columns.
var sortColumns = map[string]string{
	"id":                        "id",
	"site_id":                   "site_id",
	"show_name":                 "show_name",
	"file_ext":                  "file_ext",
	"create_date":               "create_date",
	"text_content":              "text_content",
	"ocr_content":               "ocr_content",
	"has_id_card":               "has_id_card",
	"has_phone":                 "has_phone",
	"manual_verified_sensitive": "manual_verified_sensitive",
	"processed_datetime":        "processed_at",
}

// AttachmentController serves attachment queries.
type AttachmentController struct {
	db *gorm.DB
}

// NewAttachmentController creates a new AttachmentController instance.
func NewAttachmentController(db *gorm.DB) *AttachmentController {
	return &AttachmentController{db: db}
}

// ListAttachments returns a filtered, sorted page of attachments with the total match count.
func (a *AttachmentController) ListAttachments(ctx *gin.Context) {
	query := a.db.WithContext(ctx.Request.Context()).Model(&models.Attachment{})

	// site_owner wins over site_id; site_id is translated to the site's owner
	if owner := strings.TrimSpace(ctx.Query("site_owner")); owner != "" {
		query = query.Where("attachments.site_id = ?", owner)
	} else if raw := ctx.Query("site_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			utils.Error(ctx, http.StatusBadRequest, 40021, "invalid site_id")
			return
		}
		var site models.Site
		if err := a.db.WithContext(ctx.Request.Context()).First(&site, id).Error; err == nil {
			query = query.Where("attachments.site_id = ?", site.Owner)
		}
	}
	if s := ctx.Query("text_content_search"); s != "" {
		query = query.Where("attachments.text_content LIKE ?", "%"+s+"%")
	}
	if s := ctx.Query("ocr_content_search"); s != "" {
		query = query.Where("attachments.ocr_content LIKE ?", "%"+s+"%")
	}
	if v, ok := parseOptionalBool(ctx.Query("has_id_card")); ok {
		query = query.Where("attachments.has_id_card = ?", v)
	}
	if v, ok := parseOptionalBool(ctx.Query("has_phone")); ok {
		query = query.Where("attachments.has_phone = ?", v)
	}
	if raw := ctx.Query("site_state"); raw != "" {
		state, err := strconv.Atoi(raw)
		if err != nil {
			utils.Error(ctx, http.StatusBadRequest, 40022, "invalid site_state")
			return
		}
		query = query.Joins("JOIN sites ON sites.owner = attachments.site_id").Where("sites.state = ?", state)
	}

	order := strings.ToLower(ctx.DefaultQuery("sort_order", "asc"))
	if order != "asc" && order != "desc" {
		utils.Error(ctx, http.StatusBadRequest, 40023, "sort_order must be asc or desc")
		return
	}
	if col, ok := sortColumns[ctx.Query("sort_by")]; ok {
		query = query.Order("attachments." + col + " " + strings.ToUpper(order))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50021, "failed to count attachments")
		return
	}

	skip, limit := parseSkipLimit(ctx.Query("skip"), ctx.Query("limit"))
	var items []models.Attachment
	if err := query.Select("attachments.*").Offset(skip).Limit(limit).Find(&items).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50022, "failed to list attachments")
		return
	}
	utils.Paged(ctx, items, total)
}

// GetAttachment returns one attachment by id.
func (a *AttachmentController) GetAttachment(ctx *gin.Context) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40024, "invalid attachment id")
		return
	}
	var att models.Attachment
	if err := a.db.WithContext(ctx.Request.Context()).First(&att, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40421, "attachment not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50023, "failed to load attachment")
		return
	}
	utils.Success(ctx, att)
}

func parseSkipLimit(skipStr, limitStr string) (int, int) {
	skip := 0
	limit := defaultListLimit
	if s, err := strconv.Atoi(skipStr); err == nil && s > 0 {
		skip = s
	}
	if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
		limit = l
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return skip, limit
}

func parseOptionalBool(s string) (bool, bool) {
	if s == "" {
		return false, false
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, false
	}
	return v, true
}
