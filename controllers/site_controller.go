package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/attachguard/models"
	"github.com/cppla/attachguard/utils"
)

// SiteController exposes the mirrored site list.
type SiteController struct {
	db *gorm.DB
}

// NewSiteController creates a new SiteController instance.
func NewSiteController(db *gorm.DB) *SiteController {
	return &SiteController{db: db}
}

// ListSites returns every site.
func (s *SiteController) ListSites(ctx *gin.Context) {
	var sites []models.Site
	if err := s.db.WithContext(ctx.Request.Context()).Order("id ASC").Find(&sites).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50011, "failed to list sites")
		return
	}
	utils.Success(ctx, sites)
}

// GetSite returns one site by id.
func (s *SiteController) GetSite(ctx *gin.Context) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40011, "invalid site id")
		return
	}
	var site models.Site
	if err := s.db.WithContext(ctx.Request.Context()).First(&site, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40411, "site not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50012, "failed to load site")
		return
	}
	utils.Success(ctx, site)
}
