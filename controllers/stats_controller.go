package controllers

import (
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/attachguard/models"
	"github.com/cppla/attachguard/utils"
)

const (
	statsCacheKey = "cache:stats:overview"
	statsCacheTTL = 5 * time.Minute
)

// StatsController provides dashboard totals.
type StatsController struct {
	db *gorm.DB
}

// NewStatsController creates a new StatsController instance.
func NewStatsController(db *gorm.DB) *StatsController {
	return &StatsController{db: db}
}

// SiteStats is the per-site row of the dashboard.
type SiteStats struct {
	SiteID                uint       `json:"site_id"`
	SiteName              string     `json:"site_name"`
	SiteAccount           string     `json:"site_account"`
	SiteDomain            string     `json:"site_domain"`
	SiteCreateDate        *time.Time `json:"site_create_date"`
	TotalAttachments      int64      `json:"total_attachments"`
	AttachmentsWithIDCard int64      `json:"attachments_with_id_card"`
	AttachmentsWithPhone  int64      `json:"attachments_with_phone"`
}

type siteCounts struct {
	SiteID string
	Total  int64
	IDCard int64
	Phone  int64
}

// StatsOverview is the dashboard payload.
type StatsOverview struct {
	TotalSites            int64       `json:"total_sites"`
	TotalAttachments      int64       `json:"total_attachments"`
	AttachmentsWithIDCard int64       `json:"attachments_with_id_card"`
	AttachmentsWithPhone  int64       `json:"attachments_with_phone"`
	SitesStats            []SiteStats `json:"sites_stats"`
	SyncSites             int64       `json:"sync_sites"`
}

// GetStats returns global and per-site counts, sorted by attachment count.
func (s *StatsController) GetStats(ctx *gin.Context) {
	overview, err := utils.CacheRemember(statsCacheKey, statsCacheTTL, func() (StatsOverview, error) {
		return s.overview(s.db.WithContext(ctx.Request.Context()))
	})
	if err != nil {
		utils.Sugar.Errorf("load stats: %v", err)
		utils.Error(ctx, http.StatusInternalServerError, 50051, "failed to load stats")
		return
	}
	utils.Success(ctx, overview)
}

func (s *StatsController) overview(db *gorm.DB) (StatsOverview, error) {
	var out StatsOverview
	counts := []struct {
		dst   *int64
		query *gorm.DB
	}{
		{&out.TotalSites, db.Model(&models.Site{})},
		{&out.TotalAttachments, db.Model(&models.Attachment{})},
		{&out.AttachmentsWithIDCard, db.Model(&models.Attachment{}).Where("has_id_card = ?", true)},
		{&out.AttachmentsWithPhone, db.Model(&models.Attachment{}).Where("has_phone = ?", true)},
		// sites with at least one mirrored attachment
		{&out.SyncSites, db.Model(&models.Site{}).Where("EXISTS (SELECT 1 FROM attachments WHERE attachments.site_id = sites.owner)")},
	}
	for _, c := range counts {
		if err := c.query.Count(c.dst).Error; err != nil {
			return out, err
		}
	}

	var grouped []siteCounts
	if err := db.Model(&models.Attachment{}).
		Select("site_id, COUNT(*) AS total, " +
			"SUM(CASE WHEN has_id_card THEN 1 ELSE 0 END) AS id_card, " +
			"SUM(CASE WHEN has_phone THEN 1 ELSE 0 END) AS phone").
		Group("site_id").
		Scan(&grouped).Error; err != nil {
		return out, err
	}
	bySite := make(map[string]siteCounts, len(grouped))
	for _, c := range grouped {
		bySite[c.SiteID] = c
	}

	var sites []models.Site
	if err := db.Order("id ASC").Find(&sites).Error; err != nil {
		return out, err
	}
	out.SitesStats = make([]SiteStats, 0, len(sites))
	for _, site := range sites {
		c := bySite[site.Owner]
		out.SitesStats = append(out.SitesStats, SiteStats{
			SiteID:                site.ID,
			SiteName:              site.Name,
			SiteAccount:           site.Account,
			SiteDomain:            site.Domain,
			SiteCreateDate:        site.CreateDate,
			TotalAttachments:      c.Total,
			AttachmentsWithIDCard: c.IDCard,
			AttachmentsWithPhone:  c.Phone,
		})
	}
	sort.SliceStable(out.SitesStats, func(i, j int) bool {
		return out.SitesStats[i].TotalAttachments > out.SitesStats[j].TotalAttachments
	})
	return out, nil
}

func invalidateStats() {
	utils.InvalidateByPrefix("cache:stats:")
}
