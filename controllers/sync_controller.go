package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cppla/attachguard/remote"
	"github.com/cppla/attachguard/utils"
)

// SyncerFactory opens a syncer against the upstream database; release closes it.
type SyncerFactory func(ctx context.Context) (syncer *remote.Syncer, release func(), err error)

// SyncController mirrors upstream metadata on demand.
type SyncController struct {
	open SyncerFactory
}

// NewSyncController creates a new SyncController instance.
func NewSyncController(open SyncerFactory) *SyncController {
	return &SyncController{open: open}
}

type syncRequest struct {
	SiteOwner string `json:"site_owner"`
}

// SyncSites mirrors every upstream site.
func (s *SyncController) SyncSites(ctx *gin.Context) {
	syncer, release, err := s.open(ctx.Request.Context())
	if err != nil {
		utils.Sugar.Errorf("sites sync failed: %v", err)
		utils.Error(ctx, http.StatusInternalServerError, 50031, "Sites sync failed: "+err.Error())
		return
	}
	defer release()

	n, err := syncer.SyncSites(ctx.Request.Context())
	if err != nil {
		utils.Sugar.Errorf("sites sync failed: %v", err)
		utils.Error(ctx, http.StatusInternalServerError, 50031, "Sites sync failed: "+err.Error())
		return
	}
	invalidateStats()
	utils.Success(ctx, gin.H{"message": "Sites sync completed successfully", "synced": n})
}

// SyncAttachments mirrors attachments, optionally for the site_owner in the body.
func (s *SyncController) SyncAttachments(ctx *gin.Context) {
	req := bindSyncRequest(ctx)
	syncer, release, err := s.open(ctx.Request.Context())
	if err != nil {
		utils.Sugar.Errorf("attachments sync failed: %v", err)
		utils.Error(ctx, http.StatusInternalServerError, 50032, "Attachments sync failed: "+err.Error())
		return
	}
	defer release()

	n, err := syncer.SyncAttachments(ctx.Request.Context(), req.SiteOwner)
	if err != nil {
		utils.Sugar.Errorf("attachments sync failed: %v", err)
		utils.Error(ctx, http.StatusInternalServerError, 50032, "Attachments sync failed: "+err.Error())
		return
	}
	invalidateStats()
	utils.Success(ctx, gin.H{"message": "Attachments sync completed successfully", "synced": n})
}

// SyncAll mirrors every site, then attachments (all or for site_owner).
func (s *SyncController) SyncAll(ctx *gin.Context) {
	req := bindSyncRequest(ctx)
	syncer, release, err := s.open(ctx.Request.Context())
	if err != nil {
		utils.Sugar.Errorf("full sync failed: %v", err)
		utils.Error(ctx, http.StatusInternalServerError, 50033, "Sync failed: "+err.Error())
		return
	}
	defer release()

	sites, err := syncer.SyncSites(ctx.Request.Context())
	if err == nil {
		var attachments int
		attachments, err = syncer.SyncAttachments(ctx.Request.Context(), req.SiteOwner)
		if err == nil {
			invalidateStats()
			utils.Success(ctx, gin.H{"message": "Full sync completed successfully", "sites": sites, "attachments": attachments})
			return
		}
	}
	utils.Sugar.Errorf("full sync failed: %v", err)
	utils.Error(ctx, http.StatusInternalServerError, 50033, "Sync failed: "+err.Error())
}

// bindSyncRequest accepts an empty or missing body.
func bindSyncRequest(ctx *gin.Context) syncRequest {
	var req syncRequest
	if ctx.Request.ContentLength != 0 {
		_ = ctx.ShouldBindJSON(&req)
	}
	return req
}
