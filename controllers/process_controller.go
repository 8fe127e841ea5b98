package controllers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/attachguard/detector"
	"github.com/cppla/attachguard/models"
	"github.com/cppla/attachguard/pipeline"
	"github.com/cppla/attachguard/progress"
	"github.com/cppla/attachguard/utils"
)

// ProcessController runs the detection pipeline for single attachments and whole sites.
type ProcessController struct {
	store    *models.AttachmentStore
	runner   *pipeline.Runner
	registry *progress.Registry
}

// NewProcessController creates a new ProcessController instance.
func NewProcessController(store *models.AttachmentStore, runner *pipeline.Runner, registry *progress.Registry) *ProcessController {
	return &ProcessController{store: store, runner: runner, registry: registry}
}

// ProcessAttachment runs normal detection on one attachment.
func (p *ProcessController) ProcessAttachment(ctx *gin.Context) {
	p.processOne(ctx, detector.ModeNormal)
}

// ProcessAttachmentAI runs ai detection on one attachment; it requires a configured classifier.
func (p *ProcessController) ProcessAttachmentAI(ctx *gin.Context) {
	if !p.runner.Processor().AIAvailable() {
		utils.Error(ctx, http.StatusBadRequest, 40041, "OpenAI API key not configured")
		return
	}
	p.processOne(ctx, detector.ModeAI)
}

func (p *ProcessController) processOne(ctx *gin.Context, mode detector.Mode) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40042, "invalid attachment id")
		return
	}
	a, err := p.store.Get(ctx.Request.Context(), uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40441, "Attachment not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50041, "failed to load attachment")
		return
	}

	outcome, err := p.runner.Processor().Process(ctx.Request.Context(), a, pipeline.ProcessOptions{Mode: mode})
	if err != nil {
		utils.Sugar.Errorf("process attachment %d: %v", a.ID, err)
		utils.Error(ctx, http.StatusInternalServerError, 50042, "Processing failed: "+err.Error())
		return
	}
	invalidateStats()
	msg := fmt.Sprintf("Attachment %d processed successfully", a.ID)
	if mode == detector.ModeAI {
		msg = fmt.Sprintf("Attachment %d processed with AI successfully", a.ID)
	}
	utils.Success(ctx, gin.H{"message": msg, "outcome": outcome.String(), "attachment": a})
}

// ProcessSite processes every attachment of a site; ai silently degrades to normal without a classifier.
func (p *ProcessController) ProcessSite(ctx *gin.Context) {
	owner := ctx.Param("site_owner")
	mode := detector.ParseMode(ctx.Query("detection_type"))
	res, err := p.runner.Run(context.WithoutCancel(ctx.Request.Context()), owner, pipeline.RunOptions{Mode: mode})
	if err != nil {
		utils.Sugar.Errorf("process site %s: %v", owner, err)
		utils.Error(ctx, http.StatusInternalServerError, 50043, "Processing failed: "+err.Error())
		return
	}
	invalidateStats()
	utils.Success(ctx, gin.H{
		"message":         fmt.Sprintf("Processed %d attachments for site %s", res.Processed, owner),
		"processed_count": res.Processed,
		"sensitive_count": res.Sensitive,
	})
}

// DetectSite runs detection for a site. With ws_id the job waits for that websocket to connect.
func (p *ProcessController) DetectSite(ctx *gin.Context) {
	owner := ctx.Param("site_owner")
	mode := detector.ParseMode(ctx.Query("detection_type"))
	if mode == detector.ModeAI && !p.runner.Processor().AIAvailable() {
		utils.Error(ctx, http.StatusBadRequest, 40043, "OpenAI API key not configured for AI detection")
		return
	}

	if wsID := strings.TrimSpace(ctx.Query("ws_id")); wsID != "" {
		job := progress.PendingJob{SiteID: owner, Mode: string(mode)}
		if err := p.registry.RegisterPending(ctx.Request.Context(), wsID, job); err != nil {
			utils.Sugar.Errorf("register pending detection %s: %v", wsID, err)
			utils.Error(ctx, http.StatusInternalServerError, 50044, "failed to schedule detection")
			return
		}
		utils.Success(ctx, gin.H{
			"message":    "Detection will start when WebSocket connection is established",
			"site_owner": owner,
			"ws_id":      wsID,
		})
		return
	}

	res, err := p.runner.Run(context.WithoutCancel(ctx.Request.Context()), owner, pipeline.RunOptions{Mode: mode})
	if err != nil {
		utils.Sugar.Errorf("detect site %s: %v", owner, err)
		utils.Error(ctx, http.StatusInternalServerError, 50045, "Detection failed: "+err.Error())
		return
	}
	invalidateStats()
	utils.Success(ctx, gin.H{
		"message":         fmt.Sprintf("Detected %d attachments for site %s, %d with sensitive info", res.Processed, owner, res.Sensitive),
		"processed_count": res.Processed,
		"sensitive_count": res.Sensitive,
	})
}

// DownloadSite fills the cache for every attachment of a site.
func (p *ProcessController) DownloadSite(ctx *gin.Context) {
	owner := ctx.Param("site_owner")
	res, err := p.runner.DownloadOnly(context.WithoutCancel(ctx.Request.Context()), owner)
	if err != nil {
		utils.Sugar.Errorf("download site %s: %v", owner, err)
		utils.Error(ctx, http.StatusInternalServerError, 50046, "Download failed: "+err.Error())
		return
	}
	utils.Success(ctx, gin.H{
		"message":          fmt.Sprintf("Download completed. %d of %d attachments downloaded for site %s", res.Downloaded, res.Total, owner),
		"downloaded_count": res.Downloaded,
		"total_count":      res.Total,
	})
}
