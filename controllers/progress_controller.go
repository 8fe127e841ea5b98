package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/cppla/attachguard/detector"
	"github.com/cppla/attachguard/pipeline"
	"github.com/cppla/attachguard/progress"
	"github.com/cppla/attachguard/utils"
)

// ProgressController upgrades progress websockets and starts their pending jobs.
type ProgressController struct {
	hub      *progress.Hub
	registry *progress.Registry
	runner   *pipeline.Runner
	upgrader websocket.Upgrader
}

// NewProgressController creates a new ProgressController instance.
func NewProgressController(hub *progress.Hub, registry *progress.Registry, runner *pipeline.Runner) *ProgressController {
	return &ProgressController{
		hub:      hub,
		registry: registry,
		runner:   runner,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Progress attaches the websocket to ws_id, runs any pending job for it, and holds the
// connection open until the client goes away.
func (p *ProgressController) Progress(ctx *gin.Context) {
	wsID := ctx.Param("ws_id")
	conn, err := p.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		utils.Sugar.Warnf("websocket upgrade for %s failed: %v", wsID, err)
		return
	}
	p.hub.Attach(wsID, conn)
	defer func() {
		p.hub.Detach(wsID)
		_ = conn.Close()
	}()

	go p.registry.TakeAndRun(context.Background(), wsID, func(jobCtx context.Context, job progress.PendingJob) {
		_, err := p.runner.Run(jobCtx, job.SiteID, pipeline.RunOptions{
			Mode:  detector.ParseMode(job.Mode),
			JobID: wsID,
			Sink:  p.hub.SinkFor(wsID),
		})
		if err != nil {
			utils.Sugar.Errorf("detection job %s failed: %v", wsID, err)
			return
		}
		invalidateStats()
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
