package main

import (
	"context"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	"gorm.io/gorm"

	"github.com/cppla/attachguard/config"
	"github.com/cppla/attachguard/controllers"
	"github.com/cppla/attachguard/detector"
	"github.com/cppla/attachguard/extractor"
	"github.com/cppla/attachguard/filecache"
	"github.com/cppla/attachguard/models"
	"github.com/cppla/attachguard/pipeline"
	"github.com/cppla/attachguard/progress"
	"github.com/cppla/attachguard/remote"
	"github.com/cppla/attachguard/routes"
	"github.com/cppla/attachguard/utils"
)

var errRemoteNotConfigured = errors.New("remote database not configured (REMOTE_DB_HOST)")

// application holds the process-wide collaborators shared by the CLI commands and the server.
type application struct {
	cfg      config.AppConfig
	db       *gorm.DB
	runner   *pipeline.Runner
	hub      *progress.Hub
	registry *progress.Registry
	bus      *nats.Conn
}

func newApplication(cfg config.AppConfig) (*application, error) {
	db, err := config.InitDatabase(&models.Site{}, &models.Attachment{})
	if err != nil {
		return nil, err
	}
	cache := filecache.New(cfg.CacheDir, time.Duration(cfg.DownloadTimeoutSec)*time.Second, filecache.WithLogger(utils.Named("filecache")))
	ocr := extractor.NewOCR(extractor.OCRConfig{
		Engine:        cfg.OCREngine,
		PaddleURL:     cfg.PaddleOCRURL,
		TesseractPath: cfg.TesseractPath,
		TesseractLang: cfg.TesseractLang,
	}, utils.Named("ocr"))
	ex := extractor.New(ocr, extractor.WithLogger(utils.Named("extractor")))

	var classifier detector.ContentClassifier
	if cfg.AIEnabled() {
		classifier = detector.NewClassifier(detector.ClassifierConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.Model,
			Prompt:  cfg.Prompt,
			Timeout: time.Duration(cfg.AITimeoutSec) * time.Second,
		}, utils.Named("classifier"))
	}
	det := detector.New(classifier, utils.Named("detector"))

	proc := pipeline.NewProcessor(models.NewAttachmentStore(db), cache, ex, det, cfg.DefaultBaseURL, utils.Named("pipeline"))

	log := utils.Named("progress")
	bus, err := progress.ConnectNATS(cfg.NATSURL, log)
	if err != nil {
		log.Warnf("nats unavailable at %s, progress fan-out disabled: %v", cfg.NATSURL, err)
		bus = nil
	}
	hubOpts := []progress.HubOption{progress.WithHubLogger(log)}
	if bus != nil {
		hubOpts = append(hubOpts, progress.WithPublisher(bus, cfg.NATSSubjectPrefix))
	}

	return &application{
		cfg:      cfg,
		db:       db,
		runner:   pipeline.NewRunner(proc),
		hub:      progress.NewHub(hubOpts...),
		registry: progress.NewRegistry(utils.GetRedis(), 0, log),
		bus:      bus,
	}, nil
}

// openSyncer connects to the upstream database for one sync operation.
func (a *application) openSyncer(ctx context.Context) (*remote.Syncer, func(), error) {
	dsn := a.cfg.RemoteDSN()
	if dsn == "" {
		return nil, nil, errRemoteNotConfigured
	}
	src, err := remote.Open(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	return remote.NewSyncer(src, a.db, a.cfg.DefaultBaseURL, utils.Named("sync")), src.Close, nil
}

func (a *application) services() routes.Services {
	return routes.Services{
		DB:       a.db,
		Runner:   a.runner,
		Hub:      a.hub,
		Registry: a.registry,
		Syncer:   controllers.SyncerFactory(a.openSyncer),
	}
}

func (a *application) close() {
	if a.bus != nil {
		a.bus.Close()
	}
}
