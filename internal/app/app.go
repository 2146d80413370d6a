package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mx-space/diary/internal/config"
	"github.com/mx-space/diary/internal/database"
	"github.com/mx-space/diary/internal/middleware"
	"github.com/mx-space/diary/internal/modules/backup"
	"github.com/mx-space/diary/internal/modules/bridge"
	"github.com/mx-space/diary/internal/modules/content/card"
	"github.com/mx-space/diary/internal/modules/content/diary"
	"github.com/mx-space/diary/internal/modules/editor"
	"github.com/mx-space/diary/internal/modules/export"
	"github.com/mx-space/diary/internal/modules/gateway"
	"github.com/mx-space/diary/internal/modules/search"
	"github.com/mx-space/diary/internal/modules/settings"
	"github.com/mx-space/diary/internal/modules/situation"
	pkgcron "github.com/mx-space/diary/internal/pkg/cron"
	pkgredis "github.com/mx-space/diary/internal/pkg/redis"
	sessionpkg "github.com/mx-space/diary/internal/pkg/session"
	"github.com/mx-space/diary/internal/store"
)

// Services are the wired application services, shared by the HTTP routes,
// the gateway and the maintenance CLI.
type Services struct {
	Store      store.Store
	Settings   *settings.Service
	Diaries    *diary.Service
	Cards      *card.Service
	Situations *situation.Service
	Search     *search.Service
	Export     *export.Service
	Backup     *backup.Service
}

// NewServices builds the store-backed services. It does not touch Redis.
func NewServices(st store.Store, cfg *config.AppConfig, logger *zap.Logger) (*Services, error) {
	settingsSvc := settings.NewService(st, settings.Defaults{
		AdminPasswordHash:     cfg.Admin.PasswordHash,
		UniversalPasswordHash: cfg.Admin.UniversalPasswordHash,
	}, logger)

	searchSvc := search.NewService(st, cfg.MeiliSearch, logger)
	situationSvc := situation.NewService(st, logger)
	situationSvc.SetIndexer(searchSvc)

	cardSvc := card.NewService(st, logger)
	cardSvc.SetSeeder(situationSvc)
	diarySvc := diary.NewService(st, cardSvc, settingsSvc, cfg.DiaryURL, logger)

	backupSvc := backup.NewService(st, cfg.BackupDir(), logger)
	if cfg.Backup.S3.Enabled() {
		uploader, err := backup.NewS3Uploader(cfg.Backup.S3)
		if err != nil {
			return nil, fmt.Errorf("backup s3: %w", err)
		}
		backupSvc.SetUploader(uploader, "")
	}

	return &Services{
		Store:      st,
		Settings:   settingsSvc,
		Diaries:    diarySvc,
		Cards:      cardSvc,
		Situations: situationSvc,
		Search:     searchSvc,
		Export:     export.NewService(diarySvc, cardSvc, logger),
		Backup:     backupSvc,
	}, nil
}

// App holds all application dependencies.
type App struct {
	cfg      *config.AppConfig
	router   *gin.Engine
	svc      *Services
	rc       *pkgredis.Client
	sessions *sessionpkg.Store
	editor   *editor.Manager
	bridge   *bridge.Bridge
	hub      *gateway.Hub
	sched    *pkgcron.Scheduler
	logger   *zap.Logger
	cancel   context.CancelFunc
}

// New initializes the application: store, Redis, services, background
// workers and routes.
func New(logger *zap.Logger, cfg *config.AppConfig) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if err := applyRuntimeSettings(cfg, logger); err != nil {
		return nil, err
	}

	st, err := database.Connect(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	rc, err := pkgredis.Connect(cfg.RedisURL)
	if err != nil {
		_ = st.Close(context.Background())
		return nil, fmt.Errorf("redis: %w", err)
	}

	return Assemble(logger, cfg, st, rc)
}

// Assemble wires an App around an open store and Redis client and starts its
// background workers.
func Assemble(logger *zap.Logger, cfg *config.AppConfig, st store.Store, rc *pkgredis.Client) (*App, error) {
	svc, err := NewServices(st, cfg, logger)
	if err != nil {
		return nil, err
	}
	sessions := sessionpkg.NewStore(rc, cfg.SessionTTL())

	ctx, cancel := context.WithCancel(context.Background())

	feed := bridge.New(st, svc.Cards, logger)
	mgr := editor.NewManager(svc.Cards, svc.Diaries, feed, editor.Options{
		Debounce:         cfg.DebounceDelay(),
		HistoryLimit:     cfg.Editor.HistoryLimit,
		TextHistoryLimit: cfg.Editor.TextHistoryLimit,
	}, logger)

	hub := gateway.NewHub(rc, gateway.Options{
		ValidateAdmin: func(token string) bool {
			vctx, vcancel := context.WithTimeout(ctx, 3*time.Second)
			defer vcancel()
			_, err := middleware.ValidateToken(vctx, sessions, token)
			return err == nil
		},
		Diaries: svc.Diaries,
		Editor:  mgr,
		LogDir:  cfg.LogDir(),
	}, logger)
	feed.SetPublisher(hub)

	if err := feed.Start(ctx); err != nil {
		cancel()
		return nil, fmt.Errorf("card feed: %w", err)
	}
	go hub.Run(ctx)

	sched := pkgcron.New(logger)
	registerCronJobs(sched, svc, cfg)
	go sched.Start(ctx)

	a := &App{
		cfg:      cfg,
		router:   newRouter(cfg, logger),
		svc:      svc,
		rc:       rc,
		sessions: sessions,
		editor:   mgr,
		bridge:   feed,
		hub:      hub,
		sched:    sched,
		logger:   logger,
		cancel:   cancel,
	}
	a.registerRoutes()
	return a, nil
}

func newRouter(cfg *config.AppConfig, logger *zap.Logger) *gin.Engine {
	if cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))

	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.IdempotenceHeader},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
	}
	if len(cfg.AllowedOrigins) > 0 && !cfg.IsDev() {
		patterns := cfg.AllowedOrigins
		corsConfig.AllowOriginFunc = func(origin string) bool {
			host := extractOriginHost(origin)
			for _, pattern := range patterns {
				if matchOriginPattern(pattern, host) {
					return true
				}
			}
			return false
		}
	} else {
		corsConfig.AllowOriginFunc = func(string) bool { return true }
	}
	router.Use(cors.New(corsConfig))
	return router
}

// Addr returns the listen address.
func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.Port) }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Services exposes the wired services.
func (a *App) Services() *Services { return a.svc }

// Shutdown flushes pending editor saves, then stops background workers and
// closes the store and Redis.
func (a *App) Shutdown(ctx context.Context) {
	a.editor.Shutdown()
	a.cancel()

	select {
	case <-a.bridge.Done():
	case <-ctx.Done():
	}
	a.svc.Search.Close()
	if err := a.rc.Close(); err != nil {
		a.logger.Warn("close redis", zap.Error(err))
	}
	if err := a.svc.Store.Close(ctx); err != nil {
		a.logger.Warn("close store", zap.Error(err))
	}
}
