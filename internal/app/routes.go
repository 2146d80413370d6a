package app

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mx-space/diary/internal/middleware"
	"github.com/mx-space/diary/internal/modules/auth"
	"github.com/mx-space/diary/internal/modules/backup"
	"github.com/mx-space/diary/internal/modules/content/card"
	"github.com/mx-space/diary/internal/modules/content/diary"
	"github.com/mx-space/diary/internal/modules/editor"
	"github.com/mx-space/diary/internal/modules/export"
	"github.com/mx-space/diary/internal/modules/gateway"
	"github.com/mx-space/diary/internal/modules/search"
	"github.com/mx-space/diary/internal/modules/situation"
	"github.com/mx-space/diary/internal/pkg/response"
)

const apiPrefix = "/api/v1"

var appInfo = gin.H{
	"name":    "diary",
	"version": "1.0.0",
}

func (a *App) registerRoutes() {
	r := a.router
	authMW := middleware.Auth(a.sessions)
	optionalMW := middleware.OptionalAuth(a.sessions)

	r.NoRoute(func(c *gin.Context) { response.NotFound(c) })
	r.NoMethod(func(c *gin.Context) { response.MethodNotAllowed(c) })

	r.GET("/ping", func(c *gin.Context) { c.String(200, "pong") })
	gateway.RegisterRoutes(r.Group(""), a.hub, authMW)

	loginLimit := middleware.RateLimit(a.rc, middleware.RateLimitOptions{Name: "login", Max: 10, Window: time.Minute})
	unlockLimit := middleware.RateLimit(a.rc, middleware.RateLimitOptions{Name: "unlock", Max: 20, Window: time.Minute})
	idempotent := middleware.Idempotence(a.rc)

	api := r.Group(apiPrefix)
	api.Use(optionalMW)
	api.GET("", func(c *gin.Context) { response.OK(c, appInfo) })

	auth.NewHandler(auth.NewService(a.svc.Settings, a.sessions, a.logger)).
		RegisterRoutes(api, authMW, optionalMW, loginLimit)

	diary.NewHandler(a.svc.Diaries).RegisterRoutes(api, authMW, diary.Middlewares{
		Optional: optionalMW,
		Create:   []gin.HandlerFunc{idempotent},
		Unlock:   []gin.HandlerFunc{unlockLimit},
	})
	card.NewHandler(a.svc.Cards, a.svc.Diaries).RegisterRoutes(api, authMW, idempotent)
	situation.NewHandler(a.svc.Situations).RegisterRoutes(api, authMW)
	search.NewHandler(a.svc.Search).RegisterRoutes(api, authMW)
	editor.NewHandler(a.editor).RegisterRoutes(api, authMW)
	export.NewHandler(a.svc.Export).RegisterRoutes(api, authMW)
	backup.NewHandler(a.svc.Backup).RegisterRoutes(api, authMW)

	jobs := api.Group("/cron", authMW)
	jobs.GET("", func(c *gin.Context) { response.OK(c, a.sched.List()) })
	jobs.POST("/:name/run", func(c *gin.Context) {
		if err := a.sched.Run(c.Request.Context(), c.Param("name")); err != nil {
			response.Error(c, err)
			return
		}
		response.NoContent(c)
	})
}
