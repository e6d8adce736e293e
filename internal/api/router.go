// Package api assembles the gin engine: middleware, routes and the metrics
// endpoint.
package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/api/handler"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/api/middleware"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/config"
	"github.com/hbkhrishi0412-afk/reride-sub005/pkg/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(h *handler.Handler, authMW *middleware.AuthMiddleware, cfg config.ServerConfig, log *logger.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(log))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept-Language"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(middleware.ErrorHandler(log))

	r.GET("/healthz", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.POST("/auth/token", h.IssueToken)

	authed := r.Group("/", authMW.RequireAuth())
	{
		authed.GET("/ws", h.ServeWebSocket(handler.NewUpgrader(cfg.AllowedOrigins)))

		authed.POST("/telegram/link", h.CreateTelegramLink)

		authed.GET("/listings/:id", h.GetListing)

		authed.GET("/threads", h.ListThreads)
		authed.POST("/threads", h.OpenThread)
		authed.GET("/threads/:id/messages", h.GetTranscript)
		authed.POST("/threads/:id/offers", h.SubmitOffer)
		authed.POST("/threads/:id/close", h.CloseThread)

		authed.POST("/messages/:id/respond", h.Respond)
	}
	return r
}
