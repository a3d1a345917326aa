package server

import (
	"net/http"
	"time"

	"classchat/internal/auth"
	"classchat/internal/config"
	"classchat/internal/metrics"
	"classchat/internal/mw"
	"classchat/internal/rtc"
	"classchat/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// SetupRouter 统一初始化中间件、REST API 和两个 WebSocket 端点。
func SetupRouter(cfg config.Config, h *Handler, hub *ws.Hub, relay *rtc.Relay) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(cfg.Env))
	r.Use(mw.RateLimit(rate.Every(time.Second/20), 40))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 实时端点：聊天网关和信令转发。
	r.GET("/ws", ws.Serve(hub, cfg))
	r.GET("/ws/rtc", rtc.Serve(relay, cfg))

	api := r.Group("/api/v1")
	// 发现接口对前置负载均衡开放，不要求 token。
	api.GET("/instances", h.ListInstances)

	authed := api.Group("")
	authed.Use(auth.Middleware(cfg.JWTSecret))
	authed.POST("/rooms", h.CreateRoom)
	authed.DELETE("/rooms/:name", h.DeleteRoom)
	authed.GET("/rooms/:name/messages", h.ListMessages)

	return r
}
