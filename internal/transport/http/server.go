package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/chatpe/chatpe-server/internal/auth"
	"github.com/chatpe/chatpe-server/internal/config"
	"github.com/chatpe/chatpe-server/internal/core"
)

// frameOverhead covers JSON framing around the largest allowed payload.
const frameOverhead = 64 << 10

// NewServer builds the HTTP server with the auth API, health and the WebSocket endpoint.
func NewServer(hub *core.Hub, authService *auth.Service, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(hub, authService, cfg, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewRouter serves /ws from a plain mux and everything else from a gin
// engine. The WebSocket upgrade must hijack the raw ResponseWriter, which
// gin's writer refuses once the handshake has been written.
func NewRouter(hub *core.Hub, authService *auth.Service, cfg config.Config, logger *zerolog.Logger) stdhttp.Handler {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	api := NewAPIHandlers(authService, hub, logger)
	apiGroup := router.Group("/api")
	apiGroup.POST("/auth/challenge", api.RequestChallenge)
	apiGroup.POST("/login", api.Login)
	apiGroup.POST("/resume", api.Resume)
	apiGroup.POST("/logout", api.Logout)
	apiGroup.GET("/health", api.Health)

	ws := NewWSHandler(hub, authService, WSOptions{
		ReadLimit:          int64(maxPayload(cfg)) + frameOverhead,
		MaxEventsPerMinute: cfg.MaxEventsPerMinute,
	}, logger)

	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", ws)
	mux.Handle("/", router)
	return mux
}

func maxPayload(cfg config.Config) int {
	return max(cfg.MaxTextBytes, cfg.MaxImageBytes, cfg.MaxAudioBytes)
}
