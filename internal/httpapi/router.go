// Copyright (c) 2026 the datachat authors.
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE for details.

package httpapi

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/datachat-oss/datachat/internal/authn"
	"github.com/datachat-oss/datachat/internal/config"
	"github.com/datachat-oss/datachat/internal/session"
	"github.com/datachat-oss/datachat/internal/store"
	"github.com/datachat-oss/datachat/internal/transport"
)

// Deps bundles everything New needs to wire the router; kept as a struct
// rather than a long parameter list since the count of collaborators
// only grows as C0-C8 come online.
type Deps struct {
	Config   *config.Config
	Store    *store.Store
	Engines  *EngineRegistry
	Sessions *session.Registry
	Auth     authn.Provider
	Runner   transport.TurnRunner
	WSLoader transport.SessionLoader
}

// New builds the fully wired gin engine: REST surface, websocket upgrade,
// liveness, and metrics.
func New(deps Deps) *gin.Engine {
	gin.SetMode(deps.Config.GinMode)
	router := gin.New()
	router.Use(gin.Recovery(), otelgin.Middleware("datachat"))

	router.GET("/healthz", Healthz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	v1.Use(AuthMiddleware(deps.Auth))
	{
		v1.POST("/sessions", UploadSession(deps.Config, deps.Store, deps.Engines))
		v1.GET("/sessions", ListSessions(deps.Store))
		v1.GET("/sessions/:id", GetSession(deps.Store, deps.Engines))
		v1.DELETE("/sessions/:id", DeleteSession(deps.Store, deps.Engines))
		v1.GET("/sessions/:id/ws", transport.Handler(deps.Runner, deps.Sessions, deps.WSLoader))
	}

	return router
}
