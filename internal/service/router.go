package service

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tallyapp/tally/internal/auth"
	"github.com/tallyapp/tally/internal/middleware"
	"github.com/tallyapp/tally/internal/storage"
	"github.com/tallyapp/tally/internal/syncer"
)

// RouterDeps bundles everything the HTTP surface needs.
type RouterDeps struct {
	Store         storage.Store
	Coordinator   *syncer.Coordinator
	Authenticator auth.Authenticator
	Tokens        *auth.JWTManager
}

// NewRouter builds the gin engine with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	syncH := NewSyncHandler(deps.Coordinator)
	billH := NewBillHandler(deps.Store)
	settlementH := NewSettlementHandler(deps.Store, deps.Coordinator)
	memberH := NewMemberHandler(deps.Store, deps.Coordinator)
	authH := NewAuthHandler(deps.Authenticator, deps.Tokens, deps.Store)

	v1 := router.Group("/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", authH.Register)
			authGroup.POST("/login", authH.Login)
			authGroup.GET("/me", middleware.RequireAuth(deps.Tokens), authH.Me)
		}

		bills := v1.Group("/bills")
		{
			bills.POST("/sync", middleware.OptionalAuth(deps.Tokens), syncH.Sync)
			bills.GET("/by-code/:code", billH.GetByCode)
			bills.GET("/:id", billH.Get)
			bills.GET("/:id/settlement", settlementH.Calculate)
			bills.POST("/:id/settlement/toggle", middleware.OptionalAuth(deps.Tokens), settlementH.Toggle)
			bills.POST("/:id/members/:memberId/claim", middleware.RequireAuth(deps.Tokens), memberH.Claim)
			bills.POST("/:id/members/:memberId/unclaim", middleware.RequireAuth(deps.Tokens), memberH.Unclaim)
		}
	}

	return router
}
