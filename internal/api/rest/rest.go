package rest

import (
	"github.com/gin-gonic/gin"

	"github.com/openreward/reward-distributor/internal/api/middleware"
)

// SetupRoutes configures all REST API routes
func SetupRoutes(router *gin.Engine, handler Handler, authCfg middleware.AuthConfig) {
	// Health check endpoint (no auth, no version prefix)
	router.GET("/health", handler.HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Direct grants: creation and settlement are operator actions
		v1.POST("/grants", middleware.Auth(authCfg), handler.CreateGrant)
		v1.GET("/grants/:id", handler.GetGrant)
		v1.POST("/grants/:id/settle", middleware.Auth(authCfg), handler.SettleGrant)

		// Vesting schedules: beneficiaries claim, operators create and revoke
		v1.POST("/schedules", middleware.Auth(authCfg), handler.CreateSchedule)
		v1.GET("/schedules/:id", handler.GetSchedule)
		v1.GET("/schedules/:id/claimable", handler.GetClaimable)
		v1.POST("/schedules/:id/claim", handler.ClaimSchedule)
		v1.POST("/schedules/:id/revoke", middleware.APIKeyAuth(authCfg), handler.RevokeSchedule)

		// Merkle distributions: claiming is open, the proof is the authorization
		v1.POST("/distributions", middleware.Auth(authCfg), handler.CreateDistribution)
		v1.GET("/distributions/:id", handler.GetDistribution)
		v1.POST("/distributions/:id/claims", handler.ClaimLeaf)
		v1.POST("/distributions/:id/sweep", middleware.APIKeyAuth(authCfg), handler.SweepDistribution)

		// Payout and aggregate reads (public read access)
		v1.GET("/payouts/:id", handler.GetPayout)
		v1.GET("/ledger/total-locked", handler.GetTotalLocked)
	}
}
