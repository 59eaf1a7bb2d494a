package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eternisai/multiai-gateway/internal/catalog"
	"github.com/eternisai/multiai-gateway/internal/ginerr"
)

func (s *Server) handleGetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"openrouter_configured":   s.credentials.Configured(catalog.SourceOpenRouter),
		"opencode_zen_configured": s.credentials.Configured(catalog.SourceOpenCodeZen),
	})
}

// putSettingsRequest accepts empty-string-clears semantics per spec.md §6:
// a present-but-empty key clears the credential, an absent key leaves it
// untouched.
type putSettingsRequest struct {
	OpenRouterAPIKey  *string `json:"openrouter_api_key"`
	OpenCodeZenAPIKey *string `json:"opencode_zen_api_key"`
}

func (s *Server) handlePutSettings(c *gin.Context) {
	var req putSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ginerr.AbortWithBadRequest(c, "invalid request body: "+err.Error(), nil)
		return
	}

	if req.OpenRouterAPIKey != nil {
		s.credentials.Set(catalog.SourceOpenRouter, *req.OpenRouterAPIKey)
	}
	if req.OpenCodeZenAPIKey != nil {
		s.credentials.Set(catalog.SourceOpenCodeZen, *req.OpenCodeZenAPIKey)
	}

	c.JSON(http.StatusOK, gin.H{
		"openrouter_configured":   s.credentials.Configured(catalog.SourceOpenRouter),
		"opencode_zen_configured": s.credentials.Configured(catalog.SourceOpenCodeZen),
	})
}

func (s *Server) handleGetSpending(c *gin.Context) {
	status := s.ledger.Status()
	c.JSON(http.StatusOK, gin.H{
		"daily_amount":     status.DailyAmount,
		"daily_cap":        status.DailyCap,
		"daily_resets_at":  status.DailyResetAt,
		"monthly_amount":   status.MonthlyAmount,
		"monthly_cap":      status.MonthlyCap,
		"monthly_resets_at": status.MonthlyResetAt,
	})
}

// postSpendingRequest sets new caps at runtime (spec.md §6). Unset fields
// leave the corresponding cap untouched.
type postSpendingRequest struct {
	DailyCap      *float64 `json:"daily_cap"`
	MonthlyCap    *float64 `json:"monthly_cap"`
	WarnAtPercent *float64 `json:"warn_at_percent"`
}

func (s *Server) handlePostSpending(c *gin.Context) {
	var req postSpendingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ginerr.AbortWithBadRequest(c, "invalid request body: "+err.Error(), nil)
		return
	}

	s.ledger.SetCaps(req.DailyCap, req.MonthlyCap, req.WarnAtPercent)

	status := s.ledger.Status()
	c.JSON(http.StatusOK, gin.H{
		"daily_amount":      status.DailyAmount,
		"daily_cap":         status.DailyCap,
		"daily_resets_at":   status.DailyResetAt,
		"monthly_amount":    status.MonthlyAmount,
		"monthly_cap":       status.MonthlyCap,
		"monthly_resets_at": status.MonthlyResetAt,
	})
}
