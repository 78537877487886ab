package routes

import (
	"net/http"

	"github.com/damoang/angple-rules/internal/handler"
	"github.com/damoang/angple-rules/internal/middleware"
	"github.com/damoang/angple-rules/pkg/jwt"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers every HTTP handler the API serves
type Handlers struct {
	Rules     *handler.RuleHandler
	Adoptions *handler.AdoptionHandler
	Chapters  *handler.ChapterHandler
}

// Setup configures all API routes. apiMiddleware runs on /api/v2 after the
// caller is resolved (e.g. the write rate limiter).
func Setup(router *gin.Engine, h Handlers, jwtManager *jwt.Manager, apiMiddleware ...gin.HandlerFunc) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := middleware.JWTAuth(jwtManager)
	api := router.Group("/api/v2", middleware.OptionalJWTAuth(jwtManager))
	api.Use(apiMiddleware...)

	// 규칙
	rules := api.Group("/rules")
	rules.GET("", h.Rules.ListRules)   // 목록 (global/active 는 비로그인 허용)
	rules.GET("/:id", h.Rules.GetRule) // 상세
	rules.GET("/:id/versions", h.Rules.ListVersions)
	rules.GET("/:id/chapters", h.Chapters.ListForRule)
	rules.POST("", auth, h.Rules.CreateRule)
	rules.PATCH("/:id", auth, h.Rules.UpdateRule)
	rules.DELETE("/:id", auth, h.Rules.DeleteRule)
	rules.POST("/:id/review", auth, h.Rules.ReviewRule)
	rules.POST("/:id/archive", auth, h.Rules.ArchiveRule)
	rules.PUT("/:id/visibility", auth, h.Rules.SetVisibility)
	rules.POST("/:id/reactions", auth, h.Rules.React)
	rules.POST("/:id/adoptions", auth, h.Adoptions.Adopt)

	// 채택
	adoptions := api.Group("/adoptions", auth)
	adoptions.POST("/:id/review", h.Adoptions.Review)
	adoptions.POST("/:id/removal", h.Adoptions.Remove)
	adoptions.POST("/:id/archive", h.Adoptions.Archive)
	adoptions.DELETE("/:id", h.Adoptions.Delete)
	adoptions.GET("/:id/history", h.Adoptions.History)

	// 챕터 전파
	api.POST("/clubs/:club_id/chapter-rules/reconcile", auth, h.Chapters.Reconcile)
	api.PUT("/chapter-rules/:id/status", auth, h.Chapters.SetStatus)
}
