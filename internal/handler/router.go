package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"canteen/internal/auth"
	"canteen/internal/httpmiddleware"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// RouterConfig holds the cross-cutting pieces mounted around the handlers.
type RouterConfig struct {
	Log       *zap.Logger
	Limiter   *httpmiddleware.TokenBucket
	Resetter  httpmiddleware.Resetter
	StaticDir string
	Health    map[string]HealthCheck

	// CORSOrigins are the browser origins allowed cross-origin; empty allows all.
	CORSOrigins []string
}

// NewRouter builds the gin engine with every route.
func NewRouter(h *Handler, rc RouterConfig) *gin.Engine {
	if rc.Log == nil {
		rc.Log = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestID())
	r.Use(httpmiddleware.Logger(rc.Log))
	r.Use(httpmiddleware.Metrics())
	r.Use(httpmiddleware.CORS(rc.CORSOrigins))
	r.Use(httpmiddleware.SecurityHeaders())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", healthz(rc.Health))
	if rc.StaticDir != "" {
		r.Static("/static", rc.StaticDir)
	}

	limited := func(c *gin.Context) { c.Next() }
	if rc.Limiter != nil {
		limited = rc.Limiter.GinMiddleware()
	}

	api := r.Group("/api")
	if rc.Resetter != nil {
		api.Use(httpmiddleware.MonthlyReset(rc.Resetter, rc.Log))
	}

	// student screens
	api.GET("/current-slot", h.currentSlot)
	api.GET("/login", limited, h.login)
	api.GET("/menu", h.listMenu)
	api.GET("/menu-photo", h.menuPhoto)
	api.POST("/validate", limited, h.validate)
	api.GET("/mess-status", h.messStatus)
	api.POST("/admin/login", limited, h.adminLogin)

	admin := api.Group("", auth.AdminAuth(h.admin))
	admin.POST("/menu", h.addMenuItem)
	admin.DELETE("/menu/:id", h.deleteMenuItem)
	admin.POST("/upload-menu-photo", h.uploadMenuPhoto)
	admin.GET("/members", h.listMembers)
	admin.POST("/members", h.createMember)
	admin.DELETE("/member/:id", h.deleteMember)
	admin.POST("/member/:id/reset-device", h.resetDevice)
	admin.GET("/get-slot-qr", h.slotQR)
	admin.GET("/member/generate/:id", h.memberQRs)
	admin.GET("/generate_all", h.generateAll)
	admin.GET("/logs", h.logs)
	admin.GET("/mess-overview", h.messOverview)
	admin.GET("/reset-month", h.resetMonth)
	admin.POST("/reset-month", h.resetMonth)
	admin.GET("/export-logs", h.exportLogs)

	return r
}

func healthz(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := http.StatusOK
		body := gin.H{"status": "ok"}
		for name, check := range checks {
			ok := check(c.Request.Context())
			body[name] = ok
			if !ok {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
			}
		}
		c.JSON(status, body)
	}
}
