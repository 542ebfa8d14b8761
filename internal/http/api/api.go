// Package api registers the gateway's HTTP surface: the admission
// endpoints called by the request pipeline, plus health and metrics.
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/pollengate/pollengate/internal/admission"
	handlers "github.com/pollengate/pollengate/internal/http/api/handlers"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// RegisterRoutes registers routes, middleware, and handlers.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, gate *admission.Gate) {
	if r == nil || gate == nil {
		return
	}

	healthHandler := handlers.NewHealthHandler(db)
	r.GET("/healthz", healthHandler.Healthz)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	admissionHandler := handlers.NewAdmissionHandler(gate)
	v1 := r.Group("/v1")
	v1.POST("/admission/check", admissionHandler.Check)
	v1.POST("/admission/complete", admissionHandler.Complete)
}
