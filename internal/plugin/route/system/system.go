package system

import (
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	registryroute "github.com/chirino/cryptochat-server/internal/registry/route"
)

var (
	ready   atomic.Bool
	version atomic.Value
)

// MarkReady signals that the service has finished initializing and is ready to
// serve traffic. Call this once StartServer has completed successfully.
func MarkReady() {
	ready.Store(true)
}

// SetVersion records the version string reported by the root endpoint.
func SetVersion(v string) {
	version.Store(v)
}

func serverVersion() string {
	if v, ok := version.Load().(string); ok {
		return v
	}
	return "unknown"
}

func init() {
	registryroute.Register(registryroute.Plugin{
		Order: 0,
		Type:  registryroute.RouteTypeMain,
		Loader: func(r *gin.Engine) error {
			// Service banner pointing clients at the API endpoints.
			r.GET("/", func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{
					"service": "cryptochat-server",
					"version": serverVersion(),
					"hint":    "see /api/message/new and /api/message/updates",
				})
			})
			return nil
		},
	})

	registryroute.Register(registryroute.Plugin{
		Order: 0,
		Type:  registryroute.RouteTypeManagement,
		Loader: func(r *gin.Engine) error {
			// Liveness: process is up
			r.GET("/health", func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{"status": "ok"})
			})

			// Readiness: service has finished initializing
			r.GET("/ready", func(c *gin.Context) {
				if ready.Load() {
					c.JSON(http.StatusOK, gin.H{"status": "ready"})
				} else {
					c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
				}
			})

			// Prometheus metrics
			r.GET("/metrics", gin.WrapH(promhttp.Handler()))

			return nil
		},
	})
}
