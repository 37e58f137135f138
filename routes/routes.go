package routes

import (
	"civicservice-be/controllers"
	"civicservice-be/middlewares"
	authUtils "civicservice-be/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps is everything the router wires into handlers
type Deps struct {
	Requests *controllers.RequestController
	Auth     *controllers.AuthController
	Health   *controllers.HealthController
	Tokens   authUtils.TokenConfig

	AuthLimiter   middlewares.Limiter
	SubmitLimiter middlewares.Limiter

	CORSOrigins []string
}

// NewRouter builds the engine with global middleware and every route group
func NewRouter(d Deps) *gin.Engine {
	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     d.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))
	r.Use(middlewares.Metrics())

	RequestRoutes(r, d)
	AuthRoutes(r, d)
	UserRoutes(r, d)
	HealthRoutes(r, d)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

// limit skips rate limiting when no limiter is configured
func limit(name string, l middlewares.Limiter) gin.HandlerFunc {
	if l == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return middlewares.RateLimiter(name, l)
}

func HealthRoutes(r *gin.Engine, d Deps) {
	r.GET("/health", d.Health.Health)
	r.GET("/health/live", d.Health.Live)
}
