package routes

import (
	"civicservice-be/middlewares"

	"github.com/gin-gonic/gin"
)

// AuthRoutes sets up the authentication routes
func AuthRoutes(r *gin.Engine, d Deps) {
	auth := r.Group("/api/auth")
	{
		auth.POST("/register", limit("auth", d.AuthLimiter), d.Auth.Register)
		auth.POST("/login", limit("auth", d.AuthLimiter), d.Auth.Login)
		auth.POST("/logout", d.Auth.Logout)
		auth.GET("/me", middlewares.AuthMiddleware(d.Tokens), d.Auth.Me)
	}
}
