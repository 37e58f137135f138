package routes

import (
	"civicservice-be/middlewares"
	"civicservice-be/models"

	"github.com/gin-gonic/gin"
)

// UserRoutes sets up the admin-only account routes
func UserRoutes(r *gin.Engine, d Deps) {
	admin := r.Group("/api/auth",
		middlewares.AuthMiddleware(d.Tokens),
		middlewares.RequireRole(models.RoleAdmin))
	{
		admin.POST("/staff", d.Auth.CreateStaff)
		admin.GET("/users", d.Auth.ListUsers)
	}
}
