package routes

import (
	"civicservice-be/middlewares"
	"civicservice-be/models"

	"github.com/gin-gonic/gin"
)

// RequestRoutes sets up the service request routes
func RequestRoutes(r *gin.Engine, d Deps) {
	rc := d.Requests
	requests := r.Group("/api/requests", middlewares.OptionalAuth(d.Tokens))
	{
		requests.POST("", limit("submit", d.SubmitLimiter), rc.CreateRequest)
		requests.GET("", rc.ListRequests)
		requests.GET("/mine", middlewares.AuthMiddleware(d.Tokens), rc.ListMyRequests)
		requests.GET("/stats", rc.GetStatistics)
		requests.GET("/map", rc.MapFeed)
		requests.GET("/:id", rc.GetRequest)
		requests.PUT("/:id/status",
			middlewares.AuthMiddleware(d.Tokens),
			middlewares.RequireRole(models.RoleStaff, models.RoleAdmin),
			rc.UpdateStatus)
		requests.POST("/:id/upvote", rc.Upvote)
		requests.DELETE("/:id/upvote", rc.RemoveUpvote)
	}
}
