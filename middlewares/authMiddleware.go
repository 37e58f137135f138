package middlewares

import (
	"net/http"
	"strings"

	"civicservice-be/models"
	authUtils "civicservice-be/utils"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
)

// Context keys set by the auth middleware
const (
	UserIDKey = "user_id"
	EmailKey  = "email"
	RolesKey  = "roles"

	AuthCookieName = "auth_token"
)

func tokenFromRequest(c *gin.Context) string {
	authHeader := c.Request.Header.Get("Authorization")
	if authHeader != "" {
		// Extracting token from "Bearer <token>" format
		if strings.HasPrefix(authHeader, "Bearer ") {
			return strings.TrimSpace(authHeader[7:])
		}
		return authHeader
	}
	if cookie, err := c.Cookie(AuthCookieName); err == nil {
		return cookie
	}
	return ""
}

// AuthMiddleware rejects requests without a valid token
func AuthMiddleware(tc authUtils.TokenConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := tokenFromRequest(c)
		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "No authorization token provided"})
			c.Abort()
			return
		}

		claims, err := tc.ParseToken(tokenString)
		if err != nil {
			log.WithError(err).Debug("Token validation failed")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization token"})
			c.Abort()
			return
		}

		setClaims(c, claims)
		c.Next()
	}
}

// OptionalAuth identifies the caller when a valid token is present and
// otherwise lets the request through as a guest.
func OptionalAuth(tc authUtils.TokenConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenString := tokenFromRequest(c); tokenString != "" {
			if claims, err := tc.ParseToken(tokenString); err == nil {
				setClaims(c, claims)
			}
		}
		c.Next()
	}
}

func setClaims(c *gin.Context, claims *authUtils.Claims) {
	c.Set(UserIDKey, claims.UserID)
	c.Set(EmailKey, claims.Email)
	c.Set(RolesKey, models.ParseRoles(claims.Roles))
}

// RequireRole must run after AuthMiddleware
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		u := models.User{Roles: RolesFrom(c)}
		if !u.HasRole(roles...) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// UserIDFrom returns the authenticated user id, or "" for guests
func UserIDFrom(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

func RolesFrom(c *gin.Context) []models.Role {
	v, ok := c.Get(RolesKey)
	if !ok {
		return nil
	}
	roles, _ := v.([]models.Role)
	return roles
}

// ActorFrom identifies the caller for voting and annotation
func ActorFrom(c *gin.Context) models.Actor {
	return models.Actor{UserID: UserIDFrom(c), IPAddress: c.ClientIP()}
}
