package controllers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"civicservice-be/captcha"
	"civicservice-be/middlewares"
	"civicservice-be/models"
	"civicservice-be/services"
	authUtils "civicservice-be/utils"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AuthController handles accounts and sessions
type AuthController struct {
	Users        services.UserStore
	Tokens       authUtils.TokenConfig
	Captcha      captcha.Verifier
	Lockout      LoginLockout
	CookieDomain string
	SecureCookie bool
	Now          func() time.Time
}

func (ac *AuthController) now() time.Time {
	if ac.Now != nil {
		return ac.Now()
	}
	return time.Now().UTC()
}

type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Roles     []string  `json:"roles"`
	CreatedAt time.Time `json:"createdAt"`
}

func newUserResponse(u *models.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Roles:     models.RoleNames(u.Roles),
		CreatedAt: u.CreatedAt,
	}
}

// AuthResponse is returned by register and login
type AuthResponse struct {
	Success   bool          `json:"success"`
	Token     string        `json:"token,omitempty"`
	ExpiresAt *time.Time    `json:"expiresAt,omitempty"`
	User      *userResponse `json:"user,omitempty"`
	Error     string        `json:"error,omitempty"`
}

type registerInput struct {
	Email        string `json:"email" binding:"required,email,max=256"`
	Password     string `json:"password" binding:"required,min=6,max=100"`
	FirstName    string `json:"firstName" binding:"required,max=100"`
	LastName     string `json:"lastName" binding:"required,max=100"`
	CaptchaToken string `json:"captchaToken"`
}

// createUser hashes the password and stores the account. Returns
// services.ErrDuplicateEmail when the address is taken.
func (ac *AuthController) createUser(ctx context.Context, email, password, first, last string, role models.Role) (*models.User, error) {
	user := &models.User{
		ID:        uuid.New().String(),
		Email:     strings.ToLower(strings.TrimSpace(email)),
		FirstName: strings.TrimSpace(first),
		LastName:  strings.TrimSpace(last),
		Password:  password,
		Roles:     []models.Role{role},
		CreatedAt: ac.now(),
	}
	if err := user.HashPassword(); err != nil {
		return nil, err
	}

	if err := ac.Users.InsertUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Register creates a citizen account and signs it in
func (ac *AuthController) Register(c *gin.Context) {
	var input registerInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, AuthResponse{Error: err.Error()})
		return
	}

	ctx, cancel := handlerContext(c)
	defer cancel()

	if ac.Captcha != nil && !ac.Captcha.Verify(ctx, input.CaptchaToken, captcha.ActionRegister) {
		c.JSON(http.StatusBadRequest, AuthResponse{Error: "CAPTCHA verification failed. Please try again."})
		return
	}

	user, err := ac.createUser(ctx, input.Email, input.Password, input.FirstName, input.LastName, models.RoleCitizen)
	if err != nil {
		if errors.Is(err, services.ErrDuplicateEmail) {
			c.JSON(http.StatusBadRequest, AuthResponse{Error: "User with this email already exists"})
			return
		}
		log.WithError(err).Error("Error registering user")
		c.JSON(http.StatusInternalServerError, AuthResponse{Error: "Something went wrong"})
		return
	}

	log.WithFields(log.Fields{"user_id": user.ID}).Info("User registered")
	ac.issueToken(c, http.StatusCreated, user)
}

type loginInput struct {
	Email    string `json:"email" binding:"required,email,max=256"`
	Password string `json:"password" binding:"required,max=100"`
}

// Login checks credentials, applying the failed-login lockout
func (ac *AuthController) Login(c *gin.Context) {
	var input loginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, AuthResponse{Error: err.Error()})
		return
	}
	email := strings.ToLower(strings.TrimSpace(input.Email))

	ctx, cancel := handlerContext(c)
	defer cancel()

	if ac.Lockout != nil {
		locked, err := ac.Lockout.Locked(ctx, email)
		if err != nil {
			log.WithError(err).Warn("Lockout check failed")
		}
		if locked {
			c.JSON(http.StatusTooManyRequests, AuthResponse{Error: "Account temporarily locked. Try again later."})
			return
		}
	}

	user, err := ac.Users.FindUserByEmail(ctx, email)
	if err != nil && !errors.Is(err, services.ErrNotFound) {
		log.WithError(err).Error("Error looking up user")
		c.JSON(http.StatusInternalServerError, AuthResponse{Error: "Something went wrong"})
		return
	}
	if user == nil || !user.ComparePassword(input.Password) {
		if ac.Lockout != nil {
			if err := ac.Lockout.Fail(ctx, email); err != nil {
				log.WithError(err).Warn("Failed to record login failure")
			}
		}
		c.JSON(http.StatusUnauthorized, AuthResponse{Error: "Invalid credentials"})
		return
	}

	if ac.Lockout != nil {
		if err := ac.Lockout.Reset(ctx, email); err != nil {
			log.WithError(err).Warn("Failed to reset login failures")
		}
	}
	ac.issueToken(c, http.StatusOK, user)
}

func (ac *AuthController) issueToken(c *gin.Context, code int, user *models.User) {
	token, expiresAt, err := ac.Tokens.GenerateToken(user, ac.now())
	if err != nil {
		log.WithError(err).Error("Error generating token")
		c.JSON(http.StatusInternalServerError, AuthResponse{Error: "Something went wrong"})
		return
	}

	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge <= 0 {
		maxAge = int(ac.Tokens.TTL.Seconds())
	}
	// SameSite=None needs Secure; in development fall back to Lax
	sameSite := http.SameSiteLaxMode
	if ac.SecureCookie {
		sameSite = http.SameSiteNoneMode
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     middlewares.AuthCookieName,
		Value:    token,
		MaxAge:   maxAge,
		Path:     "/",
		Domain:   ac.CookieDomain,
		Secure:   ac.SecureCookie,
		HttpOnly: true,
		SameSite: sameSite,
	})

	resp := newUserResponse(user)
	c.JSON(code, AuthResponse{Success: true, Token: token, ExpiresAt: &expiresAt, User: &resp})
}

// Logout clears the auth cookie
func (ac *AuthController) Logout(c *gin.Context) {
	c.SetCookie(middlewares.AuthCookieName, "", -1, "/", ac.CookieDomain, ac.SecureCookie, true)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

// Me returns the authenticated user's account
func (ac *AuthController) Me(c *gin.Context) {
	userID := middlewares.UserIDFrom(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	ctx, cancel := handlerContext(c)
	defer cancel()

	user, err := ac.Users.FindUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		internalError(c, err, "Error retrieving user")
		return
	}
	c.JSON(http.StatusOK, newUserResponse(user))
}
