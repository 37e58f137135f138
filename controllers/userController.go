package controllers

import (
	"context"
	"errors"
	"net/http"

	"civicservice-be/models"
	"civicservice-be/services"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
)

type createStaffInput struct {
	Email     string      `json:"email" binding:"required,email,max=256"`
	Password  string      `json:"password" binding:"required,min=6,max=100"`
	FirstName string      `json:"firstName" binding:"required,max=100"`
	LastName  string      `json:"lastName" binding:"required,max=100"`
	Role      models.Role `json:"role" binding:"required,oneof=Staff Admin"`
}

// CreateStaff lets an admin add a Staff or Admin account
func (ac *AuthController) CreateStaff(c *gin.Context) {
	var input createStaffInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := handlerContext(c)
	defer cancel()

	user, err := ac.createUser(ctx, input.Email, input.Password, input.FirstName, input.LastName, input.Role)
	if err != nil {
		if errors.Is(err, services.ErrDuplicateEmail) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "User with this email already exists"})
			return
		}
		internalError(c, err, "Error creating staff user")
		return
	}

	log.WithFields(log.Fields{"user_id": user.ID, "role": input.Role}).Info("Staff account created")
	c.JSON(http.StatusCreated, newUserResponse(user))
}

func (ac *AuthController) ListUsers(c *gin.Context) {
	ctx, cancel := handlerContext(c)
	defer cancel()

	users, err := ac.Users.ListUsers(ctx)
	if err != nil {
		internalError(c, err, "Error listing users")
		return
	}

	out := make([]userResponse, len(users))
	for i := range users {
		out[i] = newUserResponse(&users[i])
	}
	c.JSON(http.StatusOK, out)
}

// SeedAdmin creates the bootstrap admin unless the email is already taken
func (ac *AuthController) SeedAdmin(ctx context.Context, email, password string) error {
	if _, err := ac.Users.FindUserByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, services.ErrNotFound) {
		return err
	}

	user, err := ac.createUser(ctx, email, password, "System", "Administrator", models.RoleAdmin)
	if errors.Is(err, services.ErrDuplicateEmail) {
		return nil
	}
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{"user_id": user.ID, "email": user.Email}).Info("Seeded admin account")
	return nil
}
