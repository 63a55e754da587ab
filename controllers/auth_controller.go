package controllers

import (
	"database/sql"
	"net/http"

	"github.com/gin-gonic/gin"

	"autoapply/models"
	"autoapply/services"
	"autoapply/utils"
)

type AuthController struct {
	users      *models.APIUserModel
	jwtService *services.JWTService
}

func NewAuthController(db *sql.DB, jwtService *services.JWTService) *AuthController {
	return &AuthController{
		users:      models.NewAPIUserModel(db),
		jwtService: jwtService,
	}
}

type credentialsRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

// Register creates an API user.
func (ac *AuthController) Register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestError(c, "Invalid registration payload", err)
		return
	}

	user, err := ac.users.Create(req.Email, req.Password)
	if err != nil {
		utils.InternalServerError(c, "Failed to create user", err)
		return
	}
	utils.SuccessResponse(c, http.StatusCreated, "User created", gin.H{
		"id": user.ID, "email": user.Email,
	})
}

// Token exchanges credentials for a JWT.
func (ac *AuthController) Token(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestError(c, "Invalid login payload", err)
		return
	}

	user, err := ac.users.GetByEmail(req.Email)
	if err != nil || !user.CheckPassword(req.Password) {
		utils.UnauthorizedError(c, "Invalid email or password")
		return
	}

	token, err := ac.jwtService.Issue(user.ID, user.Email)
	if err != nil {
		utils.InternalServerError(c, "Failed to issue token", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Token issued", gin.H{"token": token})
}
