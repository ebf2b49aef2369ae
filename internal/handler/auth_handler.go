package handler

import (
	"context"
	"fmt"
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"

	"scene-server/internal/models"
)

const (
	minUsernameLength = 3
	maxUsernameLength = 30
	minPasswordLength = 8
	maxPasswordLength = 100
)

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// AuthAPI - операции аутентификации, нужные транспортному слою.
type AuthAPI interface {
	Register(ctx context.Context, username, password string) (*models.User, error)
	Login(ctx context.Context, username, password string) (*models.TokenDetails, error)
	Logout(ctx context.Context, accessUUID, refreshToken string) error
	Refresh(ctx context.Context, refreshToken string) (*models.TokenDetails, error)
	VerifyAccessToken(ctx context.Context, tokenString string) (*models.Claims, error)
}

// AuthHandler обрабатывает HTTP-запросы аутентификации.
type AuthHandler struct {
	authService AuthAPI
}

// NewAuthHandler создаёт AuthHandler.
func NewAuthHandler(authService AuthAPI) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// RegisterRoutes регистрирует маршруты аутентификации.
func (h *AuthHandler) RegisterRoutes(router *gin.Engine) {
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/register", h.register)
		authGroup.POST("/login", h.login)
		authGroup.POST("/logout", AuthMiddleware(h.authService), h.logout)
		authGroup.POST("/refresh", h.refresh)
	}
}

func (h *AuthHandler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: errCodeBadRequest, Message: "Invalid request data: " + err.Error()})
		return
	}

	if len(req.Username) < minUsernameLength || len(req.Username) > maxUsernameLength {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
			Code:    errCodeBadRequest,
			Message: fmt.Sprintf("Username length must be between %d and %d characters", minUsernameLength, maxUsernameLength),
		})
		return
	}
	if !usernameRegex.MatchString(req.Username) {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
			Code:    errCodeBadRequest,
			Message: "Username can only contain letters, numbers, underscores, and hyphens",
		})
		return
	}
	if len(req.Password) < minPasswordLength || len(req.Password) > maxPasswordLength {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
			Code:    errCodeBadRequest,
			Message: fmt.Sprintf("Password length must be between %d and %d characters", minPasswordLength, maxPasswordLength),
		})
		return
	}

	user, err := h.authService.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	registrationsTotal.Inc()

	c.JSON(http.StatusCreated, gin.H{
		"id":       user.ID.String(),
		"username": user.Username,
	})
}

func (h *AuthHandler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: errCodeBadRequest, Message: "Invalid request body: " + err.Error()})
		return
	}

	tokens, err := h.authService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, tokens)
}

func (h *AuthHandler) logout(c *gin.Context) {
	var req logoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: errCodeBadRequest, Message: "Invalid request body: " + err.Error()})
		return
	}

	accessUUID := c.GetString(ctxAccessUUIDKey)
	if err := h.authService.Logout(c.Request.Context(), accessUUID, req.RefreshToken); err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func (h *AuthHandler) refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: errCodeBadRequest, Message: "Invalid request body: " + err.Error()})
		return
	}

	tokens, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, tokens)
}
