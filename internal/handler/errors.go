package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"scene-server/internal/auth"
	"scene-server/internal/database"
	"scene-server/internal/script"
	"scene-server/internal/service"
)

func handleServiceError(c *gin.Context, err error) {
	var statusCode int
	var errResp ErrorResponse

	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		statusCode = http.StatusUnauthorized
		errResp = ErrorResponse{Code: errCodeWrongCredentials, Message: "Invalid username or password"}
	case errors.Is(err, auth.ErrUserAlreadyExists):
		statusCode = http.StatusConflict
		errResp = ErrorResponse{Code: errCodeDuplicateUser, Message: "Username already exists"}
	case errors.Is(err, auth.ErrTokenExpired):
		statusCode = http.StatusUnauthorized
		errResp = ErrorResponse{Code: errCodeTokenExpired, Message: "Token has expired"}
	case errors.Is(err, auth.ErrTokenInvalid), errors.Is(err, auth.ErrTokenMalformed):
		statusCode = http.StatusUnauthorized
		errResp = ErrorResponse{Code: errCodeTokenInvalid, Message: "Token is invalid or malformed"}
	case errors.Is(err, database.ErrSaveNotFound):
		statusCode = http.StatusNotFound
		errResp = ErrorResponse{Code: errCodeNotFound, Message: "Save not found"}
	case errors.Is(err, service.ErrSessionNotFound):
		statusCode = http.StatusNotFound
		errResp = ErrorResponse{Code: errCodeNotFound, Message: "Session is not open"}
	case errors.Is(err, script.ErrScriptNotFound):
		statusCode = http.StatusNotFound
		errResp = ErrorResponse{Code: errCodeNotFound, Message: "Script not found"}
	case errors.Is(err, service.ErrEmptyMessage):
		statusCode = http.StatusBadRequest
		errResp = ErrorResponse{Code: errCodeBadRequest, Message: "Message content is empty"}
	case errors.Is(err, service.ErrNoActiveCharacter):
		statusCode = http.StatusConflict
		errResp = ErrorResponse{Code: errCodeConflict, Message: "No active character in the scene"}
	default:
		zap.L().Error("Unhandled internal error in handleServiceError", zap.Error(err))
		statusCode = http.StatusInternalServerError
		errResp = ErrorResponse{Code: errCodeInternal, Message: "An unexpected internal error occurred"}
	}

	c.AbortWithStatusJSON(statusCode, errResp)
}
