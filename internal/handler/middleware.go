package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"scene-server/internal/models"
)

// Ключи контекста gin для данных авторизации.
const (
	ctxUserIDKey     = "user_id"
	ctxAccessUUIDKey = "access_uuid"
)

// TokenVerifier проверяет access-токен и возвращает его claims.
type TokenVerifier interface {
	VerifyAccessToken(ctx context.Context, tokenString string) (*models.Claims, error)
}

// AuthMiddleware проверяет Bearer-токен и кладёт user_id в контекст запроса.
func AuthMiddleware(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			zap.L().Warn("Authorization header missing")
			tokenVerificationsTotal.WithLabelValues("failure").Inc()
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Code: errCodeTokenInvalid, Message: "Missing Authorization header"})
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			zap.L().Warn("Invalid Authorization header format")
			tokenVerificationsTotal.WithLabelValues("failure").Inc()
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Code: errCodeTokenInvalid, Message: "Invalid Authorization header format"})
			return
		}

		claims, err := verifier.VerifyAccessToken(c.Request.Context(), parts[1])
		if err != nil {
			zap.L().Warn("Access token verification failed", zap.Error(err))
			tokenVerificationsTotal.WithLabelValues("failure").Inc()
			handleServiceError(c, err)
			return
		}

		tokenVerificationsTotal.WithLabelValues("success").Inc()
		c.Set(ctxUserIDKey, claims.UserID)
		c.Set(ctxAccessUUIDKey, claims.TokenUUID)
		c.Next()
	}
}

// userIDFromContext извлекает user_id, положенный AuthMiddleware.
func userIDFromContext(c *gin.Context) (uuid.UUID, bool) {
	value, ok := c.Get(ctxUserIDKey)
	if !ok {
		return uuid.Nil, false
	}
	userID, ok := value.(uuid.UUID)
	return userID, ok
}

// ZapLoggingMiddleware логирует запросы через zap. Эндпоинты /health и
// /metrics пропускаются, чтобы не засорять логи опросами.
func ZapLoggingMiddleware(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		if path == "/health" || path == "/metrics" {
			c.Next()
			return
		}

		c.Next()

		latency := time.Since(start)
		if rawQuery := c.Request.URL.RawQuery; rawQuery != "" {
			path = path + "?" + rawQuery
		}

		fields := []zap.Field{
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("ip", c.ClientIP()),
			zap.Duration("latency", latency),
			zap.String("user_agent", c.Request.UserAgent()),
		}

		requestID := c.Writer.Header().Get("X-Request-ID")
		if requestID == "" {
			requestID = c.GetHeader("X-Request-ID")
		}
		if requestID == "" {
			requestID = uuid.NewString()
			c.Header("X-Request-ID", requestID)
		}
		fields = append(fields, zap.String("request_id", requestID))

		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			log.Error("HTTP request", fields...)
		case c.Writer.Status() >= http.StatusBadRequest:
			log.Warn("HTTP request", fields...)
		default:
			log.Info("HTTP request", fields...)
		}
	}
}
