package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"scene-server/internal/models"
)

// ErrTokenNotFound возвращается, когда токен не найден или уже отозван.
var ErrTokenNotFound = errors.New("токен не найден")

// redisTokenRepository хранит выпущенные токены в Redis:
//
//	access_uuid:{AccessUUID}  -> UserID (TTL access токена)
//	refresh_uuid:{RefreshUUID} -> UserID (TTL refresh токена)
type redisTokenRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisTokenRepository создаёт Redis-хранилище токенов.
func NewRedisTokenRepository(client *redis.Client, logger *zap.Logger) *redisTokenRepository {
	return &redisTokenRepository{
		client: client,
		logger: logger.Named("RedisTokenRepo"),
	}
}

func accessKey(accessUUID string) string   { return fmt.Sprintf("access_uuid:%s", accessUUID) }
func refreshKey(refreshUUID string) string { return fmt.Sprintf("refresh_uuid:%s", refreshUUID) }

// SetToken сохраняет пару токенов с их TTL одним пайплайном.
func (r *redisTokenRepository) SetToken(ctx context.Context, userID uuid.UUID, td *models.TokenDetails) error {
	now := time.Now()
	accessTTL := time.Unix(td.AtExpires, 0).Sub(now)
	refreshTTL := time.Unix(td.RtExpires, 0).Sub(now)
	userIDStr := userID.String()

	pipe := r.client.Pipeline()
	pipe.Set(ctx, accessKey(td.AccessUUID), userIDStr, accessTTL)
	pipe.Set(ctx, refreshKey(td.RefreshUUID), userIDStr, refreshTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("Не удалось сохранить токены", zap.String("userID", userIDStr), zap.Error(err))
		return fmt.Errorf("сохранение токенов: %w", err)
	}
	r.logger.Debug("Токены сохранены",
		zap.String("userID", userIDStr),
		zap.Duration("accessTTL", accessTTL),
		zap.Duration("refreshTTL", refreshTTL))
	return nil
}

// FetchAccess возвращает UserID по access UUID.
func (r *redisTokenRepository) FetchAccess(ctx context.Context, accessUUID string) (uuid.UUID, error) {
	return r.fetch(ctx, accessKey(accessUUID))
}

// FetchRefresh возвращает UserID по refresh UUID.
func (r *redisTokenRepository) FetchRefresh(ctx context.Context, refreshUUID string) (uuid.UUID, error) {
	return r.fetch(ctx, refreshKey(refreshUUID))
}

func (r *redisTokenRepository) fetch(ctx context.Context, key string) (uuid.UUID, error) {
	value, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, ErrTokenNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("чтение токена: %w", err)
	}
	userID, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("битый UserID в хранилище токенов: %w", err)
	}
	return userID, nil
}

// DeleteAccess отзывает access токен.
func (r *redisTokenRepository) DeleteAccess(ctx context.Context, accessUUID string) error {
	return r.delete(ctx, accessKey(accessUUID))
}

// DeleteRefresh отзывает refresh токен.
func (r *redisTokenRepository) DeleteRefresh(ctx context.Context, refreshUUID string) error {
	return r.delete(ctx, refreshKey(refreshUUID))
}

func (r *redisTokenRepository) delete(ctx context.Context, key string) error {
	deleted, err := r.client.Del(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("отзыв токена: %w", err)
	}
	if deleted == 0 {
		return ErrTokenNotFound
	}
	return nil
}
