package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"scene-server/internal/service"
)

var _ service.BankRepository = (*redisMemoryBankRepository)(nil)

// redisMemoryBankRepository хранит сводки банка памяти в Redis:
//
//	memory_bank:{SaveID}:{RoleID} -> сводка (без TTL, живёт с сохранением)
type redisMemoryBankRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisMemoryBankRepository создаёт Redis-хранилище банка памяти.
func NewRedisMemoryBankRepository(client *redis.Client, logger *zap.Logger) service.BankRepository {
	return &redisMemoryBankRepository{
		client: client,
		logger: logger.Named("RedisMemoryBankRepo"),
	}
}

func bankSummaryKey(saveID uuid.UUID, roleID int64) string {
	return fmt.Sprintf("memory_bank:%s:%d", saveID, roleID)
}

// GetSummary возвращает сводку роли. Отсутствие сводки - пустая строка.
func (r *redisMemoryBankRepository) GetSummary(ctx context.Context, saveID uuid.UUID, roleID int64) (string, error) {
	summary, err := r.client.Get(ctx, bankSummaryKey(saveID, roleID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("чтение сводки банка памяти: %w", err)
	}
	return summary, nil
}

// SaveSummary записывает новую сводку роли, заменяя предыдущую.
func (r *redisMemoryBankRepository) SaveSummary(ctx context.Context, saveID uuid.UUID, roleID int64, summary string) error {
	if err := r.client.Set(ctx, bankSummaryKey(saveID, roleID), summary, 0).Err(); err != nil {
		return fmt.Errorf("запись сводки банка памяти: %w", err)
	}
	r.logger.Debug("Сводка банка памяти записана",
		zap.String("saveID", saveID.String()), zap.Int64("roleID", roleID))
	return nil
}
