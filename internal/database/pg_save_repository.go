package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"scene-server/internal/models"
)

// ErrSaveNotFound возвращается при отсутствии сохранения.
var ErrSaveNotFound = errors.New("сохранение не найдено")

const (
	saveFields = `id, user_id, title, script_key, created_at, last_played_at`

	insertSaveQuery = `
		INSERT INTO saves (id, user_id, title, script_key)
		VALUES ($1, $2, $3, $4)
	`
	getSaveByIDQuery = `
		SELECT ` + saveFields + ` FROM saves WHERE id = $1 AND user_id = $2
	`
	listSavesByUserQuery = `
		SELECT ` + saveFields + `
		FROM saves
		WHERE user_id = $1
		ORDER BY last_played_at DESC
	`
	touchSaveQuery = `
		UPDATE saves SET last_played_at = NOW() WHERE id = $1
	`
	deleteSaveQuery = `
		DELETE FROM saves WHERE id = $1 AND user_id = $2
	`
)

// pgSaveRepository - PostgreSQL-хранилище сохранений.
type pgSaveRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewPgSaveRepository создаёт хранилище сохранений.
func NewPgSaveRepository(db DBTX, logger *zap.Logger) *pgSaveRepository {
	return &pgSaveRepository{
		db:     db,
		logger: logger.Named("PgSaveRepo"),
	}
}

// CreateSave сохраняет новое сохранение.
func (r *pgSaveRepository) CreateSave(ctx context.Context, save *models.Save) error {
	_, err := r.db.Exec(ctx, insertSaveQuery, save.ID, save.UserID, save.Title, save.ScriptKey)
	if err != nil {
		return fmt.Errorf("создание сохранения: %w", err)
	}
	r.logger.Info("Сохранение создано",
		zap.String("saveID", save.ID.String()), zap.String("userID", save.UserID.String()))
	return nil
}

// GetByID возвращает сохранение пользователя.
func (r *pgSaveRepository) GetByID(ctx context.Context, saveID, userID uuid.UUID) (*models.Save, error) {
	var save models.Save
	err := pgxscan.Get(ctx, r.db, &save, getSaveByIDQuery, saveID, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSaveNotFound
		}
		return nil, fmt.Errorf("поиск сохранения %s: %w", saveID, err)
	}
	return &save, nil
}

// ListByUser возвращает сохранения пользователя, свежие первыми.
func (r *pgSaveRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Save, error) {
	var saves []models.Save
	if err := pgxscan.Select(ctx, r.db, &saves, listSavesByUserQuery, userID); err != nil {
		return nil, fmt.Errorf("сохранения пользователя %s: %w", userID, err)
	}
	return saves, nil
}

// Touch обновляет время последней игры.
func (r *pgSaveRepository) Touch(ctx context.Context, saveID uuid.UUID) error {
	if _, err := r.db.Exec(ctx, touchSaveQuery, saveID); err != nil {
		return fmt.Errorf("обновление сохранения %s: %w", saveID, err)
	}
	return nil
}

// Delete удаляет сохранение пользователя вместе с журналом (ON DELETE CASCADE).
func (r *pgSaveRepository) Delete(ctx context.Context, saveID, userID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, deleteSaveQuery, saveID, userID)
	if err != nil {
		return fmt.Errorf("удаление сохранения %s: %w", saveID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSaveNotFound
	}
	return nil
}
