package database

import (
	"context"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"scene-server/internal/models"
	"scene-server/internal/service"
)

const (
	lineFields = `id, save_id, content, attribute, sender_role_id, display_name,
		original_emotion, predicted_emotion, tts_content, action_content, audio_file,
		perceived_role_ids, created_at`

	insertLineQuery = `
		INSERT INTO lines
			(id, save_id, content, attribute, sender_role_id, display_name,
			 original_emotion, tts_content, action_content, perceived_role_ids, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (save_id, id) DO NOTHING
	`
	listLinesBySaveQuery = `
		SELECT ` + lineFields + `
		FROM lines
		WHERE save_id = $1
		ORDER BY id ASC
	`
	updateLineDerivedQuery = `
		UPDATE lines SET
			predicted_emotion = $3,
			audio_file = $4
		WHERE save_id = $1 AND id = $2
	`
)

var _ service.LineRepository = (*pgLineRepository)(nil)

// pgLineRepository - PostgreSQL-реализация хранилища журнала реплик.
// Реплика неизменяема: UPDATE разрешён только производным полям.
type pgLineRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewPgLineRepository создаёт репозиторий журнала реплик.
func NewPgLineRepository(db DBTX, logger *zap.Logger) service.LineRepository {
	return &pgLineRepository{
		db:     db,
		logger: logger.Named("PgLineRepo"),
	}
}

// dbPerceivedLine - строка таблицы lines вместе со снимком восприятия.
type dbPerceivedLine struct {
	models.Line
	PerceivedRoleIDs []int64 `db:"perceived_role_ids"`
}

// InsertLines дописывает пачку реплик журнала. Идентификаторы реплик
// назначает журнал в памяти, хранилище их не перенумеровывает.
// Повторная запись уже сохранённой реплики молча пропускается: курсор
// персистентности может переигрывать хвост после частичного сбоя.
func (r *pgLineRepository) InsertLines(ctx context.Context, saveID uuid.UUID, lines []models.PerceivedLine) error {
	if len(lines) == 0 {
		return nil
	}
	for _, line := range lines {
		_, err := r.db.Exec(ctx, insertLineQuery,
			line.ID, saveID, line.Content, line.Attribute, line.SenderRoleID,
			line.DisplayName, line.OriginalEmotion, line.TTSContent, line.ActionContent,
			line.PerceivedRoleIDs, line.CreatedAt,
		)
		if err != nil {
			r.logger.Error("Не удалось записать реплику",
				zap.String("saveID", saveID.String()), zap.Int64("lineID", line.ID), zap.Error(err))
			return fmt.Errorf("запись реплики %d сохранения %s: %w", line.ID, saveID, err)
		}
	}
	r.logger.Debug("Журнал дописан",
		zap.String("saveID", saveID.String()), zap.Int("count", len(lines)))
	return nil
}

// ListBySave возвращает журнал сохранения в порядке добавления.
func (r *pgLineRepository) ListBySave(ctx context.Context, saveID uuid.UUID) ([]models.PerceivedLine, error) {
	var rows []dbPerceivedLine
	if err := pgxscan.Select(ctx, r.db, &rows, listLinesBySaveQuery, saveID); err != nil {
		return nil, fmt.Errorf("чтение журнала сохранения %s: %w", saveID, err)
	}
	lines := make([]models.PerceivedLine, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, models.PerceivedLine{
			Line:             row.Line,
			PerceivedRoleIDs: row.PerceivedRoleIDs,
		})
	}
	return lines, nil
}

// UpdateDerived записывает производные поля реплики.
func (r *pgLineRepository) UpdateDerived(ctx context.Context, saveID uuid.UUID, lineID int64, predictedEmotion, audioFile string) error {
	tag, err := r.db.Exec(ctx, updateLineDerivedQuery, saveID, lineID, predictedEmotion, audioFile)
	if err != nil {
		return fmt.Errorf("обновление производных полей реплики %d: %w", lineID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("реплика %d сохранения %s не найдена", lineID, saveID)
	}
	return nil
}
