package script

import (
	"context"

	"go.uber.org/zap"

	"scene-server/internal/models"
)

// Chapter владеет одним интерпретатором событий и живёт ровно один прогон.
type Chapter struct {
	ID     string
	events *EventsHandler
	logger *zap.Logger
}

// NewChapter строит главу из определения; обработчики событий
// разрешаются здесь же, при загрузке.
func NewChapter(def models.ChapterDefinition, registry *HandlerRegistry, env *Env, logger *zap.Logger) *Chapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	chapterLogger := logger.Named("Chapter").With(zap.String("chapterID", def.ID))
	chapterLogger.Info("Глава инициализирована", zap.Int("events", len(def.Events)))
	return &Chapter{
		ID:     def.ID,
		events: NewEventsHandler(def.Events, registry, env, chapterLogger),
		logger: chapterLogger,
	}
}

// Run исполняет события главы по одному (кооперативная точка передачи
// управления между событиями) и возвращает идентификатор следующей главы.
// Отмена контекста прерывает прогон; уже добавленные в журнал реплики
// остаются валидными.
func (c *Chapter) Run(ctx context.Context) (string, error) {
	c.logger.Info("Начало исполнения главы")

	for !c.events.IsFinished() {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := c.events.ProcessNext(ctx); err != nil {
			return "", err
		}
	}

	next := c.events.ChapterResult()
	c.logger.Info("Глава завершена", zap.String("nextChapter", next))
	return next, nil
}
