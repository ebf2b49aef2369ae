package script

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"scene-server/internal/models"
)

// EventsHandler - интерпретатор событий одной главы.
//
// Машина состояний: Running(progress) -> Finished(result). Результат
// захватывается только из терминальных обработчиков; исчерпание списка
// без явного завершения даёт сентинел конца.
//
// Политика устойчивости: отсутствие обработчика или его ошибка
// логируются, событие пропускается и исполнение продолжается.
// Исключение - отмена контекста: она прерывает главу целиком.
// Неудавшееся терминальное событие результата не фабрикует: глава
// остаётся Running и завершится сентинелом по исчерпанию.
type EventsHandler struct {
	progress int
	events   []models.ScriptEvent
	handlers []EventHandler // nil там, где тип события не зарегистрирован
	env      *Env

	result    string
	hasResult bool

	logger *zap.Logger
}

// NewEventsHandler строит интерпретатор: обработчики разрешаются по
// реестру один раз, при загрузке главы.
func NewEventsHandler(events []models.ScriptEvent, registry *HandlerRegistry, env *Env, logger *zap.Logger) *EventsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	handlers := make([]EventHandler, len(events))
	for i, ev := range events {
		if h, ok := registry.Resolve(ev.Type); ok {
			handlers[i] = h
		} else {
			logger.Warn("Нет обработчика для типа события, оно будет пропущено",
				zap.String("eventType", ev.Type), zap.Int("index", i))
		}
	}
	return &EventsHandler{
		events:   events,
		handlers: handlers,
		env:      env,
		logger:   logger.Named("EventsHandler"),
	}
}

// IsFinished сообщает, обработаны ли все события главы.
func (e *EventsHandler) IsFinished() bool {
	return e.hasResult || e.progress >= len(e.events)
}

// ChapterResult возвращает идентификатор следующей главы.
func (e *EventsHandler) ChapterResult() string {
	if e.hasResult {
		return e.result
	}
	return models.ChapterEndSentinel
}

// Progress возвращает индекс следующего события.
func (e *EventsHandler) Progress() int {
	return e.progress
}

// ProcessNext исполняет одно событие. No-op, если глава завершена.
// Возвращает ошибку только при отмене контекста.
func (e *EventsHandler) ProcessNext(ctx context.Context) error {
	if e.IsFinished() {
		return nil
	}

	event := e.events[e.progress]
	handler := e.handlers[e.progress]
	index := e.progress
	e.progress++

	e.logger.Info("Обработка события",
		zap.Int("index", index+1),
		zap.Int("total", len(e.events)),
		zap.String("eventType", event.Type))

	if handler == nil {
		// Уже залогировано при загрузке; пропускаем.
		return nil
	}

	result, err := handler.Execute(ctx, event, e.env)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		e.logger.Error("Ошибка обработки события, событие пропущено",
			zap.String("eventType", event.Type),
			zap.Int("index", index),
			zap.Error(err))
		return nil
	}

	if handler.Terminal() {
		e.result = result
		e.hasResult = true
	}
	return nil
}
