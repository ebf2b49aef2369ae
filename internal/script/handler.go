package script

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"scene-server/internal/game"
	"scene-server/internal/models"
)

// RoleResolver находит (или лениво создаёт) роль сценария по её ключу
// и возвращает рантайм-экземпляр из реестра текущей сцены.
type RoleResolver interface {
	ResolveRole(ctx context.Context, scriptRoleKey string) (*models.GameRole, error)
}

// DialogueRunner запускает генерацию реплики персонажа: строит вход LLM из
// проекции роли, стримит ответ и публикует фрагменты клиенту. Блокируется
// до конца стрима; отмена ctx прерывает генерацию.
type DialogueRunner interface {
	RunCharacterDialogue(ctx context.Context, clientID string, role *models.GameRole) error
}

// ClientPublisher - sink публикаций для клиента (fire-and-forget).
type ClientPublisher interface {
	Publish(clientID string, event models.ClientEvent)
}

// Env - всё, что доступно обработчикам событий при исполнении главы.
type Env struct {
	Status   *game.GameStatus
	Roles    RoleResolver
	Dialogue DialogueRunner
	Broker   ClientPublisher
	ClientID string
	Logger   *zap.Logger

	// Scene сериализует доступ к Status с операциями вне прогона:
	// сообщениями игрока и воркером обогащения. Обработчики держат его
	// только на время правки состояния, не на время генерации.
	Scene sync.Locker
}

func (e *Env) lockScene() {
	if e.Scene != nil {
		e.Scene.Lock()
	}
}

func (e *Env) unlockScene() {
	if e.Scene != nil {
		e.Scene.Unlock()
	}
}

// EventHandler исполняет одно событие главы. Результат - идентификатор
// следующей главы; он учитывается только для терминальных обработчиков.
type EventHandler interface {
	Execute(ctx context.Context, event models.ScriptEvent, env *Env) (string, error)
	// Terminal сообщает, завершает ли событие этого типа главу.
	Terminal() bool
}

// HandlerRegistry - реестр фабрик обработчиков по типу события.
// Набор типов открыт: пакеты могут регистрировать свои обработчики.
// Разрешение типов происходит при построении главы, а не при исполнении.
type HandlerRegistry struct {
	factories map[string]func() EventHandler
}

// NewHandlerRegistry создаёт пустой реестр.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{factories: make(map[string]func() EventHandler)}
}

// Register регистрирует фабрику обработчика для типа события.
// Повторная регистрация заменяет предыдущую.
func (r *HandlerRegistry) Register(eventType string, factory func() EventHandler) {
	r.factories[eventType] = factory
}

// Resolve возвращает новый обработчик для типа события.
func (r *HandlerRegistry) Resolve(eventType string) (EventHandler, bool) {
	factory, ok := r.factories[eventType]
	if !ok {
		return nil, false
	}
	return factory(), true
}

// DefaultRegistry возвращает реестр со всеми встроенными обработчиками.
func DefaultRegistry() *HandlerRegistry {
	r := NewHandlerRegistry()
	r.Register(models.EventTypeAIDialogue, func() EventHandler { return &aiDialogueHandler{} })
	r.Register(models.EventTypeNarration, func() EventHandler { return &narrationHandler{} })
	r.Register(models.EventTypeSceneChange, func() EventHandler { return &sceneChangeHandler{} })
	r.Register(models.EventTypeCharacterEnter, func() EventHandler { return &characterEnterHandler{} })
	r.Register(models.EventTypeCharacterExit, func() EventHandler { return &characterExitHandler{} })
	r.Register(models.EventTypeChapterEnd, func() EventHandler { return &chapterEndHandler{} })
	return r
}
