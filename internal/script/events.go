package script

import (
	"context"
	"errors"
	"fmt"

	"scene-server/internal/models"
)

// Встроенные обработчики событий главы. Каждый обработчик изолирован:
// его ошибка логируется EventsHandler'ом и не прерывает главу.

var errNoDialogueRunner = errors.New("dialogue runner не сконфигурирован")

// aiDialogueHandler передаёт слово AI-персонажу: делает его текущим,
// при необходимости добавляет скрытый промпт от имени игрока и ждёт
// конца стримовой генерации.
type aiDialogueHandler struct{}

func (h *aiDialogueHandler) Terminal() bool { return false }

func (h *aiDialogueHandler) Execute(ctx context.Context, event models.ScriptEvent, env *Env) (string, error) {
	role, err := env.Roles.ResolveRole(ctx, event.Character)
	if err != nil {
		return "", fmt.Errorf("персонаж %q: %w", event.Character, err)
	}

	env.lockScene()
	env.Status.CurrentCharacter = role
	if event.Prompt != "" {
		_, err = env.Status.AddLine(models.LineDraft{
			Content:     event.Prompt,
			Attribute:   models.AttributeUser,
			DisplayName: env.Status.Player.UserName,
		})
	}
	env.unlockScene()
	if err != nil {
		return "", err
	}

	if env.Dialogue == nil {
		return "", errNoDialogueRunner
	}
	return "", env.Dialogue.RunCharacterDialogue(ctx, env.ClientID, role)
}

// narrationHandler добавляет сценарную вставку рассказчика: в журнал
// она попадает системной репликой (видимой присутствующим), клиенту
// уходит отдельным событием.
type narrationHandler struct{}

func (h *narrationHandler) Terminal() bool { return false }

func (h *narrationHandler) Execute(ctx context.Context, event models.ScriptEvent, env *Env) (string, error) {
	env.lockScene()
	_, err := env.Status.AddLine(models.LineDraft{
		Content:     event.Content,
		Attribute:   models.AttributeSystem,
		DisplayName: event.DisplayName,
	})
	env.unlockScene()
	if err != nil {
		return "", err
	}
	if env.Broker != nil {
		env.Broker.Publish(env.ClientID, models.ClientEvent{
			Type:        models.ClientEventNarration,
			Content:     event.Content,
			DisplayName: event.DisplayName,
		})
	}
	return "", nil
}

// sceneChangeHandler обновляет фоновые атрибуты сцены.
// Пустое поле события оставляет соответствующий атрибут как есть.
type sceneChangeHandler struct{}

func (h *sceneChangeHandler) Terminal() bool { return false }

func (h *sceneChangeHandler) Execute(_ context.Context, event models.ScriptEvent, env *Env) (string, error) {
	env.lockScene()
	defer env.unlockScene()
	if event.Background != "" {
		env.Status.Background = event.Background
	}
	if event.Music != "" {
		env.Status.BackgroundMusic = event.Music
	}
	if event.Effect != "" {
		env.Status.BackgroundEffect = event.Effect
	}
	if env.Broker != nil {
		env.Broker.Publish(env.ClientID, models.ClientEvent{
			Type:       models.ClientEventSceneUpdate,
			Background: env.Status.Background,
			Music:      env.Status.BackgroundMusic,
			Effect:     env.Status.BackgroundEffect,
		})
	}
	return "", nil
}

// characterEnterHandler вводит персонажа в сцену: с этого момента он
// воспринимает новые реплики журнала.
type characterEnterHandler struct{}

func (h *characterEnterHandler) Terminal() bool { return false }

func (h *characterEnterHandler) Execute(ctx context.Context, event models.ScriptEvent, env *Env) (string, error) {
	role, err := env.Roles.ResolveRole(ctx, event.Character)
	if err != nil {
		return "", fmt.Errorf("персонаж %q: %w", event.Character, err)
	}
	env.lockScene()
	env.Status.EnterScene(role.RoleID)
	env.unlockScene()
	if env.Broker != nil {
		env.Broker.Publish(env.ClientID, models.ClientEvent{
			Type:      models.ClientEventCharacter,
			Character: event.Character,
			Entered:   true,
		})
	}
	return "", nil
}

// characterExitHandler выводит персонажа из сцены. Уже воспринятые им
// реплики остаются в его проекции: восприятие - снимок, а не подписка.
type characterExitHandler struct{}

func (h *characterExitHandler) Terminal() bool { return false }

func (h *characterExitHandler) Execute(ctx context.Context, event models.ScriptEvent, env *Env) (string, error) {
	role, err := env.Roles.ResolveRole(ctx, event.Character)
	if err != nil {
		return "", fmt.Errorf("персонаж %q: %w", event.Character, err)
	}
	env.lockScene()
	env.Status.LeaveScene(role.RoleID)
	env.unlockScene()
	if env.Broker != nil {
		env.Broker.Publish(env.ClientID, models.ClientEvent{
			Type:      models.ClientEventCharacter,
			Character: event.Character,
			Entered:   false,
		})
	}
	return "", nil
}

// chapterEndHandler - терминальное событие: возвращает идентификатор
// следующей главы (или сентинел конца, если он не задан).
type chapterEndHandler struct{}

func (h *chapterEndHandler) Terminal() bool { return true }

func (h *chapterEndHandler) Execute(_ context.Context, event models.ScriptEvent, _ *Env) (string, error) {
	if event.NextChapter == "" {
		return models.ChapterEndSentinel, nil
	}
	return event.NextChapter, nil
}
