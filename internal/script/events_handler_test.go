package script_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"scene-server/internal/game"
	"scene-server/internal/models"
	"scene-server/internal/script"
)

// --- Тестовые дублёры ---

type stubResolver struct {
	nextID int64
	roles  map[string]*models.GameRole
}

func newStubResolver() *stubResolver {
	return &stubResolver{roles: make(map[string]*models.GameRole)}
}

func (r *stubResolver) ResolveRole(_ context.Context, key string) (*models.GameRole, error) {
	if role, ok := r.roles[key]; ok {
		return role, nil
	}
	r.nextID++
	role := &models.GameRole{RoleID: r.nextID, DisplayName: key}
	r.roles[key] = role
	return role, nil
}

type recordingDialogue struct {
	characters []string
	err        error
}

func (d *recordingDialogue) RunCharacterDialogue(_ context.Context, _ string, role *models.GameRole) error {
	d.characters = append(d.characters, role.DisplayName)
	return d.err
}

type recordingBroker struct {
	events []models.ClientEvent
}

func (b *recordingBroker) Publish(_ string, event models.ClientEvent) {
	b.events = append(b.events, event)
}

func newTestEnv() (*script.Env, *recordingDialogue, *recordingBroker) {
	dialogue := &recordingDialogue{}
	broker := &recordingBroker{}
	env := &script.Env{
		Status:   game.NewGameStatus(zap.NewNop()),
		Roles:    newStubResolver(),
		Dialogue: dialogue,
		Broker:   broker,
		ClientID: "client-1",
	}
	return env, dialogue, broker
}

// Обработчик, падающий при каждом вызове.
type failingHandler struct{ terminal bool }

func (h *failingHandler) Terminal() bool { return h.terminal }
func (h *failingHandler) Execute(context.Context, models.ScriptEvent, *script.Env) (string, error) {
	return "", fmt.Errorf("сломан")
}

// --- Тесты ---

func TestEventsHandlerExhaustion(t *testing.T) {
	env, _, _ := newTestEnv()
	events := []models.ScriptEvent{
		{Type: models.EventTypeSceneChange, Background: "лес"},
		{Type: models.EventTypeNarration, Content: "Темнеет."},
	}
	h := script.NewEventsHandler(events, script.DefaultRegistry(), env, zap.NewNop())

	ctx := context.Background()
	for !h.IsFinished() {
		require.NoError(t, h.ProcessNext(ctx))
	}

	// Исчерпание без терминального события даёт сентинел, а не ошибку.
	assert.Equal(t, models.ChapterEndSentinel, h.ChapterResult())
	assert.Equal(t, "лес", env.Status.Background)
}

func TestEventsHandlerChapterEnd(t *testing.T) {
	env, _, _ := newTestEnv()
	events := []models.ScriptEvent{
		{Type: models.EventTypeChapterEnd, NextChapter: "chapter_02"},
		{Type: models.EventTypeNarration, Content: "не должно исполниться"},
	}
	h := script.NewEventsHandler(events, script.DefaultRegistry(), env, zap.NewNop())

	require.NoError(t, h.ProcessNext(context.Background()))
	assert.True(t, h.IsFinished())
	assert.Equal(t, "chapter_02", h.ChapterResult())
	assert.Equal(t, 0, env.Status.Journal.Len())
}

func TestEventsHandlerSkipAndContinue(t *testing.T) {
	t.Run("Unknown event type is skipped", func(t *testing.T) {
		env, _, _ := newTestEnv()
		events := []models.ScriptEvent{
			{Type: "teleport"}, // такого обработчика нет
			{Type: models.EventTypeChapterEnd, NextChapter: "next"},
		}
		h := script.NewEventsHandler(events, script.DefaultRegistry(), env, zap.NewNop())

		ctx := context.Background()
		require.NoError(t, h.ProcessNext(ctx))
		assert.False(t, h.IsFinished())
		require.NoError(t, h.ProcessNext(ctx))
		assert.Equal(t, "next", h.ChapterResult())
	})

	t.Run("Handler error does not abort the chapter", func(t *testing.T) {
		env, dialogue, _ := newTestEnv()
		dialogue.err = errors.New("генератор недоступен")
		events := []models.ScriptEvent{
			{Type: models.EventTypeAIDialogue, Character: "hero"},
			{Type: models.EventTypeChapterEnd, NextChapter: "next"},
		}
		h := script.NewEventsHandler(events, script.DefaultRegistry(), env, zap.NewNop())

		ctx := context.Background()
		require.NoError(t, h.ProcessNext(ctx))
		require.NoError(t, h.ProcessNext(ctx))
		assert.Equal(t, "next", h.ChapterResult())
	})

	t.Run("Failed terminal event does not fabricate a result", func(t *testing.T) {
		env, _, _ := newTestEnv()
		registry := script.NewHandlerRegistry()
		registry.Register("broken_end", func() script.EventHandler { return &failingHandler{terminal: true} })

		events := []models.ScriptEvent{{Type: "broken_end"}}
		h := script.NewEventsHandler(events, registry, env, zap.NewNop())

		require.NoError(t, h.ProcessNext(context.Background()))
		// Результат не захвачен; глава завершена исчерпанием с сентинелом.
		assert.True(t, h.IsFinished())
		assert.Equal(t, models.ChapterEndSentinel, h.ChapterResult())
	})
}

func TestEventsHandlerProcessNextWhenFinished(t *testing.T) {
	env, _, _ := newTestEnv()
	h := script.NewEventsHandler(nil, script.DefaultRegistry(), env, zap.NewNop())

	assert.True(t, h.IsFinished())
	require.NoError(t, h.ProcessNext(context.Background()))
	assert.Equal(t, 0, h.Progress())
}

func TestEventsHandlerContextCancellation(t *testing.T) {
	env, dialogue, _ := newTestEnv()
	dialogue.err = context.Canceled
	events := []models.ScriptEvent{{Type: models.EventTypeAIDialogue, Character: "hero"}}
	h := script.NewEventsHandler(events, script.DefaultRegistry(), env, zap.NewNop())

	err := h.ProcessNext(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuiltinHandlers(t *testing.T) {
	t.Run("ai_dialogue appends hidden prompt and runs generation", func(t *testing.T) {
		env, dialogue, _ := newTestEnv()
		env.Status.Player.UserName = "Игрок"
		events := []models.ScriptEvent{
			{Type: models.EventTypeAIDialogue, Character: "hero", Prompt: "Поприветствуй игрока."},
		}
		h := script.NewEventsHandler(events, script.DefaultRegistry(), env, zap.NewNop())
		require.NoError(t, h.ProcessNext(context.Background()))

		require.Equal(t, []string{"hero"}, dialogue.characters)
		require.Equal(t, 1, env.Status.Journal.Len())
		prompt := env.Status.Journal.Lines()[0]
		assert.Equal(t, models.AttributeUser, prompt.Attribute)
		assert.Equal(t, "Поприветствуй игрока.", prompt.Content)
		assert.Equal(t, "Игрок", prompt.DisplayName)
		assert.NotNil(t, env.Status.CurrentCharacter)
	})

	t.Run("character enter and exit drive the presence set", func(t *testing.T) {
		env, _, broker := newTestEnv()
		registry := script.DefaultRegistry()
		ctx := context.Background()

		enter := script.NewEventsHandler([]models.ScriptEvent{
			{Type: models.EventTypeCharacterEnter, Character: "guard"},
		}, registry, env, zap.NewNop())
		require.NoError(t, enter.ProcessNext(ctx))
		assert.Equal(t, 1, env.Status.Presence.Len())

		exit := script.NewEventsHandler([]models.ScriptEvent{
			{Type: models.EventTypeCharacterExit, Character: "guard"},
		}, registry, env, zap.NewNop())
		require.NoError(t, exit.ProcessNext(ctx))
		assert.Equal(t, 0, env.Status.Presence.Len())

		require.Len(t, broker.events, 2)
		assert.True(t, broker.events[0].Entered)
		assert.False(t, broker.events[1].Entered)
	})

	t.Run("narration is journaled as a system line", func(t *testing.T) {
		env, _, broker := newTestEnv()
		env.Status.EnterScene(1)
		events := []models.ScriptEvent{
			{Type: models.EventTypeNarration, Content: "Ветер воет.", DisplayName: "Рассказчик"},
		}
		h := script.NewEventsHandler(events, script.DefaultRegistry(), env, zap.NewNop())
		require.NoError(t, h.ProcessNext(context.Background()))

		require.Equal(t, 1, env.Status.Journal.Len())
		l := env.Status.Journal.Lines()[0]
		assert.Equal(t, models.AttributeSystem, l.Attribute)
		assert.ElementsMatch(t, []int64{1}, l.PerceivedRoleIDs)
		require.Len(t, broker.events, 1)
		assert.Equal(t, models.ClientEventNarration, broker.events[0].Type)
	})
}
