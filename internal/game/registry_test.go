package game_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"scene-server/internal/game"
	"scene-server/internal/models"
)

func TestRoleRegistryGetOrCreate(t *testing.T) {
	registry := game.NewRoleRegistry(zap.NewNop())

	first := registry.GetOrCreate(heroID)
	second := registry.GetOrCreate(heroID)

	assert.Same(t, first, second)
	assert.Equal(t, heroID, first.RoleID)
	assert.True(t, registry.Exists(heroID))
	assert.False(t, registry.Exists(guardID))
}

func TestRoleRegistryHistoryDoesNotCreate(t *testing.T) {
	registry := game.NewRoleRegistry(zap.NewNop())

	// Чтение проекции незнакомой роли не заводит её в кеше.
	assert.Nil(t, registry.History(heroID))
	assert.False(t, registry.Exists(heroID))

	registry.GetOrCreate(heroID).Memory = []models.ChatMessage{{Role: models.ChatRoleUser, Content: "эй"}}
	assert.Len(t, registry.History(heroID), 1)
}

func TestRoleRegistryRefresh(t *testing.T) {
	t.Run("Active roles get rebuilt projections", func(t *testing.T) {
		registry := game.NewRoleRegistry(zap.NewNop())
		lines := perceptionScenarioLines()

		require.NoError(t, registry.Refresh(lines, 0))

		hero := registry.GetOrCreate(heroID)
		require.Len(t, hero.Memory, 2)
		assert.Equal(t, "Hero", hero.DisplayName)

		guard := registry.GetOrCreate(guardID)
		assert.Len(t, guard.Memory, 3)
		assert.Equal(t, "Guard", guard.DisplayName)

		// Рассказчик активен как отправитель системной реплики.
		assert.True(t, registry.Exists(narratorID))
	})

	t.Run("Stale roles are evicted by the sliding window", func(t *testing.T) {
		registry := game.NewRoleRegistry(zap.NewNop())
		lines := perceptionScenarioLines()
		require.NoError(t, registry.Refresh(lines, 0))
		require.True(t, registry.Exists(guardID))

		// Окно, в котором Guard вообще не фигурирует.
		onlyHero := []models.PerceivedLine{line(10, "Один.", models.AttributeAssistant, heroID)}
		require.NoError(t, registry.Refresh(onlyHero, 0))

		assert.False(t, registry.Exists(guardID))
		// После вытеснения роль создаётся заново с пустой памятью,
		// а не со старым кешем.
		fresh := registry.GetOrCreate(guardID)
		assert.Empty(t, fresh.Memory)
	})

	t.Run("Display name is kept when the window has no self-authored line", func(t *testing.T) {
		registry := game.NewRoleRegistry(zap.NewNop())
		require.NoError(t, registry.Refresh(perceptionScenarioLines(), 0))

		// Hero ничего не говорит, но воспринимает реплику Guard.
		next := []models.PerceivedLine{line(10, "Хм.", models.AttributeAssistant, guardID, heroID)}
		require.NoError(t, registry.Refresh(next, 0))

		assert.Equal(t, "Hero", registry.GetOrCreate(heroID).DisplayName)
	})

	t.Run("Refresh is atomic on malformed line data", func(t *testing.T) {
		registry := game.NewRoleRegistry(zap.NewNop())
		require.NoError(t, registry.Refresh(perceptionScenarioLines(), 0))
		before := registry.GetOrCreate(guardID).Memory

		bad := []models.PerceivedLine{
			line(10, "ок", models.AttributeAssistant, guardID, heroID),
			line(11, "битая", models.LineAttribute("weird"), guardID, heroID),
		}
		err := registry.Refresh(bad, 0)
		require.Error(t, err)

		// Кеш не изменился и не содержит частичного состояния.
		assert.Equal(t, before, registry.GetOrCreate(guardID).Memory)
	})

	t.Run("Window argument limits the source lines", func(t *testing.T) {
		registry := game.NewRoleRegistry(zap.NewNop())
		lines := perceptionScenarioLines()

		require.NoError(t, registry.Refresh(lines, 1))
		// В окне только системная реплика рассказчика.
		assert.False(t, registry.Exists(playerID))
		assert.True(t, registry.Exists(narratorID))
		hero := registry.GetOrCreate(heroID)
		require.Len(t, hero.Memory, 1)
		assert.Equal(t, models.ChatRoleSystem, hero.Memory[0].Role)
	})
}
