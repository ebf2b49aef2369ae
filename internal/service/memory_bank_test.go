package service_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"scene-server/internal/models"
	"scene-server/internal/service"
	"scene-server/pkg/ai"
)

type MockBankRepository struct {
	mock.Mock
}

func (m *MockBankRepository) GetSummary(ctx context.Context, saveID uuid.UUID, roleID int64) (string, error) {
	args := m.Called(ctx, saveID, roleID)
	return args.String(0), args.Error(1)
}

func (m *MockBankRepository) SaveSummary(ctx context.Context, saveID uuid.UUID, roleID int64, summary string) error {
	return m.Called(ctx, saveID, roleID, summary).Error(0)
}

func TestMemoryBankInject(t *testing.T) {
	saveID := uuid.New()
	history := []models.ChatMessage{
		{Role: models.ChatRoleSystem, Content: "Ты страж."},
		{Role: models.ChatRoleUser, Content: "Привет."},
		{Role: models.ChatRoleAssistant, Content: "Стой."},
	}

	t.Run("Summary lands after leading system messages", func(t *testing.T) {
		repo := &MockBankRepository{}
		repo.On("GetSummary", mock.Anything, saveID, int64(7)).Return("Игрок приходил вчера.", nil).Once()
		bank := service.NewMemoryBankService(&MockProvider{}, repo, 0, zap.NewNop())

		out := bank.Inject(context.Background(), saveID, 7, history)
		require.Len(t, out, 4)
		assert.Equal(t, models.ChatRoleSystem, out[1].Role)
		assert.Contains(t, out[1].Content, "Игрок приходил вчера.")
		assert.Equal(t, "Привет.", out[2].Content)
		repo.AssertExpectations(t)
	})

	t.Run("No summary yet injects the accumulation placeholder", func(t *testing.T) {
		repo := &MockBankRepository{}
		repo.On("GetSummary", mock.Anything, saveID, int64(7)).Return("", nil).Once()
		bank := service.NewMemoryBankService(&MockProvider{}, repo, 0, zap.NewNop())

		out := bank.Inject(context.Background(), saveID, 7, history)
		require.Len(t, out, 4)
		assert.Equal(t, models.ChatRoleSystem, out[1].Role)
		assert.Equal(t, "【记忆库：暂无长期记忆，正在积累对话...】", out[1].Content)
		assert.Equal(t, "Привет.", out[2].Content)
	})

	t.Run("Repository error keeps history as is", func(t *testing.T) {
		repo := &MockBankRepository{}
		repo.On("GetSummary", mock.Anything, saveID, int64(7)).Return("", assert.AnError).Once()
		bank := service.NewMemoryBankService(&MockProvider{}, repo, 0, zap.NewNop())

		out := bank.Inject(context.Background(), saveID, 7, history)
		assert.Equal(t, history, out)
	})
}

// runeCounter считает токены по символам: юнит-тестам не нужен сетевой
// BPE-словарь счётчика по умолчанию.
func runeCounter(messages []models.ChatMessage) int {
	total := 0
	for _, m := range messages {
		total += len([]rune(m.Content))
	}
	return total
}

func TestMemoryBankMaybeUpdateBelowThreshold(t *testing.T) {
	repo := &MockBankRepository{}
	provider := &MockProvider{}
	bank := service.NewMemoryBankService(provider, repo, 1_000_000, zap.NewNop())
	bank.SetTokenCounter(runeCounter)

	bank.MaybeUpdate(uuid.New(), 7, []models.ChatMessage{
		{Role: models.ChatRoleUser, Content: "короткая история"},
	})

	// Порог не достигнут: ни генерации, ни записи.
	provider.AssertNotCalled(t, "GenerateChat", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "SaveSummary", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMemoryBankUpdateSummarizesDialogue(t *testing.T) {
	saveID := uuid.New()
	repo := &MockBankRepository{}
	provider := &MockProvider{}
	bank := service.NewMemoryBankService(provider, repo, 1, zap.NewNop())
	bank.SetTokenCounter(runeCounter)

	saved := make(chan string, 1)
	provider.On("GenerateChat", mock.Anything, saveID.String(),
		mock.MatchedBy(func(messages []models.ChatMessage) bool {
			// Системные сообщения истории в транскрипт не попадают.
			return len(messages) == 2 && !strings.Contains(messages[1].Content, "Ты страж.")
		}), ai.GenerationParams{}).
		Return("  Сводка.  ", ai.UsageInfo{}, nil).Once()
	repo.On("SaveSummary", mock.Anything, saveID, int64(7), "Сводка.").
		Run(func(args mock.Arguments) { saved <- args.String(3) }).
		Return(nil).Once()

	bank.MaybeUpdate(saveID, 7, []models.ChatMessage{
		{Role: models.ChatRoleSystem, Content: "Ты страж."},
		{Role: models.ChatRoleUser, Content: "Привет, длинная история диалога."},
		{Role: models.ChatRoleAssistant, Content: "Стой, кто идёт?"},
	})

	select {
	case got := <-saved:
		assert.Equal(t, "Сводка.", got)
	case <-time.After(5 * time.Second):
		t.Fatal("сводка не сохранена")
	}
	provider.AssertExpectations(t)
	repo.AssertExpectations(t)
}
