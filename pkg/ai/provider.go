package ai

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"scene-server/internal/models"
)

var log = zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()

// ErrGenerationFailed - ошибка при генерации текста AI
var ErrGenerationFailed = errors.New("ошибка генерации текста AI")

// GenerationParams - параметры генерации. Указатели, чтобы отличить
// 0/0.0 от отсутствия значения.
type GenerationParams struct {
	Temperature *float64
	MaxTokens   *int
	TopP        *float64
}

// UsageInfo содержит информацию об использовании токенов.
type UsageInfo struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Provider - интерфейс LLM-провайдера для диалоговой генерации.
type Provider interface {
	// GenerateChat генерирует ответ на историю сообщений целиком.
	GenerateChat(ctx context.Context, userID string, messages []models.ChatMessage, params GenerationParams) (string, UsageInfo, error)
	// GenerateChatStream генерирует ответ в потоковом режиме, вызывая
	// chunkHandler для каждого фрагмента. Возвращает полный собранный текст.
	GenerateChatStream(ctx context.Context, userID string, messages []models.ChatMessage, params GenerationParams, chunkHandler func(string) error) (string, UsageInfo, error)
}

func float32Val(f64 *float64) float32 {
	if f64 == nil {
		return 1.0
	}
	return float32(*f64)
}

func float64Val(f64 *float64) float64 {
	if f64 == nil {
		return 1.0
	}
	return *f64
}

func intVal(i *int) int {
	if i == nil {
		return 0
	}
	return *i
}
