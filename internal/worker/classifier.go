package worker

import (
	"context"
	"fmt"
	"strings"

	"scene-server/internal/models"
	"scene-server/pkg/ai"
)

// Словарь эмоций, которыми персонаж размечает свои реплики.
// Классификатор выбирает предсказанную эмоцию из того же словаря.
var emotionVocabulary = []string{
	"慌张", "担心", "尴尬", "紧张", "高兴", "自信", "害怕", "害羞", "认真",
	"生气", "无语", "厌恶", "疑惑", "难为情", "惊讶", "情动", "哭泣", "调皮",
}

const classifierSystemPrompt = `你是情绪分类器。给定一句台词,从下面的词表中选择最贴切的一个情绪词,只输出这个词,不要输出任何其他内容。
词表: %s`

// ProviderClassifier предсказывает эмоцию реплики через LLM-провайдер.
type ProviderClassifier struct {
	provider ai.Provider
	params   ai.GenerationParams
	allowed  map[string]struct{}
}

// NewProviderClassifier создаёт классификатор эмоций поверх провайдера.
func NewProviderClassifier(provider ai.Provider) *ProviderClassifier {
	allowed := make(map[string]struct{}, len(emotionVocabulary))
	for _, e := range emotionVocabulary {
		allowed[e] = struct{}{}
	}
	temperature := 0.0
	return &ProviderClassifier{
		provider: provider,
		params:   ai.GenerationParams{Temperature: &temperature},
		allowed:  allowed,
	}
}

// Classify возвращает эмоцию из словаря. Ответ провайдера вне словаря
// считается ошибкой классификации.
func (c *ProviderClassifier) Classify(ctx context.Context, content, originalEmotion string) (string, error) {
	messages := []models.ChatMessage{
		{Role: models.ChatRoleSystem, Content: fmt.Sprintf(classifierSystemPrompt, strings.Join(emotionVocabulary, "、"))},
		{Role: models.ChatRoleUser, Content: content},
	}

	reply, _, err := c.provider.GenerateChat(ctx, "emotion-classifier", messages, c.params)
	if err != nil {
		return "", fmt.Errorf("классификация эмоции: %w", err)
	}

	emotion := strings.TrimSpace(strings.Trim(strings.TrimSpace(reply), "【】"))
	if _, ok := c.allowed[emotion]; !ok {
		return "", fmt.Errorf("классификатор вернул эмоцию вне словаря: %q", emotion)
	}
	return emotion, nil
}
