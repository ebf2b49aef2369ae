package ai

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/prometheus/client_golang/prometheus"

	"scene-server/internal/models"
)

// ollamaClient реализует Provider с использованием нативного API Ollama.
type ollamaClient struct {
	client  *api.Client
	model   string
	timeout time.Duration
}

// NewOllamaProvider создаёт провайдер для локальной Ollama.
// api.NewClient требует URL без суффикса /v1.
func NewOllamaProvider(baseURL, model string, timeout time.Duration) (Provider, error) {
	if model == "" {
		return nil, fmt.Errorf("не указана модель Ollama")
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	ollamaBaseURL := strings.TrimSuffix(baseURL, "/v1")
	ollamaBaseURL = strings.TrimSuffix(ollamaBaseURL, "/")
	parsedURL, err := url.Parse(ollamaBaseURL)
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга Ollama Base URL '%s': %w", ollamaBaseURL, err)
	}

	client := api.NewClient(parsedURL, &http.Client{Timeout: timeout})
	log.Info().Str("baseURL", ollamaBaseURL).Str("model", model).Msg("Ollama провайдер создан")
	return &ollamaClient{client: client, model: model, timeout: timeout}, nil
}

func toOllamaMessages(messages []models.ChatMessage) []api.Message {
	out := make([]api.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, api.Message{Role: string(m.Role), Content: m.Content})
	}
	return out
}

func (c *ollamaClient) options(params GenerationParams) map[string]interface{} {
	return map[string]interface{}{
		"temperature": float64Val(params.Temperature),
		"top_p":       float64Val(params.TopP),
		"num_predict": intVal(params.MaxTokens),
	}
}

// GenerateChat генерирует ответ без стриминга.
func (c *ollamaClient) GenerateChat(ctx context.Context, userID string, messages []models.ChatMessage, params GenerationParams) (string, UsageInfo, error) {
	usage := UsageInfo{}
	if len(messages) == 0 {
		return "", usage, fmt.Errorf("%w: пустая история сообщений", ErrGenerationFailed)
	}

	req := &api.ChatRequest{
		Model:    c.model,
		Messages: toOllamaMessages(messages),
		Stream:   func(b bool) *bool { return &b }(false),
		Options:  c.options(params),
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	var resp api.ChatResponse
	err := c.client.Chat(requestCtx, req, func(r api.ChatResponse) error {
		resp = r
		return nil
	})
	duration := time.Since(start)

	if err != nil {
		log.Error().Err(err).Str("userID", userID).Msg("Ошибка запроса к Ollama")
		aiRequestsTotal.With(prometheus.Labels{"model": c.model, "status": "error"}).Inc()
		return "", usage, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if resp.Message.Content == "" {
		aiRequestsTotal.With(prometheus.Labels{"model": c.model, "status": "error_empty_response"}).Inc()
		return "", usage, fmt.Errorf("%w: получен пустой ответ", ErrGenerationFailed)
	}

	aiRequestsTotal.With(prometheus.Labels{"model": c.model, "status": "success"}).Inc()
	aiRequestDuration.With(prometheus.Labels{"model": c.model}).Observe(duration.Seconds())
	usage.PromptTokens = resp.Metrics.PromptEvalCount
	usage.CompletionTokens = resp.Metrics.EvalCount
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	return resp.Message.Content, usage, nil
}

// GenerateChatStream генерирует ответ, отдавая фрагменты через chunkHandler.
func (c *ollamaClient) GenerateChatStream(ctx context.Context, userID string, messages []models.ChatMessage, params GenerationParams, chunkHandler func(string) error) (string, UsageInfo, error) {
	usage := UsageInfo{}
	if len(messages) == 0 {
		return "", usage, fmt.Errorf("%w: пустая история сообщений", ErrGenerationFailed)
	}

	req := &api.ChatRequest{
		Model:    c.model,
		Messages: toOllamaMessages(messages),
		Options:  c.options(params),
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	var builder strings.Builder
	err := c.client.Chat(requestCtx, req, func(r api.ChatResponse) error {
		if r.Message.Content != "" {
			builder.WriteString(r.Message.Content)
			if chunkHandler != nil {
				if err := chunkHandler(r.Message.Content); err != nil {
					log.Warn().Err(err).Str("userID", userID).Msg("Ошибка обработчика чанка стрима")
				}
			}
		}
		if r.Done {
			usage.PromptTokens = r.Metrics.PromptEvalCount
			usage.CompletionTokens = r.Metrics.EvalCount
			usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
		}
		return nil
	})
	duration := time.Since(start)

	if err != nil {
		log.Error().Err(err).Str("userID", userID).Msg("Ошибка стрима Ollama")
		aiRequestsTotal.With(prometheus.Labels{"model": c.model, "status": "error_stream_read"}).Inc()
		return builder.String(), usage, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	aiRequestsTotal.With(prometheus.Labels{"model": c.model, "status": "success_stream"}).Inc()
	aiRequestDuration.With(prometheus.Labels{"model": c.model}).Observe(duration.Seconds())
	return builder.String(), usage, nil
}
