package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pkoukk/tiktoken-go"
	"github.com/prometheus/client_golang/prometheus"
	openaigo "github.com/sashabaranov/go-openai"

	"scene-server/internal/models"
)

// OpenAIConfig содержит конфигурацию OpenAI-совместимого провайдера.
// BaseURL позволяет ходить в совместимые API (OpenRouter, DeepSeek и т.п.).
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// openAIProvider реализует Provider с использованием go-openai.
type openAIProvider struct {
	client     *openaigo.Client
	model      string
	timeout    time.Duration
	maxRetries int
}

// NewOpenAIProvider создаёт провайдер поверх OpenAI-совместимого API.
func NewOpenAIProvider(cfg OpenAIConfig) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("не указан API ключ для LLM-провайдера")
	}
	if cfg.Model == "" {
		return nil, errors.New("не указана модель LLM-провайдера")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	config := openaigo.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	log.Info().Str("model", cfg.Model).Str("baseURL", config.BaseURL).Msg("OpenAI провайдер создан")
	return &openAIProvider{
		client:     openaigo.NewClientWithConfig(config),
		model:      cfg.Model,
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
	}, nil
}

func toOpenAIMessages(messages []models.ChatMessage) []openaigo.ChatCompletionMessage {
	out := make([]openaigo.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openaigo.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return out
}

// GenerateChat генерирует ответ на историю сообщений с ретраями.
func (p *openAIProvider) GenerateChat(ctx context.Context, userID string, messages []models.ChatMessage, params GenerationParams) (string, UsageInfo, error) {
	usage := UsageInfo{}
	if len(messages) == 0 {
		return "", usage, fmt.Errorf("%w: пустая история сообщений", ErrGenerationFailed)
	}

	req := openaigo.ChatCompletionRequest{
		Model:       p.model,
		Messages:    toOpenAIMessages(messages),
		Temperature: float32Val(params.Temperature),
		MaxTokens:   intVal(params.MaxTokens),
		TopP:        float32Val(params.TopP),
	}

	var lastErr error
	for attempt := 1; attempt <= p.maxRetries; attempt++ {
		requestCtx, cancel := context.WithTimeout(ctx, p.timeout)
		start := time.Now()
		resp, err := p.client.CreateChatCompletion(requestCtx, req)
		cancel()
		duration := time.Since(start)

		if err != nil {
			lastErr = err
			log.Warn().Err(err).Str("userID", userID).Int("attempt", attempt).Msg("Ошибка запроса к AI API")
			aiRequestsTotal.With(prometheus.Labels{"model": p.model, "status": "error"}).Inc()
			if ctx.Err() != nil {
				break
			}
			time.Sleep(time.Duration(attempt) * time.Second)
			continue
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
			lastErr = errors.New("получен пустой ответ")
			aiRequestsTotal.With(prometheus.Labels{"model": p.model, "status": "error_empty_response"}).Inc()
			continue
		}

		aiRequestsTotal.With(prometheus.Labels{"model": p.model, "status": "success"}).Inc()
		aiRequestDuration.With(prometheus.Labels{"model": p.model}).Observe(duration.Seconds())
		if resp.Usage.TotalTokens > 0 {
			usage.PromptTokens = resp.Usage.PromptTokens
			usage.CompletionTokens = resp.Usage.CompletionTokens
			usage.TotalTokens = resp.Usage.TotalTokens
			aiPromptTokens.With(prometheus.Labels{"model": p.model}).Observe(float64(usage.PromptTokens))
			aiCompletionTokens.With(prometheus.Labels{"model": p.model}).Observe(float64(usage.CompletionTokens))
		}
		return resp.Choices[0].Message.Content, usage, nil
	}
	return "", usage, fmt.Errorf("%w: %v", ErrGenerationFailed, lastErr)
}

// GenerateChatStream генерирует ответ в потоковом режиме.
// Ошибка chunkHandler логируется, но стрим не прерывается: потеря
// доставки фрагмента не повод бросать уже оплаченную генерацию.
func (p *openAIProvider) GenerateChatStream(ctx context.Context, userID string, messages []models.ChatMessage, params GenerationParams, chunkHandler func(string) error) (string, UsageInfo, error) {
	usage := UsageInfo{}
	if len(messages) == 0 {
		return "", usage, fmt.Errorf("%w: пустая история сообщений", ErrGenerationFailed)
	}

	req := openaigo.ChatCompletionRequest{
		Model:       p.model,
		Messages:    toOpenAIMessages(messages),
		Stream:      true,
		Temperature: float32Val(params.Temperature),
		MaxTokens:   intVal(params.MaxTokens),
		TopP:        float32Val(params.TopP),
	}

	requestCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	stream, err := p.client.CreateChatCompletionStream(requestCtx, req)
	if err != nil {
		log.Error().Err(err).Str("userID", userID).Msg("Ошибка создания стрима AI API")
		aiRequestsTotal.With(prometheus.Labels{"model": p.model, "status": "error_stream_init"}).Inc()
		return "", usage, fmt.Errorf("%w: ошибка создания стрима: %v", ErrGenerationFailed, err)
	}
	defer stream.Close()

	start := time.Now()
	var builder strings.Builder
	var finalUsage openaigo.Usage

	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Error().Err(err).Str("userID", userID).Msg("Ошибка чтения стрима AI API")
			aiRequestsTotal.With(prometheus.Labels{"model": p.model, "status": "error_stream_read"}).Inc()
			return builder.String(), usage, fmt.Errorf("%w: ошибка чтения стрима: %v", ErrGenerationFailed, err)
		}

		// Usage приходит отдельным финальным блоком, если пришёл вообще.
		if response.Usage != nil && response.Usage.TotalTokens > 0 {
			finalUsage = *response.Usage
		}

		if len(response.Choices) > 0 {
			chunk := response.Choices[0].Delta.Content
			if chunk == "" {
				continue
			}
			builder.WriteString(chunk)
			if chunkHandler != nil {
				if err := chunkHandler(chunk); err != nil {
					log.Warn().Err(err).Str("userID", userID).Msg("Ошибка обработчика чанка стрима")
				}
			}
		}
	}

	duration := time.Since(start)
	aiRequestsTotal.With(prometheus.Labels{"model": p.model, "status": "success_stream"}).Inc()
	aiRequestDuration.With(prometheus.Labels{"model": p.model}).Observe(duration.Seconds())

	text := builder.String()
	if finalUsage.TotalTokens > 0 {
		usage.PromptTokens = finalUsage.PromptTokens
		usage.CompletionTokens = finalUsage.CompletionTokens
		usage.TotalTokens = finalUsage.TotalTokens
	} else {
		// Финальный Usage не пришёл - оцениваем токены сами.
		usage = estimateUsage(p.model, messages, text)
	}
	if usage.TotalTokens > 0 {
		aiPromptTokens.With(prometheus.Labels{"model": p.model}).Observe(float64(usage.PromptTokens))
		aiCompletionTokens.With(prometheus.Labels{"model": p.model}).Observe(float64(usage.CompletionTokens))
	}
	return text, usage, nil
}

// estimateUsage приблизительно считает токены через tiktoken, когда API
// не вернул точный Usage. Неизвестная модель считается по cl100k_base.
func estimateUsage(model string, messages []models.ChatMessage, completion string) UsageInfo {
	tke, err := tiktoken.EncodingForModel(model)
	if err != nil {
		tke, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			log.Warn().Str("model", model).Msg("Токенизатор недоступен, подсчёт токенов пропущен")
			return UsageInfo{}
		}
	}
	usage := UsageInfo{}
	for _, m := range messages {
		usage.PromptTokens += len(tke.Encode(m.Content, nil, nil))
	}
	usage.CompletionTokens = len(tke.Encode(completion, nil, nil))
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	return usage
}
