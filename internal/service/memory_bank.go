package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"

	"scene-server/internal/models"
	"scene-server/pkg/ai"
)

const (
	defaultBankTokenThreshold = 3000
	bankEncoding              = "cl100k_base"
	bankUpdateTimeout         = 90 * time.Second
)

const bankSummaryPrompt = "Ты ведёшь дневник персонажа от его лица. Сожми переданную историю диалога " +
	"в краткую сводку: ключевые события, обещания, отношение к собеседникам. " +
	"Пиши в прошедшем времени, без разметки, не более десяти предложений."

// Блок памяти до первой сводки.
const bankEmptyPlaceholder = "【记忆库：暂无长期记忆，正在积累对话...】"

// BankRepository - персистентное хранилище сводок банка памяти.
type BankRepository interface {
	GetSummary(ctx context.Context, saveID uuid.UUID, roleID int64) (string, error)
	SaveSummary(ctx context.Context, saveID uuid.UUID, roleID int64, summary string) error
}

// MemoryBankService сжимает разросшуюся историю роли в сводку и
// подмешивает её в контекст генерации. Сводка обновляется в фоне,
// не больше одного обновления на роль одновременно.
type MemoryBankService struct {
	provider  ai.Provider
	repo      BankRepository
	threshold int
	count     func([]models.ChatMessage) int
	logger    *zap.Logger

	mu       sync.Mutex
	inflight map[string]bool
}

// NewMemoryBankService создаёт сервис банка памяти.
func NewMemoryBankService(provider ai.Provider, repo BankRepository, threshold int, logger *zap.Logger) *MemoryBankService {
	if threshold <= 0 {
		threshold = defaultBankTokenThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &MemoryBankService{
		provider:  provider,
		repo:      repo,
		threshold: threshold,
		logger:    logger.Named("MemoryBank"),
		inflight:  make(map[string]bool),
	}
	s.count = newTokenCounter(s.logger)
	return s
}

// SetTokenCounter подменяет счётчик токенов истории. Счётчик по
// умолчанию лениво тянет BPE-словарь tiktoken по сети.
func (s *MemoryBankService) SetTokenCounter(fn func([]models.ChatMessage) int) {
	if fn != nil {
		s.count = fn
	}
}

func bankKey(saveID uuid.UUID, roleID int64) string {
	return fmt.Sprintf("%s:%d", saveID, roleID)
}

// Inject вставляет блок банка памяти в историю сообщений: после
// ведущих системных сообщений, до первого диалогового. Пока сводки
// нет, вставляется заглушка о накоплении памяти; при ошибке хранилища
// история возвращается нетронутой.
func (s *MemoryBankService) Inject(ctx context.Context, saveID uuid.UUID, roleID int64, messages []models.ChatMessage) []models.ChatMessage {
	summary, err := s.repo.GetSummary(ctx, saveID, roleID)
	if err != nil {
		s.logger.Warn("Не удалось получить сводку банка памяти",
			zap.String("saveID", saveID.String()), zap.Int64("roleID", roleID), zap.Error(err))
		return messages
	}

	content := bankEmptyPlaceholder
	if summary != "" {
		content = "Твои воспоминания о прошлых событиях:\n" + summary
	}

	insert := 0
	for insert < len(messages) && messages[insert].Role == models.ChatRoleSystem {
		insert++
	}
	bank := models.ChatMessage{
		Role:    models.ChatRoleSystem,
		Content: content,
	}
	out := make([]models.ChatMessage, 0, len(messages)+1)
	out = append(out, messages[:insert]...)
	out = append(out, bank)
	out = append(out, messages[insert:]...)
	return out
}

// MaybeUpdate запускает фоновое обновление сводки, если история роли
// перевалила порог по токенам. Повторный вызов при идущем обновлении
// той же роли - no-op.
func (s *MemoryBankService) MaybeUpdate(saveID uuid.UUID, roleID int64, history []models.ChatMessage) {
	if s.count(history) < s.threshold {
		return
	}

	key := bankKey(saveID, roleID)
	s.mu.Lock()
	if s.inflight[key] {
		s.mu.Unlock()
		return
	}
	s.inflight[key] = true
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.inflight, key)
			s.mu.Unlock()
		}()
		ctx, cancel := context.WithTimeout(context.Background(), bankUpdateTimeout)
		defer cancel()
		if err := s.update(ctx, saveID, roleID, history); err != nil {
			s.logger.Warn("Обновление банка памяти не удалось",
				zap.String("saveID", saveID.String()), zap.Int64("roleID", roleID), zap.Error(err))
		}
	}()
}

func (s *MemoryBankService) update(ctx context.Context, saveID uuid.UUID, roleID int64, history []models.ChatMessage) error {
	var transcript strings.Builder
	for _, m := range history {
		if m.Role == models.ChatRoleSystem {
			continue
		}
		transcript.WriteString(string(m.Role))
		transcript.WriteString(": ")
		transcript.WriteString(m.Content)
		transcript.WriteString("\n")
	}
	if transcript.Len() == 0 {
		return nil
	}

	messages := []models.ChatMessage{
		{Role: models.ChatRoleSystem, Content: bankSummaryPrompt},
		{Role: models.ChatRoleUser, Content: transcript.String()},
	}
	summary, _, err := s.provider.GenerateChat(ctx, saveID.String(), messages, ai.GenerationParams{})
	if err != nil {
		return err
	}
	if err := s.repo.SaveSummary(ctx, saveID, roleID, strings.TrimSpace(summary)); err != nil {
		return err
	}
	s.logger.Info("Сводка банка памяти обновлена",
		zap.String("saveID", saveID.String()), zap.Int64("roleID", roleID))
	return nil
}

// newTokenCounter возвращает счётчик токенов по cl100k_base. Кодировка
// инициализируется лениво и один раз: первая инициализация скачивает
// BPE-словарь. Без токенизатора (офлайн-развёртывание) токены
// оцениваются по числу рун, чтобы порог банка всё равно срабатывал.
func newTokenCounter(logger *zap.Logger) func([]models.ChatMessage) int {
	var once sync.Once
	var tke *tiktoken.Tiktoken
	return func(messages []models.ChatMessage) int {
		once.Do(func() {
			var err error
			tke, err = tiktoken.GetEncoding(bankEncoding)
			if err != nil {
				logger.Warn("Токенизатор недоступен, токены оцениваются по символам", zap.Error(err))
				tke = nil
			}
		})
		total := 0
		for _, m := range messages {
			if tke != nil {
				total += len(tke.Encode(m.Content, nil, nil))
			} else {
				total += utf8.RuneCountInString(m.Content)
			}
		}
		return total
	}
}
