package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"scene-server/internal/messaging"
	"scene-server/internal/models"
	"scene-server/internal/script"
	"scene-server/pkg/ai"
)

// DialogueService ведёт генерацию реплик AI-персонажей: строит вход LLM
// из проекции роли, стримит ответ клиенту, раскладывает результат по
// журналу и ставит задачи фонового обогащения.
type DialogueService struct {
	sessions *SessionManager
	provider ai.Provider
	broker   script.ClientPublisher
	tasks    messaging.EnrichmentTaskPublisher
	bank     *MemoryBankService
	lines    LineRepository
	params   ai.GenerationParams
	logger   *zap.Logger
}

// NewDialogueService создаёт диалоговый сервис.
// tasks, bank и lines опциональны: без них соответствующие шаги пропускаются.
func NewDialogueService(
	sessions *SessionManager,
	provider ai.Provider,
	broker script.ClientPublisher,
	tasks messaging.EnrichmentTaskPublisher,
	bank *MemoryBankService,
	lines LineRepository,
	params ai.GenerationParams,
	logger *zap.Logger,
) *DialogueService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DialogueService{
		sessions: sessions,
		provider: provider,
		broker:   broker,
		tasks:    tasks,
		bank:     bank,
		lines:    lines,
		params:   params,
		logger:   logger.Named("DialogueService"),
	}
}

// RunCharacterDialogue генерирует ответ персонажа на текущую проекцию
// его памяти. Блокируется до конца стрима.
func (s *DialogueService) RunCharacterDialogue(ctx context.Context, clientID string, role *models.GameRole) error {
	session, err := s.sessions.Get(clientID)
	if err != nil {
		return err
	}

	// Проекция читается под мьютексом сессии; на время стрима он
	// отпускается, чтобы не держать сцену, пока модель отвечает.
	session.Lock()
	messages := session.Status.Registry.History(role.RoleID)
	if len(messages) == 0 && role.Prompt != "" {
		// Роль ещё ничего не воспринимала: хотя бы её промпт.
		messages = []models.ChatMessage{{Role: models.ChatRoleSystem, Content: role.Prompt}}
	}
	session.Unlock()
	if s.bank != nil {
		messages = s.bank.Inject(ctx, session.SaveID, role.RoleID, messages)
	}

	text, usage, err := s.provider.GenerateChatStream(ctx, clientID, messages, s.params, func(chunk string) error {
		s.broker.Publish(clientID, models.ClientEvent{
			Type:      models.ClientEventChunk,
			Content:   chunk,
			Character: role.DisplayName,
		})
		return nil
	})
	if err != nil {
		s.broker.Publish(clientID, models.ClientEvent{
			Type:    models.ClientEventError,
			Message: "генерация ответа не удалась",
		})
		return fmt.Errorf("генерация реплики роли %d: %w", role.RoleID, err)
	}
	s.logger.Debug("Генерация завершена",
		zap.String("clientID", clientID), zap.Int64("roleID", role.RoleID),
		zap.Int("totalTokens", usage.TotalTokens))

	segments := ai.ParseReply(text)
	appended := make([]models.PerceivedLine, 0, len(segments))
	session.Lock()
	for i, seg := range segments {
		line, err := session.Status.AddLine(models.LineDraft{
			Content:         seg.Text,
			Attribute:       models.AttributeAssistant,
			SenderRoleID:    role.RoleID,
			DisplayName:     role.DisplayName,
			OriginalEmotion: seg.Emotion,
			TTSContent:      seg.TTS,
			ActionContent:   seg.Action,
		})
		if err != nil {
			session.Unlock()
			return fmt.Errorf("журналирование реплики роли %d: %w", role.RoleID, err)
		}
		appended = append(appended, line)

		s.broker.Publish(clientID, models.ClientEvent{
			Type:        models.ClientEventReplyDone,
			Content:     seg.Text,
			Emotion:     seg.Emotion,
			Action:      seg.Action,
			Character:   role.DisplayName,
			DisplayName: role.DisplayName,
			IsFinal:     i == len(segments)-1,
		})
	}
	history := session.Status.Registry.History(role.RoleID)
	session.Unlock()

	if s.lines != nil {
		if err := session.FlushNewLines(ctx, s.lines); err != nil {
			return err
		}
	}
	s.scheduleEnrichment(ctx, session, role, appended)
	if s.bank != nil {
		s.bank.MaybeUpdate(session.SaveID, role.RoleID, history)
	}
	return nil
}

// scheduleEnrichment публикует задачи обогащения для добавленных реплик.
// Обогащение best-effort: ошибка публикации не роняет диалог.
func (s *DialogueService) scheduleEnrichment(ctx context.Context, session *Session, role *models.GameRole, lines []models.PerceivedLine) {
	if s.tasks == nil {
		return
	}
	for _, line := range lines {
		payload := messaging.EnrichmentTaskPayload{
			TaskID:          uuid.New(),
			SaveID:          session.SaveID,
			LineID:          line.ID,
			ClientID:        session.ID,
			Character:       role.DisplayName,
			Content:         line.Content,
			TTSContent:      line.TTSContent,
			OriginalEmotion: line.OriginalEmotion,
		}
		if err := s.tasks.PublishEnrichmentTask(ctx, payload); err != nil {
			s.logger.Warn("Задача обогащения не опубликована",
				zap.Int64("lineID", line.ID), zap.Error(err))
		}
	}
}
