package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"scene-server/internal/game"
	"scene-server/internal/models"
)

// LineRepository - персистентное хранилище журнала реплик.
type LineRepository interface {
	InsertLines(ctx context.Context, saveID uuid.UUID, lines []models.PerceivedLine) error
	ListBySave(ctx context.Context, saveID uuid.UUID) ([]models.PerceivedLine, error)
	UpdateDerived(ctx context.Context, saveID uuid.UUID, lineID int64, predictedEmotion, audioFile string) error
}

// RoleRepository - персистентный каталог ролей.
type RoleRepository interface {
	GetOrCreateRole(ctx context.Context, scriptKey, scriptRoleKey, name string) (models.Role, error)
}

// Session - состояние одной игровой сессии: журнал, реестр ролей и
// курсор персистентности. Журнал и реестр сами по себе не
// потокобезопасны, поэтому каждая операция над Status идёт под
// мьютексом сессии: HTTP-хендлеры, интерпретатор сценария (по одному
// событию за раз) и воркер обогащения сериализуются между собой.
type Session struct {
	ID         string
	UserID     uuid.UUID
	SaveID     uuid.UUID
	ScriptName string
	ScriptKey  string
	Status     *game.GameStatus

	mu        sync.Mutex
	persisted int // Сколько реплик журнала уже записано в хранилище
}

// Lock берёт эксклюзивный доступ к состоянию сцены.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock отпускает эксклюзивный доступ к состоянию сцены.
func (s *Session) Unlock() { s.mu.Unlock() }

// FlushNewLines дописывает в хранилище реплики, появившиеся в журнале
// после предыдущего флаша.
func (s *Session) FlushNewLines(ctx context.Context, repo LineRepository) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines := s.Status.Journal.Lines()
	if s.persisted >= len(lines) {
		return nil
	}
	if err := repo.InsertLines(ctx, s.SaveID, lines[s.persisted:]); err != nil {
		return fmt.Errorf("запись журнала сессии %s: %w", s.ID, err)
	}
	s.persisted = len(lines)
	return nil
}

// RestoreFromStore загружает журнал сохранения из хранилища и отмечает
// загруженные реплики уже записанными.
func (s *Session) RestoreFromStore(ctx context.Context, repo LineRepository) error {
	lines, err := repo.ListBySave(ctx, s.SaveID)
	if err != nil {
		return fmt.Errorf("загрузка журнала сохранения %s: %w", s.SaveID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.Status.RestoreLines(lines); err != nil {
		return fmt.Errorf("восстановление сессии %s: %w", s.ID, err)
	}
	s.persisted = len(lines)
	return nil
}

// JournalLen возвращает текущую длину журнала сессии.
func (s *Session) JournalLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Status.Journal.Len()
}

// ApplyDerived применяет производные поля к реплике живой сессии.
func (s *Session) ApplyDerived(lineID int64, predictedEmotion, audioFile string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Status.Journal.SetDerived(lineID, predictedEmotion, audioFile)
}

// SessionManager хранит активные игровые сессии по идентификатору клиента.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   *zap.Logger
}

// NewSessionManager создаёт пустой менеджер сессий.
func NewSessionManager(logger *zap.Logger) *SessionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionManager{
		sessions: make(map[string]*Session),
		logger:   logger.Named("SessionManager"),
	}
}

// Create создаёт сессию клиента. Существующая сессия клиента заменяется.
func (m *SessionManager) Create(clientID string, userID, saveID uuid.UUID) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[clientID]; ok {
		m.logger.Info("Сессия клиента заменена", zap.String("clientID", clientID))
	}
	session := &Session{
		ID:     clientID,
		UserID: userID,
		SaveID: saveID,
		Status: game.NewGameStatus(m.logger),
	}
	m.sessions[clientID] = session
	return session
}

// Get возвращает сессию клиента.
func (m *SessionManager) Get(clientID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[clientID]
	if !ok {
		return nil, fmt.Errorf("%w: клиент %s", ErrSessionNotFound, clientID)
	}
	return session, nil
}

// BySave находит живую сессию по идентификатору сохранения.
// Нужен воркеру обогащения: результат применяется к сессии, если она
// ещё в памяти, и молча пропускается, если нет.
func (m *SessionManager) BySave(saveID uuid.UUID) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, session := range m.sessions {
		if session.SaveID == saveID {
			return session, true
		}
	}
	return nil, false
}

// Remove снимает сессию клиента.
func (m *SessionManager) Remove(clientID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, clientID)
}
