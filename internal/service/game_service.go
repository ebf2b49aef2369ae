package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"scene-server/internal/models"
	"scene-server/internal/script"
)

// SceneState - снимок отображаемого состояния сцены для клиента.
type SceneState struct {
	ScriptName       string         `json:"script_name,omitempty"`
	CurrentChapterID string         `json:"current_chapter_id,omitempty"`
	Background       string         `json:"background,omitempty"`
	BackgroundMusic  string         `json:"background_music,omitempty"`
	BackgroundEffect string         `json:"background_effect,omitempty"`
	CurrentCharacter string         `json:"current_character,omitempty"`
	PresentRoleIDs   []int64        `json:"present_role_ids"`
	Player           models.Player  `json:"player"`
}

// GameService - фасад игровых операций для транспортного слоя.
type GameService struct {
	sessions *SessionManager
	library  *script.ScriptLibrary
	registry *script.HandlerRegistry
	dialogue *DialogueService
	broker   script.ClientPublisher
	roles    RoleRepository
	lines    LineRepository
	logger   *zap.Logger

	managersMu sync.RWMutex
	managers   map[string]*script.ScriptManager
}

// NewGameService создаёт фасад игровых операций.
func NewGameService(
	sessions *SessionManager,
	library *script.ScriptLibrary,
	registry *script.HandlerRegistry,
	dialogue *DialogueService,
	broker script.ClientPublisher,
	roles RoleRepository,
	lines LineRepository,
	logger *zap.Logger,
) *GameService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GameService{
		sessions: sessions,
		library:  library,
		registry: registry,
		dialogue: dialogue,
		broker:   broker,
		roles:    roles,
		lines:    lines,
		logger:   logger.Named("GameService"),
		managers: make(map[string]*script.ScriptManager),
	}
}

// sessionRoleResolver связывает персистентный каталог ролей с реестром
// ролей конкретной сессии.
type sessionRoleResolver struct {
	repo      RoleRepository
	session   *Session
	scriptKey string
}

func (r *sessionRoleResolver) ResolveRole(ctx context.Context, scriptRoleKey string) (*models.GameRole, error) {
	role, err := r.repo.GetOrCreateRole(ctx, r.scriptKey, scriptRoleKey, scriptRoleKey)
	if err != nil {
		return nil, fmt.Errorf("роль %q: %w", scriptRoleKey, err)
	}
	r.session.Lock()
	defer r.session.Unlock()
	instance := r.session.Status.Registry.GetOrCreate(role.ID)
	if instance.DisplayName == "" {
		instance.DisplayName = role.Name
	}
	return instance, nil
}

// OpenSession создаёт сессию клиента для сохранения и поднимает из
// хранилища её журнал.
func (s *GameService) OpenSession(ctx context.Context, clientID string, userID, saveID uuid.UUID) (*Session, error) {
	session := s.sessions.Create(clientID, userID, saveID)
	if s.lines != nil {
		if err := session.RestoreFromStore(ctx, s.lines); err != nil {
			s.sessions.Remove(clientID)
			return nil, err
		}
	}
	s.logger.Info("Сессия открыта",
		zap.String("clientID", clientID), zap.String("saveID", saveID.String()),
		zap.Int("restoredLines", session.JournalLen()))
	return session, nil
}

// CloseSession снимает сессию клиента, предварительно дописав журнал.
func (s *GameService) CloseSession(ctx context.Context, clientID string) {
	session, err := s.sessions.Get(clientID)
	if err != nil {
		return
	}
	if s.lines != nil {
		if err := session.FlushNewLines(ctx, s.lines); err != nil {
			s.logger.Error("Журнал не дописан при закрытии сессии",
				zap.String("clientID", clientID), zap.Error(err))
		}
	}
	s.sessions.Remove(clientID)
	s.managersMu.Lock()
	delete(s.managers, clientID)
	s.managersMu.Unlock()
}

// SetPlayer задаёт имя и подпись игрока для сессии.
func (s *GameService) SetPlayer(clientID string, player models.Player) error {
	session, err := s.sessions.Get(clientID)
	if err != nil {
		return err
	}
	session.Lock()
	session.Status.Player = player
	session.Unlock()
	return nil
}

// ScriptList возвращает имена доступных сценариев.
func (s *GameService) ScriptList() []string {
	return s.library.ScriptList()
}

// StartScript исполняет сценарий в сессии клиента. Блокируется до конца
// прогона; транспортный слой запускает его в своей горутине.
func (s *GameService) StartScript(ctx context.Context, clientID, scriptName string) error {
	session, err := s.sessions.Get(clientID)
	if err != nil {
		return err
	}
	cfg, err := s.library.Script(scriptName)
	if err != nil {
		return err
	}
	session.Lock()
	session.ScriptName = scriptName
	session.ScriptKey = cfg.FolderKey
	session.Unlock()

	env := &script.Env{
		Status:   session.Status,
		Scene:    session,
		Roles:    &sessionRoleResolver{repo: s.roles, session: session, scriptKey: cfg.FolderKey},
		Dialogue: s.dialogue,
		Broker:   s.broker,
		ClientID: clientID,
		Logger:   s.logger,
	}

	manager := script.NewScriptManager(s.library, s.registry, s.logger)
	s.managersMu.Lock()
	s.managers[clientID] = manager
	s.managersMu.Unlock()
	runErr := manager.RunScript(ctx, scriptName, env)

	if s.lines != nil {
		if err := session.FlushNewLines(ctx, s.lines); err != nil {
			s.logger.Error("Журнал не дописан после прогона сценария",
				zap.String("clientID", clientID), zap.Error(err))
		}
	}
	return runErr
}

// HandlePlayerMessage журналирует сообщение игрока и передаёт слово
// текущему персонажу. Сообщение может прийти посреди прогона сценария:
// мьютекс сессии упорядочивает его с событиями интерпретатора.
func (s *GameService) HandlePlayerMessage(ctx context.Context, clientID, content string) error {
	if content == "" {
		return ErrEmptyMessage
	}
	session, err := s.sessions.Get(clientID)
	if err != nil {
		return err
	}

	session.Lock()
	_, err = session.Status.AddLine(models.LineDraft{
		Content:     content,
		Attribute:   models.AttributeUser,
		DisplayName: session.Status.Player.UserName,
	})
	role := session.Status.CurrentCharacter
	session.Unlock()
	if err != nil {
		return fmt.Errorf("журналирование сообщения игрока: %w", err)
	}
	if s.lines != nil {
		if err := session.FlushNewLines(ctx, s.lines); err != nil {
			return err
		}
	}

	if role == nil {
		return ErrNoActiveCharacter
	}
	return s.dialogue.RunCharacterDialogue(ctx, clientID, role)
}

// History возвращает последние n реплик журнала сессии (n <= 0 - все).
func (s *GameService) History(clientID string, n int) ([]models.PerceivedLine, error) {
	session, err := s.sessions.Get(clientID)
	if err != nil {
		return nil, err
	}
	session.Lock()
	defer session.Unlock()
	if n <= 0 {
		return session.Status.Journal.Lines(), nil
	}
	return session.Status.Journal.Window(n), nil
}

// Scene возвращает снимок состояния сцены.
func (s *GameService) Scene(clientID string) (SceneState, error) {
	session, err := s.sessions.Get(clientID)
	if err != nil {
		return SceneState{}, err
	}
	session.Lock()
	status := session.Status
	state := SceneState{
		ScriptName:       session.ScriptName,
		Background:       status.Background,
		BackgroundMusic:  status.BackgroundMusic,
		BackgroundEffect: status.BackgroundEffect,
		PresentRoleIDs:   status.Presence.Snapshot(),
		Player:           status.Player,
	}
	if status.CurrentCharacter != nil {
		state.CurrentCharacter = status.CurrentCharacter.DisplayName
	}
	session.Unlock()
	s.managersMu.RLock()
	if manager, ok := s.managers[clientID]; ok {
		state.CurrentChapterID = manager.CurrentChapterID()
	}
	s.managersMu.RUnlock()
	return state, nil
}
