package game

import (
	"go.uber.org/zap"

	"scene-server/internal/models"
)

// GameStatus - всё разделяемое рантайм-состояние одной сцены: журнал,
// множество присутствия, реестр проекций, текущий персонаж и фоновые
// атрибуты сцены. Экземпляр принадлежит одному сохранению и никогда
// не разделяется между сценами.
type GameStatus struct {
	Player  models.Player
	Journal *LineJournal

	// Реестр проекций: пересобирается после каждого добавления реплики.
	Registry *RoleRegistry
	// Presence Set: кто сейчас в сцене. Опрашивается только при Append.
	Presence *PresenceSet

	// Текущий персонаж - адресат генерации LLM, использует свою проекцию.
	CurrentCharacter *models.GameRole

	// Фоновые атрибуты сцены, управляются событиями scene_change.
	Background       string
	BackgroundMusic  string
	BackgroundEffect string

	// Размер скользящего окна для пересборки проекций (0 = весь журнал).
	MemoryWindow int

	logger *zap.Logger
}

// NewGameStatus создаёт состояние новой сцены.
func NewGameStatus(logger *zap.Logger) *GameStatus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GameStatus{
		Journal:  NewLineJournal(),
		Registry: NewRoleRegistry(logger),
		Presence: NewPresenceSet(),
		logger:   logger.Named("GameStatus"),
	}
}

// AddLine добавляет реплику в журнал со снимком текущего присутствия
// и пересобирает проекции всех активных ролей.
func (s *GameStatus) AddLine(draft models.LineDraft) (models.PerceivedLine, error) {
	line := s.Journal.Append(draft, s.Presence)
	if err := s.RefreshMemories(); err != nil {
		// Реплика уже в журнале (append - единица долговечности),
		// несогласованности кеша при этом нет: Refresh атомарен.
		return line, err
	}
	return line, nil
}

// RefreshMemories пересобирает проекции по текущему окну журнала.
func (s *GameStatus) RefreshMemories() error {
	return s.Registry.Refresh(s.Journal.Lines(), s.MemoryWindow)
}

// RestoreLines загружает реплики сохранения и пересобирает проекции.
func (s *GameStatus) RestoreLines(lines []models.PerceivedLine) error {
	s.Journal.Restore(lines)
	return s.RefreshMemories()
}

// EnterScene вводит роль в сцену.
func (s *GameStatus) EnterScene(roleID int64) {
	s.Presence.Enter(roleID)
	s.logger.Debug("Role entered scene", zap.Int64("roleID", roleID))
}

// LeaveScene выводит роль из сцены.
func (s *GameStatus) LeaveScene(roleID int64) {
	s.Presence.Leave(roleID)
	s.logger.Debug("Role left scene", zap.Int64("roleID", roleID))
}
