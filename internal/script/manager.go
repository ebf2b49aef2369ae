package script

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"scene-server/internal/models"
)

// ScriptManager - драйвер прогона сценария: грузит главы по идентификатору
// из репозитория и исполняет их, пока не встретит сентинел конца.
type ScriptManager struct {
	library  *ScriptLibrary
	registry *HandlerRegistry
	logger   *zap.Logger

	// Прогон пишет прогресс из своей горутины, снимок сцены читает его
	// из HTTP-хендлера.
	mu               sync.RWMutex
	currentChapterID string
	running          bool
}

// NewScriptManager создаёт драйвер поверх библиотеки сценариев.
func NewScriptManager(library *ScriptLibrary, registry *HandlerRegistry, logger *zap.Logger) *ScriptManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScriptManager{
		library:  library,
		registry: registry,
		logger:   logger.Named("ScriptManager"),
	}
}

// Library возвращает библиотеку сценариев.
func (m *ScriptManager) Library() *ScriptLibrary {
	return m.library
}

// IsRunning сообщает, идёт ли прогон сценария.
func (m *ScriptManager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// CurrentChapterID возвращает идентификатор исполняемой главы.
func (m *ScriptManager) CurrentChapterID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentChapterID
}

func (m *ScriptManager) setRunning(running bool) {
	m.mu.Lock()
	m.running = running
	m.mu.Unlock()
}

func (m *ScriptManager) setCurrentChapter(id string) {
	m.mu.Lock()
	m.currentChapterID = id
	m.mu.Unlock()
}

// RunScript исполняет сценарий от вступительной главы до сентинела конца.
// Любая ошибка загрузки или исполнения главы фатальна для прогона:
// сценарии валидируются оффлайн, структурно битая глава - не
// восстановимое рантайм-состояние.
func (m *ScriptManager) RunScript(ctx context.Context, scriptName string, env *Env) error {
	script, err := m.library.Script(scriptName)
	if err != nil {
		return err
	}

	m.initPlayer(script, env)
	if err := m.registerScriptRoles(ctx, script, env); err != nil {
		return err
	}

	m.setRunning(true)
	defer m.setRunning(false)

	next := script.IntroChapter
	for next != models.ChapterEndSentinel {
		m.setCurrentChapter(next)

		def, err := m.library.LoadChapter(script.FolderKey, next)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrScriptEngine, err)
		}

		chapter := NewChapter(def, m.registry, env, m.logger)
		next, err = chapter.Run(ctx)
		if err != nil {
			return fmt.Errorf("%w: глава %q: %v", ErrScriptEngine, chapter.ID, err)
		}
	}

	m.setCurrentChapter("")
	if env.Broker != nil {
		env.Broker.Publish(env.ClientID, models.ClientEvent{Type: models.ClientEventScriptEnd})
	}
	m.logger.Info("Сценарий завершён", zap.String("script", scriptName))
	return nil
}

// initPlayer импортирует личность игрока из настроек сценария.
// Сценарий без заданной личности оставляет текущего игрока как есть.
func (m *ScriptManager) initPlayer(script *models.ScriptConfig, env *Env) {
	s := script.Settings
	if s.UserName == "" && s.UserSubtitle == "" {
		m.logger.Info("Сценарий не задаёт личность игрока, используется текущая")
		return
	}
	env.lockScene()
	env.Status.Player = models.Player{
		UserName:     s.UserName,
		UserSubtitle: s.UserSubtitle,
		UserSettings: s.UserSettings,
	}
	env.unlockScene()
}

// registerScriptRoles регистрирует персонажей сценария: резолвит роли,
// добавляет их системные промпты в журнал и вводит в сцену тех, кто
// присутствует с самого начала.
func (m *ScriptManager) registerScriptRoles(ctx context.Context, script *models.ScriptConfig, env *Env) error {
	characters, err := m.library.ScriptCharacters(script.FolderKey)
	if err != nil {
		return err
	}

	for _, c := range characters {
		role, err := env.Roles.ResolveRole(ctx, c.ScriptRoleKey)
		if err != nil {
			return fmt.Errorf("%w: регистрация роли %q: %v", ErrScriptLoad, c.ScriptRoleKey, err)
		}

		env.lockScene()
		role.Prompt = c.Prompt
		if role.DisplayName == "" {
			role.DisplayName = c.Name
		}

		if c.Prompt != "" {
			_, err = env.Status.AddLine(models.LineDraft{
				Content:      c.Prompt,
				Attribute:    models.AttributeSystem,
				SenderRoleID: role.RoleID,
				DisplayName:  c.Name,
			})
			if err != nil {
				env.unlockScene()
				return fmt.Errorf("%w: промпт роли %q: %v", ErrScriptLoad, c.ScriptRoleKey, err)
			}
		}
		if c.Present {
			env.Status.EnterScene(role.RoleID)
		}
		env.unlockScene()
	}
	return nil
}
