package script

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"scene-server/internal/models"
)

// ChapterRepository отдаёт определение главы по идентификатору.
// Ядру от репозитория сценариев нужно только это.
type ChapterRepository interface {
	LoadChapter(scriptKey, chapterID string) (models.ChapterDefinition, error)
}

// ScriptLibrary - файловый репозиторий сценариев: каталог, в котором
// каждый сценарий лежит в своей папке со story_config.yaml, главами
// в Chapters/ и персонажами в characters/.
type ScriptLibrary struct {
	dir     string
	scripts map[string]*models.ScriptConfig
	logger  *zap.Logger
}

// NewScriptLibrary сканирует каталог сценариев.
// Отсутствие каталога - не ошибка (библиотека будет пустой).
func NewScriptLibrary(dir string, logger *zap.Logger) (*ScriptLibrary, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	lib := &ScriptLibrary{
		dir:     dir,
		scripts: make(map[string]*models.ScriptConfig),
		logger:  logger.Named("ScriptLibrary"),
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			lib.logger.Warn("Каталог сценариев не существует", zap.String("dir", dir))
			return lib, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrScriptLoad, err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		cfg, err := lib.readScriptConfig(entry.Name())
		if err != nil {
			lib.logger.Error("Сценарий пропущен", zap.String("folder", entry.Name()), zap.Error(err))
			continue
		}
		lib.scripts[cfg.Name] = cfg
		lib.logger.Info("Найден сценарий", zap.String("name", cfg.Name), zap.String("folder", cfg.FolderKey))
	}

	if len(lib.scripts) == 0 {
		lib.logger.Warn("Не найдено ни одного сценария", zap.String("dir", dir))
	}
	return lib, nil
}

func (l *ScriptLibrary) readScriptConfig(folder string) (*models.ScriptConfig, error) {
	raw, err := os.ReadFile(filepath.Join(l.dir, folder, "story_config.yaml"))
	if err != nil {
		return nil, fmt.Errorf("%w: story_config.yaml: %v", ErrScriptLoad, err)
	}
	var cfg models.ScriptConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("%w: story_config.yaml: %v", ErrScriptLoad, err)
	}
	if cfg.Name == "" || cfg.IntroChapter == "" {
		return nil, fmt.Errorf("%w: в story_config.yaml не заданы script_name/intro_chapter", ErrScriptLoad)
	}
	cfg.FolderKey = folder
	return &cfg, nil
}

// ScriptList возвращает имена всех доступных сценариев.
func (l *ScriptLibrary) ScriptList() []string {
	names := make([]string, 0, len(l.scripts))
	for name := range l.scripts {
		names = append(names, name)
	}
	return names
}

// Script возвращает описание сценария по имени.
func (l *ScriptLibrary) Script(name string) (*models.ScriptConfig, error) {
	cfg, ok := l.scripts[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrScriptNotFound, name)
	}
	return cfg, nil
}

// LoadChapter читает главу сценария из Chapters/<id>.yaml.
func (l *ScriptLibrary) LoadChapter(scriptKey, chapterID string) (models.ChapterDefinition, error) {
	path := filepath.Join(l.dir, scriptKey, "Chapters", chapterID+".yaml")
	raw, err := os.ReadFile(path)
	if err != nil {
		return models.ChapterDefinition{}, fmt.Errorf("%w: глава %q: %v", ErrChapterLoad, chapterID, err)
	}
	var def models.ChapterDefinition
	if err := yaml.Unmarshal(raw, &def); err != nil {
		return models.ChapterDefinition{}, fmt.Errorf("%w: глава %q: %v", ErrChapterLoad, chapterID, err)
	}
	def.ID = chapterID
	return def, nil
}

// ScriptCharacters читает персонажей сценария из characters/*/settings.yml.
func (l *ScriptLibrary) ScriptCharacters(scriptKey string) ([]models.ScriptCharacter, error) {
	charactersDir := filepath.Join(l.dir, scriptKey, "characters")
	entries, err := os.ReadDir(charactersDir)
	if err != nil {
		return nil, fmt.Errorf("%w: каталог characters: %v", ErrScriptLoad, err)
	}

	var characters []models.ScriptCharacter
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == "avatar" {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(charactersDir, entry.Name(), "settings.yml"))
		if err != nil {
			l.logger.Warn("В каталоге персонажа нет settings.yml, пропущен",
				zap.String("character", entry.Name()))
			continue
		}
		var c models.ScriptCharacter
		if err := yaml.Unmarshal(raw, &c); err != nil {
			l.logger.Warn("Битый settings.yml, персонаж пропущен",
				zap.String("character", entry.Name()), zap.Error(err))
			continue
		}
		if c.ScriptRoleKey == "" {
			l.logger.Warn("У персонажа не задан script_role_key, пропущен",
				zap.String("character", entry.Name()))
			continue
		}
		if c.Name == "" {
			c.Name = entry.Name()
		}
		characters = append(characters, c)
	}
	return characters, nil
}
