package models

// ChapterEndSentinel - зарезервированный идентификатор главы, означающий,
// что у сценария больше нет глав для исполнения.
const ChapterEndSentinel = "end"

// Типы событий, известные встроенным обработчикам.
// Набор открыт: новые типы регистрируются в script.HandlerRegistry.
const (
	EventTypeAIDialogue     = "ai_dialogue"
	EventTypeNarration      = "narration"
	EventTypeSceneChange    = "scene_change"
	EventTypeCharacterEnter = "character_enter"
	EventTypeCharacterExit  = "character_exit"
	EventTypeChapterEnd     = "chapter_end"
)

// ScriptEvent - одно декларативное событие главы. Неизменяемо после
// загрузки из YAML; осмысленность полей зависит от Type.
type ScriptEvent struct {
	Type string `yaml:"type" json:"type"`

	// ai_dialogue / character_enter / character_exit
	Character string `yaml:"character,omitempty" json:"character,omitempty"`
	// ai_dialogue: скрытый промпт, добавляемый перед генерацией
	Prompt string `yaml:"prompt,omitempty" json:"prompt,omitempty"`

	// narration
	Content     string `yaml:"content,omitempty" json:"content,omitempty"`
	DisplayName string `yaml:"display_name,omitempty" json:"display_name,omitempty"`

	// scene_change
	Background string `yaml:"background,omitempty" json:"background,omitempty"`
	Music      string `yaml:"music,omitempty" json:"music,omitempty"`
	Effect     string `yaml:"effect,omitempty" json:"effect,omitempty"`

	// chapter_end
	EndType     string `yaml:"end_type,omitempty" json:"end_type,omitempty"`
	NextChapter string `yaml:"next_chapter,omitempty" json:"next_chapter,omitempty"`
}

// ChapterDefinition - упорядоченный список событий одной главы.
type ChapterDefinition struct {
	ID     string        `yaml:"-" json:"id"`
	Events []ScriptEvent `yaml:"events" json:"events"`
}

// ScriptSettings - настройки сценария, влияющие на игрока.
type ScriptSettings struct {
	UserName     string `yaml:"user_name,omitempty" json:"user_name,omitempty"`
	UserSubtitle string `yaml:"user_subtitle,omitempty" json:"user_subtitle,omitempty"`
	UserSettings string `yaml:"user_settings,omitempty" json:"user_settings,omitempty"`
}

// ScriptConfig - описание сценария из story_config.yaml.
type ScriptConfig struct {
	FolderKey    string         `yaml:"-" json:"folder_key"`
	Name         string         `yaml:"script_name" json:"name"`
	Description  string         `yaml:"description" json:"description"`
	IntroChapter string         `yaml:"intro_chapter" json:"intro_chapter"`
	Settings     ScriptSettings `yaml:"script_settings" json:"settings"`
}

// ScriptCharacter - персонаж сценария из каталога characters.
type ScriptCharacter struct {
	ScriptRoleKey string `yaml:"script_role_key" json:"script_role_key"`
	Name          string `yaml:"name" json:"name"`
	Subtitle      string `yaml:"subtitle,omitempty" json:"subtitle,omitempty"`
	Prompt        string `yaml:"prompt" json:"prompt"`
	Present       bool   `yaml:"present,omitempty" json:"present,omitempty"` // Находится ли в сцене с самого начала
}
