package models

// ClientEventType - тип события, доставляемого клиенту через sink.
type ClientEventType string

const (
	ClientEventChunk       ClientEventType = "reply_chunk"   // Фрагмент генерируемой реплики
	ClientEventReplyDone   ClientEventType = "reply_done"    // Генерация реплики завершена
	ClientEventNarration   ClientEventType = "narration"     // Сценарная вставка рассказчика
	ClientEventSceneUpdate ClientEventType = "scene_update"  // Смена фона/музыки/эффекта
	ClientEventCharacter   ClientEventType = "character"     // Вход/выход персонажа
	ClientEventScriptEnd   ClientEventType = "script_end"    // Сценарий завершён
	ClientEventLineUpdate  ClientEventType = "line_update"   // Производные поля реплики готовы
	ClientEventError       ClientEventType = "error"         // Ошибка, адресованная клиенту
)

// ClientEvent - полезная нагрузка публикации для клиента.
// Доставка best-effort: ядро не гарантирует ни порядка повторов,
// ни "как минимум однажды".
type ClientEvent struct {
	Type        ClientEventType `json:"type"`
	Content     string          `json:"content,omitempty"`
	Emotion     string          `json:"emotion,omitempty"`
	Action      string          `json:"action,omitempty"`
	Character   string          `json:"character,omitempty"`
	DisplayName string          `json:"display_name,omitempty"`
	Background  string          `json:"background,omitempty"`
	Music       string          `json:"music,omitempty"`
	Effect      string          `json:"effect,omitempty"`
	Entered     bool            `json:"entered,omitempty"`
	IsFinal     bool            `json:"is_final,omitempty"`
	Message     string          `json:"message,omitempty"`
	LineID      int64           `json:"line_id,omitempty"`
	AudioFile   string          `json:"audio_file,omitempty"`
}
