package models

import (
	"time"

	"github.com/google/uuid"
)

// LineAttribute определяет тип реплики с точки зрения LLM-диалога.
// Совпадает с типом ENUM 'line_attribute' в БД.
type LineAttribute string

const (
	AttributeSystem    LineAttribute = "system"    // Системная реплика (промпт, сценарная вставка)
	AttributeUser      LineAttribute = "user"      // Прямая речь игрока
	AttributeAssistant LineAttribute = "assistant" // Реплика AI-персонажа или NPC
)

// LineDraft - ещё не добавленная в журнал реплика.
// Все поля опциональны, кроме Content и Attribute.
type LineDraft struct {
	Content         string        `json:"content"`
	Attribute       LineAttribute `json:"attribute"`
	SenderRoleID    int64         `json:"sender_role_id,omitempty"` // 0 = отправитель не задан
	DisplayName     string        `json:"display_name,omitempty"`   // Отображаемое имя может отличаться от канонического имени роли
	OriginalEmotion string        `json:"original_emotion,omitempty"`
	TTSContent      string        `json:"tts_content,omitempty"`
	ActionContent   string        `json:"action_content,omitempty"`
}

// Line - одна неизменяемая реплика в общем журнале сцены.
// После добавления Content/Attribute/SenderRoleID никогда не меняются,
// пересчитываться могут только производные поля (PredictedEmotion, AudioFile).
type Line struct {
	ID              int64         `json:"id" db:"id"`
	SaveID          uuid.UUID     `json:"save_id" db:"save_id"`
	Content         string        `json:"content" db:"content"`
	Attribute       LineAttribute `json:"attribute" db:"attribute"`
	SenderRoleID    int64         `json:"sender_role_id,omitempty" db:"sender_role_id"`
	DisplayName     string        `json:"display_name,omitempty" db:"display_name"`
	OriginalEmotion string        `json:"original_emotion,omitempty" db:"original_emotion"`
	PredictedEmotion string       `json:"predicted_emotion,omitempty" db:"predicted_emotion"`
	TTSContent      string        `json:"tts_content,omitempty" db:"tts_content"`
	ActionContent   string        `json:"action_content,omitempty" db:"action_content"`
	AudioFile       string        `json:"audio_file,omitempty" db:"audio_file"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
}

// PerceivedLine - реплика вместе со снимком восприятия.
// PerceivedRoleIDs фиксируется один раз в момент добавления в журнал
// (из текущего Presence Set) и задним числом не пересчитывается.
type PerceivedLine struct {
	Line
	PerceivedRoleIDs []int64 `json:"perceived_role_ids"`
}

// PerceivedBy сообщает, входит ли роль в снимок восприятия реплики.
// Отправитель воспринимает собственную реплику всегда.
func (l *PerceivedLine) PerceivedBy(roleID int64) bool {
	if l.SenderRoleID != 0 && l.SenderRoleID == roleID {
		return true
	}
	for _, id := range l.PerceivedRoleIDs {
		if id == roleID {
			return true
		}
	}
	return false
}
