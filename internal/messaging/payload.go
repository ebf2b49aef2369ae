package messaging

import "github.com/google/uuid"

// Имена очередей обогащения реплик.
const (
	EnrichmentTaskQueue = "line_enrichment_tasks"
)

// EnrichmentTaskPayload - задача фонового обогащения реплики: классификация
// эмоции и синтез озвучки. Воркер пишет результат в производные поля реплики,
// неизменяемое ядро (content/attribute/sender) он не трогает.
type EnrichmentTaskPayload struct {
	TaskID          uuid.UUID `json:"task_id"`
	SaveID          uuid.UUID `json:"save_id"`
	LineID          int64     `json:"line_id"`
	ClientID        string    `json:"client_id"`
	Character       string    `json:"character,omitempty"`
	Content         string    `json:"content"`
	TTSContent      string    `json:"tts_content,omitempty"`
	OriginalEmotion string    `json:"original_emotion,omitempty"`
}
