package ai

import (
	"regexp"
	"strings"
)

// Сегментированный формат реплики: 【эмоция】текст<озвучка>（действие）.
// Модель просят отвечать именно так; парсер терпим к огрехам формата.

var (
	segmentRe = regexp.MustCompile(`【([^【】]*)】([^【】]*)`)
	ttsRe     = regexp.MustCompile(`<(.*?)>`)
	actionRe  = regexp.MustCompile(`（(.*?)）`)
	extrasRe  = regexp.MustCompile(`<.*?>|（.*?）`)
)

// Segment - один размеченный фрагмент реплики.
type Segment struct {
	Emotion string // Тег эмоции из 【】, как его поставила модель
	Text    string // Видимый текст фрагмента
	TTS     string // Текст для озвучки из <>
	Action  string // Действие из （）
}

// ParseReply разбирает ответ модели на размеченные фрагменты.
// Ответ без единого тега эмоции возвращается одним фрагментом без разметки.
// Фрагменты без текста и озвучки (висящий тег) отбрасываются.
func ParseReply(text string) []Segment {
	matches := segmentRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil
		}
		return []Segment{{Text: trimmed}}
	}

	segments := make([]Segment, 0, len(matches))
	for _, m := range matches {
		emotion := strings.TrimSpace(m[1])
		following := strings.NewReplacer("(", "（", ")", "）").Replace(m[2])

		var tts, action string
		if tm := ttsRe.FindStringSubmatch(following); tm != nil {
			tts = strings.TrimSpace(tm[1])
			// Внутри озвучки действия не живут.
			tts = strings.TrimSpace(actionRe.ReplaceAllString(tts, ""))
		}
		if am := actionRe.FindStringSubmatch(following); am != nil {
			action = strings.TrimSpace(am[1])
		}
		cleaned := strings.TrimSpace(extrasRe.ReplaceAllString(following, ""))

		if cleaned == "" && tts == "" {
			continue
		}
		segments = append(segments, Segment{
			Emotion: emotion,
			Text:    cleaned,
			TTS:     tts,
			Action:  action,
		})
	}
	return segments
}
