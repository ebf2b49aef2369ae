package game

import (
	"fmt"
	"strings"

	"scene-server/internal/models"
)

// Имя для реплик контекста без display_name.
const unknownDisplayName = "未知"

// Тип текущего буфера накопления.
type bufferKind int

const (
	bufferNone bufferKind = iota
	bufferSelf            // подряд идущие реплики целевой роли
	bufferOther           // подряд идущие реплики всех остальных
)

// MemoryBuilder строит приватную проекцию журнала для одной целевой роли:
// упорядоченный список chat-сообщений, пригодный как вход LLM.
// Построение детерминировано и не имеет побочных эффектов.
type MemoryBuilder struct {
	TargetRoleID int64
}

// visible сообщает, воспринимает ли целевая роль реплику:
// либо она сама её произнесла, либо была в снимке восприятия.
func (b MemoryBuilder) visible(line *models.PerceivedLine) bool {
	return line.PerceivedBy(b.TargetRoleID)
}

// formatWithExtras форматирует реплику как 【эмоция】текст<tts>（действие）.
// Отсутствующие поля опускаются целиком, разделители не вставляются.
func formatWithExtras(line *models.Line) string {
	var sb strings.Builder
	if line.OriginalEmotion != "" {
		sb.WriteString("【")
		sb.WriteString(line.OriginalEmotion)
		sb.WriteString("】")
	}
	sb.WriteString(line.Content)
	if line.TTSContent != "" {
		sb.WriteString("<")
		sb.WriteString(line.TTSContent)
		sb.WriteString(">")
	}
	if line.ActionContent != "" {
		sb.WriteString("（")
		sb.WriteString(line.ActionContent)
		sb.WriteString("）")
	}
	return sb.String()
}

// formatContextLine форматирует строку контекста внутри фигурных скобок:
// "Имя: 【эмоция】текст<tts>（действие）".
func formatContextLine(line *models.Line) string {
	name := line.DisplayName
	if name == "" {
		name = unknownDisplayName
	}
	return name + ": " + formatWithExtras(line)
}

// Build - основной проход. Однопроходное накопление с явными точками
// сброса буфера: смена классификации (своя/чужая реплика), системная
// реплика и конец списка. Невоспринятые реплики пропускаются бесследно.
func (b MemoryBuilder) Build(lines []models.PerceivedLine) ([]models.ChatMessage, error) {
	memory := make([]models.ChatMessage, 0, len(lines))

	var buffer []*models.PerceivedLine
	kind := bufferNone

	flush := func() {
		if len(buffer) == 0 {
			return
		}
		switch kind {
		case bufferSelf:
			// Подряд идущие собственные реплики склеиваются в одно
			// assistant-сообщение без разделителей.
			var sb strings.Builder
			for _, l := range buffer {
				sb.WriteString(formatWithExtras(&l.Line))
			}
			memory = append(memory, models.ChatMessage{
				Role:    models.ChatRoleAssistant,
				Content: sb.String(),
			})

		case bufferOther:
			// Смешанный блок чужих реплик: хвостовая непрерывная серия
			// user-реплик считается "активной", всё до неё - контекст.
			// Обратный проход определяет точку разреза; реплики с
			// attribute=user вне хвоста остаются в контексте.
			splitIndex := len(buffer)
			for i := len(buffer) - 1; i >= 0; i-- {
				if buffer[i].Attribute != models.AttributeUser {
					splitIndex = i + 1
					break
				}
				if i == 0 {
					splitIndex = 0
				}
			}

			contextLines := buffer[:splitIndex]
			activeLines := buffer[splitIndex:]

			var parts []string
			if len(contextLines) > 0 {
				ctx := make([]string, 0, len(contextLines))
				for _, l := range contextLines {
					ctx = append(ctx, formatContextLine(&l.Line))
				}
				parts = append(parts, "{"+strings.Join(ctx, "\n")+"}")
			}
			if len(activeLines) > 0 {
				var sb strings.Builder
				for _, l := range activeLines {
					sb.WriteString(l.Content)
				}
				parts = append(parts, sb.String())
			}

			memory = append(memory, models.ChatMessage{
				Role:    models.ChatRoleUser,
				Content: strings.Join(parts, "\n"),
			})
		}

		buffer = buffer[:0]
		kind = bufferNone
	}

	for i := range lines {
		line := &lines[i]

		switch line.Attribute {
		case models.AttributeSystem:
			// Системная реплика видна по общему правилу; при видимости
			// сбрасывает буфер и эмитится отдельным system-сообщением.
			if b.visible(line) {
				flush()
				memory = append(memory, models.ChatMessage{
					Role:    models.ChatRoleSystem,
					Content: line.Content,
				})
			}
			continue
		case models.AttributeUser, models.AttributeAssistant:
			// обрабатывается ниже
		default:
			return nil, fmt.Errorf("line %d: unknown attribute %q", line.ID, line.Attribute)
		}

		if !b.visible(line) {
			// Ни сказала, ни услышала: реплики как будто не существует.
			continue
		}

		if line.SenderRoleID != 0 && line.SenderRoleID == b.TargetRoleID {
			if kind == bufferOther {
				flush()
			}
			kind = bufferSelf
			buffer = append(buffer, line)
		} else {
			if kind == bufferSelf {
				flush()
			}
			kind = bufferOther
			buffer = append(buffer, line)
		}
	}

	flush()
	return memory, nil
}
