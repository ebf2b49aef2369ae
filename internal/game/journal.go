package game

import (
	"sort"
	"time"

	"scene-server/internal/models"
)

// PresenceSet - множество ролей, находящихся "в сцене".
// Опрашивается только в момент добавления реплики в журнал:
// уход роли из сцены не влияет на восприятие уже добавленных реплик.
type PresenceSet struct {
	ids map[int64]struct{}
}

// NewPresenceSet создаёт пустое множество присутствия.
func NewPresenceSet() *PresenceSet {
	return &PresenceSet{ids: make(map[int64]struct{})}
}

// Enter добавляет роль в сцену. Повторный вход - no-op.
func (p *PresenceSet) Enter(roleID int64) {
	if roleID == 0 {
		return
	}
	p.ids[roleID] = struct{}{}
}

// Leave убирает роль из сцены.
func (p *PresenceSet) Leave(roleID int64) {
	delete(p.ids, roleID)
}

// Contains сообщает, находится ли роль в сцене.
func (p *PresenceSet) Contains(roleID int64) bool {
	_, ok := p.ids[roleID]
	return ok
}

// Len возвращает количество ролей в сцене.
func (p *PresenceSet) Len() int {
	return len(p.ids)
}

// Snapshot возвращает независимую копию множества.
// Порядок детерминирован (по возрастанию id), чтобы проекции
// и сериализация были воспроизводимыми.
func (p *PresenceSet) Snapshot() []int64 {
	ids := make([]int64, 0, len(p.ids))
	for id := range p.ids {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// LineJournal - общий журнал реплик сцены: упорядоченная,
// только-добавляемая последовательность. Единственный владелец записей Line.
// Журнал не потокобезопасен: доступ к нему сериализует мьютекс
// сессии-владельца.
type LineJournal struct {
	lines  []models.PerceivedLine
	nextID int64
}

// NewLineJournal создаёт пустой журнал.
func NewLineJournal() *LineJournal {
	return &LineJournal{nextID: 1}
}

// Restore наполняет журнал ранее сохранёнными репликами (загрузка сохранения).
// Допустим только на пустом журнале; id продолжаются с максимального.
func (j *LineJournal) Restore(lines []models.PerceivedLine) {
	j.lines = append(j.lines[:0], lines...)
	j.nextID = 1
	for _, l := range lines {
		if l.ID >= j.nextID {
			j.nextID = l.ID + 1
		}
	}
}

// Append финализирует черновик: присваивает строго возрастающий id,
// фиксирует снимок восприятия из текущего Presence Set и добавляет
// реплику в журнал. Возвращённая запись неизменяема.
func (j *LineJournal) Append(draft models.LineDraft, presence *PresenceSet) models.PerceivedLine {
	line := models.PerceivedLine{
		Line: models.Line{
			ID:              j.nextID,
			Content:         draft.Content,
			Attribute:       draft.Attribute,
			SenderRoleID:    draft.SenderRoleID,
			DisplayName:     draft.DisplayName,
			OriginalEmotion: draft.OriginalEmotion,
			TTSContent:      draft.TTSContent,
			ActionContent:   draft.ActionContent,
			CreatedAt:       time.Now().UTC(),
		},
	}
	if presence != nil {
		line.PerceivedRoleIDs = presence.Snapshot()
	}
	j.nextID++
	j.lines = append(j.lines, line)
	return line
}

// Len возвращает количество реплик в журнале.
func (j *LineJournal) Len() int {
	return len(j.lines)
}

// Lines возвращает копию всех реплик в порядке добавления.
func (j *LineJournal) Lines() []models.PerceivedLine {
	out := make([]models.PerceivedLine, len(j.lines))
	copy(out, j.lines)
	return out
}

// Window возвращает копию последних n реплик (n <= 0 - весь журнал).
func (j *LineJournal) Window(n int) []models.PerceivedLine {
	if n <= 0 || n >= len(j.lines) {
		return j.Lines()
	}
	out := make([]models.PerceivedLine, n)
	copy(out, j.lines[len(j.lines)-n:])
	return out
}

// SetDerived обновляет производные поля реплики (после фоновой обработки).
// Content/Attribute/SenderRoleID намеренно недоступны для изменения.
func (j *LineJournal) SetDerived(lineID int64, predictedEmotion, audioFile string) bool {
	for i := range j.lines {
		if j.lines[i].ID == lineID {
			if predictedEmotion != "" {
				j.lines[i].PredictedEmotion = predictedEmotion
			}
			if audioFile != "" {
				j.lines[i].AudioFile = audioFile
			}
			return true
		}
	}
	return false
}
