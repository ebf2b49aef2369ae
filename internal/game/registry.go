package game

import (
	"fmt"

	"go.uber.org/zap"

	"scene-server/internal/models"
)

// RoleRegistry владеет рантайм-экземплярами GameRole и их кешированными
// проекциями. Кеш привязан к скользящему окну журнала: роли, не активные
// в окне последнего Refresh, вытесняются (это GC кеша, а не удаление
// роли из системы). Реестр создаётся по одному на сцену/сохранение.
type RoleRegistry struct {
	storage map[int64]*models.GameRole
	logger  *zap.Logger
}

// NewRoleRegistry создаёт пустой реестр.
func NewRoleRegistry(logger *zap.Logger) *RoleRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoleRegistry{
		storage: make(map[int64]*models.GameRole),
		logger:  logger.Named("RoleRegistry"),
	}
}

// GetOrCreate возвращает экземпляр роли, создавая его при первом обращении.
// Идемпотентна: повторный вызов возвращает тот же экземпляр.
func (r *RoleRegistry) GetOrCreate(roleID int64) *models.GameRole {
	if instance, ok := r.storage[roleID]; ok {
		return instance
	}
	instance := &models.GameRole{RoleID: roleID}
	r.storage[roleID] = instance
	return instance
}

// Exists сообщает, есть ли у роли кешированная проекция.
func (r *RoleRegistry) Exists(roleID int64) bool {
	_, ok := r.storage[roleID]
	return ok
}

// History возвращает кешированную проекцию роли. Роль вне кеша даёт
// пустую проекцию: чтение не создаёт экземпляр, в отличие от GetOrCreate.
func (r *RoleRegistry) History(roleID int64) []models.ChatMessage {
	if !r.Exists(roleID) {
		return nil
	}
	return r.storage[roleID].Memory
}

// Refresh пересобирает проекции всех активных в окне ролей и вытесняет
// остальные. Активная роль - та, что произнесла реплику в окне либо
// присутствует в снимке восприятия любой реплики окна.
//
// Политика отказа: атомарная, всё-или-ничего. Новые проекции собираются
// во временную карту и подменяют storage только после того, как сборка
// каждой роли завершилась успешно; при любой ошибке кеш остаётся прежним.
func (r *RoleRegistry) Refresh(lines []models.PerceivedLine, window int) error {
	source := lines
	if window > 0 && window < len(lines) {
		source = lines[len(lines)-window:]
	}

	activeIDs := make(map[int64]struct{})
	for i := range source {
		if source[i].SenderRoleID != 0 {
			activeIDs[source[i].SenderRoleID] = struct{}{}
		}
		for _, id := range source[i].PerceivedRoleIDs {
			activeIDs[id] = struct{}{}
		}
	}

	// Сначала собираем все проекции, ничего не трогая в кеше: при ошибке
	// на любой из ролей существующее состояние остаётся нетронутым.
	staged := make(map[int64][]models.ChatMessage, len(activeIDs))
	for rid := range activeIDs {
		builder := MemoryBuilder{TargetRoleID: rid}
		memory, err := builder.Build(source)
		if err != nil {
			return fmt.Errorf("refresh aborted, role %d: %w", rid, err)
		}
		staged[rid] = memory
	}

	// Фиксация: применяем проекции и подменяем карту целиком.
	// Роли вне активного набора вытесняются вместе со своим кешем.
	next := make(map[int64]*models.GameRole, len(staged))
	for rid, memory := range staged {
		instance, ok := r.storage[rid]
		if !ok {
			instance = &models.GameRole{RoleID: rid}
		}
		instance.Memory = memory
		syncDisplayName(instance, source)
		next[rid] = instance
	}
	for rid := range r.storage {
		if _, ok := next[rid]; !ok {
			r.logger.Debug("Evicting stale role from registry", zap.Int64("roleID", rid))
		}
	}
	r.storage = next
	return nil
}

// syncDisplayName обновляет отображаемое имя роли по её последней
// собственной реплике в окне. Если таких реплик нет, имя не меняется.
func syncDisplayName(instance *models.GameRole, lines []models.PerceivedLine) {
	for i := len(lines) - 1; i >= 0; i-- {
		if lines[i].SenderRoleID == instance.RoleID {
			if lines[i].DisplayName != "" {
				instance.DisplayName = lines[i].DisplayName
			}
			return
		}
	}
}
