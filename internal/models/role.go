package models

import "time"

// RoleType определяет тип роли в сцене.
// Совпадает с типом ENUM 'role_type' в БД.
type RoleType string

const (
	RoleTypeMain   RoleType = "main"   // Главный AI-персонаж
	RoleTypeNPC    RoleType = "npc"    // Второстепенный персонаж сценария
	RoleTypeSystem RoleType = "system" // Рассказчик / системная роль
)

// Role - учётная запись роли в системе. Создаётся лениво при первом
// упоминании в реплике или в Presence Set и никогда не удаляется из БД,
// вытесняется только из кеша RoleRegistry.
type Role struct {
	ID             int64    `json:"id" db:"id"`
	Name           string   `json:"name" db:"name"`
	RoleType       RoleType `json:"role_type" db:"role_type"`
	ScriptKey      string   `json:"script_key,omitempty" db:"script_key"`
	ScriptRoleKey  string   `json:"script_role_key,omitempty" db:"script_role_key"`
	ResourceFolder string   `json:"resource_folder,omitempty" db:"resource_folder"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// GameRole - рантайм-держатель проекции одной роли. Владеет только
// производным содержимым (Memory), сами реплики принадлежат журналу.
// Две GameRole с одинаковым RoleID считаются одной и той же логической ролью.
type GameRole struct {
	RoleID      int64         `json:"role_id"`
	DisplayName string        `json:"display_name,omitempty"`
	Memory      []ChatMessage `json:"memory"`
	Prompt      string        `json:"prompt,omitempty"`
}

// Player - сведения об игроке, заданные сценарием или настройками.
type Player struct {
	UserName     string `json:"user_name"`
	UserSubtitle string `json:"user_subtitle"`
	UserSettings string `json:"user_settings,omitempty"`
}
