package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// User - учётная запись игрока.
type User struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	PasswordHash string    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Save - сохранение. Журнал реплик принадлежит конкретному сохранению;
// пара журнал+реестр никогда не разделяется между сохранениями.
type Save struct {
	ID           uuid.UUID `json:"id" db:"id"`
	UserID       uuid.UUID `json:"user_id" db:"user_id"`
	Title        string    `json:"title" db:"title"`
	ScriptKey    string    `json:"script_key,omitempty" db:"script_key"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	LastPlayedAt time.Time `json:"last_played_at" db:"last_played_at"`
}

// TokenDetails содержит пару выпущенных токенов и их метаданные.
type TokenDetails struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	AccessUUID   string `json:"-"`
	RefreshUUID  string `json:"-"`
	AtExpires    int64  `json:"-"` // Unix-время истечения access токена
	RtExpires    int64  `json:"-"` // Unix-время истечения refresh токена
}

// Claims - полезная нагрузка JWT.
type Claims struct {
	UserID    uuid.UUID `json:"user_id"`
	TokenUUID string    `json:"token_uuid"`
	TokenType string    `json:"token_type"` // "access" или "refresh"
	jwt.RegisteredClaims
}
