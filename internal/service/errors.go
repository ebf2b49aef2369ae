package service

import "errors"

var (
	// ErrSessionNotFound - для клиента нет активной игровой сессии.
	ErrSessionNotFound = errors.New("игровая сессия не найдена")
	// ErrNoActiveCharacter - в сцене нет текущего AI-персонажа.
	ErrNoActiveCharacter = errors.New("нет активного персонажа для ответа")
	// ErrEmptyMessage - пустое сообщение игрока.
	ErrEmptyMessage = errors.New("пустое сообщение")
)
