package auth

import "errors"

var (
	// ErrInvalidCredentials - неверная пара логин/пароль либо пустые входные данные.
	ErrInvalidCredentials = errors.New("неверные учётные данные")
	// ErrUserAlreadyExists - имя пользователя уже занято.
	ErrUserAlreadyExists = errors.New("пользователь уже существует")
	// ErrTokenExpired - срок действия токена истёк.
	ErrTokenExpired = errors.New("срок действия токена истёк")
	// ErrTokenMalformed - токен не разбирается.
	ErrTokenMalformed = errors.New("токен повреждён")
	// ErrTokenInvalid - токен не прошёл проверку подписи или отозван.
	ErrTokenInvalid = errors.New("токен недействителен")
)
