package handler

import (
	"time"

	"scene-server/internal/models"
)

// ErrorResponse - стандартный ответ об ошибке.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Коды ошибок API.
const (
	errCodeBadRequest       = "bad_request"
	errCodeWrongCredentials = "wrong_credentials"
	errCodeDuplicateUser    = "duplicate_user"
	errCodeTokenInvalid     = "token_invalid"
	errCodeTokenExpired     = "token_expired"
	errCodeNotFound         = "not_found"
	errCodeConflict         = "conflict"
	errCodeInternal         = "internal_error"
)

type registerRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type createSaveRequest struct {
	Title     string `json:"title" binding:"required"`
	ScriptKey string `json:"script_key"`
}

type startScriptRequest struct {
	ScriptName string `json:"script_name" binding:"required"`
}

type playerMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

type setPlayerRequest struct {
	UserName     string `json:"user_name" binding:"required"`
	UserSubtitle string `json:"user_subtitle"`
	UserSettings string `json:"user_settings"`
}

// SaveSummary - сохранение в списках.
type SaveSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	ScriptKey    string    `json:"script_key,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastPlayedAt time.Time `json:"last_played_at"`
}

func toSaveSummary(save models.Save) SaveSummary {
	return SaveSummary{
		ID:           save.ID.String(),
		Title:        save.Title,
		ScriptKey:    save.ScriptKey,
		CreatedAt:    save.CreatedAt,
		LastPlayedAt: save.LastPlayedAt,
	}
}

// HistoryLine - реплика журнала в ответе API.
type HistoryLine struct {
	ID              int64  `json:"id"`
	Attribute       string `json:"attribute"`
	DisplayName     string `json:"display_name,omitempty"`
	Content         string `json:"content"`
	OriginalEmotion  string `json:"original_emotion,omitempty"`
	PredictedEmotion string `json:"predicted_emotion,omitempty"`
	ActionContent    string `json:"action_content,omitempty"`
	AudioFile        string `json:"audio_file,omitempty"`
}

func toHistoryLines(lines []models.PerceivedLine) []HistoryLine {
	out := make([]HistoryLine, len(lines))
	for i, line := range lines {
		out[i] = HistoryLine{
			ID:              line.ID,
			Attribute:       string(line.Attribute),
			DisplayName:     line.DisplayName,
			Content:         line.Content,
			OriginalEmotion:  line.OriginalEmotion,
			PredictedEmotion: line.PredictedEmotion,
			ActionContent:    line.ActionContent,
			AudioFile:        line.AudioFile,
		}
	}
	return out
}
