package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"scene-server/internal/models"
	"scene-server/internal/service"
)

// Предельная длительность одного прогона сценария.
const scriptRunTimeout = 30 * time.Minute

// GameAPI - игровые операции, нужные транспортному слою.
type GameAPI interface {
	OpenSession(ctx context.Context, clientID string, userID, saveID uuid.UUID) (*service.Session, error)
	CloseSession(ctx context.Context, clientID string)
	ScriptList() []string
	StartScript(ctx context.Context, clientID, scriptName string) error
	HandlePlayerMessage(ctx context.Context, clientID, content string) error
	History(clientID string, n int) ([]models.PerceivedLine, error)
	Scene(clientID string) (service.SceneState, error)
	SetPlayer(clientID string, player models.Player) error
}

// SaveStore - персистентный каталог сохранений.
type SaveStore interface {
	CreateSave(ctx context.Context, save *models.Save) error
	GetByID(ctx context.Context, saveID, userID uuid.UUID) (*models.Save, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Save, error)
	Touch(ctx context.Context, saveID uuid.UUID) error
	Delete(ctx context.Context, saveID, userID uuid.UUID) error
}

// GameHandler обрабатывает игровые HTTP-запросы. Сессия клиента
// привязана к сохранению: clientID совпадает с ID сохранения.
type GameHandler struct {
	game   GameAPI
	saves  SaveStore
	auth   AuthAPI
	logger *zap.Logger
}

// NewGameHandler создаёт GameHandler.
func NewGameHandler(game GameAPI, saves SaveStore, auth AuthAPI, logger *zap.Logger) *GameHandler {
	return &GameHandler{
		game:   game,
		saves:  saves,
		auth:   auth,
		logger: logger.Named("GameHandler"),
	}
}

// RegisterRoutes регистрирует игровые маршруты.
func (h *GameHandler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api", AuthMiddleware(h.auth))
	{
		api.GET("/scripts", h.listScripts)

		api.GET("/saves", h.listSaves)
		api.POST("/saves", h.createSave)
		api.DELETE("/saves/:id", h.deleteSave)

		api.POST("/saves/:id/session", h.openSession)
		api.DELETE("/saves/:id/session", h.closeSession)
		api.PUT("/saves/:id/player", h.setPlayer)
		api.POST("/saves/:id/script", h.startScript)
		api.POST("/saves/:id/message", h.playerMessage)
		api.GET("/saves/:id/history", h.history)
		api.GET("/saves/:id/scene", h.scene)
	}
}

// ownedSave проверяет, что сохранение принадлежит текущему пользователю.
func (h *GameHandler) ownedSave(c *gin.Context) (*models.Save, bool) {
	userID, ok := userIDFromContext(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Code: errCodeTokenInvalid, Message: "Unauthorized"})
		return nil, false
	}

	saveID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: errCodeBadRequest, Message: "Invalid save ID format"})
		return nil, false
	}

	save, err := h.saves.GetByID(c.Request.Context(), saveID, userID)
	if err != nil {
		handleServiceError(c, err)
		return nil, false
	}
	return save, true
}

func (h *GameHandler) listScripts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"scripts": h.game.ScriptList()})
}

func (h *GameHandler) listSaves(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Code: errCodeTokenInvalid, Message: "Unauthorized"})
		return
	}

	saves, err := h.saves.ListByUser(c.Request.Context(), userID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	summaries := make([]SaveSummary, len(saves))
	for i, save := range saves {
		summaries[i] = toSaveSummary(save)
	}
	c.JSON(http.StatusOK, gin.H{"saves": summaries})
}

func (h *GameHandler) createSave(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Code: errCodeTokenInvalid, Message: "Unauthorized"})
		return
	}

	var req createSaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: errCodeBadRequest, Message: "Invalid request body: " + err.Error()})
		return
	}

	save := &models.Save{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     req.Title,
		ScriptKey: req.ScriptKey,
	}
	if err := h.saves.CreateSave(c.Request.Context(), save); err != nil {
		handleServiceError(c, err)
		return
	}

	h.logger.Info("Сохранение создано",
		zap.String("saveID", save.ID.String()), zap.String("userID", userID.String()))
	c.JSON(http.StatusCreated, toSaveSummary(*save))
}

func (h *GameHandler) deleteSave(c *gin.Context) {
	save, ok := h.ownedSave(c)
	if !ok {
		return
	}

	// Активная сессия сохранения закрывается вместе с ним
	h.game.CloseSession(c.Request.Context(), save.ID.String())

	userID, _ := userIDFromContext(c)
	if err := h.saves.Delete(c.Request.Context(), save.ID, userID); err != nil {
		handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *GameHandler) openSession(c *gin.Context) {
	save, ok := h.ownedSave(c)
	if !ok {
		return
	}

	session, err := h.game.OpenSession(c.Request.Context(), save.ID.String(), save.UserID, save.ID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	if err := h.saves.Touch(c.Request.Context(), save.ID); err != nil {
		h.logger.Warn("Не удалось обновить last_played_at", zap.String("saveID", save.ID.String()), zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{
		"client_id":      save.ID.String(),
		"restored_lines": session.JournalLen(),
	})
}

func (h *GameHandler) closeSession(c *gin.Context) {
	save, ok := h.ownedSave(c)
	if !ok {
		return
	}
	h.game.CloseSession(c.Request.Context(), save.ID.String())
	c.Status(http.StatusNoContent)
}

func (h *GameHandler) setPlayer(c *gin.Context) {
	save, ok := h.ownedSave(c)
	if !ok {
		return
	}

	var req setPlayerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: errCodeBadRequest, Message: "Invalid request body: " + err.Error()})
		return
	}

	err := h.game.SetPlayer(save.ID.String(), models.Player{
		UserName:     req.UserName,
		UserSubtitle: req.UserSubtitle,
		UserSettings: req.UserSettings,
	})
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// startScript запускает прогон сценария в фоне: события приходят клиенту
// по WebSocket, а запрос сразу отвечает 202.
func (h *GameHandler) startScript(c *gin.Context) {
	save, ok := h.ownedSave(c)
	if !ok {
		return
	}

	var req startScriptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: errCodeBadRequest, Message: "Invalid request body: " + err.Error()})
		return
	}

	clientID := save.ID.String()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), scriptRunTimeout)
		defer cancel()

		if err := h.game.StartScript(ctx, clientID, req.ScriptName); err != nil {
			scriptRunsTotal.WithLabelValues("error").Inc()
			h.logger.Error("Прогон сценария завершился с ошибкой",
				zap.String("clientID", clientID), zap.String("script", req.ScriptName), zap.Error(err))
			return
		}
		scriptRunsTotal.WithLabelValues("success").Inc()
	}()

	c.JSON(http.StatusAccepted, gin.H{"script_name": req.ScriptName})
}

func (h *GameHandler) playerMessage(c *gin.Context) {
	save, ok := h.ownedSave(c)
	if !ok {
		return
	}

	var req playerMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: errCodeBadRequest, Message: "Invalid request body: " + err.Error()})
		return
	}

	// Ответ персонажа стримится по WebSocket, пока запрос ждёт завершения
	if err := h.game.HandlePlayerMessage(c.Request.Context(), save.ID.String(), req.Content); err != nil {
		handleServiceError(c, err)
		return
	}

	playerMessagesTotal.Inc()
	c.Status(http.StatusNoContent)
}

func (h *GameHandler) history(c *gin.Context) {
	save, ok := h.ownedSave(c)
	if !ok {
		return
	}

	limit := 0
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: errCodeBadRequest, Message: "Invalid 'limit' parameter"})
			return
		}
		limit = parsed
	}

	lines, err := h.game.History(save.ID.String(), limit)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lines": toHistoryLines(lines)})
}

func (h *GameHandler) scene(c *gin.Context) {
	save, ok := h.ownedSave(c)
	if !ok {
		return
	}

	state, err := h.game.Scene(save.ID.String())
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}
