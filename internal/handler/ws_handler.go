package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"scene-server/internal/messaging"
	"scene-server/internal/models"
)

const (
	// Время, разрешённое для записи сообщения клиенту.
	writeWait = 10 * time.Second
	// Время, разрешённое для чтения следующего pong от клиента.
	pongWait = 60 * time.Second
	// Период пингов, должен быть меньше pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Максимальный размер сообщения от клиента.
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: сверять Origin со списком AllowedOrigins из конфигурации
		return true
	},
}

// WSHandler отдаёт клиенту поток событий сцены по WebSocket.
type WSHandler struct {
	broker *messaging.EventBroker
	auth   AuthAPI
	saves  SaveStore
	logger *zap.Logger
}

// NewWSHandler создаёт WSHandler.
func NewWSHandler(broker *messaging.EventBroker, auth AuthAPI, saves SaveStore, logger *zap.Logger) *WSHandler {
	return &WSHandler{
		broker: broker,
		auth:   auth,
		saves:  saves,
		logger: logger.Named("WSHandler"),
	}
}

// RegisterRoutes регистрирует WebSocket-маршрут.
func (h *WSHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/ws", h.serveWS)
}

// serveWS принимает соединение вида /ws?token=...&save_id=...
// Токен передаётся query-параметром, потому что браузерный WebSocket
// не умеет выставлять заголовок Authorization.
func (h *WSHandler) serveWS(c *gin.Context) {
	tokenString := c.Query("token")
	if tokenString == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Code: errCodeTokenInvalid, Message: "Missing token"})
		return
	}

	claims, err := h.auth.VerifyAccessToken(c.Request.Context(), tokenString)
	if err != nil {
		h.logger.Warn("WS: токен не прошёл проверку", zap.Error(err))
		handleServiceError(c, err)
		return
	}

	saveID, err := uuid.Parse(c.Query("save_id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: errCodeBadRequest, Message: "Invalid save_id format"})
		return
	}

	if _, err := h.saves.GetByID(c.Request.Context(), saveID, claims.UserID); err != nil {
		handleServiceError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrader уже ответил клиенту
		h.logger.Error("WS: не удалось обновить соединение", zap.Error(err))
		return
	}

	clientID := saveID.String()
	log := h.logger.With(zap.String("clientID", clientID), zap.String("userID", claims.UserID.String()))
	log.Info("WebSocket-соединение установлено")
	wsConnectionsActive.Inc()

	events := h.broker.Subscribe(clientID)

	go h.writePump(conn, events, log)
	go h.readPump(conn, clientID, events, log)
}

// writePump переливает события брокера в соединение и пингует клиента.
// Завершается, когда брокер закрывает канал (повторная подписка или
// отписка) либо когда запись не удалась.
func (h *WSHandler) writePump(conn *websocket.Conn, events <-chan models.ClientEvent, log *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
		log.Debug("writePump завершён")
	}()

	for {
		select {
		case event, ok := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				log.Warn("WS: ошибка записи события", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump вычитывает входящие сообщения. Игровой ввод идёт через HTTP,
// поэтому всё пришедшее по WS игнорируется; цикл нужен для обработки
// pong и закрытия соединения.
func (h *WSHandler) readPump(conn *websocket.Conn, clientID string, events <-chan models.ClientEvent, log *zap.Logger) {
	defer func() {
		h.broker.Unsubscribe(clientID, events)
		_ = conn.Close()
		wsConnectionsActive.Dec()
		log.Info("WebSocket-соединение закрыто")
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn("WS: ошибка чтения", zap.Error(err))
			}
			return
		}
		log.Warn("WS: неожиданное сообщение от клиента (игнорируется)", zap.ByteString("message", message))
	}
}
