package messaging

import (
	"sync"

	"go.uber.org/zap"

	"scene-server/internal/models"
)

const subscriberBuffer = 64

// EventBroker - внутрипроцессная шина событий клиента. Прогон сценария и
// диалоговый сервис публикуют в неё, websocket-хендлер подписывается.
// Публикация неблокирующая: медленный подписчик теряет события, а не
// останавливает сцену.
type EventBroker struct {
	mu          sync.RWMutex
	subscribers map[string]chan models.ClientEvent
	logger      *zap.Logger
}

// NewEventBroker создаёт пустую шину.
func NewEventBroker(logger *zap.Logger) *EventBroker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventBroker{
		subscribers: make(map[string]chan models.ClientEvent),
		logger:      logger.Named("EventBroker"),
	}
}

// Subscribe регистрирует подписчика клиента и возвращает его канал.
// Повторная подписка (переподключение) закрывает старый канал и заменяет его.
func (b *EventBroker) Subscribe(clientID string) <-chan models.ClientEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	if old, ok := b.subscribers[clientID]; ok {
		b.logger.Info("Замена подписки при переподключении", zap.String("clientID", clientID))
		close(old)
	}
	ch := make(chan models.ClientEvent, subscriberBuffer)
	b.subscribers[clientID] = ch
	return ch
}

// Unsubscribe снимает подписку и закрывает канал подписчика.
// ch должен быть каналом, полученным из Subscribe: при переподключении
// это защищает новую подписку от снятия обработчиком старого соединения.
func (b *EventBroker) Unsubscribe(clientID string, ch <-chan models.ClientEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	current, ok := b.subscribers[clientID]
	if !ok || (<-chan models.ClientEvent)(current) != ch {
		return
	}
	delete(b.subscribers, clientID)
	close(current)
}

// Publish отправляет событие подписчику клиента. Без подписчика или при
// переполненном буфере событие отбрасывается.
func (b *EventBroker) Publish(clientID string, event models.ClientEvent) {
	// Отправка под RLock: закрытие канала в Unsubscribe берёт полный Lock,
	// поэтому отправка в закрытый канал исключена.
	b.mu.RLock()
	defer b.mu.RUnlock()

	ch, ok := b.subscribers[clientID]
	if !ok {
		return
	}

	select {
	case ch <- event:
	default:
		b.logger.Warn("Буфер подписчика переполнен, событие отброшено",
			zap.String("clientID", clientID), zap.String("type", string(event.Type)))
	}
}
