package messaging_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"scene-server/internal/messaging"
	"scene-server/internal/models"
)

func TestEventBrokerPublishSubscribe(t *testing.T) {
	broker := messaging.NewEventBroker(zap.NewNop())
	ch := broker.Subscribe("client-1")

	broker.Publish("client-1", models.ClientEvent{Type: models.ClientEventNarration, Content: "тихо"})
	broker.Publish("client-2", models.ClientEvent{Type: models.ClientEventNarration}) // нет подписчика

	event := <-ch
	assert.Equal(t, models.ClientEventNarration, event.Type)
	assert.Equal(t, "тихо", event.Content)
	assert.Empty(t, ch)
}

func TestEventBrokerResubscribeReplaces(t *testing.T) {
	broker := messaging.NewEventBroker(zap.NewNop())
	old := broker.Subscribe("client-1")
	fresh := broker.Subscribe("client-1")

	// Старый канал закрыт, события идут только в новый.
	_, open := <-old
	assert.False(t, open)

	broker.Publish("client-1", models.ClientEvent{Type: models.ClientEventReplyDone})
	require.Len(t, fresh, 1)
}

func TestEventBrokerUnsubscribeIgnoresStaleChannel(t *testing.T) {
	broker := messaging.NewEventBroker(zap.NewNop())
	old := broker.Subscribe("client-1")
	fresh := broker.Subscribe("client-1")

	// Отписка по каналу старого соединения не снимает новую подписку.
	broker.Unsubscribe("client-1", old)
	broker.Publish("client-1", models.ClientEvent{Type: models.ClientEventReplyDone})
	require.Len(t, fresh, 1)

	broker.Unsubscribe("client-1", fresh)
	_, open := <-fresh
	assert.False(t, open)
}

func TestEventBrokerDropsWhenBufferFull(t *testing.T) {
	broker := messaging.NewEventBroker(zap.NewNop())
	ch := broker.Subscribe("client-1")

	for i := 0; i < 200; i++ {
		broker.Publish("client-1", models.ClientEvent{Type: models.ClientEventChunk})
	}
	// Буфер конечен; публикация при этом не блокируется.
	assert.Equal(t, cap(ch), len(ch))
}
