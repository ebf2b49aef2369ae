package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// EnrichmentTaskPublisher публикует задачи фонового обогащения реплик.
type EnrichmentTaskPublisher interface {
	PublishEnrichmentTask(ctx context.Context, payload EnrichmentTaskPayload) error
}

// rabbitMQPublisher реализует EnrichmentTaskPublisher поверх RabbitMQ.
type rabbitMQPublisher struct {
	channel   *amqp.Channel
	queueName string
}

// NewRabbitMQEnrichmentTaskPublisher создаёт паблишер задач обогащения.
// Очередь объявляется здесь же с теми же параметрами, что у консьюмера,
// чтобы порядок запуска процессов не имел значения.
func NewRabbitMQEnrichmentTaskPublisher(conn *amqp.Connection, queueName string) (EnrichmentTaskPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("enrichment publisher: не удалось открыть канал: %w", err)
	}
	_, err = ch.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		log.Printf("EnrichmentTaskPublisher ERROR: Не удалось объявить очередь '%s': %v", queueName, err)
		ch.Close()
		return nil, fmt.Errorf("enrichment publisher: не удалось объявить очередь '%s': %w", queueName, err)
	}
	log.Printf("EnrichmentTaskPublisher: очередь '%s' успешно объявлена/найдена", queueName)
	return &rabbitMQPublisher{channel: ch, queueName: queueName}, nil
}

// PublishEnrichmentTask публикует задачу обогащения реплики.
func (p *rabbitMQPublisher) PublishEnrichmentTask(ctx context.Context, payload EnrichmentTaskPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[TaskID: %s][LineID: %d] Ошибка сериализации EnrichmentTaskPayload: %v", payload.TaskID, payload.LineID, err)
		return fmt.Errorf("ошибка сериализации задачи обогащения для TaskID %s: %w", payload.TaskID, err)
	}

	if err := p.publishMessage(ctx, body); err != nil {
		log.Printf("[TaskID: %s][LineID: %d] Ошибка публикации EnrichmentTask: %v", payload.TaskID, payload.LineID, err)
		return fmt.Errorf("ошибка публикации задачи обогащения для TaskID %s: %w", payload.TaskID, err)
	}
	return nil
}

func (p *rabbitMQPublisher) publishMessage(ctx context.Context, body []byte) error {
	if p.channel == nil {
		log.Println("Ошибка публикации: канал RabbitMQ не инициализирован (nil)")
		return errors.New("канал RabbitMQ не инициализирован")
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var err error
	// До трёх попыток с линейным бэкоффом.
	for attempt := 1; attempt <= 3; attempt++ {
		err = p.channel.PublishWithContext(ctx,
			"",          // exchange (используем default)
			p.queueName, // routing key (имя очереди)
			false,       // mandatory
			false,       // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				Body:         body,
				Timestamp:    time.Now(),
				AppId:        "scene-server",
			},
		)
		if err == nil {
			break
		}
		log.Printf("Ошибка публикации (attempt %d) в очередь '%s': %v", attempt, p.queueName, err)
		time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
	}
	if err != nil {
		return fmt.Errorf("ошибка публикации в очередь %s после retries: %w", p.queueName, err)
	}
	return nil
}
