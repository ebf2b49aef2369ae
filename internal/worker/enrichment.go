package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"scene-server/internal/messaging"
	"scene-server/internal/models"
	"scene-server/internal/service"
)

const processTimeout = 60 * time.Second

// EmotionClassifier предсказывает эмоцию реплики по её тексту.
type EmotionClassifier interface {
	Classify(ctx context.Context, content, originalEmotion string) (string, error)
}

// SpeechSynthesizer озвучивает реплику и возвращает имя аудиофайла.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, character, content string) (string, error)
}

// LineUpdater записывает производные поля реплики в хранилище.
type LineUpdater interface {
	UpdateDerived(ctx context.Context, saveID uuid.UUID, lineID int64, predictedEmotion, audioFile string) error
}

// SessionLookup находит живую сессию по идентификатору сохранения.
type SessionLookup interface {
	BySave(saveID uuid.UUID) (*service.Session, bool)
}

// ClientPublisher - sink событий для клиента (fire-and-forget).
type ClientPublisher interface {
	Publish(clientID string, event models.ClientEvent)
}

// EnrichmentProcessor обрабатывает одну задачу обогащения реплики.
// Вынесен в отдельную структуру для тестируемости.
type EnrichmentProcessor struct {
	classifier EmotionClassifier
	tts        SpeechSynthesizer
	lines      LineUpdater
	sessions   SessionLookup
	clientPub  ClientPublisher
}

// NewEnrichmentProcessor создаёт процессор задач обогащения.
// tts может быть nil - тогда озвучка пропускается.
func NewEnrichmentProcessor(
	classifier EmotionClassifier,
	tts SpeechSynthesizer,
	lines LineUpdater,
	sessions SessionLookup,
	clientPub ClientPublisher) *EnrichmentProcessor {
	return &EnrichmentProcessor{
		classifier: classifier,
		tts:        tts,
		lines:      lines,
		sessions:   sessions,
		clientPub:  clientPub,
	}
}

// Process обрабатывает одну задачу обогащения.
// Классификация и озвучка best-effort: их ошибки деградируют результат,
// но не роняют задачу. Критична только запись в хранилище.
func (p *EnrichmentProcessor) Process(ctx context.Context, body []byte) error {
	var task messaging.EnrichmentTaskPayload
	if err := json.Unmarshal(body, &task); err != nil {
		log.Printf("[enrichment] Ошибка десериализации задачи: %v. Обработка невозможна.", err)
		return fmt.Errorf("ошибка десериализации задачи обогащения: %w", err)
	}
	log.Printf("[enrichment][TaskID: %s] Задача распарсена: SaveID=%s, LineID=%d", task.TaskID, task.SaveID, task.LineID)

	ctx, cancel := context.WithTimeout(ctx, processTimeout)
	defer cancel()

	predicted := task.OriginalEmotion
	if p.classifier != nil {
		emotion, err := p.classifier.Classify(ctx, task.Content, task.OriginalEmotion)
		if err != nil {
			log.Printf("[enrichment][TaskID: %s] Классификация эмоции не удалась: %v. Используется исходная эмоция.", task.TaskID, err)
			enrichmentStepsTotal.WithLabelValues("classify", "error").Inc()
		} else {
			predicted = emotion
			enrichmentStepsTotal.WithLabelValues("classify", "success").Inc()
		}
	}

	var audioFile string
	if p.tts != nil {
		ttsText := task.TTSContent
		if ttsText == "" {
			ttsText = task.Content
		}
		file, err := p.tts.Synthesize(ctx, task.Character, ttsText)
		if err != nil {
			log.Printf("[enrichment][TaskID: %s] Синтез озвучки не удался: %v. Реплика останется без аудио.", task.TaskID, err)
			enrichmentStepsTotal.WithLabelValues("tts", "error").Inc()
		} else {
			audioFile = file
			enrichmentStepsTotal.WithLabelValues("tts", "success").Inc()
		}
	}

	if err := p.lines.UpdateDerived(ctx, task.SaveID, task.LineID, predicted, audioFile); err != nil {
		log.Printf("[enrichment][TaskID: %s] КРИТ. ОШИБКА: не удалось сохранить производные поля реплики %d: %v", task.TaskID, task.LineID, err)
		return fmt.Errorf("сохранение производных полей реплики %d: %w", task.LineID, err)
	}

	// Живая сессия могла закрыться - тогда клиент увидит результат
	// при следующем открытии сохранения.
	if session, ok := p.sessions.BySave(task.SaveID); ok {
		session.ApplyDerived(task.LineID, predicted, audioFile)
	}

	p.clientPub.Publish(task.ClientID, models.ClientEvent{
		Type:      models.ClientEventLineUpdate,
		LineID:    task.LineID,
		Emotion:   predicted,
		AudioFile: audioFile,
	})

	log.Printf("[enrichment][TaskID: %s] Задача успешно обработана: emotion=%q, audio=%q", task.TaskID, predicted, audioFile)
	return nil
}

// EnrichmentConsumer читает задачи обогащения из RabbitMQ.
type EnrichmentConsumer struct {
	conn        *amqp.Connection
	processor   *EnrichmentProcessor
	queueName   string
	stopChannel chan struct{}
}

// NewEnrichmentConsumer создаёт консьюмера задач обогащения.
func NewEnrichmentConsumer(conn *amqp.Connection, processor *EnrichmentProcessor, queueName string) *EnrichmentConsumer {
	return &EnrichmentConsumer{
		conn:        conn,
		processor:   processor,
		queueName:   queueName,
		stopChannel: make(chan struct{}),
	}
}

// StartConsuming начинает прослушивание очереди задач обогащения.
// Блокирует до Stop() или закрытия канала RabbitMQ.
func (c *EnrichmentConsumer) StartConsuming() error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("enrichment consumer: не удалось открыть канал RabbitMQ: %w", err)
	}
	defer ch.Close()

	q, err := ch.QueueDeclare(
		c.queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("enrichment consumer: не удалось объявить очередь '%s': %w", c.queueName, err)
	}
	log.Printf("EnrichmentConsumer: очередь '%s' успешно объявлена/найдена", q.Name)

	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("enrichment consumer: не удалось установить QoS: %w", err)
	}

	msgs, err := ch.Consume(
		q.Name,
		"enrichment-consumer", // consumer tag
		false,                 // auto-ack = false
		false,                 // exclusive
		false,                 // no-local
		false,                 // no-wait
		nil,                   // args
	)
	if err != nil {
		return fmt.Errorf("enrichment consumer: не удалось зарегистрировать консьюмера: %w", err)
	}
	log.Printf("EnrichmentConsumer: запущен, ожидание задач из очереди '%s'...", q.Name)

	for {
		select {
		case d, ok := <-msgs:
			if !ok {
				log.Println("EnrichmentConsumer: канал сообщений RabbitMQ закрыт")
				return nil
			}

			// Обогащение подтверждается независимо от результата:
			// повторная доставка неудачной задачи не нужна,
			// реплика без производных полей валидна.
			if err := c.processor.Process(context.Background(), d.Body); err != nil {
				log.Printf("EnrichmentConsumer: ошибка обработки задачи (DeliveryTag: %d): %v", d.DeliveryTag, err)
				enrichmentTasksTotal.WithLabelValues("error").Inc()
			} else {
				enrichmentTasksTotal.WithLabelValues("success").Inc()
			}
			_ = d.Ack(false)

		case <-c.stopChannel:
			log.Println("EnrichmentConsumer: получен сигнал остановки")
			return nil
		}
	}
}

// Stop останавливает консьюмер.
func (c *EnrichmentConsumer) Stop() {
	log.Println("EnrichmentConsumer: остановка...")
	close(c.stopChannel)
}
