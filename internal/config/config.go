package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config содержит конфигурацию сцены-сервера.
type Config struct {
	// Настройки сервера
	Port        string `envconfig:"SERVER_PORT" default:"8080"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogEncoding string `envconfig:"LOG_ENCODING" default:"json"`

	// Настройки PostgreSQL
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     string `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`
	DBSSLMode  string `envconfig:"DB_SSL_MODE" default:"disable"`
	DBMaxConns int    `envconfig:"DB_MAX_CONNECTIONS" default:"10"`
	// Секретное поле БЕЗ envconfig тега
	DBPassword string

	// Настройки Redis
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`

	// Настройки RabbitMQ
	RabbitMQURL         string `envconfig:"RABBITMQ_URL" required:"true"`
	EnrichmentQueueName string `envconfig:"ENRICHMENT_QUEUE_NAME" default:"line_enrichment_tasks"`

	// Настройки AI-провайдера
	AIProvider    string        `envconfig:"AI_PROVIDER" default:"openai"` // openai или ollama
	AIBaseURL     string        `envconfig:"AI_BASE_URL" default:""`
	AIModel       string        `envconfig:"AI_MODEL" default:"gpt-4o-mini"`
	AITimeout     time.Duration `envconfig:"AI_TIMEOUT" default:"120s"`
	AIMaxRetries  int           `envconfig:"AI_MAX_RETRIES" default:"3"`
	AITemperature float64       `envconfig:"AI_TEMPERATURE" default:"0.8"`
	// Секретное поле БЕЗ envconfig тега
	AIAPIKey string

	// Настройки сервиса озвучки. Пустой TTS_BASE_URL отключает озвучку.
	TTSBaseURL   string `envconfig:"TTS_BASE_URL" default:""`
	TTSSpeakerID string `envconfig:"TTS_SPEAKER_ID" default:"0"`
	TTSOutputDir string `envconfig:"TTS_OUTPUT_DIR" default:"./audio_cache"`

	// Порог токенов, после которого история сворачивается в банк памяти
	MemoryBankThreshold int `envconfig:"MEMORY_BANK_THRESHOLD" default:"3000"`

	// Каталог сценариев
	ScriptsDir string `envconfig:"SCRIPTS_DIR" default:"./game_data"`

	// Настройки JWT
	AccessTokenTTL  time.Duration `envconfig:"ACCESS_TOKEN_TTL" default:"15m"`
	RefreshTokenTTL time.Duration `envconfig:"REFRESH_TOKEN_TTL" default:"168h"`
	// Секретное поле БЕЗ envconfig тега
	JWTSecret string

	// CORS
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:5173"`
}

// GetDSN возвращает строку подключения (DSN) для PostgreSQL.
func (c *Config) GetDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s&pool_max_conns=%d",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode, c.DBMaxConns)
}

// ReadSecret читает секрет из файла в стандартном пути Docker Secrets.
func ReadSecret(secretName string) (string, error) {
	filePath := fmt.Sprintf("/run/secrets/%s", secretName)
	secretBytes, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read secret file %s: %w", filePath, err)
	}
	secret := strings.TrimSpace(string(secretBytes))
	if secret == "" {
		return "", fmt.Errorf("secret file %s is empty", filePath)
	}
	return secret, nil
}

// readSecretOrEnv сначала пробует файл секрета, затем переменную окружения.
// Для локальной разработки секреты в файлах избыточны.
func readSecretOrEnv(secretName, envName string) (string, error) {
	if secret, err := ReadSecret(secretName); err == nil {
		return secret, nil
	}
	if value := strings.TrimSpace(os.Getenv(envName)); value != "" {
		return value, nil
	}
	return "", fmt.Errorf("secret %s not found: neither /run/secrets/%s nor $%s is set", secretName, secretName, envName)
}

// maskRabbitMQURL маскирует учётные данные в URL для логирования.
func maskRabbitMQURL(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil || u.User == nil {
		return urlStr
	}
	u.User = url.UserPassword("****", "****")
	return u.String()
}

// LoadConfig загружает конфигурацию из переменных окружения и секретов.
func LoadConfig() (*Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации scene-server: %w", err)
	}

	var loadErr error
	cfg.DBPassword, loadErr = readSecretOrEnv("db_password", "DB_PASSWORD")
	if loadErr != nil {
		return nil, loadErr
	}

	cfg.JWTSecret, loadErr = readSecretOrEnv("jwt_secret", "JWT_SECRET")
	if loadErr != nil {
		return nil, loadErr
	}

	// Для ollama ключ не нужен
	if strings.ToLower(cfg.AIProvider) != "ollama" {
		cfg.AIAPIKey, loadErr = readSecretOrEnv("ai_api_key", "AI_API_KEY")
		if loadErr != nil {
			return nil, loadErr
		}
	}

	log.Printf("Конфигурация Scene Server загружена (секреты из файлов):")
	log.Printf("  Port: %s", cfg.Port)
	log.Printf("  LogLevel: %s", cfg.LogLevel)
	log.Printf("  DB DSN: postgres://%s:***@%s:%s/%s?sslmode=%s", cfg.DBUser, cfg.DBHost, cfg.DBPort, cfg.DBName, cfg.DBSSLMode)
	log.Printf("  Redis Addr: %s (db %d)", cfg.RedisAddr, cfg.RedisDB)
	log.Printf("  RabbitMQ URL: %s", maskRabbitMQURL(cfg.RabbitMQURL))
	log.Printf("  Enrichment Queue Name: %s", cfg.EnrichmentQueueName)
	log.Printf("  AI Provider: %s (model %s)", cfg.AIProvider, cfg.AIModel)
	log.Printf("  Memory Bank Threshold: %d", cfg.MemoryBankThreshold)
	log.Printf("  Scripts Dir: %s", cfg.ScriptsDir)
	log.Println("  JWT Secret: [ЗАГРУЖЕН]")

	return &cfg, nil
}
