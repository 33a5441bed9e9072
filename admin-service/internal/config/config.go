package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"chunked-loader/shared/utils"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Транспорты до бэкенда плагина.
const (
	TransportWebSocket = "ws"
	TransportHTTP      = "http"
)

const envDevelopment = "development"

var ErrInvalidConfig = errors.New("invalid configuration")

// Config хранит конфигурацию сервиса админки.
type Config struct {
	Env         string `envconfig:"ENV" default:"development"`
	ServerPort  string `envconfig:"ADMIN_SERVER_PORT" default:"8084"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"debug"`
	LogEncoding string `envconfig:"LOG_ENCODING" default:"json"`

	// Ограничение запросов на один IP
	RateLimitPerMinute uint   `envconfig:"RATE_LIMIT_PER_MINUTE" default:"120"`
	CORSAllowedOrigins string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`

	Vortex   VortexConfig
	Session  SessionConfig
	RabbitMQ RabbitMQConfig
}

// VortexConfig — канал до бэкенда, который хранит настройки плагина.
type VortexConfig struct {
	URL           string        `envconfig:"VORTEX_URL" default:"ws://localhost:8011/vortexws"`
	Transport     string        `envconfig:"VORTEX_TRANSPORT" default:"ws"`
	ClientTimeout time.Duration `envconfig:"HTTP_CLIENT_TIMEOUT" default:"10s"`
}

// SessionConfig — сессии экранов редактирования.
type SessionConfig struct {
	// Секретное поле БЕЗ envconfig тега
	Secret       string        `ignored:"true"`
	IdleTTL      time.Duration `envconfig:"SESSION_IDLE_TTL" default:"30m"`
	ReapInterval time.Duration `envconfig:"SESSION_REAP_INTERVAL" default:"1m"`
	// Верхняя граница открытых экранов на процесс, 0 — без ограничения
	MaxOpen int `envconfig:"SESSION_MAX_OPEN" default:"500"`
}

// RabbitMQConfig — публикация уведомлений во внешнюю подсистему. Необязательна.
type RabbitMQConfig struct {
	BalloonsEnabled bool   `envconfig:"BALLOONS_ENABLED" default:"false"`
	URL             string `envconfig:"RABBITMQ_URL"`
	Exchange        string `envconfig:"BALLOON_EXCHANGE" default:"admin.balloons"`
}

// GetAllowedOrigins разбивает CORSAllowedOrigins по запятой.
func (c *Config) GetAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}
	var origins []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// IsDevelopment — локальный запуск.
func (c *Config) IsDevelopment() bool {
	return c.Env == envDevelopment
}

// LoadConfig загружает конфигурацию из .env, переменных окружения и секретов.
func LoadConfig() (*Config, error) {
	// .env не обязателен
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации: %w", err)
	}

	secret, err := utils.ReadSecretOrEnv("session_secret", "SESSION_SECRET")
	if err != nil {
		if !cfg.IsDevelopment() {
			return nil, fmt.Errorf("не удалось прочитать секрет session_secret: %w", err)
		}
		secret, err = randomSecret()
		if err != nil {
			return nil, err
		}
		log.Println("  Session Secret: [СГЕНЕРИРОВАН, только для development]")
	}
	cfg.Session.Secret = secret

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Printf("Конфигурация Admin сервиса загружена:")
	log.Printf("  Env: %s, Port: %s", cfg.Env, cfg.ServerPort)
	log.Printf("  Vortex: %s (%s)", cfg.Vortex.URL, cfg.Vortex.Transport)
	log.Printf("  Balloons to RabbitMQ: %t", cfg.RabbitMQ.BalloonsEnabled)

	return &cfg, nil
}

// Validate проверяет значения, которые envconfig проверить не может.
func (c *Config) Validate() error {
	switch c.Vortex.Transport {
	case TransportWebSocket, TransportHTTP:
	default:
		return fmt.Errorf("%w: VORTEX_TRANSPORT must be %q or %q, got %q",
			ErrInvalidConfig, TransportWebSocket, TransportHTTP, c.Vortex.Transport)
	}
	if c.Vortex.URL == "" {
		return fmt.Errorf("%w: VORTEX_URL is empty", ErrInvalidConfig)
	}
	if c.Session.Secret == "" {
		return fmt.Errorf("%w: session secret is empty", ErrInvalidConfig)
	}
	if c.Session.IdleTTL <= 0 || c.Session.ReapInterval <= 0 {
		return fmt.Errorf("%w: session durations must be positive", ErrInvalidConfig)
	}
	if c.Session.MaxOpen < 0 {
		return fmt.Errorf("%w: SESSION_MAX_OPEN must not be negative", ErrInvalidConfig)
	}
	if c.RabbitMQ.BalloonsEnabled && c.RabbitMQ.URL == "" {
		return fmt.Errorf("%w: RABBITMQ_URL is required when BALLOONS_ENABLED", ErrInvalidConfig)
	}
	return nil
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate session secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
