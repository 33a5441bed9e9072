package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chunked-loader/admin-service/internal/client"
	"chunked-loader/admin-service/internal/config"
	"chunked-loader/admin-service/internal/editor"
	"chunked-loader/admin-service/internal/handler"
	"chunked-loader/admin-service/internal/notify"
	"chunked-loader/admin-service/web"
	sharedLogger "chunked-loader/shared/logger"
	sharedMiddleware "chunked-loader/shared/middleware"
	"chunked-loader/shared/tuple"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	amqp "github.com/rabbitmq/amqp091-go"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"
)

const serviceName = "admin-service"

func main() {
	// Стандартный log только до инициализации zap
	log.Println("Запуск Admin Service...")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	logger, logLevel, err := sharedLogger.New(sharedLogger.Config{
		Level:       cfg.LogLevel,
		Encoding:    cfg.LogEncoding,
		Service:     serviceName,
		Development: cfg.IsDevelopment(),
	})
	if err != nil {
		log.Fatalf("Не удалось инициализировать логгер: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)
	logger.Info("Логгер инициализирован", zap.Stringer("logLevel", logLevel.Level()))

	// --- Канал до бэкенда плагина ---
	transport, transportDone, closeTransport, err := setupTransport(cfg, logger)
	if err != nil {
		logger.Fatal("Не удалось подключиться к бэкенду настроек", zap.Error(err))
	}
	defer closeTransport()

	// --- Получатели уведомлений ---
	logNotifier := notify.NewLog(logger)
	var balloonPublisher *notify.RabbitMQPublisher
	if cfg.RabbitMQ.BalloonsEnabled {
		rabbitConn, err := connectRabbitMQ(cfg.RabbitMQ.URL, logger)
		if err != nil {
			logger.Fatal("Не удалось подключиться к RabbitMQ", zap.Error(err))
		}
		defer rabbitConn.Close()

		balloonPublisher, err = notify.NewRabbitMQPublisher(rabbitConn, cfg.RabbitMQ.Exchange, logger)
		if err != nil {
			logger.Fatal("Не удалось создать BalloonPublisher", zap.Error(err))
		}
		defer func() {
			if err := balloonPublisher.Close(); err != nil {
				logger.Error("Ошибка при закрытии канала BalloonPublisher", zap.Error(err))
			}
		}()
	}
	sinks := func(sessionID string) []notify.Notifier {
		out := []notify.Notifier{logNotifier}
		if balloonPublisher != nil {
			out = append(out, balloonPublisher.ForSession(sessionID))
		}
		return out
	}

	// --- Сессии экранов ---
	registry := editor.NewRegistry(transport, sinks, cfg.Session.IdleTTL, cfg.Session.MaxOpen, logger)
	registry.StartReaper(cfg.Session.ReapInterval)

	settingHandler := handler.NewSettingHandler(registry, cfg, logger)

	// --- Настройка Gin ---
	gin.SetMode(gin.ReleaseMode)
	if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(sharedMiddleware.GinZapLogger(logger, "/health", "/metrics"))
	router.Use(gin.Recovery())
	router.Use(handler.CustomErrorMiddleware(logger))

	p := ginprometheus.NewPrometheus("gin")

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.GetAllowedOrigins()
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	corsConfig.AllowCredentials = !corsConfig.AllowAllOrigins
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	tmpl, err := web.Templates()
	if err != nil {
		logger.Fatal("Не удалось загрузить HTML шаблоны", zap.Error(err))
	}
	router.SetHTMLTemplate(tmpl)

	rateLimitStore := ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{
		Rate:  time.Minute,
		Limit: cfg.RateLimitPerMinute,
	})
	rateLimitMiddleware := ratelimit.RateLimiter(rateLimitStore, &ratelimit.Options{
		ErrorHandler: func(c *gin.Context, info ratelimit.Info) {
			logger.Warn("Rate limit exceeded",
				zap.String("clientIP", c.ClientIP()),
				zap.Time("resetTime", info.ResetTime),
				zap.String("path", c.Request.URL.Path),
			)
			c.String(http.StatusTooManyRequests, "Too many requests. Try again in "+time.Until(info.ResetTime).String())
		},
		KeyFunc: func(c *gin.Context) string {
			return c.ClientIP()
		},
	})

	handler.RegisterHealth(router)
	handler.RegisterLogLevel(router, logLevel)
	settingHandler.RegisterRoutes(router, rateLimitMiddleware)

	// Prometheus после регистрации роутов, /metrics регистрируется здесь же
	p.Use(router)

	// --- Запуск HTTP сервера ---
	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Admin сервер запускается", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Ошибка запуска HTTP сервера", zap.Error(err))
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
		logger.Info("Получен сигнал завершения, начинаем остановку сервера...")
	case <-transportDone:
		logger.Error("Соединение с бэкендом настроек потеряно, останавливаем сервер")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("HTTP Server forced to shutdown", zap.Error(err))
	}

	// Экраны закрываются до транспорта
	registry.Close()
	logger.Info("Сервер успешно остановлен")
}

// setupTransport выбирает транспорт по конфигу. transportDone закрывается при
// потере WebSocket соединения; для HTTP он никогда не закрывается.
func setupTransport(cfg *config.Config, logger *zap.Logger) (tuple.Transport, <-chan struct{}, func(), error) {
	switch cfg.Vortex.Transport {
	case config.TransportHTTP:
		t, err := client.NewHTTPTransport(cfg.Vortex.URL, cfg.Vortex.ClientTimeout, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		return t, make(chan struct{}), func() {}, nil
	default:
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Vortex.ClientTimeout)
		defer cancel()
		t, err := client.DialWebSocket(ctx, cfg.Vortex.URL, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		closeFn := func() {
			if err := t.Close(); err != nil {
				logger.Warn("Ошибка при закрытии WebSocket соединения", zap.Error(err))
			}
		}
		return t, t.Done(), closeFn, nil
	}
}

func connectRabbitMQ(uri string, logger *zap.Logger) (*amqp.Connection, error) {
	var connection *amqp.Connection
	var err error
	maxRetries := 5
	retryDelay := 5 * time.Second

	for i := 0; i < maxRetries; i++ {
		connection, err = amqp.Dial(uri)
		if err == nil {
			logger.Info("Подключение к RabbitMQ успешно установлено")
			go func() {
				notifyClose := make(chan *amqp.Error, 1)
				connection.NotifyClose(notifyClose)
				if closeErr := <-notifyClose; closeErr != nil {
					logger.Error("Соединение с RabbitMQ разорвано", zap.Error(closeErr))
				}
			}()
			return connection, nil
		}
		logger.Warn("Не удалось подключиться к RabbitMQ, попытка переподключения...",
			zap.Error(err),
			zap.Int("retry", i+1),
			zap.Duration("delay", retryDelay),
		)
		time.Sleep(retryDelay)
	}
	return nil, fmt.Errorf("не удалось подключиться к RabbitMQ после %d попыток: %w", maxRetries, err)
}
