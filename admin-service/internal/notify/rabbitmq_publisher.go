package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	// DefaultBalloonExchange — fanout exchange, из которого подсистема уведомлений
	// забирает сообщения для показа в консоли.
	DefaultBalloonExchange = "admin.balloons"
	balloonExchangeType    = "fanout"
	publishTimeout         = 5 * time.Second
	publisherAppID         = "admin-service"
)

// amqpChannel — часть *amqp.Channel, которой пользуется паблишер.
type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitMQPublisher публикует уведомления в RabbitMQ.
type RabbitMQPublisher struct {
	mu       sync.Mutex // канал не должен использоваться для публикации параллельно
	channel  amqpChannel
	exchange string
	timeout  time.Duration
	logger   *zap.Logger
	wg       sync.WaitGroup
}

// NewRabbitMQPublisher открывает канал и объявляет durable fanout exchange.
func NewRabbitMQPublisher(conn *amqp.Connection, exchange string, logger *zap.Logger) (*RabbitMQPublisher, error) {
	if conn == nil {
		return nil, errors.New("balloon publisher: rabbitmq connection is nil")
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("balloon publisher: не удалось открыть канал: %w", err)
	}
	return newRabbitMQPublisher(ch, exchange, logger)
}

func newRabbitMQPublisher(ch amqpChannel, exchange string, logger *zap.Logger) (*RabbitMQPublisher, error) {
	if exchange == "" {
		exchange = DefaultBalloonExchange
	}

	err := ch.ExchangeDeclare(
		exchange,
		balloonExchangeType,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("balloon publisher: не удалось объявить exchange '%s': %w", exchange, err)
	}

	logger.Info("RabbitMQ balloon publisher initialized", zap.String("exchange", exchange))
	return &RabbitMQPublisher{
		channel:  ch,
		exchange: exchange,
		timeout:  publishTimeout,
		logger:   logger.Named("BalloonPublisher"),
	}, nil
}

// Publish отправляет одно уведомление.
func (p *RabbitMQPublisher) Publish(ctx context.Context, balloon Balloon) error {
	if balloon.Timestamp.IsZero() {
		balloon.Timestamp = time.Now()
	}
	body, err := json.Marshal(balloon)
	if err != nil {
		return fmt.Errorf("failed to marshal balloon: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx,
		p.exchange, // exchange
		"",         // routing key (не используется для fanout)
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
			Timestamp:   balloon.Timestamp,
			AppId:       publisherAppID,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish balloon to %s: %w", p.exchange, err)
	}
	return nil
}

// ForSession возвращает Notifier, который публикует уведомления от имени сессии.
// Публикация идет в фоне: ошибки только логируются.
func (p *RabbitMQPublisher) ForSession(sessionID string) Notifier {
	return &sessionPublisher{publisher: p, session: sessionID}
}

// Close дожидается фоновых публикаций и закрывает канал.
func (p *RabbitMQPublisher) Close() error {
	p.wg.Wait()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.logger.Info("Закрытие канала RabbitMQ паблишера...")
		return p.channel.Close()
	}
	return nil
}

func (p *RabbitMQPublisher) publishAsync(b Balloon) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.Publish(context.Background(), b); err != nil {
			p.logger.Error("Failed to publish balloon",
				zap.String("session", b.Session),
				zap.String("type", string(b.Type)),
				zap.Error(err),
			)
		}
	}()
}

type sessionPublisher struct {
	publisher *RabbitMQPublisher
	session   string
}

func (s *sessionPublisher) ShowSuccess(message string) {
	s.publisher.publishAsync(Balloon{Type: BalloonSuccess, Message: message, Session: s.session, Timestamp: time.Now()})
}

func (s *sessionPublisher) ShowError(err error) {
	s.publisher.publishAsync(Balloon{Type: BalloonError, Message: errorMessage(err), Session: s.session, Timestamp: time.Now()})
}
