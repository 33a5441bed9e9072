package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeChannel struct {
	mu         sync.Mutex
	declared   []string
	published  []amqp.Publishing
	exchanges  []string
	declareErr error
	publishErr error
	closed     bool
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.declared = append(f.declared, name+"/"+kind)
	return f.declareErr
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.exchanges = append(f.exchanges, exchange)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestNewRabbitMQPublisher_DeclaresFanout(t *testing.T) {
	ch := &fakeChannel{}
	_, err := newRabbitMQPublisher(ch, "", zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultBalloonExchange + "/fanout"}, ch.declared)
}

func TestNewRabbitMQPublisher_DeclareFailureClosesChannel(t *testing.T) {
	ch := &fakeChannel{declareErr: errors.New("access refused")}
	_, err := newRabbitMQPublisher(ch, "admin.balloons", zap.NewNop())
	assert.Error(t, err)
	assert.True(t, ch.closed)
}

func TestRabbitMQPublisher_ForSession(t *testing.T) {
	ch := &fakeChannel{}
	p, err := newRabbitMQPublisher(ch, "admin.balloons", zap.NewNop())
	require.NoError(t, err)

	n := p.ForSession("session-1")
	n.ShowSuccess("Save Successful")
	n.ShowError(errors.New("validation failed"))
	require.NoError(t, p.Close()) // ждет фоновые публикации

	require.Len(t, ch.published, 2)
	assert.Equal(t, []string{"admin.balloons", "admin.balloons"}, ch.exchanges)

	got := map[BalloonType]Balloon{}
	for _, msg := range ch.published {
		assert.Equal(t, "application/json", msg.ContentType)
		assert.Equal(t, publisherAppID, msg.AppId)
		var b Balloon
		require.NoError(t, json.Unmarshal(msg.Body, &b))
		assert.Equal(t, "session-1", b.Session)
		got[b.Type] = b
	}
	assert.Equal(t, "Save Successful", got[BalloonSuccess].Message)
	assert.Equal(t, "validation failed", got[BalloonError].Message)
	assert.True(t, ch.closed)
}

func TestRabbitMQPublisher_PublishError(t *testing.T) {
	ch := &fakeChannel{publishErr: errors.New("channel closed")}
	p, err := newRabbitMQPublisher(ch, "admin.balloons", zap.NewNop())
	require.NoError(t, err)

	err = p.Publish(context.Background(), Balloon{Type: BalloonSuccess, Message: "x"})
	assert.ErrorContains(t, err, "channel closed")

	// Фоновая публикация ошибку только логирует
	p.ForSession("s").ShowSuccess("x")
	assert.NoError(t, p.Close())
}
