package tuple

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Loader держит связь между экраном и набором кортежей на бэкенде:
// загрузка, сохранение и поток снимков, которые бэкенд присылает сам.
// Каждый успешный ответ целиком передается всем подписчикам.
type Loader[T any] struct {
	transport Transport
	filterFn  func() Filter
	logger    *zap.Logger

	mu          sync.Mutex
	subscribers map[int]func([]T)
	nextID      int
	cancelPush  func()
	closed      bool
}

// NewLoader создает загрузчик. filterFn вызывается перед каждым запросом.
func NewLoader[T any](transport Transport, filterFn func() Filter, logger *zap.Logger) *Loader[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader[T]{
		transport:   transport,
		filterFn:    filterFn,
		logger:      logger.Named("TupleLoader"),
		subscribers: make(map[int]func([]T)),
	}
}

// Subscribe регистрирует получателя снимков. Первый подписчик включает
// прослушивание push-сообщений для фильтра загрузчика.
func (l *Loader[T]) Subscribe(fn func([]T)) (unsubscribe func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return func() {}
	}

	id := l.nextID
	l.nextID++
	l.subscribers[id] = fn

	if l.cancelPush == nil {
		l.cancelPush = l.transport.Observe(l.filterFn(), l.onPush)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subscribers, id)
			l.mu.Unlock()
		})
	}
}

// Load запрашивает текущий набор кортежей. Снимок доставляется подписчикам
// до возврата из метода.
func (l *Loader[T]) Load(ctx context.Context) error {
	return l.roundTrip(ctx, ActionLoad, nil)
}

// Save отправляет items на бэкенд. Ответ бэкенда доставляется подписчикам
// так же, как результат Load. При ошибке подписчики ничего не получают.
func (l *Loader[T]) Save(ctx context.Context, items []T) error {
	if items == nil {
		items = []T{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("tuple loader: failed to encode tuples: %w", err)
	}
	return l.roundTrip(ctx, ActionSave, raw)
}

// Close отключает загрузчик от транспорта. Повторный вызов ничего не делает.
func (l *Loader[T]) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	cancel := l.cancelPush
	l.cancelPush = nil
	l.subscribers = make(map[int]func([]T))
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (l *Loader[T]) roundTrip(ctx context.Context, action Action, tuples json.RawMessage) error {
	if l.isClosed() {
		return ErrLoaderClosed
	}

	req := NewPayload(action, l.filterFn(), tuples)
	log := l.logger.With(zap.String("action", string(action)), zap.String("messageId", req.MessageID))

	resp, err := l.transport.Send(ctx, req)
	if err != nil {
		log.Warn("Tuple request failed", zap.Error(err))
		return fmt.Errorf("tuple %s: %w", action, err)
	}
	if err := resp.Err(); err != nil {
		log.Warn("Backend rejected tuple request", zap.Error(err))
		return err
	}

	items, err := decodeTuples[T](resp.Tuples)
	if err != nil {
		log.Error("Failed to decode tuples from reply", zap.Error(err))
		return err
	}

	log.Debug("Tuple request completed", zap.Int("count", len(items)))
	l.deliver(items)
	return nil
}

func (l *Loader[T]) onPush(p Payload) {
	if err := p.Err(); err != nil {
		l.logger.Warn("Ignoring push with error", zap.Error(err))
		return
	}
	items, err := decodeTuples[T](p.Tuples)
	if err != nil {
		l.logger.Warn("Ignoring undecodable push", zap.Error(err))
		return
	}
	l.deliver(items)
}

func (l *Loader[T]) deliver(items []T) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	fns := make([]func([]T), 0, len(l.subscribers))
	for _, fn := range l.subscribers {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(items)
	}
}

func (l *Loader[T]) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func decodeTuples[T any](raw json.RawMessage) ([]T, error) {
	items := []T{}
	if len(raw) == 0 || string(raw) == "null" {
		return items, nil
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: tuples: %v", ErrInvalidPayload, err)
	}
	return items, nil
}
