package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"chunked-loader/shared/tuple"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Время, разрешенное для записи сообщения бэкенду.
	writeWait = 10 * time.Second
	// Время ожидания следующего pong от бэкенда.
	pongWait = 60 * time.Second
	// Период пингов. Должен быть меньше pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Снимок настроек может быть большим.
	maxMessageSize = 1 << 20
)

// ErrConnectionClosed возвращается для запросов, не получивших ответ до закрытия соединения.
var ErrConnectionClosed = errors.New("vortex connection closed")

// WebSocketTransport — tuple.Transport поверх одного WebSocket соединения.
// Ответы сопоставляются с запросами по messageId, остальные сообщения
// раздаются наблюдателям по фильтру.
type WebSocketTransport struct {
	conn   *websocket.Conn
	logger *zap.Logger

	writeMu sync.Mutex // gorilla не допускает параллельной записи

	mu        sync.Mutex
	pending   map[string]chan tuple.Payload
	observers map[string]map[int]func(tuple.Payload)
	nextID    int

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// DialWebSocket подключается к бэкенду и запускает чтение и пинги.
func DialWebSocket(ctx context.Context, rawURL string, logger *zap.Logger) (*WebSocketTransport, error) {
	u, err := url.ParseRequestURI(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid vortex websocket URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("invalid vortex websocket URL: unsupported scheme %q", u.Scheme)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial vortex websocket %s: %w", rawURL, err)
	}

	t := &WebSocketTransport{
		conn:      conn,
		logger:    logger.Named("VortexWS").With(zap.String("url", rawURL)),
		pending:   make(map[string]chan tuple.Payload),
		observers: make(map[string]map[int]func(tuple.Payload)),
		done:      make(chan struct{}),
	}

	t.wg.Add(2)
	go t.readPump()
	go t.pingLoop()

	t.logger.Info("Vortex websocket connected")
	return t, nil
}

// Send реализует tuple.Transport.
func (t *WebSocketTransport) Send(ctx context.Context, p tuple.Payload) (tuple.Payload, error) {
	data, err := p.Encode()
	if err != nil {
		return tuple.Payload{}, err
	}

	reply := make(chan tuple.Payload, 1)
	t.mu.Lock()
	select {
	case <-t.done:
		t.mu.Unlock()
		return tuple.Payload{}, ErrConnectionClosed
	default:
	}
	t.pending[p.MessageID] = reply
	t.mu.Unlock()
	defer t.forget(p.MessageID)

	if err := t.write(websocket.TextMessage, data); err != nil {
		return tuple.Payload{}, fmt.Errorf("failed to send %s request: %w", p.Action, err)
	}

	select {
	case resp := <-reply:
		return resp, nil
	case <-ctx.Done():
		return tuple.Payload{}, ctx.Err()
	case <-t.done:
		return tuple.Payload{}, ErrConnectionClosed
	}
}

// Observe реализует tuple.Transport.
func (t *WebSocketTransport) Observe(filter tuple.Filter, fn func(tuple.Payload)) func() {
	key := filter.Key()

	t.mu.Lock()
	id := t.nextID
	t.nextID++
	if t.observers[key] == nil {
		t.observers[key] = make(map[int]func(tuple.Payload))
	}
	t.observers[key][id] = fn
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.observers[key], id)
		if len(t.observers[key]) == 0 {
			delete(t.observers, key)
		}
	}
}

// Done закрывается, когда соединение потеряно или закрыто.
func (t *WebSocketTransport) Done() <-chan struct{} {
	return t.done
}

// Close отправляет close-фрейм и дожидается остановки горутин.
func (t *WebSocketTransport) Close() error {
	err := t.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	t.shutdown()
	t.wg.Wait()
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return fmt.Errorf("failed to send close frame: %w", err)
	}
	return nil
}

func (t *WebSocketTransport) shutdown() {
	t.closeOnce.Do(func() {
		close(t.done)
		_ = t.conn.Close()
	})
}

func (t *WebSocketTransport) write(messageType int, data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return t.conn.WriteMessage(messageType, data)
}

func (t *WebSocketTransport) forget(messageID string) {
	t.mu.Lock()
	delete(t.pending, messageID)
	t.mu.Unlock()
}

func (t *WebSocketTransport) readPump() {
	defer func() {
		t.shutdown()
		t.wg.Done()
		t.logger.Info("Vortex readPump finished")
	}()

	t.conn.SetReadLimit(maxMessageSize)
	_ = t.conn.SetReadDeadline(time.Now().Add(pongWait))
	t.conn.SetPongHandler(func(string) error {
		return t.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				t.logger.Warn("Vortex websocket read error", zap.Error(err))
			}
			return
		}

		p, err := tuple.DecodePayload(message)
		if err != nil {
			t.logger.Warn("Dropping malformed vortex message", zap.Error(err), zap.Int("size", len(message)))
			continue
		}
		t.dispatch(p)
	}
}

func (t *WebSocketTransport) dispatch(p tuple.Payload) {
	t.mu.Lock()
	if reply, ok := t.pending[p.MessageID]; ok && p.MessageID != "" {
		delete(t.pending, p.MessageID)
		t.mu.Unlock()
		reply <- p
		return
	}
	if p.Action != tuple.ActionPush {
		// Ответ на запрос, который уже отменен или истек: снимок в нем
		// может быть старше того, что экран видел после.
		t.mu.Unlock()
		t.logger.Debug("Dropping unmatched vortex reply",
			zap.String("messageId", p.MessageID),
			zap.String("action", string(p.Action)),
			zap.String("filt", p.Filter.Key()))
		return
	}
	subscribers := t.observers[p.Filter.Key()]
	fns := make([]func(tuple.Payload), 0, len(subscribers))
	for _, fn := range subscribers {
		fns = append(fns, fn)
	}
	t.mu.Unlock()

	if len(fns) == 0 {
		t.logger.Debug("No observers for vortex message", zap.String("filt", p.Filter.Key()))
		return
	}
	for _, fn := range fns {
		fn(p)
	}
}

func (t *WebSocketTransport) pingLoop() {
	defer t.wg.Done()
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			if err := t.write(websocket.PingMessage, nil); err != nil {
				t.logger.Warn("Failed to send ping", zap.Error(err))
				t.shutdown()
				return
			}
		}
	}
}
