package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"chunked-loader/shared/tuple"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var testFilter = tuple.Filter{"key": "admin.Edit.SettingProperty", "plugin": "peek_abstract_chunked_data_loader"}

// fakeBackend — WebSocket сервер, который отвечает на запросы через reply
// и умеет сам отправлять push-сообщения.
type fakeBackend struct {
	server *httptest.Server
	reply  func(tuple.Payload) (tuple.Payload, bool)

	mu    sync.Mutex
	conns []*websocket.Conn
	ready chan struct{}
}

func newFakeBackend(t *testing.T, reply func(tuple.Payload) (tuple.Payload, bool)) *fakeBackend {
	t.Helper()
	b := &fakeBackend{reply: reply, ready: make(chan struct{}, 1)}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	b.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		b.mu.Lock()
		b.conns = append(b.conns, conn)
		b.mu.Unlock()
		b.ready <- struct{}{}

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			req, err := tuple.DecodePayload(msg)
			if err != nil {
				continue
			}
			resp, ok := b.reply(req)
			if !ok {
				continue
			}
			b.write(t, conn, resp)
		}
	}))
	t.Cleanup(b.server.Close)
	return b
}

func (b *fakeBackend) url() string {
	return "ws" + strings.TrimPrefix(b.server.URL, "http")
}

func (b *fakeBackend) write(t *testing.T, conn *websocket.Conn, p tuple.Payload) {
	data, err := json.Marshal(p)
	require.NoError(t, err)
	b.mu.Lock()
	defer b.mu.Unlock()
	_ = conn.WriteMessage(websocket.TextMessage, data)
}

func (b *fakeBackend) push(t *testing.T, p tuple.Payload) {
	b.mu.Lock()
	conn := b.conns[len(b.conns)-1]
	b.mu.Unlock()
	b.write(t, conn, p)
}

func (b *fakeBackend) dropConnections() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.conns {
		_ = c.Close()
	}
}

func echoReply(req tuple.Payload) (tuple.Payload, bool) {
	return tuple.Payload{
		MessageID: req.MessageID,
		Action:    req.Action,
		Filter:    req.Filter,
		Tuples:    json.RawMessage(`[{"id":1,"key":"a"}]`),
	}, true
}

func dial(t *testing.T, b *fakeBackend) *WebSocketTransport {
	t.Helper()
	tr, err := DialWebSocket(context.Background(), b.url(), zaptest.NewLogger(t))
	require.NoError(t, err)
	<-b.ready
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func TestDialWebSocket_InvalidURL(t *testing.T) {
	_, err := DialWebSocket(context.Background(), "not a url", nil)
	assert.Error(t, err)

	_, err = DialWebSocket(context.Background(), "http://localhost:1/ws", nil)
	assert.ErrorContains(t, err, "unsupported scheme")
}

func TestWebSocketTransport_SendMatchesReply(t *testing.T) {
	b := newFakeBackend(t, echoReply)
	tr := dial(t, b)

	req := tuple.NewPayload(tuple.ActionLoad, testFilter, nil)
	resp, err := tr.Send(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, req.MessageID, resp.MessageID)
	assert.Equal(t, tuple.ActionLoad, resp.Action)
	assert.JSONEq(t, `[{"id":1,"key":"a"}]`, string(resp.Tuples))
}

func TestWebSocketTransport_ConcurrentRequests(t *testing.T) {
	b := newFakeBackend(t, echoReply)
	tr := dial(t, b)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := tuple.NewPayload(tuple.ActionLoad, testFilter, nil)
			resp, err := tr.Send(context.Background(), req)
			if assert.NoError(t, err) {
				assert.Equal(t, req.MessageID, resp.MessageID)
			}
		}()
	}
	wg.Wait()
}

func TestWebSocketTransport_RemoteErrorIsNotTransportError(t *testing.T) {
	b := newFakeBackend(t, func(req tuple.Payload) (tuple.Payload, bool) {
		return tuple.Payload{MessageID: req.MessageID, Action: req.Action, Filter: req.Filter, Error: "denied"}, true
	})
	tr := dial(t, b)

	resp, err := tr.Send(context.Background(), tuple.NewPayload(tuple.ActionSave, testFilter, json.RawMessage(`[]`)))
	require.NoError(t, err)
	assert.Equal(t, "denied", resp.Error)
}

func TestWebSocketTransport_ContextCancel(t *testing.T) {
	b := newFakeBackend(t, func(tuple.Payload) (tuple.Payload, bool) { return tuple.Payload{}, false })
	tr := dial(t, b)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := tr.Send(ctx, tuple.NewPayload(tuple.ActionLoad, testFilter, nil))

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	tr.mu.Lock()
	assert.Empty(t, tr.pending)
	tr.mu.Unlock()
}

func TestWebSocketTransport_PushGoesToObservers(t *testing.T) {
	b := newFakeBackend(t, echoReply)
	tr := dial(t, b)

	got := make(chan tuple.Payload, 1)
	cancel := tr.Observe(testFilter, func(p tuple.Payload) { got <- p })
	other := tr.Observe(tuple.Filter{"key": "other"}, func(tuple.Payload) {
		t.Error("push delivered to observer with a different filter")
	})
	defer other()

	b.push(t, tuple.Payload{Action: tuple.ActionPush, Filter: testFilter, Tuples: json.RawMessage(`[]`)})

	select {
	case p := <-got:
		assert.Equal(t, tuple.ActionPush, p.Action)
	case <-time.After(time.Second):
		t.Fatal("push was not delivered")
	}

	cancel()
	tr.mu.Lock()
	_, stillThere := tr.observers[testFilter.Key()]
	tr.mu.Unlock()
	assert.False(t, stillThere)
}

func TestWebSocketTransport_LateReplyIsNotPushed(t *testing.T) {
	requests := make(chan tuple.Payload, 1)
	b := newFakeBackend(t, func(req tuple.Payload) (tuple.Payload, bool) {
		requests <- req
		return tuple.Payload{}, false
	})
	tr := dial(t, b)

	got := make(chan tuple.Payload, 2)
	cancel := tr.Observe(testFilter, func(p tuple.Payload) { got <- p })
	defer cancel()

	ctx, cancelReq := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelReq()
	_, err := tr.Send(ctx, tuple.NewPayload(tuple.ActionLoad, testFilter, nil))
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// Бэкенд отвечает уже после таймаута
	req := <-requests
	late, _ := echoReply(req)
	b.push(t, late)

	// push после позднего ответа доходит, значит поздний ответ уже прочитан
	b.push(t, tuple.Payload{Action: tuple.ActionPush, Filter: testFilter, Tuples: json.RawMessage(`[]`)})

	select {
	case p := <-got:
		assert.Equal(t, tuple.ActionPush, p.Action)
		assert.Empty(t, p.MessageID)
	case <-time.After(time.Second):
		t.Fatal("push was not delivered")
	}
	select {
	case p := <-got:
		t.Fatalf("unexpected delivery: %+v", p)
	default:
	}
}

func TestWebSocketTransport_ConnectionLossFailsPending(t *testing.T) {
	b := newFakeBackend(t, func(tuple.Payload) (tuple.Payload, bool) { return tuple.Payload{}, false })
	tr := dial(t, b)

	errCh := make(chan error, 1)
	go func() {
		_, err := tr.Send(context.Background(), tuple.NewPayload(tuple.ActionLoad, testFilter, nil))
		errCh <- err
	}()

	require.Eventually(t, func() bool {
		tr.mu.Lock()
		defer tr.mu.Unlock()
		return len(tr.pending) == 1
	}, time.Second, 5*time.Millisecond)
	b.dropConnections()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrConnectionClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("pending request was not failed")
	}

	select {
	case <-tr.Done():
	case <-time.After(time.Second):
		t.Fatal("Done was not closed")
	}
	_, err := tr.Send(context.Background(), tuple.NewPayload(tuple.ActionLoad, testFilter, nil))
	assert.ErrorIs(t, err, ErrConnectionClosed)
}
