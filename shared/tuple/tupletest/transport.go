// Package tupletest содержит управляемый транспорт для тестов кода,
// работающего с каналом загрузки/сохранения.
package tupletest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"chunked-loader/shared/tuple"
)

// ErrNoHandler возвращается, если тест не настроил ответ.
var ErrNoHandler = errors.New("tupletest: no reply configured")

// Transport записывает все запросы и отвечает через Reply.
type Transport struct {
	// Reply формирует ответ на запрос. Ошибка эмулирует сбой транспорта.
	Reply func(req tuple.Payload) (tuple.Payload, error)

	mu        sync.Mutex
	requests  []tuple.Payload
	observers map[int]observer
	nextID    int
}

type observer struct {
	key string
	fn  func(tuple.Payload)
}

// Send реализует tuple.Transport.
func (t *Transport) Send(ctx context.Context, p tuple.Payload) (tuple.Payload, error) {
	t.mu.Lock()
	t.requests = append(t.requests, p)
	reply := t.Reply
	t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return tuple.Payload{}, err
	}
	if reply == nil {
		return tuple.Payload{}, ErrNoHandler
	}
	return reply(p)
}

// SetReply подменяет обработчик, пока транспорт уже используется.
func (t *Transport) SetReply(reply func(req tuple.Payload) (tuple.Payload, error)) {
	t.mu.Lock()
	t.Reply = reply
	t.mu.Unlock()
}

// Observe реализует tuple.Transport.
func (t *Transport) Observe(filter tuple.Filter, fn func(tuple.Payload)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.observers == nil {
		t.observers = make(map[int]observer)
	}
	id := t.nextID
	t.nextID++
	t.observers[id] = observer{key: filter.Key(), fn: fn}
	return func() {
		t.mu.Lock()
		delete(t.observers, id)
		t.mu.Unlock()
	}
}

// Push доставляет сообщение наблюдателям с совпадающим фильтром.
// Возвращает количество получателей.
func (t *Transport) Push(p tuple.Payload) int {
	t.mu.Lock()
	var fns []func(tuple.Payload)
	for _, o := range t.observers {
		if o.key == p.Filter.Key() {
			fns = append(fns, o.fn)
		}
	}
	t.mu.Unlock()

	for _, fn := range fns {
		fn(p)
	}
	return len(fns)
}

// Requests возвращает копию записанных запросов.
func (t *Transport) Requests() []tuple.Payload {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]tuple.Payload(nil), t.requests...)
}

// Observers возвращает число активных наблюдателей.
func (t *Transport) Observers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.observers)
}

// Tuples кодирует items для ответа. Паникует на несериализуемых данных.
func Tuples(items any) json.RawMessage {
	raw, err := json.Marshal(items)
	if err != nil {
		panic(err)
	}
	return raw
}

// Echo отвечает на save теми же кортежами, а на load — содержимым store.
// store обновляется при каждом save, как это сделал бы бэкенд.
func Echo(store *json.RawMessage) func(tuple.Payload) (tuple.Payload, error) {
	var mu sync.Mutex
	return func(req tuple.Payload) (tuple.Payload, error) {
		mu.Lock()
		defer mu.Unlock()
		if req.Action == tuple.ActionSave {
			*store = append(json.RawMessage(nil), req.Tuples...)
		}
		return tuple.Payload{
			MessageID: req.MessageID,
			Action:    req.Action,
			Filter:    req.Filter,
			Tuples:    *store,
		}, nil
	}
}
