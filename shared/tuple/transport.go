package tuple

import "context"

// Transport — канал до бэкенда. Реализации: WebSocket и HTTP
// (admin-service/internal/client), в тестах — tupletest.Transport.
type Transport interface {
	// Send отправляет запрос и ждет ответ с тем же messageId.
	// Ответ с заполненным Error возвращается как есть, без ошибки транспорта.
	Send(ctx context.Context, p Payload) (Payload, error)
	// Observe регистрирует обработчик push-сообщений для фильтра.
	// Возвращаемая функция отменяет регистрацию.
	Observe(filter Filter, fn func(Payload)) (cancel func())
}
