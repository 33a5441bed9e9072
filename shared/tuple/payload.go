package tuple

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Action определяет тип сообщения в канале загрузки/сохранения.
type Action string

const (
	ActionLoad Action = "load"
	ActionSave Action = "save"
	ActionPush Action = "push" // Сервер сам прислал новый снимок
)

var (
	ErrInvalidPayload = errors.New("invalid tuple payload")
	ErrLoaderClosed   = errors.New("tuple loader is closed")
)

// Payload — конверт, которым обмениваются клиент и бэкенд.
type Payload struct {
	MessageID string          `json:"messageId,omitempty"`
	Action    Action          `json:"action"`
	Filter    Filter          `json:"filt"`
	Tuples    json.RawMessage `json:"tuples,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// NewPayload создает запрос с новым messageId.
func NewPayload(action Action, filter Filter, tuples json.RawMessage) Payload {
	return Payload{
		MessageID: uuid.NewString(),
		Action:    action,
		Filter:    filter,
		Tuples:    tuples,
	}
}

// Encode сериализует конверт в JSON.
func (p Payload) Encode() ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tuple payload: %w", err)
	}
	return data, nil
}

// DecodePayload разбирает конверт. Конверт без фильтра считается некорректным:
// бэкенд не смог бы его маршрутизировать.
func DecodePayload(data []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if len(p.Filter) == 0 {
		return Payload{}, fmt.Errorf("%w: missing filt", ErrInvalidPayload)
	}
	return p, nil
}

// Err возвращает *RemoteError, если ответ бэкенда содержит ошибку.
func (p Payload) Err() error {
	if p.Error == "" {
		return nil
	}
	return &RemoteError{Action: p.Action, Message: p.Error}
}

// RemoteError — отказ, присланный бэкендом (ошибка валидации, обработчика и т.п.).
type RemoteError struct {
	Action  Action
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote %s failed: %s", e.Action, e.Message)
}
