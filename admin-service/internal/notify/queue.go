package notify

import (
	"sync"
	"time"
)

// DefaultQueueLimit — сколько непрочитанных уведомлений хранит сессия.
const DefaultQueueLimit = 20

// Queue копит уведомления сессии до следующей отрисовки страницы.
// При переполнении вытесняются самые старые.
type Queue struct {
	mu    sync.Mutex
	items []Balloon
	limit int
	now   func() time.Time
}

// NewQueue создает очередь. limit <= 0 означает DefaultQueueLimit.
func NewQueue(limit int) *Queue {
	if limit <= 0 {
		limit = DefaultQueueLimit
	}
	return &Queue{limit: limit, now: time.Now}
}

func (q *Queue) ShowSuccess(message string) {
	q.push(Balloon{Type: BalloonSuccess, Message: message})
}

func (q *Queue) ShowError(err error) {
	q.push(Balloon{Type: BalloonError, Message: errorMessage(err)})
}

// Drain возвращает накопленные уведомления и очищает очередь.
func (q *Queue) Drain() []Balloon {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

// Len — число непрочитанных уведомлений.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) push(b Balloon) {
	q.mu.Lock()
	defer q.mu.Unlock()
	b.Timestamp = q.now()
	q.items = append(q.items, b)
	if over := len(q.items) - q.limit; over > 0 {
		q.items = append([]Balloon(nil), q.items[over:]...)
	}
}
