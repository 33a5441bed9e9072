package editor

import (
	"context"
	"errors"
	"sync"
	"time"

	"chunked-loader/admin-service/internal/notify"
	"chunked-loader/shared/tuple"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrRegistryClosed  = errors.New("editor registry is closed")
	ErrTooManySessions = errors.New("too many open setting editor sessions")
)

// SinkFactory возвращает дополнительных получателей уведомлений для сессии
// (лог, RabbitMQ). Очередь сессии добавляется всегда.
type SinkFactory func(sessionID string) []notify.Notifier

// Session — открытый экран настроек одного пользователя консоли.
type Session struct {
	ID       string
	Editor   *SettingEditor
	Balloons *notify.Queue

	lastUsed time.Time
}

// Registry хранит экраны по сессиям и уничтожает простаивающие.
type Registry struct {
	transport tuple.Transport
	sinks     SinkFactory
	idleTTL   time.Duration
	maxOpen   int
	logger    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
	wg       sync.WaitGroup
}

// NewRegistry создает реестр. sinks может быть nil, maxOpen <= 0 — без ограничения.
func NewRegistry(transport tuple.Transport, sinks SinkFactory, idleTTL time.Duration, maxOpen int, logger *zap.Logger) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		transport: transport,
		sinks:     sinks,
		idleTTL:   idleTTL,
		maxOpen:   maxOpen,
		logger:    logger.Named("EditorRegistry"),
		ctx:       ctx,
		cancel:    cancel,
		now:       time.Now,
		sessions:  make(map[string]*Session),
	}
}

// Open создает новую сессию с инициализированным экраном.
// Каждая сессия держит подписку и загружает список, поэтому их число ограничено.
func (r *Registry) Open() (*Session, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRegistryClosed
	}
	if r.maxOpen > 0 && len(r.sessions) >= r.maxOpen {
		r.mu.Unlock()
		sessionsRejectedTotal.Inc()
		return nil, ErrTooManySessions
	}

	id := uuid.NewString()
	queue := notify.NewQueue(notify.DefaultQueueLimit)
	notifiers := []notify.Notifier{queue}
	if r.sinks != nil {
		notifiers = append(notifiers, r.sinks(id)...)
	}

	sessionLogger := r.logger.With(zap.String("session", id))
	ed := NewSettingEditor(r.transport, notify.Multi(notifiers...), sessionLogger)

	s := &Session{ID: id, Editor: ed, Balloons: queue, lastUsed: r.now()}
	r.sessions[id] = s
	openSessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()

	ed.Init(r.ctx)
	sessionLogger.Info("Setting editor session opened")
	return s, nil
}

// Get возвращает сессию и продлевает ей жизнь.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if ok {
		s.lastUsed = r.now()
	}
	return s, ok
}

// Len — число открытых сессий.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Reap уничтожает сессии, простаивающие дольше idleTTL. Возвращает их число.
func (r *Registry) Reap() int {
	cutoff := r.now().Add(-r.idleTTL)

	r.mu.Lock()
	var expired []*Session
	for id, s := range r.sessions {
		if s.lastUsed.Before(cutoff) {
			expired = append(expired, s)
			delete(r.sessions, id)
		}
	}
	openSessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()

	for _, s := range expired {
		s.Editor.Destroy()
		r.logger.Info("Idle setting editor session destroyed", zap.String("session", s.ID))
	}
	return len(expired)
}

// StartReaper запускает периодическую очистку до вызова Close.
func (r *Registry) StartReaper(interval time.Duration) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.ctx.Done():
				return
			case <-ticker.C:
				if n := r.Reap(); n > 0 {
					r.logger.Debug("Reaped idle sessions", zap.Int("count", n))
				}
			}
		}
	}()
}

// Close уничтожает все сессии и останавливает очистку.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	openSessions.Set(0)
	r.mu.Unlock()

	r.cancel()
	for _, s := range sessions {
		s.Editor.Destroy()
	}
	r.wg.Wait()
	r.logger.Info("Editor registry closed", zap.Int("destroyed", len(sessions)))
}
