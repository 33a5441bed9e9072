// Package notify доставляет пользователю итоги действий на экранах админки
// ("balloon"-сообщения): в очередь сессии, в лог и во внешнюю подсистему уведомлений.
package notify

import (
	"time"

	"go.uber.org/zap"
)

// Notifier — получатель уведомлений. Вызовы не блокируют и ничего не возвращают.
type Notifier interface {
	ShowSuccess(message string)
	ShowError(err error)
}

// BalloonType — вид уведомления, совпадает с классом flash-сообщения в шаблонах.
type BalloonType string

const (
	BalloonSuccess BalloonType = "success"
	BalloonError   BalloonType = "error"
)

// Balloon — одно уведомление.
type Balloon struct {
	Type      BalloonType `json:"type"`
	Message   string      `json:"message"`
	Session   string      `json:"session,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func errorMessage(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

type multi []Notifier

// Multi рассылает уведомления всем получателям по порядку. nil пропускаются.
func Multi(notifiers ...Notifier) Notifier {
	out := make(multi, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}

func (m multi) ShowSuccess(message string) {
	for _, n := range m {
		n.ShowSuccess(message)
	}
}

func (m multi) ShowError(err error) {
	for _, n := range m {
		n.ShowError(err)
	}
}

type logNotifier struct {
	logger *zap.Logger
}

// NewLog пишет уведомления в лог: успех — Info, ошибка — Warn.
func NewLog(logger *zap.Logger) Notifier {
	return &logNotifier{logger: logger.Named("Balloons")}
}

func (l *logNotifier) ShowSuccess(message string) {
	l.logger.Info("Balloon success", zap.String("message", message))
}

func (l *logNotifier) ShowError(err error) {
	l.logger.Warn("Balloon error", zap.String("message", errorMessage(err)))
}
