package editor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"chunked-loader/admin-service/internal/notify"
	"chunked-loader/shared/constants"
	"chunked-loader/shared/models"
	"chunked-loader/shared/tuple"

	"go.uber.org/zap"
)

// SettingPropertyFilterKey должен совпадать с ключом обработчика на бэкенде.
const SettingPropertyFilterKey = "admin.Edit.SettingProperty"

const (
	saveSuccessMessage  = "Save Successful"
	resetSuccessMessage = "Reset Successful"

	defaultInitialLoadTimeout = 30 * time.Second
)

// ErrEditorDestroyed возвращается при обращении к уничтоженному экрану.
var ErrEditorDestroyed = errors.New("setting editor is destroyed")

// settingLoader — то, что экрану нужно от tuple.Loader.
type settingLoader interface {
	Subscribe(fn func([]models.SettingProperty)) (unsubscribe func())
	Load(ctx context.Context) error
	Save(ctx context.Context, items []models.SettingProperty) error
	Close()
}

// SettingEditor — экран редактирования настроек плагина.
// Список целиком заменяется каждым снимком от бэкенда (после загрузки,
// сохранения или push). Локальные правки, не сохраненные до прихода снимка,
// теряются: экран от этого не защищается.
type SettingEditor struct {
	filter   tuple.Filter
	loader   settingLoader
	notifier notify.Notifier
	logger   *zap.Logger

	initialLoadTimeout time.Duration

	mu          sync.RWMutex
	items       []models.SettingProperty
	loaded      bool
	dirty       bool
	destroyed   bool
	unsubscribe func()
}

// NewSettingEditor создает экран поверх канала transport. Фильтр маршрутизации
// собирается один раз: ключ экрана плюс общий фильтр плагина.
func NewSettingEditor(transport tuple.Transport, notifier notify.Notifier, logger *zap.Logger) *SettingEditor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &SettingEditor{
		filter:             tuple.Extend(tuple.Filter{"key": SettingPropertyFilterKey}, constants.PluginFilter()),
		notifier:           notifier,
		logger:             logger.Named("SettingEditor"),
		initialLoadTimeout: defaultInitialLoadTimeout,
	}
	e.loader = tuple.NewLoader[models.SettingProperty](transport, e.routingFilter, logger)
	return e
}

// Init подписывается на снимки и запрашивает первый из них в фоне.
// До прихода первого снимка Loaded() возвращает false. Ошибка первой загрузки
// только логируется: пользователь увидит пустой список и может нажать Reset.
func (e *SettingEditor) Init(ctx context.Context) {
	e.mu.Lock()
	if e.destroyed || e.unsubscribe != nil {
		e.mu.Unlock()
		return
	}
	e.unsubscribe = e.loader.Subscribe(e.applySnapshot)
	e.mu.Unlock()

	go func() {
		loadCtx, cancel := context.WithTimeout(ctx, e.initialLoadTimeout)
		defer cancel()
		if err := e.loader.Load(loadCtx); err != nil {
			if errors.Is(err, tuple.ErrLoaderClosed) {
				e.logger.Debug("Initial load skipped, editor destroyed")
				return
			}
			e.logger.Warn("Initial settings load failed", zap.Error(err))
		}
	}()
}

// Filter возвращает копию фильтра маршрутизации.
func (e *SettingEditor) Filter() tuple.Filter {
	return e.routingFilter()
}

// Items возвращает копию текущего списка.
func (e *SettingEditor) Items() []models.SettingProperty {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return models.CloneSettings(e.items)
}

// Loaded сообщает, пришел ли хотя бы один снимок.
func (e *SettingEditor) Loaded() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.loaded
}

// Dirty — есть локальные правки после последнего снимка. Только для отображения.
func (e *SettingEditor) Dirty() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dirty
}

// SetValue меняет значение настройки с данным id в локальном списке.
func (e *SettingEditor) SetValue(id int, text string) error {
	return e.SetValues(map[int]string{id: text})
}

// SetValues применяет правки целиком или не применяет ни одной:
// при любой ошибке список и признак Dirty не меняются.
// Возвращаются ошибки по всем отклоненным id.
func (e *SettingEditor) SetValues(values map[int]string) error {
	ids := make([]int, 0, len(values))
	for id := range values {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.destroyed {
		return ErrEditorDestroyed
	}

	index := make(map[int]int, len(e.items))
	for i := range e.items {
		index[e.items[i].ID] = i
	}

	edited := models.CloneSettings(e.items)
	changed := false
	var errs []error
	for _, id := range ids {
		i, ok := index[id]
		if !ok {
			errs = append(errs, fmt.Errorf("%w: id %d", models.ErrSettingNotFound, id))
			continue
		}
		if err := edited[i].SetValue(values[id]); err != nil {
			errs = append(errs, err)
			continue
		}
		if edited[i].Value() != e.items[i].Value() {
			changed = true
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	e.items = edited
	if changed {
		e.dirty = true
	}
	return nil
}

// Save отправляет текущий список на бэкенд. Список меняется только снимком,
// который вернет бэкенд; при ошибке он остается прежним. Повторов нет.
func (e *SettingEditor) Save(ctx context.Context) error {
	e.mu.RLock()
	if e.destroyed {
		e.mu.RUnlock()
		return ErrEditorDestroyed
	}
	items := models.CloneSettings(e.items)
	e.mu.RUnlock()

	err := e.loader.Save(ctx, items)
	e.report(operationSave, saveSuccessMessage, err)
	return err
}

// Reset перезапрашивает список с бэкенда, отбрасывая локальные правки.
func (e *SettingEditor) Reset(ctx context.Context) error {
	if e.isDestroyed() {
		return ErrEditorDestroyed
	}
	err := e.loader.Load(ctx)
	e.report(operationReset, resetSuccessMessage, err)
	return err
}

// Destroy отписывается от снимков и закрывает загрузчик.
// После возврата экран больше не меняется. Повторный вызов ничего не делает.
func (e *SettingEditor) Destroy() {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return
	}
	e.destroyed = true
	unsubscribe := e.unsubscribe
	e.unsubscribe = nil
	e.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	e.loader.Close()
	e.logger.Debug("Setting editor destroyed")
}

func (e *SettingEditor) applySnapshot(items []models.SettingProperty) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return
	}
	e.items = models.CloneSettings(items)
	e.loaded = true
	e.dirty = false
	snapshotsAppliedTotal.Inc()
	e.logger.Debug("Settings snapshot applied", zap.Int("count", len(items)))
}

// report выдает ровно одно уведомление на операцию. Уничтоженный экран
// уведомлений не показывает.
func (e *SettingEditor) report(op, successMessage string, err error) {
	if err != nil {
		operationsTotal.WithLabelValues(op, outcomeError).Inc()
		e.logger.Warn("Settings operation failed", zap.String("operation", op), zap.Error(err))
	} else {
		operationsTotal.WithLabelValues(op, outcomeSuccess).Inc()
	}

	if e.isDestroyed() {
		return
	}
	if err != nil {
		e.notifier.ShowError(err)
		return
	}
	e.notifier.ShowSuccess(successMessage)
}

func (e *SettingEditor) routingFilter() tuple.Filter {
	return tuple.Extend(e.filter)
}

func (e *SettingEditor) isDestroyed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.destroyed
}
