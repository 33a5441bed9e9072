package handler

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"chunked-loader/admin-service/internal/config"
	"chunked-loader/admin-service/internal/editor"
	"chunked-loader/admin-service/internal/notify"
	"chunked-loader/shared/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	settingsPath     = "/admin/settings"
	settingsTemplate = "settings.html"
	settingsTitle    = "Plugin Settings"

	errNoSession = "setting session not found, open it with GET /api/settings"
)

// SettingHandler отдает экран настроек плагина: HTML форму и JSON API.
// Каждому браузеру соответствует своя сессия в editor.Registry.
type SettingHandler struct {
	registry *editor.Registry
	cookie   sessionCookie
	logger   *zap.Logger
}

// NewSettingHandler создает обработчик.
func NewSettingHandler(registry *editor.Registry, cfg *config.Config, logger *zap.Logger) *SettingHandler {
	return &SettingHandler{
		registry: registry,
		cookie: sessionCookie{
			secret: []byte(cfg.Session.Secret),
			maxAge: cfg.Session.IdleTTL,
			secure: !cfg.IsDevelopment(),
		},
		logger: logger.Named("SettingHandler"),
	}
}

// updateSettingsRequest — тело PUT /api/settings: id настройки -> новое значение.
type updateSettingsRequest struct {
	Values map[string]string `json:"values" binding:"required"`
}

type settingsResponse struct {
	SessionID string                   `json:"sessionId"`
	Loaded    bool                     `json:"loaded"`
	Dirty     bool                     `json:"dirty"`
	Items     []models.SettingProperty `json:"items"`
	Balloons  []notify.Balloon         `json:"balloons"`
	Error     string                   `json:"error,omitempty"`
}

// currentSession возвращает сессию из куки. Найденная сессия продлевает
// и куку: срок жизни считается от последнего запроса, как в реестре.
func (h *SettingHandler) currentSession(c *gin.Context) (*editor.Session, bool) {
	id, ok := h.cookie.read(c)
	if !ok {
		return nil, false
	}
	s, found := h.registry.Get(id)
	if !found {
		h.logger.Debug("Setting session expired", zap.String("session", id))
		return nil, false
	}
	h.cookie.write(c, s.ID)
	return s, true
}

// openSession возвращает текущую сессию или открывает новую.
// Новые сессии открываются только на GET экрана и GET API.
func (h *SettingHandler) openSession(c *gin.Context) (*editor.Session, bool) {
	if s, ok := h.currentSession(c); ok {
		return s, true
	}
	s, err := h.registry.Open()
	if err != nil {
		h.logger.Warn("Cannot open setting session", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return nil, false
	}
	h.cookie.write(c, s.ID)
	return s, true
}

// apiSession — сессия для изменяющих API запросов. Без нее 401.
func (h *SettingHandler) apiSession(c *gin.Context) (*editor.Session, bool) {
	s, ok := h.currentSession(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errNoSession})
		return nil, false
	}
	return s, true
}

// ShowSettings рендерит список настроек и непрочитанные уведомления.
func (h *SettingHandler) ShowSettings(c *gin.Context) {
	s, ok := h.openSession(c)
	if !ok {
		return
	}
	loaded := s.Editor.Loaded()
	c.HTML(http.StatusOK, settingsTemplate, gin.H{
		"title":    settingsTitle,
		"loaded":   loaded,
		"refresh":  !loaded, // первый снимок еще не пришел
		"dirty":    s.Editor.Dirty(),
		"items":    s.Editor.Items(),
		"balloons": s.Balloons.Drain(),
	})
}

// SaveSettings применяет значения из формы и сохраняет список.
// Форма передает значения как value[<id>].
func (h *SettingHandler) SaveSettings(c *gin.Context) {
	s, ok := h.currentSession(c)
	if !ok {
		// Сессия истекла: страница откроет новую
		c.Redirect(http.StatusSeeOther, settingsPath)
		return
	}
	log := h.logger.With(zap.String("session", s.ID))

	if err := applyValues(s.Editor, c.PostFormMap("value")); err != nil {
		editsRejectedTotal.Inc()
		log.Warn("Rejected setting values from form", zap.Error(err))
		s.Balloons.ShowError(err)
		c.Redirect(http.StatusSeeOther, settingsPath)
		return
	}

	// Уведомление об итоге выдает сам экран
	if err := s.Editor.Save(c.Request.Context()); err != nil {
		log.Debug("Save from form failed", zap.Error(err))
	}
	c.Redirect(http.StatusSeeOther, settingsPath)
}

// ResetSettings перечитывает список с бэкенда.
func (h *SettingHandler) ResetSettings(c *gin.Context) {
	s, ok := h.currentSession(c)
	if !ok {
		// Сессия истекла: страница откроет новую
		c.Redirect(http.StatusSeeOther, settingsPath)
		return
	}
	if err := s.Editor.Reset(c.Request.Context()); err != nil {
		h.logger.Debug("Reset from form failed", zap.String("session", s.ID), zap.Error(err))
	}
	c.Redirect(http.StatusSeeOther, settingsPath)
}

// GetSettingsAPI возвращает состояние экрана в JSON.
func (h *SettingHandler) GetSettingsAPI(c *gin.Context) {
	s, ok := h.openSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.snapshot(s, nil))
}

// UpdateSettingsAPI применяет значения и сохраняет.
// 400 — некорректные значения (ничего не сохранено), 502 — бэкенд отказал.
func (h *SettingHandler) UpdateSettingsAPI(c *gin.Context) {
	s, ok := h.apiSession(c)
	if !ok {
		return
	}

	var req updateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		editsRejectedTotal.Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%v: %v", models.ErrBadRequest, err)})
		return
	}
	if err := applyValues(s.Editor, req.Values); err != nil {
		editsRejectedTotal.Inc()
		h.logger.Warn("Rejected setting values from API", zap.String("session", s.ID), zap.Error(err))
		c.JSON(http.StatusBadRequest, h.snapshot(s, err))
		return
	}

	if err := s.Editor.Save(c.Request.Context()); err != nil {
		c.JSON(statusFor(err), h.snapshot(s, err))
		return
	}
	c.JSON(http.StatusOK, h.snapshot(s, nil))
}

// ResetSettingsAPI перечитывает список с бэкенда.
func (h *SettingHandler) ResetSettingsAPI(c *gin.Context) {
	s, ok := h.apiSession(c)
	if !ok {
		return
	}
	if err := s.Editor.Reset(c.Request.Context()); err != nil {
		c.JSON(statusFor(err), h.snapshot(s, err))
		return
	}
	c.JSON(http.StatusOK, h.snapshot(s, nil))
}

func (h *SettingHandler) snapshot(s *editor.Session, err error) settingsResponse {
	resp := settingsResponse{
		SessionID: s.ID,
		Loaded:    s.Editor.Loaded(),
		Dirty:     s.Editor.Dirty(),
		Items:     s.Editor.Items(),
		Balloons:  s.Balloons.Drain(),
	}
	if resp.Items == nil {
		resp.Items = []models.SettingProperty{}
	}
	if resp.Balloons == nil {
		resp.Balloons = []notify.Balloon{}
	}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp
}

// applyValues разбирает id и применяет все значения одной правкой экрана:
// если хоть одно значение отклонено, список не меняется.
func applyValues(ed *editor.SettingEditor, values map[string]string) error {
	parsed := make(map[int]string, len(values))
	var errs []error
	for k, v := range values {
		id, err := strconv.Atoi(k)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: invalid setting id %q", models.ErrBadRequest, k))
			continue
		}
		parsed[id] = v
	}
	if len(errs) > 0 {
		sort.Slice(errs, func(i, j int) bool { return errs[i].Error() < errs[j].Error() })
		return errors.Join(errs...)
	}
	return ed.SetValues(parsed)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, editor.ErrEditorDestroyed):
		return http.StatusServiceUnavailable
	case errors.Is(err, models.ErrInvalidSettingValue), errors.Is(err, models.ErrBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}
