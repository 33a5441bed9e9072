package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	sessionCookieName      = "admin_setting_session"
	sessionCookieSeparator = "."
)

// sessionCookie подписывает id сессии экрана HMAC-SHA256, как flash-куки.
type sessionCookie struct {
	secret []byte
	maxAge time.Duration
	secure bool
}

func (s sessionCookie) sign(id string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(id))
	return id + sessionCookieSeparator + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// verify возвращает id, если подпись верна.
func (s sessionCookie) verify(value string) (string, bool) {
	id, encodedSignature, ok := strings.Cut(value, sessionCookieSeparator)
	if !ok || id == "" {
		return "", false
	}
	signature, err := base64.RawURLEncoding.DecodeString(encodedSignature)
	if err != nil {
		return "", false
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(id))
	if !hmac.Equal(mac.Sum(nil), signature) {
		return "", false
	}
	return id, true
}

func (s sessionCookie) read(c *gin.Context) (string, bool) {
	value, err := c.Cookie(sessionCookieName)
	if err != nil || value == "" {
		return "", false
	}
	return s.verify(value)
}

func (s sessionCookie) write(c *gin.Context, id string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(
		sessionCookieName,
		s.sign(id),
		int(s.maxAge.Seconds()),
		"/", // Path
		"",  // Domain (пусто = текущий хост)
		s.secure,
		true, // HttpOnly
	)
}
