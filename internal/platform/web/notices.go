package web

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"
)

type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelError   Level = "error"
)

// Notice is a user-visible message shown once on the next rendered page.
type Notice struct {
	Level Level  `json:"level"`
	Text  string `json:"text"`
}

// NoticeCookie carries notices across a redirect.
const NoticeCookie = "medjson_notices"

const pendingKey = "web.notices"

// AddNotice queues a notice for the page rendered by this request, or by the
// next request if this one ends in Redirect.
func AddNotice(c echo.Context, level Level, text string) {
	c.Set(pendingKey, append(pending(c), Notice{Level: level, Text: text}))
}

func pending(c echo.Context) []Notice {
	n, _ := c.Get(pendingKey).([]Notice)
	return n
}

func persistNotices(c echo.Context) {
	n := pending(c)
	if len(n) == 0 {
		return
	}
	raw, err := json.Marshal(n)
	if err != nil {
		return
	}
	c.SetCookie(&http.Cookie{
		Name:     NoticeCookie,
		Value:    base64.RawURLEncoding.EncodeToString(raw),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	c.Set(pendingKey, nil)
}

// consumeNotices returns notices carried in from a redirect followed by the
// ones queued in this request, and clears both.
func consumeNotices(c echo.Context) []Notice {
	var out []Notice
	if ck, err := c.Cookie(NoticeCookie); err == nil && ck.Value != "" {
		if raw, err := base64.RawURLEncoding.DecodeString(ck.Value); err == nil {
			_ = json.Unmarshal(raw, &out)
		}
		c.SetCookie(&http.Cookie{
			Name:     NoticeCookie,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
		})
	}
	out = append(out, pending(c)...)
	c.Set(pendingKey, nil)
	return out
}
