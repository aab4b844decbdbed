package web

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// ErrorPage is the data behind the error template.
type ErrorPage struct {
	Status  int    `json:"status"`
	Message string `json:"error"`
}

// ErrorHandler renders handler errors. Client errors show their message;
// anything else is logged and shown as a generic failure.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		page := ErrorPage{Status: http.StatusInternalServerError, Message: "internal server error"}
		var he *echo.HTTPError
		if errors.As(err, &he) {
			page.Status = he.Code
			switch {
			case he.Code < http.StatusInternalServerError:
				page.Message = fmt.Sprint(he.Message)
			case he.Code != http.StatusInternalServerError:
				page.Message = strings.ToLower(http.StatusText(he.Code))
			}
		}

		if page.Status >= http.StatusInternalServerError {
			rid, _ := c.Get("request_id").(string)
			logger.Error().
				Err(err).
				Str("request_id", rid).
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Msg("request failed")
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(page.Status)
			return
		}
		if WantsJSON(c) {
			_ = c.JSON(page.Status, page)
			return
		}
		if rerr := Render(c, page.Status, "error", http.StatusText(page.Status), page); rerr != nil {
			_ = c.String(page.Status, page.Message)
		}
	}
}
