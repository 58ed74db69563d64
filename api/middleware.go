package api

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

const userContextKey = "taskflow.user"

// requireSession resolves the caller from the bearer token and admits the
// request only while the user's persisted session flag is set.
func requireSession(auth Authenticator, sessions Sessions) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			metrics := metricsFrom(c)
			authStart := time.Now()
			userID, err := auth.UserIDFromAuthHeader(authorizationFrom(c))
			if err != nil {
				metrics.Observe("auth", time.Since(authStart))
				metrics.SetErrorStage("auth")
				return c.String(http.StatusUnauthorized, err.Error())
			}
			ok, err := sessions.Authenticated(c.Request().Context(), userID)
			metrics.Observe("auth", time.Since(authStart))
			if err != nil {
				metrics.SetErrorStage("session")
				c.Logger().Error(err)
				return c.String(http.StatusInternalServerError, "session unavailable")
			}
			if !ok {
				metrics.SetErrorStage("auth")
				return c.String(http.StatusUnauthorized, "signed out")
			}
			c.Set(userContextKey, userID)
			return next(c)
		}
	}
}

func userFrom(c echo.Context) string {
	id, _ := c.Get(userContextKey).(string)
	return id
}

// GzipRequestMiddleware decompresses gzip-encoded request bodies so handlers
// can work with plain JSON payloads. Invalid gzip payloads are rejected
// with a 400 response.
func GzipRequestMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !hasGzipEncoding(req.Header.Get(echo.HeaderContentEncoding)) {
				return next(c)
			}

			gr, err := gzip.NewReader(req.Body)
			if err != nil {
				_ = req.Body.Close()
				return echo.NewHTTPError(http.StatusBadRequest, "invalid gzip body")
			}
			req.Body = &gzipReadCloser{Reader: gr, body: req.Body}
			req.ContentLength = -1
			req.Header.Del(echo.HeaderContentEncoding)
			req.Header.Del(echo.HeaderContentLength)
			return next(c)
		}
	}
}

func hasGzipEncoding(header string) bool {
	for _, enc := range strings.Split(header, ",") {
		if strings.EqualFold(strings.TrimSpace(enc), "gzip") {
			return true
		}
	}
	return false
}

type gzipReadCloser struct {
	*gzip.Reader
	body io.Closer
}

func (g *gzipReadCloser) Close() error {
	err := g.Reader.Close()
	if cerr := g.body.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
