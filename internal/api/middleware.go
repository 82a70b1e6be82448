package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/smazurov/dongled/internal/logging"
)

const requestIDHeader = "X-Request-ID"

// HTTPLoggingMiddleware tags each request with an id and logs it once it
// completes.
func HTTPLoggingMiddleware(ctx huma.Context, next func(huma.Context)) {
	start := time.Now()

	requestID := ctx.Header(requestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	ctx.SetHeader(requestIDHeader, requestID)

	next(ctx)

	u := ctx.URL()
	attrs := []slog.Attr{
		slog.String("method", ctx.Method()),
		slog.String("path", u.Path),
		slog.Int("status", ctx.Status()),
		slog.Duration("duration", time.Since(start)),
		slog.String("remote_addr", ctx.RemoteAddr()),
		slog.String("request_id", requestID),
	}
	if u.RawQuery != "" {
		attrs = append(attrs, slog.String("query", u.RawQuery))
	}
	if ua := ctx.Header("User-Agent"); ua != "" {
		attrs = append(attrs, slog.String("user_agent", ua))
	}

	logging.GetLogger("http").LogAttrs(ctx.Context(),
		requestLevel(ctx.Method(), ctx.Status()), "HTTP request completed", attrs...)
}

// requestLevel keeps polling and preflight traffic at debug.
func requestLevel(method string, status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	case method == http.MethodOptions, method == http.MethodGet:
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
