package http

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

const maxBodyLogSize = 1024

// DebugLogger dumps requests and responses at debug level in verbose mode.
// A nil *DebugLogger logs nothing.
type DebugLogger struct {
	logger *zap.Logger
}

func NewDebugLogger(logger *zap.Logger) *DebugLogger {
	if logger == nil {
		return nil
	}
	return &DebugLogger{logger: logger.Named("http")}
}

func (d *DebugLogger) LogRequest(actorID int, req *http.Request, body []byte) {
	if d == nil {
		return
	}
	fields := []zap.Field{
		zap.Int("actor_id", actorID),
		zap.String("method", req.Method),
		zap.String("url", req.URL.String()),
	}
	if len(req.Header) > 0 {
		fields = append(fields, zap.String("headers", formatHeaders(req.Header)))
	}
	if len(body) > 0 {
		fields = append(fields, zap.String("body", truncateBody(body)))
	}
	d.logger.Debug(">>> request", fields...)
}

func (d *DebugLogger) LogResponse(actorID int, req *http.Request, resp *http.Response, body []byte, duration time.Duration) {
	if d == nil {
		return
	}
	fields := []zap.Field{
		zap.Int("actor_id", actorID),
		zap.String("method", req.Method),
		zap.String("url", req.URL.String()),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", duration.Round(time.Millisecond)),
	}
	if len(resp.Header) > 0 {
		fields = append(fields, zap.String("headers", formatHeaders(resp.Header)))
	}
	if len(body) > 0 {
		fields = append(fields, zap.String("body", truncateBody(body)))
	}
	d.logger.Debug("<<< response", fields...)
}

func (d *DebugLogger) LogError(actorID int, method, url string, err error, duration time.Duration) {
	if d == nil {
		return
	}
	d.logger.Debug("!!! transport error",
		zap.Int("actor_id", actorID),
		zap.String("method", method),
		zap.String("url", url),
		zap.Duration("latency", duration.Round(time.Millisecond)),
		zap.Error(err))
}

func formatHeaders(h http.Header) string {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+strings.Join(h[name], ", "))
	}
	return strings.Join(parts, "; ")
}

func truncateBody(body []byte) string {
	if len(body) <= maxBodyLogSize {
		return string(body)
	}
	return string(body[:maxBodyLogSize]) + fmt.Sprintf("... (truncated, %d bytes total)", len(body))
}
