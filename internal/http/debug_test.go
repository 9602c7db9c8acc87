package http

import (
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedDebug() (*DebugLogger, *observer.ObservedLogs) {
	obsCore, logs := observer.New(zapcore.DebugLevel)
	return NewDebugLogger(zap.New(obsCore)), logs
}

func TestDebugLogger_LogRequest(t *testing.T) {
	d, logs := newObservedDebug()

	req, _ := http.NewRequest("POST", "http://example.com/api/v1/sensor-readings", nil)
	req.Header.Set("Content-Type", "application/json")
	d.LogRequest(3, req, []byte(`{"sensorId":"TEMP-1234"}`))

	if logs.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", logs.Len())
	}
	fields := logs.All()[0].ContextMap()
	if fields["actor_id"] != int64(3) || fields["method"] != "POST" {
		t.Errorf("unexpected fields %v", fields)
	}
	if !strings.Contains(fields["headers"].(string), "Content-Type: application/json") {
		t.Errorf("expected headers, got %v", fields["headers"])
	}
	if fields["body"] != `{"sensorId":"TEMP-1234"}` {
		t.Errorf("expected body, got %v", fields["body"])
	}
}

func TestDebugLogger_LogResponse(t *testing.T) {
	d, logs := newObservedDebug()

	req, _ := http.NewRequest("GET", "http://example.com/api/v1/analyzer/health", nil)
	resp := &http.Response{StatusCode: 200, Header: http.Header{}}
	d.LogResponse(1, req, resp, []byte(`{"status":"UP"}`), 12*time.Millisecond)

	entry := logs.All()[0]
	fields := entry.ContextMap()
	if fields["status"] != int64(200) {
		t.Errorf("expected status 200, got %v", fields["status"])
	}
	if _, ok := fields["headers"]; ok {
		t.Error("empty headers should be omitted")
	}
	if entry.Level != zapcore.DebugLevel {
		t.Errorf("expected debug level, got %v", entry.Level)
	}
}

func TestDebugLogger_LogError(t *testing.T) {
	d, logs := newObservedDebug()
	d.LogError(2, "GET", "http://down:8080/", errors.New("connection refused"), time.Second)

	if logs.FilterMessage("!!! transport error").Len() != 1 {
		t.Fatal("expected transport error entry")
	}
	if logs.All()[0].ContextMap()["error"] != "connection refused" {
		t.Errorf("unexpected fields %v", logs.All()[0].ContextMap())
	}
}

func TestDebugLogger_Nil(t *testing.T) {
	var d *DebugLogger
	req, _ := http.NewRequest("GET", "http://example.com", nil)
	d.LogRequest(1, req, nil)
	d.LogResponse(1, req, &http.Response{}, nil, 0)
	d.LogError(1, "GET", "http://example.com", errors.New("x"), 0)

	if NewDebugLogger(nil) != nil {
		t.Error("expected nil debug logger without a zap logger")
	}
}

func TestTruncateBody(t *testing.T) {
	short := []byte("short")
	if got := truncateBody(short); got != "short" {
		t.Errorf("expected unchanged body, got %q", got)
	}

	long := []byte(strings.Repeat("x", maxBodyLogSize+10))
	got := truncateBody(long)
	if !strings.HasSuffix(got, "(truncated, 1034 bytes total)") {
		t.Errorf("expected truncation marker, got suffix %q", got[len(got)-40:])
	}
}
