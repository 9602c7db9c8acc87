// Package testserver provides an in-memory stand-in for the environmental
// monitoring gateway, used by integration tests and the testserver binary.
package testserver

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"envload/internal/catalog"
)

// Options tune the behaviour of every endpoint.
type Options struct {
	Latency     time.Duration // added before each response
	FailureRate float64       // share of requests answered with 500, in [0, 1]
	Seed        int64         // seeds failure draws; 0 uses the current time
}

// Alert is raised for a reading that crosses a platform threshold.
type Alert struct {
	ID        int64   `json:"id"`
	SensorID  string  `json:"sensorId"`
	Type      string  `json:"type"`
	Value     float64 `json:"value"`
	Timestamp string  `json:"timestamp"`

	created time.Time
}

// Notification is the dispatch record of one alert.
type Notification struct {
	ID        int64  `json:"id"`
	AlertID   int64  `json:"alertId"`
	EventType string `json:"eventType"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// Server is the fake gateway.
type Server struct {
	mux  *http.ServeMux
	opts Options

	mu            sync.Mutex
	rng           *rand.Rand
	readings      map[string][]catalog.Reading
	alerts        []Alert
	notifications []Notification
	nextID        int64

	requests atomic.Int64
	failures atomic.Int64
}

// NewServer creates a new fake gateway with all endpoints configured.
func NewServer(opts Options) *Server {
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	s := &Server{
		mux:      http.NewServeMux(),
		opts:     opts,
		rng:      rand.New(rand.NewSource(seed)),
		readings: make(map[string][]catalog.Reading),
	}
	s.registerHandlers()
	return s
}

// Handler returns the http.Handler for the server, with the latency and
// failure knobs applied.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		if s.opts.Latency > 0 {
			select {
			case <-time.After(s.opts.Latency):
			case <-r.Context().Done():
				return
			}
		}
		if s.fail() {
			s.failures.Add(1)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "simulated failure"})
			return
		}
		s.mux.ServeHTTP(w, r)
	})
}

// Requests returns how many requests reached the server.
func (s *Server) Requests() int64 { return s.requests.Load() }

// Failures returns how many requests were failed on purpose.
func (s *Server) Failures() int64 { return s.failures.Load() }

// Alerts returns a copy of the raised alerts.
func (s *Server) Alerts() []Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Alert(nil), s.alerts...)
}

func (s *Server) fail() bool {
	if s.opts.FailureRate <= 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64() < s.opts.FailureRate
}

func (s *Server) registerHandlers() {
	s.mux.HandleFunc("/", s.handleRegistry)

	s.mux.HandleFunc(catalog.PathReadings, s.handleReadings)
	s.mux.HandleFunc(catalog.PathReadings+"/", s.handleSensorHistory)

	s.mux.HandleFunc(catalog.PathAnalyzerHealth, handleHealth)
	s.mux.HandleFunc(catalog.PathAnalyzerStatistics, s.handleAnalyzerStatistics)
	s.mux.HandleFunc(catalog.PathAnalyzerInfo, handleInfo("environmental-analyzer"))
	s.mux.HandleFunc(catalog.PathAlerts, s.handleAlerts)
	s.mux.HandleFunc(catalog.PathAlerts+"/", s.handleAlerts)

	s.mux.HandleFunc(catalog.PathNotifications, s.handleNotifications)
	s.mux.HandleFunc(catalog.PathNotifications+"/", s.handleNotifications)

	s.mux.HandleFunc(catalog.PathMockHealth, handleHealth)
	s.mux.HandleFunc(catalog.PathMockStats, s.handleMockStats)
}

// handleRegistry answers the service registry health check on "/".
func (s *Server) handleRegistry(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "UP"})
}

// handleReadings ingests one reading and raises an alert when it crosses
// a threshold.
func (s *Server) handleReadings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var reading catalog.Reading
	if err := json.NewDecoder(r.Body).Decode(&reading); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if err := validateReading(reading); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	s.mu.Lock()
	s.readings[reading.SensorID] = append(s.readings[reading.SensorID], reading)
	if kind, ok := alertType(reading); ok {
		s.raiseLocked(reading, kind)
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, reading)
}

func validateReading(r catalog.Reading) error {
	if r.SensorID == "" {
		return fmt.Errorf("sensorId is required")
	}
	switch r.Type {
	case catalog.TypeTemperature, catalog.TypeHumidity, catalog.TypeSeismic, catalog.TypeAirQuality:
	default:
		return fmt.Errorf("unknown type %q", r.Type)
	}
	if _, err := time.Parse(time.RFC3339Nano, r.Timestamp); err != nil {
		return fmt.Errorf("invalid timestamp %q", r.Timestamp)
	}
	return nil
}

func alertType(r catalog.Reading) (string, bool) {
	switch {
	case r.Type == catalog.TypeTemperature && r.Value > catalog.TemperatureAlertAbove:
		return "HighTemperatureAlert", true
	case r.Type == catalog.TypeHumidity && r.Value < catalog.HumidityAlertBelow:
		return "LowHumidityWarning", true
	case r.Type == catalog.TypeSeismic && r.Value > catalog.SeismicAlertAbove:
		return "SeismicActivityDetected", true
	}
	return "", false
}

func (s *Server) raiseLocked(r catalog.Reading, kind string) {
	now := time.Now()
	s.nextID++
	alert := Alert{
		ID:        s.nextID,
		SensorID:  r.SensorID,
		Type:      kind,
		Value:     r.Value,
		Timestamp: now.UTC().Format(time.RFC3339),
		created:   now,
	}
	s.alerts = append(s.alerts, alert)

	status := "SENT"
	if s.rng.Float64() < 0.1 {
		status = "FAILED"
	}
	s.notifications = append(s.notifications, Notification{
		ID:        alert.ID,
		AlertID:   alert.ID,
		EventType: kind,
		Status:    status,
		Timestamp: alert.Timestamp,
	})
}

// handleSensorHistory returns the readings of one sensor, or 204 when it
// has none yet.
func (s *Server) handleSensorHistory(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, catalog.PathReadings+"/")
	s.mu.Lock()
	history := append([]catalog.Reading(nil), s.readings[id]...)
	s.mu.Unlock()

	if len(history) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleAnalyzerStatistics(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	byType := make(map[string]int)
	for _, a := range s.alerts {
		byType[a.Type]++
	}
	total := len(s.alerts)
	sensors := len(s.readings)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"totalAlerts":  total,
		"alertsByType": byType,
		"sensors":      sensors,
	})
}

// handleAlerts serves the paginated list, recent alerts, and alerts by
// type or sensor.
func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, catalog.PathAlerts)
	q := r.URL.Query()

	s.mu.Lock()
	alerts := append([]Alert(nil), s.alerts...)
	s.mu.Unlock()

	switch {
	case rest == "":
		writeJSON(w, http.StatusOK, paginate(alerts, q))
	case rest == "/recent":
		hours := intParam(q, "hours", 24)
		limit := intParam(q, "limit", 10)
		since := time.Now().Add(-time.Duration(hours) * time.Hour)
		recent := filter(alerts, func(a Alert) bool { return !a.created.Before(since) })
		sort.SliceStable(recent, func(i, j int) bool { return recent[i].ID > recent[j].ID })
		if len(recent) > limit {
			recent = recent[:limit]
		}
		writeJSON(w, http.StatusOK, map[string]any{"alerts": recent, "count": len(recent)})
	case strings.HasPrefix(rest, "/type/"):
		kind := strings.TrimPrefix(rest, "/type/")
		writeJSON(w, http.StatusOK, filter(alerts, func(a Alert) bool { return a.Type == kind }))
	case strings.HasPrefix(rest, "/sensor/"):
		id := strings.TrimPrefix(rest, "/sensor/")
		writeJSON(w, http.StatusOK, filter(alerts, func(a Alert) bool { return a.SensorID == id }))
	default:
		http.NotFound(w, r)
	}
}

// handleNotifications serves the notification dispatcher endpoints.
func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, catalog.PathNotifications)
	q := r.URL.Query()

	s.mu.Lock()
	list := append([]Notification(nil), s.notifications...)
	s.mu.Unlock()

	switch {
	case rest == "":
		if q.Get("sortDir") == "desc" {
			sort.SliceStable(list, func(i, j int) bool { return list[i].ID > list[j].ID })
		}
		writeJSON(w, http.StatusOK, paginate(list, q))
	case rest == "/health":
		handleHealth(w, r)
	case rest == "/stats/detailed":
		byStatus := make(map[string]int)
		for _, n := range list {
			byStatus[n.Status]++
		}
		writeJSON(w, http.StatusOK, map[string]any{"total": len(list), "byStatus": byStatus})
	case strings.HasPrefix(rest, "/by-status/"):
		status := strings.TrimPrefix(rest, "/by-status/")
		writeJSON(w, http.StatusOK, filter(list, func(n Notification) bool { return n.Status == status }))
	case strings.HasPrefix(rest, "/by-type/"):
		kind := strings.TrimPrefix(rest, "/by-type/")
		writeJSON(w, http.StatusOK, filter(list, func(n Notification) bool { return n.EventType == kind }))
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleMockStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"requests": s.requests.Load(),
		"failures": s.failures.Load(),
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "UP"})
}

func handleInfo(service string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"service": service, "version": "1.0.0"})
	}
}

// page is the envelope of paginated listings.
type page[T any] struct {
	Content       []T `json:"content"`
	Page          int `json:"page"`
	Size          int `json:"size"`
	TotalElements int `json:"totalElements"`
}

func paginate[T any](items []T, q url.Values) page[T] {
	p := intParam(q, "page", 0)
	size := intParam(q, "size", 20)
	if size <= 0 {
		size = 20
	}
	start := p * size
	if start > len(items) {
		start = len(items)
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	return page[T]{Content: append([]T{}, items[start:end]...), Page: p, Size: size, TotalElements: len(items)}
}

func filter[T any](items []T, keep func(T) bool) []T {
	out := []T{}
	for _, it := range items {
		if keep(it) {
			out = append(out, it)
		}
	}
	return out
}

func intParam(q url.Values, key string, def int) int {
	v, ok := q[key]
	if !ok || len(v) == 0 {
		return def
	}
	n, err := strconv.Atoi(v[0])
	if err != nil || n < 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
