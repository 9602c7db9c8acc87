package catalog

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"envload/internal/actor"
	"envload/internal/config"
	"envload/internal/core"
	"envload/internal/task"
)

const (
	// varSensors holds the []string of sensor IDs owned by one actor.
	varSensors = "sensors"
	// varSensor holds the single sensor ID of a high-volume actor.
	varSensor = "sensor"

	// HealthCheckAction names the registry check performed on start.
	HealthCheckAction = "[HEALTH] registry"
)

// readingDraw produces a value and whether it is meant to raise an alert.
type readingDraw func(rng *rand.Rand) (float64, bool)

// Environmental is the main user class: sensors reporting readings, plus
// queries against the analyzer, the notification dispatcher and the mock
// external services.
func Environmental(registryURL string) *actor.Class {
	return &actor.Class{
		Name:  config.ClassEnvironmental,
		Share: 5,
		Pace:  actor.PaceRange{Min: time.Second, Max: 5 * time.Second},
		OnStart: func(ctx context.Context, ac *core.ActorContext, client core.Client) error {
			ac.Vars.Set(varSensors, SensorIDs(ac.Rand))
			checkRegistry(ctx, ac, client, registryURL)
			return nil
		},
		Actions: []task.Spec{
			{Name: "[SENSOR] send temperature", Weight: 30, Handler: sendReading("[SENSOR] send temperature", TypeTemperature, TemperatureValue)},
			{Name: "[SENSOR] send humidity", Weight: 25, Handler: sendReading("[SENSOR] send humidity", TypeHumidity, HumidityValue)},
			{Name: "[SENSOR] send seismic", Weight: 15, Handler: sendReading("[SENSOR] send seismic", TypeSeismic, SeismicValue)},
			{Name: "[SENSOR] sensor history", Weight: 10, Handler: task.Request("[SENSOR] sensor history", task.Read,
				func(ac *core.ActorContext) (string, string, any) {
					return http.MethodGet, PathReadings + "/" + ac.Pick(ac.Vars.Strings(varSensors)), nil
				})},

			{Name: "[ANALYZER] health check", Weight: 8, Handler: task.Get("[ANALYZER] health check", PathAnalyzerHealth, task.OK)},
			{Name: "[ANALYZER] statistics", Weight: 12, Handler: task.Get("[ANALYZER] statistics", PathAnalyzerStatistics, task.OK)},
			{Name: "[ANALYZER] recent alerts", Weight: 7, Handler: task.Request("[ANALYZER] recent alerts", task.OK,
				func(ac *core.ActorContext) (string, string, any) {
					hours := []string{"6", "12", "24", "48"}
					limit := []string{"10", "25", "50"}
					return http.MethodGet, PathAlertsRecent + "?hours=" + ac.Pick(hours) + "&limit=" + ac.Pick(limit), nil
				})},
			{Name: "[ANALYZER] alerts by type", Weight: 5, Handler: task.Request("[ANALYZER] alerts by type", task.OK,
				func(ac *core.ActorContext) (string, string, any) {
					return http.MethodGet, PathAlertsByType + ac.Pick(AlertTypes), nil
				})},
			{Name: "[ANALYZER] alerts by sensor", Weight: 4, Handler: task.Request("[ANALYZER] alerts by sensor", task.OK,
				func(ac *core.ActorContext) (string, string, any) {
					return http.MethodGet, PathAlertsBySensor + ac.Pick(ac.Vars.Strings(varSensors)), nil
				})},
			{Name: "[ANALYZER] all alerts", Weight: 6, Handler: task.Request("[ANALYZER] all alerts", task.OK,
				func(ac *core.ActorContext) (string, string, any) {
					page := strconv.Itoa(ac.Rand.Intn(6))
					size := ac.Pick([]string{"20", "50", "100"})
					return http.MethodGet, PathAlerts + "?page=" + page + "&size=" + size, nil
				})},
			{Name: "[ANALYZER] service info", Weight: 3, Handler: task.Get("[ANALYZER] service info", PathAnalyzerInfo, task.OK)},

			{Name: "[NOTIFICATION] health check", Weight: 8, Handler: task.Get("[NOTIFICATION] health check", PathNotificationsHealth, task.OK)},
			{Name: "[NOTIFICATION] statistics", Weight: 6, Handler: task.Get("[NOTIFICATION] statistics", PathNotificationsStats, task.OK)},
			{Name: "[NOTIFICATION] by status", Weight: 4, Handler: task.Request("[NOTIFICATION] by status", task.OK,
				func(ac *core.ActorContext) (string, string, any) {
					return http.MethodGet, PathNotificationsByStatus + ac.Pick(NotificationStatus), nil
				})},
			{Name: "[NOTIFICATION] by type", Weight: 3, Handler: task.Request("[NOTIFICATION] by type", task.OK,
				func(ac *core.ActorContext) (string, string, any) {
					return http.MethodGet, PathNotificationsByType + ac.Pick(NotificationTypes), nil
				})},
			{Name: "[NOTIFICATION] all paginated", Weight: 5, Handler: task.Request("[NOTIFICATION] all paginated", task.OK,
				func(ac *core.ActorContext) (string, string, any) {
					query := fmt.Sprintf("page=%d&size=%s&sortBy=%s&sortDir=%s",
						ac.Rand.Intn(4),
						ac.Pick([]string{"10", "20", "50"}),
						ac.Pick([]string{"timestamp", "status", "eventType"}),
						ac.Pick([]string{"asc", "desc"}))
					return http.MethodGet, PathNotifications + "?" + query, nil
				})},

			{Name: "[MOCK] health check", Weight: 4, Handler: task.Get("[MOCK] health check", PathMockHealth, task.OK)},
			{Name: "[MOCK] statistics", Weight: 3, Handler: task.Get("[MOCK] statistics", PathMockStats, task.OK)},
		},
	}
}

// sendReading posts one reading of kind from one of the actor's sensors.
// Critical values that were accepted are logged.
func sendReading(name, kind string, value readingDraw) task.Handler {
	return func(ctx context.Context, ac *core.ActorContext, client core.Client) core.Outcome {
		sensor := ac.Pick(ac.Vars.Strings(varSensors))
		v, critical := value(ac.Rand)
		o := task.Do(ctx, client, name, task.Write, http.MethodPost, PathReadings, NewReading(sensor, kind, v, time.Now()))
		if o.Success && critical {
			ac.Logger.Info("critical reading sent",
				zap.String("type", kind),
				zap.String("sensor_id", sensor),
				zap.Float64("value", v))
		}
		return o
	}
}

// checkRegistry verifies the service registry is up and records the check.
// Failures are logged and recorded; they never stop the actor.
func checkRegistry(ctx context.Context, ac *core.ActorContext, client core.Client, registryURL string) {
	if registryURL == "" {
		return
	}
	o := task.Do(ctx, client, HealthCheckAction, task.OK, http.MethodGet, registryURL, nil)
	o.ActorID = ac.ActorID
	o.Class = ac.Class
	ac.Reporter.Record(o)

	switch {
	case o.Success:
		ac.Logger.Debug("service registry is up")
	case o.StatusCode == 0:
		ac.Logger.Error("cannot reach service registry", zap.String("url", registryURL), zap.String("error", o.Error))
	default:
		ac.Logger.Warn("service registry unhealthy", zap.String("url", registryURL), zap.Int("status", o.StatusCode))
	}
}
