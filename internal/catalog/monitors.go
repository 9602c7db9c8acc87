package catalog

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"envload/internal/actor"
	"envload/internal/config"
	"envload/internal/core"
	"envload/internal/task"
)

// HighVolume floods the ingestion endpoint from a single bulk sensor.
func HighVolume() *actor.Class {
	return &actor.Class{
		Name:  config.ClassHighVolume,
		Share: 3,
		Pace:  actor.PaceRange{Min: 500 * time.Millisecond, Max: 2 * time.Second},
		OnStart: func(ctx context.Context, ac *core.ActorContext, client core.Client) error {
			id, err := uuid.NewRandomFromReader(ac.Rand)
			if err != nil {
				return err
			}
			ac.Vars.Set(varSensor, BulkSensorID(id))
			return nil
		},
		Actions: []task.Spec{{
			Name:   "[BULK] bulk data",
			Weight: 1,
			Handler: task.Request("[BULK] bulk data", task.AnyBelow400, func(ac *core.ActorContext) (string, string, any) {
				sensor, _ := ac.Vars.Get(varSensor)
				id, _ := sensor.(string)
				kind, v := BulkValue(ac.Rand)
				return http.MethodPost, PathReadings, NewReading(id, kind, v, time.Now())
			}),
		}},
	}
}

// BulkSensorID formats the BULK-<8 hex> identifier of a high-volume user.
func BulkSensorID(id uuid.UUID) string {
	return "BULK-" + strings.ReplaceAll(id.String(), "-", "")[:8]
}

// AlertMonitor polls alerts and notification outcomes like an operator
// dashboard.
func AlertMonitor() *actor.Class {
	return &actor.Class{
		Name:  config.ClassAlertMonitor,
		Share: 2,
		Pace:  actor.PaceRange{Min: 2 * time.Second, Max: 8 * time.Second},
		Actions: []task.Spec{
			{Name: "[MONITOR] last hour alerts", Weight: 40, Handler: task.Get("[MONITOR] last hour alerts", PathAlertsRecent+"?hours=1&limit=20", task.AnyBelow400)},
			{Name: "[MONITOR] sent notifications", Weight: 30, Handler: task.Get("[MONITOR] sent notifications", PathNotificationsByStatus+"SENT", task.AnyBelow400)},
			{Name: "[MONITOR] system stats", Weight: 20, Handler: task.Get("[MONITOR] system stats", PathAnalyzerStatistics, task.AnyBelow400)},
			{Name: "[MONITOR] failed notifications", Weight: 10, Handler: task.Get("[MONITOR] failed notifications", PathNotificationsByStatus+"FAILED", task.AnyBelow400)},
		},
	}
}
