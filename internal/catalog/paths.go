package catalog

// Gateway routes of the monitored platform.
const (
	PathReadings = "/api/v1/sensor-readings"

	PathAnalyzerHealth     = "/api/v1/analyzer/health"
	PathAnalyzerStatistics = "/api/v1/analyzer/statistics"
	PathAnalyzerInfo       = "/api/v1/analyzer/info"
	PathAlerts             = "/api/v1/analyzer/alerts"
	PathAlertsRecent       = "/api/v1/analyzer/alerts/recent"
	PathAlertsByType       = "/api/v1/analyzer/alerts/type/"
	PathAlertsBySensor     = "/api/v1/analyzer/alerts/sensor/"

	PathNotifications         = "/api/v1/notifications"
	PathNotificationsHealth   = "/api/v1/notifications/health"
	PathNotificationsStats    = "/api/v1/notifications/stats/detailed"
	PathNotificationsByStatus = "/api/v1/notifications/by-status/"
	PathNotificationsByType   = "/api/v1/notifications/by-type/"

	PathMockHealth = "/api/v1/mock/health"
	PathMockStats  = "/api/v1/mock/stats"
)

// Alert and notification vocabularies.
var (
	AlertTypes         = []string{"HighTemperatureAlert", "LowHumidityWarning", "SeismicActivityDetected", "AirQualityAlert"}
	NotificationTypes  = []string{"HighTemperatureAlert", "LowHumidityWarning", "SeismicActivityDetected"}
	NotificationStatus = []string{"SENT", "FAILED", "PENDING"}
)
