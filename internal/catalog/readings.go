package catalog

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Reading types accepted by the ingestion endpoint.
const (
	TypeTemperature = "temperature"
	TypeHumidity    = "humidity"
	TypeSeismic     = "seismic"
	TypeAirQuality  = "air_quality"
)

// Alert thresholds of the monitored platform. Critical draws always cross them.
const (
	TemperatureAlertAbove = 40.0
	HumidityAlertBelow    = 20.0
	SeismicAlertAbove     = 3.0
)

// Reading is the JSON payload posted to the ingestion endpoint.
type Reading struct {
	SensorID  string  `json:"sensorId"`
	Type      string  `json:"type"`
	Value     float64 `json:"value"`
	Timestamp string  `json:"timestamp"`
}

// NewReading stamps a reading with t in RFC3339 UTC.
func NewReading(sensorID, kind string, value float64, t time.Time) Reading {
	return Reading{
		SensorID:  sensorID,
		Type:      kind,
		Value:     value,
		Timestamp: t.UTC().Format(time.RFC3339Nano),
	}
}

// SensorIDs returns one identifier per sensor family, numbered 1000-9999.
func SensorIDs(rng *rand.Rand) []string {
	prefixes := []string{"TEMP", "HUM", "SEIS", "AIR"}
	ids := make([]string, len(prefixes))
	for i, p := range prefixes {
		ids[i] = fmt.Sprintf("%s-%d", p, 1000+rng.Intn(9000))
	}
	return ids
}

// TemperatureValue draws a critical value from [45,55] 10% of the time,
// otherwise a normal one from [15,35].
func TemperatureValue(rng *rand.Rand) (value float64, critical bool) {
	return draw(rng, 0.10, [2]float64{45, 55}, [2]float64{15, 35})
}

// HumidityValue draws a critical value from [5,18] 15% of the time,
// otherwise a normal one from [30,80].
func HumidityValue(rng *rand.Rand) (value float64, critical bool) {
	return draw(rng, 0.15, [2]float64{5, 18}, [2]float64{30, 80})
}

// SeismicValue draws a critical magnitude from [4.0,7.5] 8% of the time,
// otherwise a normal one from [0.1,2.8].
func SeismicValue(rng *rand.Rand) (value float64, critical bool) {
	return draw(rng, 0.08, [2]float64{4.0, 7.5}, [2]float64{0.1, 2.8})
}

// bulkRanges are the wide value ranges of the high-volume generator.
var bulkRanges = map[string][2]float64{
	TypeTemperature: {-10, 60},
	TypeHumidity:    {0, 100},
	TypeSeismic:     {0, 8},
	TypeAirQuality:  {0, 500},
}

// bulkTypes fixes the draw order of bulkRanges.
var bulkTypes = []string{TypeTemperature, TypeHumidity, TypeSeismic, TypeAirQuality}

// BulkValue picks a reading type uniformly and a value over its whole range.
func BulkValue(rng *rand.Rand) (kind string, value float64) {
	kind = bulkTypes[rng.Intn(len(bulkTypes))]
	r := bulkRanges[kind]
	return kind, uniform2(rng, r[0], r[1])
}

func draw(rng *rand.Rand, criticalProb float64, critical, normal [2]float64) (float64, bool) {
	if rng.Float64() < criticalProb {
		return uniform2(rng, critical[0], critical[1]), true
	}
	return uniform2(rng, normal[0], normal[1]), false
}

// uniform2 draws from [min, max] rounded to two decimals.
func uniform2(rng *rand.Rand, min, max float64) float64 {
	return math.Round((min+rng.Float64()*(max-min))*100) / 100
}
