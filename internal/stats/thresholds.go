package stats

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Thresholds defines pass/fail criteria for a run.
type Thresholds struct {
	Latency  *LatencyThresholds `yaml:"latency"`
	Failures *FailureThresholds `yaml:"failures"`
}

// LatencyThresholds defines global latency limits. Zero disables a check.
type LatencyThresholds struct {
	Avg time.Duration `yaml:"avg"`
	Max time.Duration `yaml:"max"`
}

// FailureThresholds defines the maximum global failure rate, e.g. "5%".
type FailureThresholds struct {
	Rate string `yaml:"rate"`
}

// ThresholdResult represents the outcome of a single threshold check.
type ThresholdResult struct {
	Name      string `json:"name"`
	Passed    bool   `json:"passed"`
	Threshold string `json:"threshold"`
	Actual    string `json:"actual"`
}

// ThresholdResults contains all threshold check results.
type ThresholdResults struct {
	Passed  bool              `json:"passed"`
	Results []ThresholdResult `json:"results"`
}

// Validate reports malformed thresholds before a run starts.
func (t *Thresholds) Validate() error {
	if t == nil || t.Failures == nil || t.Failures.Rate == "" {
		return nil
	}
	if _, err := parsePercentage(t.Failures.Rate); err != nil {
		return fmt.Errorf("thresholds.failures.rate: %w", err)
	}
	return nil
}

// Check evaluates all thresholds against a snapshot.
func (t *Thresholds) Check(s Snapshot) *ThresholdResults {
	if t == nil {
		return &ThresholdResults{Passed: true, Results: nil}
	}

	results := &ThresholdResults{
		Passed:  true,
		Results: make([]ThresholdResult, 0),
	}

	if t.Latency != nil {
		results.checkLatency(t.Latency, s.Total)
	}

	if t.Failures != nil && t.Failures.Rate != "" {
		results.checkFailureRate(t.Failures, s.Total)
	}

	return results
}

func (r *ThresholdResults) checkLatency(thresholds *LatencyThresholds, total Bucket) {
	checks := []struct {
		name      string
		threshold time.Duration
		actual    time.Duration
	}{
		{"latency.avg", thresholds.Avg, total.AvgLatency()},
		{"latency.max", thresholds.Max, total.MaxLatency},
	}

	for _, check := range checks {
		if check.threshold == 0 {
			continue
		}

		passed := check.actual < check.threshold
		if !passed {
			r.Passed = false
		}

		r.Results = append(r.Results, ThresholdResult{
			Name:      check.name,
			Passed:    passed,
			Threshold: FormatDuration(check.threshold),
			Actual:    FormatDuration(check.actual),
		})
	}
}

func (r *ThresholdResults) checkFailureRate(thresholds *FailureThresholds, total Bucket) {
	thresholdRate, err := parsePercentage(thresholds.Rate)
	if err != nil {
		return
	}

	actualRate := total.FailureRate() * 100
	passed := actualRate < thresholdRate

	if !passed {
		r.Passed = false
	}

	r.Results = append(r.Results, ThresholdResult{
		Name:      "failures.rate",
		Passed:    passed,
		Threshold: thresholds.Rate,
		Actual:    fmt.Sprintf("%.2f%%", actualRate),
	})
}

func parsePercentage(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if !strings.HasSuffix(s, "%") {
		return 0, fmt.Errorf("invalid percentage format: %s", s)
	}
	s = strings.TrimSuffix(s, "%")
	return strconv.ParseFloat(s, 64)
}

// Violations returns only the failed threshold results.
func (r *ThresholdResults) Violations() []ThresholdResult {
	violations := make([]ThresholdResult, 0)
	for _, result := range r.Results {
		if !result.Passed {
			violations = append(violations, result)
		}
	}
	return violations
}
