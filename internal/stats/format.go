package stats

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"
)

// maxReportedErrors caps the failure breakdown in text output.
const maxReportedErrors = 10

// FormatText writes a snapshot in human-readable form.
func FormatText(w io.Writer, s Snapshot, thresholds *ThresholdResults) {
	if s.Total.Requests == 0 {
		fmt.Fprintln(w, "No requests recorded")
		return
	}

	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "envload - Load Test Results")
	fmt.Fprintln(w, "==============================")
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "Duration:       %v\n", s.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "Total Requests: %s\n", formatNumber(s.Total.Requests))
	fmt.Fprintf(w, "Failures:       %s (%.1f%%)\n", formatNumber(s.Total.Failures), s.Total.FailureRate()*100)
	fmt.Fprintf(w, "Avg Latency:    %s\n", FormatDuration(s.Total.AvgLatency()))
	fmt.Fprintf(w, "Requests/sec:   %.1f (current %.1f)\n", s.RequestsPerSec(), s.CurrentRPS)
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "By Action:")
	for _, name := range s.ActionNames() {
		b := s.Actions[name]
		fmt.Fprintf(w, "  %-36s %8s reqs  %6s fails  avg=%s  min=%s  max=%s\n",
			name, formatNumber(b.Requests), formatNumber(b.Failures),
			FormatDuration(b.AvgLatency()),
			FormatDuration(b.MinLatency),
			FormatDuration(b.MaxLatency))
	}

	if len(s.Errors) > 0 {
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "Failures:")
		for i, e := range s.Errors {
			if i == maxReportedErrors {
				fmt.Fprintf(w, "  ... and %d more\n", len(s.Errors)-maxReportedErrors)
				break
			}
			fmt.Fprintf(w, "  %6s  %s: %s\n", formatNumber(e.Count), e.Action, e.Detail)
		}
	}

	if thresholds != nil && len(thresholds.Results) > 0 {
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "Thresholds:")
		for _, result := range thresholds.Results {
			symbol := "✓"
			if !result.Passed {
				symbol = "✗"
			}
			fmt.Fprintf(w, "  %s %s < %s (actual: %s)\n",
				symbol, result.Name, result.Threshold, result.Actual)
		}
	}
}

// FormatJSON writes a snapshot in JSON format.
func FormatJSON(w io.Writer, s Snapshot, thresholds *ThresholdResults) {
	output := struct {
		Duration       string                `json:"duration"`
		TotalRequests  int64                 `json:"totalRequests"`
		FailureCount   int64                 `json:"failureCount"`
		FailureRate    float64               `json:"failureRate"`
		AvgLatencyMs   float64               `json:"avgLatencyMs"`
		RequestsPerSec float64               `json:"requestsPerSec"`
		CurrentRPS     float64               `json:"currentRps"`
		Actions        map[string]jsonBucket `json:"actions"`
		Errors         []jsonError           `json:"errors,omitempty"`
		Thresholds     *ThresholdResults     `json:"thresholds,omitempty"`
	}{
		Duration:       s.Elapsed.Round(time.Millisecond).String(),
		TotalRequests:  s.Total.Requests,
		FailureCount:   s.Total.Failures,
		FailureRate:    s.Total.FailureRate() * 100,
		AvgLatencyMs:   millis(s.Total.AvgLatency()),
		RequestsPerSec: s.RequestsPerSec(),
		CurrentRPS:     s.CurrentRPS,
		Actions:        make(map[string]jsonBucket, len(s.Actions)),
		Thresholds:     thresholds,
	}

	for name, b := range s.Actions {
		output.Actions[name] = toJSONBucket(b)
	}
	for _, e := range s.Errors {
		output.Errors = append(output.Errors, jsonError{Action: e.Action, Detail: e.Detail, Count: e.Count})
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(output) // stdout errors are unrecoverable
}

type jsonBucket struct {
	Requests     int64   `json:"requests"`
	Failures     int64   `json:"failures"`
	FailureRate  float64 `json:"failureRate"`
	AvgLatencyMs float64 `json:"avgLatencyMs"`
	MinLatencyMs float64 `json:"minLatencyMs"`
	MaxLatencyMs float64 `json:"maxLatencyMs"`
}

type jsonError struct {
	Action string `json:"action"`
	Detail string `json:"detail"`
	Count  int64  `json:"count"`
}

func toJSONBucket(b Bucket) jsonBucket {
	return jsonBucket{
		Requests:     b.Requests,
		Failures:     b.Failures,
		FailureRate:  b.FailureRate() * 100,
		AvgLatencyMs: millis(b.AvgLatency()),
		MinLatencyMs: millis(b.MinLatency),
		MaxLatencyMs: millis(b.MaxLatency),
	}
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// FormatDuration formats a duration for display.
func FormatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return d.Round(time.Second).String()
}

// formatNumber inserts thousands separators: 1234567 -> 1,234,567.
func formatNumber(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := n < 0
	if neg {
		s = s[1:]
	}
	if len(s) <= 3 {
		if neg {
			return "-" + s
		}
		return s
	}
	var out []byte
	pre := len(s) % 3
	if pre > 0 {
		out = append(out, s[:pre]...)
	}
	for i := pre; i < len(s); i += 3 {
		if len(out) > 0 {
			out = append(out, ',')
		}
		out = append(out, s[i:i+3]...)
	}
	if neg {
		return "-" + string(out)
	}
	return string(out)
}
