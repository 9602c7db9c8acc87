package task

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"envload/internal/core"
)

// Accepted status sets used by the catalog.
var (
	// Write accepts created or plain OK for ingestion endpoints.
	Write = []int{http.StatusOK, http.StatusCreated}
	// Read treats 204 as "no data yet", not as an error.
	Read = []int{http.StatusOK, http.StatusNoContent}
	// OK accepts only 200.
	OK = []int{http.StatusOK}
	// AnyBelow400 is nil: every status under 400 counts as success.
	AnyBelow400 []int
)

// Classify turns a response or transport fault into an Outcome.
// A response is a success only if its status is in accepted, or below 400
// when accepted is nil.
func Classify(action string, resp *core.Response, err error, accepted []int) core.Outcome {
	o := core.Outcome{
		Action:    action,
		Timestamp: time.Now(),
	}
	if resp != nil {
		o.StatusCode = resp.StatusCode
		o.Latency = resp.Latency
	}
	if err != nil {
		o.Error = err.Error()
		return o
	}
	if resp == nil {
		o.Error = "no response"
		return o
	}
	if accepted == nil && resp.StatusCode < http.StatusBadRequest {
		o.Success = true
		return o
	}
	for _, code := range accepted {
		if resp.StatusCode == code {
			o.Success = true
			return o
		}
	}
	o.Error = fmt.Sprintf("HTTP %d", resp.StatusCode)
	return o
}

// RequestFunc builds the method, path and optional JSON body of a request.
type RequestFunc func(ac *core.ActorContext) (method, path string, body any)

// Request returns a Handler that sends the request built by fn and
// classifies the response against accepted.
func Request(name string, accepted []int, fn RequestFunc) Handler {
	return func(ctx context.Context, ac *core.ActorContext, client core.Client) core.Outcome {
		method, path, body := fn(ac)
		return Do(ctx, client, name, accepted, method, path, body)
	}
}

// Do sends one request and classifies it. When no response arrived the
// latency is measured here.
func Do(ctx context.Context, client core.Client, name string, accepted []int, method, path string, body any) core.Outcome {
	start := time.Now()
	resp, err := client.Send(ctx, method, path, body)
	o := Classify(name, resp, err, accepted)
	o.Timestamp = start
	if resp == nil {
		o.Latency = time.Since(start)
	}
	return o
}

// Get is shorthand for a body-less GET request with a fixed path.
func Get(name, path string, accepted []int) Handler {
	return Request(name, accepted, func(*core.ActorContext) (string, string, any) {
		return http.MethodGet, path, nil
	})
}
