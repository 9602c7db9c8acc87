// Command testserver runs the fake environmental monitoring gateway.
//
// Usage:
//
//	testserver [flags]
//
// Flags:
//
//	-port       Port to listen on (default: 8010)
//	-host       Host to bind to (default: localhost)
//	-latency    Delay added to every response (default: 0)
//	-fail-rate  Share of requests answered with 500, 0-1 (default: 0)
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"envload/internal/catalog"
	"envload/testserver"
)

func main() {
	port := flag.Int("port", 8010, "port to listen on")
	host := flag.String("host", "localhost", "host to bind to")
	latency := flag.Duration("latency", 0, "delay added to every response")
	failRate := flag.Float64("fail-rate", 0, "share of requests answered with 500 (0-1)")
	seed := flag.Int64("seed", 0, "seed for failure draws (0 = time based)")
	flag.Parse()

	if *failRate < 0 || *failRate > 1 {
		fmt.Fprintf(os.Stderr, "error: -fail-rate must be within [0, 1], got %v\n", *failRate)
		os.Exit(2)
	}

	server := testserver.NewServer(testserver.Options{Latency: *latency, FailureRate: *failRate, Seed: *seed})
	addr := fmt.Sprintf("%s:%d", *host, *port)

	fmt.Println("envload fake gateway")
	fmt.Println("====================")
	fmt.Printf("Listening on http://%s (latency %v, fail rate %.0f%%)\n\n", addr, *latency, *failRate*100)
	fmt.Println("Endpoints:")
	fmt.Println("  GET  /                                 - Service registry health")
	fmt.Printf("  POST %-34s - Ingest a reading, raise alerts\n", catalog.PathReadings)
	fmt.Printf("  GET  %-34s - Sensor history (204 when empty)\n", catalog.PathReadings+"/{id}")
	fmt.Printf("  GET  %-34s - Analyzer health, statistics, info, alerts\n", "/api/v1/analyzer/...")
	fmt.Printf("  GET  %-34s - Notification dispatcher\n", catalog.PathNotifications+"/...")
	fmt.Printf("  GET  %-34s - Mock services\n", "/api/v1/mock/{health,stats}")
	fmt.Println()

	srv := &http.Server{Addr: addr, Handler: server.Handler(), ReadHeaderTimeout: 5 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		fmt.Println("\nShutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
