package main

import (
	"context"
	"flag"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/loadcell-data/loadcell.report/internal/api"
	"github.com/loadcell-data/loadcell.report/internal/capture"
	"github.com/loadcell-data/loadcell.report/internal/db"
	"github.com/loadcell-data/loadcell.report/internal/filter"
	"github.com/loadcell-data/loadcell.report/internal/recorder"
	"github.com/loadcell-data/loadcell.report/internal/telemetry"
	"github.com/loadcell-data/loadcell.report/internal/transport"
	"github.com/loadcell-data/loadcell.report/internal/version"
)

var (
	devMode         = flag.Bool("dev", false, "Run in dev mode with a simulated sensor")
	listen          = flag.String("listen", ":8080", "Listen address")
	dbFile          = flag.String("db", "sessions.db", "Session database path")
	csvFile         = flag.String("csv", "sensor_data.csv", "Capture log path")
	csvLayout       = flag.String("csv-layout", "full", "Capture log layout (full or reduced)")
	baudRate        = flag.Int("baud", 115200, "Serial baud rate")
	filterName      = flag.String("filter", "", "Filter strategy to load at startup")
	maxPoints       = flag.Int("max-points", telemetry.DefaultMaxPoints, "Rolling sample window size")
	teardownTimeout = flag.Duration("teardown-timeout", capture.DefaultTeardownTimeout, "Timeout for device teardown calls")
	frameInterval   = flag.Duration("frame-interval", 100*time.Millisecond, "Simulated frame interval in dev mode")
	debug           = flag.Bool("debug", false, "Enable verbose capture debug logging")
)

// simFrame produces a plausible load cell frame for dev mode: a slowly
// wandering weight with sensor noise on every channel.
func simFrame() func() []byte {
	weight := 5000.0
	return func() []byte {
		weight += rand.Float64()*40 - 20
		if weight < 0 {
			weight = 0
		}
		return telemetry.EncodeFrame(telemetry.Sample{
			Weight:      uint32(weight),
			Temperature: float32(25 + rand.Float64()*0.5),
			AccelX:      float32(rand.Float64()*0.04 - 0.02),
			AccelY:      float32(rand.Float64()*0.04 - 0.02),
			AccelZ:      float32(0.98 + rand.Float64()*0.02),
		})
	}
}

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	if *debug {
		capture.SetDebugLogger(os.Stderr)
	}
	log.Printf("loadcell.report %s (%s, built %s)", version.Version, version.GitSHA, version.BuildTime)

	layout, err := recorder.ParseLayout(*csvLayout)
	if err != nil {
		log.Fatalf("invalid csv layout: %v", err)
	}

	var trans transport.Transport
	if *devMode {
		mock := transport.NewMockTransport()
		mock.FrameInterval = *frameInterval
		mock.FrameFactory = simFrame()
		trans = mock
	} else {
		trans, err = transport.NewSerialTransport(transport.PortOptions{BaudRate: *baudRate})
		if err != nil {
			log.Fatalf("failed to create serial transport: %v", err)
		}
	}

	database, err := db.New(*dbFile)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	hub := api.NewHub()
	controller := capture.NewController(
		trans,
		filter.NewPipeline(nil),
		telemetry.NewSampleBuffer(*maxPoints),
		recorder.New(*csvFile, layout, nil),
		database,
		hub,
		capture.Config{TeardownTimeout: *teardownTimeout},
	)

	if *filterName != "" {
		if err := controller.LoadFilter(*filterName); err != nil {
			log.Fatalf("failed to load filter strategy: %v", err)
		}
		if err := controller.SetFilterEnabled(true); err != nil {
			log.Fatalf("failed to enable filter: %v", err)
		}
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(controller, database, hub).ServeMux()
		h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Printf("got request %q", r.URL.Path)
			mux.ServeHTTP(w, r)
		})

		server := &http.Server{
			Addr:    *listen,
			Handler: h,
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()

	// Tear the device link down before exit; each step is bounded by the
	// teardown timeout.
	controller.Reset(context.Background())
	log.Printf("Graceful shutdown complete")
}
