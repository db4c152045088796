package main

import (
	"context"
	"embed"
	"flag"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/chambercam/internal/api"
	"github.com/banshee-data/chambercam/internal/capture"
	"github.com/banshee-data/chambercam/internal/chamber"
	"github.com/banshee-data/chambercam/internal/eventdb"
	"github.com/banshee-data/chambercam/internal/monitoring"
	"github.com/banshee-data/chambercam/internal/version"
)

var (
	//go:embed static/*
	staticFiles embed.FS

	listen     = flag.String("listen", ":8080", "Listen address")
	dbPath     = flag.String("db", "chamber.db", "Path to the sqlite event database")
	device     = flag.String("device", "/dev/video0", "V4L2 capture device")
	width      = flag.Uint("width", 640, "Requested capture width")
	height     = flag.Uint("height", 480, "Requested capture height")
	devMode    = flag.Bool("dev", false, "Replay stills from -stills instead of opening a camera")
	stillsDir  = flag.String("stills", "stills", "Directory of stills to replay in dev mode")
	fps        = flag.Float64("fps", 10, "Replay frame rate in dev mode")
	loop       = flag.Bool("loop", false, "Loop the replay stills in dev mode")
	saveDir    = flag.String("save-dir", "events", "Directory for saved event frames")
	presetsDir = flag.String("presets-dir", "presets", "Directory for tuning presets")
	configPath = flag.String("config", "", "Optional tuning config JSON to load at startup")
	autostart  = flag.Bool("autostart", false, "Start capturing immediately")
	debug      = flag.Bool("debug", false, "Enable per-frame debug logging")
)

func main() {
	flag.Parse()
	monitoring.Debug = *debug
	monitoring.Logf("[Main] chambercam %s (%s)", version.Version, version.GitSHA)

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	var cfg *chamber.TuningConfig
	if *configPath != "" {
		var err error
		cfg, err = chamber.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}

	db, err := eventdb.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open event database: %v", err)
	}
	defer db.Close()

	if err := os.MkdirAll(*saveDir, 0o755); err != nil {
		log.Fatalf("Failed to create save directory: %v", err)
	}

	// The result sink is bound after the server exists; capture runs only
	// start over HTTP (or autostart below), so the indirection is safe.
	var sink func(chamber.Result)
	emitter := &chamber.Emitter{Dir: *saveDir, Recorder: db}
	engine := chamber.NewEngine(emitter, chamber.WithNotify(func(res chamber.Result) {
		if sink != nil {
			sink(res)
		}
	}))
	if cfg != nil {
		if err := engine.Apply(cfg.Resolve()); err != nil {
			log.Fatalf("Failed to apply config: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	newSource := func() (chamber.FrameSource, error) {
		if *devMode {
			return capture.NewReplaySource(*stillsDir, *fps, *loop, nil)
		}
		return capture.OpenWebcam(capture.WebcamConfig{
			Device: *device,
			Width:  uint32(*width),
			Height: uint32(*height),
		}, nil)
	}
	controller := api.NewController(engine, newSource)

	server := api.NewServer(ctx, engine, db, controller, &api.PresetStore{Dir: *presetsDir}, cfg)
	sink = server.ResultSink()

	if *autostart {
		if err := controller.Start(ctx); err != nil {
			log.Fatalf("Failed to start capture: %v", err)
		}
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()
		apiMux := server.ServeMux()
		for _, prefix := range []string{"/api/", "/preview", "/ws", "/charts/", "/debug/"} {
			mux.Handle(prefix, apiMux)
		}

		// Static files come from the embedded filesystem in production or
		// from ./static in dev for easier iteration.
		if *devMode {
			mux.Handle("/", http.FileServer(http.Dir("./static")))
		} else {
			sub, err := fs.Sub(staticFiles, "static")
			if err != nil {
				log.Fatalf("Failed to mount static files: %v", err)
			}
			mux.Handle("/", http.FileServer(http.FS(sub)))
		}

		httpServer := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			monitoring.Logf("[Main] listening on %s", *listen)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		monitoring.Logf("[Main] shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			monitoring.Logf("[Main] HTTP server shutdown error: %v", err)
		}
	}()

	<-ctx.Done()
	controller.Stop()
	wg.Wait()
	monitoring.Logf("[Main] graceful shutdown complete")
}
