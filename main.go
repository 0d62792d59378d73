package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spaia-earth/fieldcam/api"
	"github.com/spaia-earth/fieldcam/internal/camera"
	"github.com/spaia-earth/fieldcam/internal/climate"
	"github.com/spaia-earth/fieldcam/internal/config"
	"github.com/spaia-earth/fieldcam/internal/fsutil"
	"github.com/spaia-earth/fieldcam/internal/storage"
	"github.com/spaia-earth/fieldcam/internal/transfer"
	"github.com/spaia-earth/fieldcam/internal/upload"
	"github.com/spaia-earth/fieldcam/internal/vision"
)

var (
	devMode    = flag.Bool("dev", false, "Run in dev mode with mock camera and climate sensor")
	listen     = flag.String("listen", ":8080", "Listen address")
	configPath = flag.String("config", "", "Path to tuning config JSON (optional)")
	dataDir    = flag.String("data-dir", "/data/spaia", "Directory for sensor logs and images")
	spoolDir   = flag.String("spool-dir", "/run/fieldcam", "Frame spool directory fed by the capture process")
	serialPath = flag.String("serial", "/dev/ttyUSB0", "Climate sensor serial device")
	uploadURL  = flag.String("upload-url", "", "Upload endpoint (overrides config)")
	wifiIface  = flag.String("wifi-interface", "", "Wireless interface to power-manage between uploads (empty: always on)")
	rfkillID   = flag.String("rfkill-id", "wifi", "rfkill identifier for the managed radio")
)

// uploadPassRecorder adapts the event store to the upload manager.
type uploadPassRecorder struct {
	events *storage.EventStore
}

func (r *uploadPassRecorder) UploadPassCompleted(startedAt time.Time, ok bool, failedAttempts int, errMsg string) {
	err := r.events.RecordUploadPass(storage.UploadPassRecord{
		StartedAt:      startedAt,
		OK:             ok,
		FailedAttempts: failedAttempts,
		Error:          errMsg,
	})
	if err != nil {
		log.Printf("recording upload pass: %v", err)
	}
}

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	cfg := config.EmptyTuningConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	fs := fsutil.OSFileSystem{}

	store, err := storage.NewFileStore(fs, *dataDir)
	if err != nil {
		log.Fatalf("failed to open data directory: %v", err)
	}

	events, err := storage.OpenEventStore(filepath.Join(*dataDir, "events.db"))
	if err != nil {
		log.Fatalf("failed to open event store: %v", err)
	}
	defer events.Close()

	destination := cfg.GetUploadURL()
	if *uploadURL != "" {
		destination = *uploadURL
	}
	uploader := transfer.NewUploader(fs, store, destination, nil)

	var conn upload.Connectivity = upload.AlwaysOn{}
	if !*devMode && *wifiIface != "" {
		conn = upload.Rfkill{Interface: *wifiIface, ID: *rfkillID}
	}

	manager := upload.NewManager(upload.Config{
		IntervalSeconds: cfg.GetUploadIntervalSeconds(),
		UploadURL:       destination,
		InitialBackoff:  cfg.GetInitialBackoff(),
		MaxBackoff:      cfg.GetMaxBackoff(),
		Recorder:        &uploadPassRecorder{events: events},
	}, uploader, conn)

	records := make(chan storage.SensorRecord, 64)
	sensorLog := storage.NewSensorLog(fs, *dataDir, records, manager)

	var sampler climate.Sampler
	if *devMode {
		sampler = climate.NewMockSampler()
	} else {
		sampler, err = climate.OpenSerialSampler(*serialPath)
		if err != nil {
			// A dead climate sensor should not take the camera down with it.
			log.Printf("climate sensor unavailable, using mock readings: %v", err)
			sampler = climate.NewMockSampler()
		}
	}
	defer sampler.Close()
	poller := climate.NewPoller(sampler, cfg.GetClimatePollInterval(), records)

	bg := vision.NewBackgroundModel()
	bg.Alpha = cfg.GetBackgroundAlpha()
	seg := vision.NewSegmenter(bg, cfg.VisionParams())

	var driver camera.Driver
	if *devMode {
		driver = camera.NewMockDriver()
	} else {
		driver = camera.NewSpoolDriver(fs, *spoolDir, nil)
	}
	controller := camera.NewController(driver, seg, store, events, poller, records, manager, cfg.CameraOptions())

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wg.Add(1)
	go func() {
		defer wg.Done()
		sensorLog.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		poller.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		uploader.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := controller.Run(ctx); err != nil {
			log.Printf("camera controller failed: %v", err)
			stop()
		}
	}()

	manager.Start(ctx, &wg)

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		srv := api.NewServer(manager, controller, events, poller)
		srv.ServeImages(fs, *dataDir)
		mux := srv.ServeMux()
		h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Printf("got request %q", r.URL.Path)
			mux.ServeHTTP(w, r)
		})

		server := &http.Server{
			Addr:    *listen,
			Handler: h,
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
