package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shaunagostinho/dualtrack/internal/calibration"
	"github.com/shaunagostinho/dualtrack/internal/gps"
	"github.com/shaunagostinho/dualtrack/internal/orientation"
	"github.com/shaunagostinho/dualtrack/internal/server"
	"github.com/shaunagostinho/dualtrack/internal/store"
	"github.com/shaunagostinho/dualtrack/internal/tracker"
	"github.com/shaunagostinho/dualtrack/web"
)

func main() {
	configPath := flag.String("config", "/etc/dualtrack/config.yaml", "Path to config file")
	demo := flag.Bool("demo", false, "Run with simulated GPS and compass data")
	listenAddr := flag.String("listen", "", "Override listen address (e.g. :8080)")
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("[main] dualtrack starting")

	cfg, err := server.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("[main] %v", err)
	}

	if *demo {
		cfg.GPS.Type = "demo"
		cfg.Compass.Type = "demo"
	}
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}

	// Create context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("[main] received %v, shutting down", sig)
		cancel()
	}()

	kv, closeKV, err := openStore(ctx, cfg.Store)
	if err != nil {
		log.Fatalf("[main] %v", err)
	}
	defer closeKV()

	status := server.NewSensorStatus()

	// GPS provider
	var (
		gpsProv gps.Provider
		demoGPS *gps.DemoGPS
	)
	switch cfg.GPS.Type {
	case "nmea":
		gpsProv = gps.NewNMEA(gps.NMEAConfig{
			PortPath: cfg.GPS.PortPath,
			BaudRate: cfg.GPS.BaudRate,
		})
	case "disabled":
		gpsProv = nil
	default:
		demoGPS = gps.NewDemoGPS()
		gpsProv = demoGPS
	}

	gpsName := "disabled"
	var loc gps.Locator = unavailableLocator{}
	if gpsProv != nil {
		gpsName = gpsProv.Name()
		loc = gps.NewPollingLocator(gpsProv, time.Duration(cfg.GPS.PollMs)*time.Millisecond, cfg.GPS.UERE)
		go connectWithRetry(ctx, "GPS", gpsProv, 10)
	} else {
		status.Unavailable("gps", gps.ErrPositionUnavailable)
	}

	// Compass source
	var compass orientation.Source
	switch cfg.Compass.Type {
	case "nmea":
		compass = orientation.NewNMEA(orientation.NMEAConfig{
			PortPath: cfg.Compass.PortPath,
			BaudRate: cfg.Compass.BaudRate,
		})
	case "disabled":
		compass = nil
	default:
		course := func() float64 { return 0 }
		if demoGPS != nil {
			course = demoGPS.Course
		}
		compass = orientation.NewDemoSource(course)
	}
	if compass != nil {
		go connectWithRetry(ctx, "compass", compass, 10)
	}

	heading := &orientation.Cell{}
	cal, err := calibration.New(ctx, kv, heading)
	if err != nil {
		log.Fatalf("[main] %v", err)
	}

	opts := cfg.TrackerOptions()
	opts.OnError = status.FixError
	trk := tracker.New(loc, heading, cal, opts)

	// Start server; sensors keep connecting in the background
	srv := server.New(cfg, server.Deps{
		Tracker:    trk,
		Calibrator: cal,
		Heading:    heading,
		Quality:    orientation.NewQualityMonitor(cfg.Compass.QualityWindow),
		Compass:    compass,
		Status:     status,
		GPSName:    gpsName,
		WebFS:      web.FS,
	})
	if err := srv.Run(ctx); err != nil {
		log.Printf("[main] server exited: %v", err)
	}
}

// openStore builds the durable key-value store for the heading offset.
func openStore(ctx context.Context, cfg server.StoreConfig) (store.KV, func(), error) {
	switch cfg.Type {
	case "redis":
		connCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		r, err := store.NewRedis(connCtx, store.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPass,
			DB:       cfg.RedisDB,
			Prefix:   cfg.KeyPrefix,
		})
		if err != nil {
			return nil, nil, err
		}
		log.Printf("[store] using redis at %s", cfg.RedisAddr)
		return r, func() { r.Close() }, nil
	case "memory":
		log.Println("[store] using in-memory store, offset will not persist")
		return store.NewMemory(), func() {}, nil
	default:
		f, err := store.OpenFile(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("[store] using %s", cfg.Path)
		return f, func() {}, nil
	}
}

var errGPSDisabled = errors.New("gps disabled in config")

// unavailableLocator stands in when GPS is disabled, so a started session
// reports the failure instead of hanging.
type unavailableLocator struct{}

func (unavailableLocator) CurrentPosition(context.Context, gps.PositionOptions) (gps.Fix, error) {
	return gps.Fix{}, &gps.PositionError{Code: gps.PositionUnavailable, Err: errGPSDisabled}
}

func (unavailableLocator) WatchPosition(ctx context.Context, _ gps.PositionOptions) <-chan gps.Update {
	ch := make(chan gps.Update)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch
}

// connectable is satisfied by both gps.Provider and orientation.Source.
type connectable interface {
	Connect() error
	Close() error
}

// connectWithRetry attempts to connect with exponential backoff.
// Starts at 1s, doubles each attempt up to 60s, retries up to maxAttempts
// then continues at max interval indefinitely.
func connectWithRetry(ctx context.Context, name string, c connectable, maxAttempts int) {
	delay := 1 * time.Second
	maxDelay := 60 * time.Second
	attempt := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := c.Connect(); err != nil {
			attempt++
			if attempt <= maxAttempts {
				log.Printf("[%s] connect attempt %d/%d failed: %v (retry in %v)",
					name, attempt, maxAttempts, err, delay)
			} else {
				log.Printf("[%s] connect attempt %d failed: %v (retry in %v)",
					name, attempt, err, delay)
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}

			delay *= 2
			if delay > maxDelay {
				delay = maxDelay
			}
		} else {
			log.Printf("[%s] connected successfully (attempt %d)", name, attempt+1)
			return
		}
	}
}
