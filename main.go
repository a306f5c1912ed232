package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clementus360/proxy-share/app"
	"github.com/clementus360/proxy-share/config"
	"github.com/clementus360/proxy-share/database"
	"github.com/clementus360/proxy-share/handlers"
	"github.com/clementus360/proxy-share/lifecycle"
	"github.com/clementus360/proxy-share/location"
	"github.com/clementus360/proxy-share/loop"
	"github.com/clementus360/proxy-share/render"
	"github.com/clementus360/proxy-share/ui"
	"github.com/clementus360/proxy-share/websocket"
)

func main() {
	log.SetPrefix("[SHARE] ")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Open the device-local store
	store, err := database.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("Error opening %s store: %v", cfg.Store, err)
	}
	defer store.Close()
	if pruner, ok := store.(interface {
		Prune(context.Context) (int64, error)
	}); ok {
		if n, err := pruner.Prune(ctx); err != nil {
			log.Println("Error pruning expired entries:", err)
		} else if n > 0 {
			log.Printf("Pruned %d expired entries", n)
		}
	}

	l := loop.New(0)
	clock := loop.NewRealClock(l)

	var sensor location.Sensor
	push := location.NewPushSensor()
	if lat, lng, ok := cfg.StaticPosition(); ok {
		sensor = &location.StaticSensor{
			Clock:     clock,
			Latitude:  lat,
			Longitude: lng,
			Accuracy:  cfg.StaticAccuracy,
			Interval:  cfg.StaticInterval,
		}
		push = nil
	} else {
		sensor = push
	}

	surface := render.NewMemorySurface()
	board := ui.NewBoard()

	a, err := app.New(app.Options{
		SessionID:     cfg.SessionID,
		ParticipantID: cfg.ParticipantID,
		Name:          cfg.ParticipantName,
		Mobile:        cfg.Mobile,
		ExpiresAt:     cfg.ExpiresAt,
		UserAgent:     cfg.UserAgent,
		URL:           cfg.WebSocketURL(),
		Store:         store,
		Transport:     websocket.NewGorillaTransport(l.Post, cfg.UserAgent),
		Sensor:        sensor,
		Beacon:        lifecycle.NewHTTPBeacon(cfg.BeaconURL()),
		Surface:       surface,
		Sink:          ui.Multi{board, ui.LogSink{}},
		Clock:         clock,
		Render: render.Options{
			ClusterDistance:   cfg.ClusterDistance,
			MovementThreshold: cfg.MovementThreshold,
		},
	})
	if err != nil {
		log.Fatal(err)
	}

	go l.Run(ctx)

	var startErr error
	if err := l.Do(ctx, func() {
		startErr = a.Start(ctx)
		if startErr == nil && cfg.ShareOnStart {
			if err := a.StartSharing(); err != nil {
				log.Println("Error starting location sharing:", err)
			}
		}
	}); err != nil {
		log.Fatal(err)
	}
	if startErr != nil {
		log.Fatalf("Error joining session %s: %v", cfg.SessionID, startErr)
	}

	// Set up the local API
	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: handlers.New(handlers.Options{
			Loop:    l,
			App:     a,
			Surface: surface,
			Board:   board,
			Sensor:  push,
		}).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Println("Listening on", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Println("Error serving local API:", err)
			stop()
		}
	}()

	log.Printf("Proxy share client joined session %s", cfg.SessionID)
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Println("Error shutting down local API:", err)
	}

	// The loop stops with ctx, so the final save runs on this goroutine.
	<-l.Done()
	a.Shutdown()
	log.Println("Proxy share client stopped")
}
