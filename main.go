// Package main runs the station player: the live stream with its
// availability check and level meter, the clip players, and the operator
// console that controls them.
//
// Usage:
//
//	player [-config path/to/config.json]
//
// If -config is not specified, the player looks for config.json in the same
// directory as the binary.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/moafunk/player/internal/audio"
	"github.com/moafunk/player/internal/backend"
	"github.com/moafunk/player/internal/clip"
	"github.com/moafunk/player/internal/clipsource"
	"github.com/moafunk/player/internal/config"
	"github.com/moafunk/player/internal/eventlog"
	"github.com/moafunk/player/internal/media"
	"github.com/moafunk/player/internal/meter"
	"github.com/moafunk/player/internal/notify"
	"github.com/moafunk/player/internal/output"
	"github.com/moafunk/player/internal/playback"
	"github.com/moafunk/player/internal/probe"
	"github.com/moafunk/player/internal/telemetry"
	"github.com/moafunk/player/internal/util"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: config.json next to binary)")
	showVersion := flag.Bool("version", false, "Print version information and exit")
	flag.Parse()

	if *showVersion {
		slog.Info("version info", "version", Version, "commit", Commit, "build_time", BuildTime)
		return
	}

	if *configPath == "" {
		execPath, err := os.Executable()
		if err != nil {
			slog.Error("failed to get executable path", "error", err)
			os.Exit(1)
		}
		*configPath = filepath.Join(filepath.Dir(execPath), "config.json")
	}

	cfg := config.New(*configPath)
	if err := cfg.Load(); err != nil {
		slog.Error("failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}
	snap := cfg.Snapshot()
	slog.SetDefault(newLogger(snap.LogLevel, snap.LogFormat))
	slog.Info("using config file", "path", *configPath)

	ctx, stop := signal.NotifyContext(context.Background(), util.ShutdownSignals()...)
	defer stop()

	var events *eventlog.Logger
	if snap.EventPath != "" {
		var err error
		if events, err = eventlog.NewLogger(snap.EventPath); err != nil {
			slog.Warn("event log disabled", "path", snap.EventPath, "error", err)
		}
	}
	metrics := telemetry.New()

	sink, err := output.New(snap.Output)
	if err != nil {
		slog.Error("failed to open audio output", "output", snap.Output, "error", err)
		os.Exit(1)
	}
	actx := audio.NewContext(sink, beep.SampleRate(snap.SampleRate))
	graph := audio.NewGraph(actx)
	client := &http.Client{}

	// Live stream
	el := media.NewElement("live", actx, media.ElementOptions{Client: client, SegmentCodec: snap.SegmentCodec})
	controller := playback.New(graph, el, playback.WithEventLog(events), playback.WithMetrics(metrics))
	pr := probe.New(client, snap.ManifestURL,
		probe.WithTimeout(time.Duration(snap.ProbeTimeout)*time.Millisecond),
		probe.WithEventLog(events),
		probe.WithMetrics(metrics),
	)
	session := playback.NewSession(ctx, pr, el, controller, playback.SessionConfig{
		URLs:     backend.URLs{Manifest: snap.ManifestURL, Raw: snap.RawURL},
		Codec:    snap.Codec,
		Platform: backend.DetectPlatform(snap.Platform),
		Client:   client,
		Events:   events,
	})

	// Meter
	notifier := notify.NewSilenceNotifier(cfg, events, metrics)
	palette := meter.Palette{
		Fill:   util.ParseColor(snap.MeterFill, meter.DefaultPalette.Fill),
		Stroke: util.ParseColor(snap.MeterStroke, meter.DefaultPalette.Stroke),
		Accent: util.ParseColor(snap.MeterAccent, meter.DefaultPalette.Accent),
	}
	engine := meter.NewEngine(graph, meter.NewRasterCanvas(snap.MeterWidth, snap.MeterHeight), meter.Options{
		FPS:     snap.MeterFPS,
		Palette: palette,
		Silence: audio.SilenceConfig{
			Threshold:  snap.SilenceThreshold,
			DurationMs: snap.SilenceDurationMs,
			RecoveryMs: snap.SilenceRecoveryMs,
		},
		OnFrame:        func(f meter.Frame) { metrics.SetLevel(f.Level) },
		OnSilence:      notifier.HandleEvent,
		OnSilenceReset: notifier.Reset,
		Active:         func() bool { return controller.State() == playback.Playing },
	})
	go func() {
		defer util.Recover("meter engine")
		if err := engine.Run(ctx); err != nil {
			slog.Error("meter engine stopped", "error", err)
		}
	}()

	// Clips
	page := clip.NewPage(clip.PageOptions{
		NewDecoder: clip.NewHTTPDecoderFactory(actx, client),
		Events:     events,
		Metrics:    metrics,
	})
	resolver := clipsource.New(snap.S3)
	if err := resolver.Mount(ctx, page, snap.Clips); err != nil {
		slog.Warn("some clips could not be mounted", "error", err)
	}
	go resolver.Run(ctx, page, snap.Clips)

	version := NewVersionChecker()
	go version.Run(ctx)

	srv := NewServer(cfg, Services{
		Audio:      actx,
		Controller: controller,
		Session:    session,
		Meter:      engine,
		Clips:      page,
		Metrics:    metrics,
		EventPath:  snap.EventPath,
	}, version)
	httpServer := srv.Start()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	page.Close()
	el.Close()
	notifier.Wait()
	if err := actx.Close(); err != nil {
		slog.Error("error closing audio output", "error", err)
	}
	if err := events.Close(); err != nil {
		slog.Error("error closing event log", "error", err)
	}

	slog.Info("shutdown complete")
}

// newLogger builds the process logger from the log settings.
func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
