// Command tlplay is the playback core's process entrypoint: it loads
// configuration, wires every internal package into a running server,
// and serves the HTTP API until terminated. Grounded on the teacher's
// cmd/viewra/main.go (startup banner, signal.Notify-driven graceful
// shutdown with a deadline context, ordered component teardown).
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/tlplay/internal/cachepolicy"
	"github.com/mantonx/tlplay/internal/compare"
	"github.com/mantonx/tlplay/internal/config"
	"github.com/mantonx/tlplay/internal/httpapi"
	"github.com/mantonx/tlplay/internal/iocache"
	"github.com/mantonx/tlplay/internal/logger"
	"github.com/mantonx/tlplay/internal/outputdevice"
	"github.com/mantonx/tlplay/internal/persistence"
	"github.com/mantonx/tlplay/internal/player"
	"github.com/mantonx/tlplay/internal/reader"
	"github.com/mantonx/tlplay/internal/reader/external"
	"github.com/mantonx/tlplay/internal/requestqueue"
	"github.com/mantonx/tlplay/pkg/imageio"
	"github.com/mantonx/tlplay/pkg/mediapath"
	"github.com/mantonx/tlplay/pkg/otio"
	"github.com/mantonx/tlplay/pkg/rationaltime"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	timelinePath := flag.String("timeline", "", "path to an OpenTimelineIO JSON document")
	flag.Parse()

	fmt.Println("=================================")
	fmt.Println("  tlplay — Timeline Playback Core  ")
	fmt.Println("=================================")

	if err := config.Load(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Get()

	if err := logger.Init(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	log := logger.Get()
	log.Info("starting", "video_request_count", cfg.Performance.VideoRequestCount)

	registry := imageio.NewRegistry(logger.Named("imageio"))
	registerInProcessPlugins(registry)
	externalReaders := registerExternalPlugins(registry, cfg.Plugins, log)
	defer func() {
		for _, r := range externalReaders {
			r.Stop()
		}
	}()

	resolver := otio.NewResolver(registry)
	timeline, err := loadTimeline(*timelinePath)
	if err != nil {
		log.Error("load timeline", "error", err)
		os.Exit(1)
	}

	queue := requestqueue.New(resolver, timeline, cfg.Performance)
	queue.Start()
	defer queue.Stop()

	cache := iocache.New(cfg.Cache.MaxBytes, logger.Named("iocache"))
	policy := cachepolicy.New(cache, queue)

	startTime := timeline.GlobalStartTime
	inOut := timeline.TimeRange()
	playerCfg := player.Config{
		Rate:               startTime.Rate,
		ReadAheadSeconds:   cfg.Cache.ReadAheadSeconds,
		ReadBehindSeconds:  cfg.Cache.ReadBehindSeconds,
		AvailableBytes:     cfg.Cache.MaxBytes,
		StopOnScrub:        true,
		ScrubWindowSeconds: 0.5,
		MissingFramePolicy: missingFramePolicyFromConfig(cfg.Cache.MissingFramePolicy),
	}
	p := player.New(queue, policy, playerCfg, startTime, inOut)

	store, err := persistence.Open(cfg.Persistence)
	if err != nil {
		log.Error("open persistence store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	if *timelinePath != "" {
		if err := store.AddRecentFile(*timelinePath); err != nil {
			log.Warn("record recent file", "error", err)
		}
		if seconds, err := store.ResumePosition(*timelinePath); err == nil {
			p.Seek(rationaltime.FromSeconds(seconds, startTime.Rate))
			log.Info("resumed playback position", "seconds", seconds)
		}
	}

	cmp := compare.New(inOut)
	device := outputdevice.New(newPlayerSource(p, cmp), cfg.OutputDevice)
	device.SetEnabled(true)
	device.Start()
	defer device.Stop()

	api := httpapi.New(p, timeline, cmp, store)
	httpServer := &http.Server{
		Addr:           fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:        api.Engine(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	tickStop := startTickLoop(p)
	defer close(tickStop)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down")

		if *timelinePath != "" {
			if err := store.SaveResumePosition(*timelinePath, p.CurrentTime.Value().ToSeconds()); err != nil {
				log.Warn("save resume position", "error", err)
			}
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("http server shutdown", "error", err)
		}
		cancel()
	}()

	log.Info("listening", "addr", httpServer.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("serve", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	log.Info("shutdown complete")
}

// registerInProcessPlugins registers the generator (solid/slate
// placeholder) reader and a sequence reader decoding PNG/JPEG/GIF/BMP/
// TIFF frame files — spec.md §4.3's heavier formats (EXR, DPX, RAW,
// FFmpeg containers) are left to registerExternalPlugins's
// out-of-process decoders.
func registerInProcessPlugins(registry *imageio.Registry) {
	gen := reader.NewGeneratorReader(imageio.Size{Width: 1920, Height: 1080, PixelAspect: 1})
	if err := registry.Register(reader.NewGeneratorPlugin(gen)); err != nil {
		logger.Get().Warn("register generator plugin", "error", err)
	}

	extensions := decodableExtensions()
	seq := reader.NewSequenceReader(
		extensions,
		0,
		24,
		decodeStdlibImage,
		logger.Named("reader.sequence"),
	)
	info := imageio.PluginInfo{ID: "sequence", Extensions: extensions}
	if err := registry.Register(reader.NewSequencePlugin(info, seq)); err != nil {
		logger.Get().Warn("register sequence plugin", "error", err)
	}
}

// registerExternalPlugins loads every plugin.yaml manifest under
// cfg.Dir, starts its subprocess, and registers it as a Reader. Readers
// that fail to start are logged and skipped rather than aborting
// startup, so one broken plugin binary doesn't take the whole core down.
func registerExternalPlugins(registry *imageio.Registry, cfg config.ReaderPluginConfig, log hclog.Logger) []*external.ExternalReader {
	manifestPaths, err := filepath.Glob(filepath.Join(cfg.Dir, "*", "plugin.yaml"))
	if err != nil {
		log.Warn("glob plugin manifests", "error", err)
		return nil
	}

	var started []*external.ExternalReader
	for _, path := range manifestPaths {
		manifest, err := external.LoadManifest(path)
		if err != nil {
			log.Warn("load plugin manifest", "path", path, "error", err)
			continue
		}

		effective := cfg.Reliability.ForPlugin(manifest.Name)
		er := external.NewExternalReader(manifest, effective, log)
		if err := er.Start(10 * time.Second); err != nil {
			log.Warn("start external plugin", "plugin", manifest.Name, "error", err)
			continue
		}
		if err := registry.Register(er); err != nil {
			log.Warn("register external plugin", "plugin", manifest.Name, "error", err)
			er.Stop()
			continue
		}
		started = append(started, er)
		log.Info("started external reader plugin", "plugin", manifest.Name, "extensions", manifest.Extensions)
	}
	return started
}

// missingFramePolicyFromConfig maps the config file's policy name to
// imageio's enum, defaulting to Black for an empty or unrecognized value.
func missingFramePolicyFromConfig(name config.MissingFramePolicyName) imageio.MissingFramePolicy {
	switch name {
	case config.MissingFramePolicyPrevious:
		return imageio.MissingFramePrevious
	case config.MissingFramePolicyScratched:
		return imageio.MissingFrameScratched
	default:
		return imageio.MissingFrameBlack
	}
}

// loadTimeline reads an OpenTimelineIO JSON document from path, or
// returns a single-generator-clip placeholder timeline if path is empty
// so the core always has something to play.
func loadTimeline(path string) (*otio.Timeline, error) {
	if path == "" {
		return placeholderTimeline(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open timeline %s: %w", path, err)
	}
	defer f.Close()
	return otio.Load(f)
}

func placeholderTimeline() *otio.Timeline {
	item := otio.Item{
		Kind: otio.ItemClip,
		RangeInParent: rationaltime.NewRange(
			rationaltime.New(0, 24), rationaltime.New(240, 24),
		),
		Clip: &otio.Clip{
			Source: mediapath.NewGeneratorSource("slate"),
			TrimmedRange: rationaltime.NewRange(
				rationaltime.New(0, 24), rationaltime.New(240, 24),
			),
		},
	}
	return &otio.Timeline{
		GlobalStartTime: rationaltime.New(0, 24),
		Tracks:          []otio.Track{{Kind: otio.TrackVideo, Items: []otio.Item{item}}},
	}
}

// startTickLoop drives p.Tick at 24Hz on a dedicated goroutine — the
// "caller's UI/tick thread" spec.md §5 says owns the Player when no
// actual UI is attached.
func startTickLoop(p *player.Player) chan struct{} {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Second / 24)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case now := <-ticker.C:
				p.Tick(now)
			}
		}
	}()
	return stop
}
