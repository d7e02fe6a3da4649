package external

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	goplugin "github.com/hashicorp/go-plugin"

	"github.com/mantonx/tlplay/internal/config"
	"github.com/mantonx/tlplay/pkg/imageio"
	"github.com/mantonx/tlplay/pkg/mediapath"
	"github.com/mantonx/tlplay/pkg/rationaltime"
)

// ExternalReader hosts one decoder plugin binary as a subprocess,
// applying the retry/backoff and circuit-breaking policy from
// config.ReliabilityConfig.ForPlugin to every RPC call, the same shape
// of problem the teacher's plugin reliability config was built for
// (a flaky out-of-process dependency) applied here to a decoder instead
// of a metadata scraper.
type ExternalReader struct {
	logger      hclog.Logger
	manifest    *Manifest
	reliability config.EffectiveConfig

	mu      sync.Mutex
	client  *goplugin.Client
	reader  imageio.ReadPlugin
	breaker *CircuitBreaker
}

// NewExternalReader constructs an ExternalReader for manifest, applying
// reliability as the retry/circuit-breaker policy.
func NewExternalReader(manifest *Manifest, reliability config.EffectiveConfig, logger hclog.Logger) *ExternalReader {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &ExternalReader{
		logger:      logger.Named("reader.external").With("plugin", manifest.Name),
		manifest:    manifest,
		reliability: reliability,
		breaker:     NewCircuitBreaker(reliability.FailureThreshold, reliability.HealthCheckInterval*2, 3),
	}
}

// Start launches the plugin subprocess and dispenses the "reader" plugin,
// blocking until the handshake completes or StartupTimeout elapses.
func (e *ExternalReader) Start(startupTimeout time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	client := goplugin.NewClient(&goplugin.ClientConfig{
		HandshakeConfig: Handshake,
		Plugins:         PluginMap,
		Cmd:             exec.Command(e.manifest.BinaryPath),
		Logger:          e.logger,
		StartTimeout:    startupTimeout,
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return fmt.Errorf("external: connect to plugin %s: %w", e.manifest.Name, err)
	}

	raw, err := rpcClient.Dispense("reader")
	if err != nil {
		client.Kill()
		return fmt.Errorf("external: dispense reader from %s: %w", e.manifest.Name, err)
	}

	reader, ok := raw.(imageio.ReadPlugin)
	if !ok {
		client.Kill()
		return fmt.Errorf("external: plugin %s did not return a ReadPlugin", e.manifest.Name)
	}

	e.client = client
	e.reader = reader
	return nil
}

// Stop terminates the plugin subprocess. Outstanding requests must be
// cancelled by the caller first (per spec.md §3's Reader lifecycle: they
// must drain or cancel outstanding futures before destruction).
func (e *ExternalReader) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client != nil {
		e.client.Kill()
		e.client = nil
		e.reader = nil
	}
}

func (e *ExternalReader) currentReader() (imageio.ReadPlugin, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.reader == nil {
		return nil, fmt.Errorf("external: plugin %s not started", e.manifest.Name)
	}
	if e.client.Exited() {
		return nil, fmt.Errorf("external: plugin %s process exited", e.manifest.Name)
	}
	return e.reader, nil
}

// call retries fn up to MaxRetries times with exponential backoff,
// honoring the circuit breaker and aborting early if ctx is cancelled.
func call[T any](ctx context.Context, e *ExternalReader, fn func(imageio.ReadPlugin) (T, error)) (T, error) {
	var zero T

	delay := e.reliability.InitialRetryDelay
	var lastErr error
	for attempt := 0; attempt <= e.reliability.MaxRetries; attempt++ {
		if err := e.breaker.Allow(); err != nil {
			return zero, err
		}

		reader, err := e.currentReader()
		if err != nil {
			e.breaker.RecordFailure()
			lastErr = err
		} else {
			result, err := fn(reader)
			if err == nil {
				e.breaker.RecordSuccess()
				return result, nil
			}
			e.breaker.RecordFailure()
			lastErr = err
		}

		if attempt == e.reliability.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * e.reliability.BackoffMultiplier)
		if delay > e.reliability.MaxRetryDelay {
			delay = e.reliability.MaxRetryDelay
		}
	}
	return zero, fmt.Errorf("external: plugin %s: %w", e.manifest.Name, lastErr)
}

// readAdapter implements imageio.ReadPlugin by delegating through the
// reliability wrapper, kept as a distinct type from ExternalReader since
// ReadPlugin.Info(ctx, src) and Implementation.Info() can't both be named
// Info on the same Go type.
type readAdapter struct {
	host *ExternalReader
}

func (a *readAdapter) CanRead(extension string) bool {
	reader, err := a.host.currentReader()
	if err != nil {
		return false
	}
	return reader.CanRead(extension)
}

func (a *readAdapter) Info(ctx context.Context, src mediapath.Source) (imageio.IOInfo, error) {
	return call(ctx, a.host, func(r imageio.ReadPlugin) (imageio.IOInfo, error) {
		return r.Info(ctx, src)
	})
}

func (a *readAdapter) ReadVideo(ctx context.Context, src mediapath.Source, t rationaltime.Time, layer int) (imageio.VideoData, error) {
	vd, err := call(ctx, a.host, func(r imageio.ReadPlugin) (imageio.VideoData, error) {
		return r.ReadVideo(ctx, src, t, layer)
	})
	if err != nil {
		return imageio.VideoData{Time: t, Layer: layer, Image: imageio.InvalidImage()}, nil
	}
	return vd, nil
}

func (a *readAdapter) ReadAudio(ctx context.Context, src mediapath.Source, startSeconds float64) (imageio.AudioData, error) {
	return call(ctx, a.host, func(r imageio.ReadPlugin) (imageio.AudioData, error) {
		return r.ReadAudio(ctx, src, startSeconds)
	})
}

func (a *readAdapter) CancelRequests() {
	if reader, err := a.host.currentReader(); err == nil {
		reader.CancelRequests()
	}
}

// --- imageio.Implementation ---

func (e *ExternalReader) Initialize(ctx *imageio.PluginContext) error {
	return e.Start(e.reliability.RequestTimeout)
}

func (e *ExternalReader) Info() (*imageio.PluginInfo, error) {
	exts := make([]string, 0, len(e.manifest.Extensions))
	for ext := range e.manifest.Extensions {
		exts = append(exts, ext)
	}
	return &imageio.PluginInfo{ID: e.manifest.Name, Name: e.manifest.Name, Version: e.manifest.Version, Type: imageio.PluginTypeReader, Extensions: exts}, nil
}

func (e *ExternalReader) Health() error {
	if _, err := e.currentReader(); err != nil {
		return err
	}
	if e.breaker.State() == "open" {
		return fmt.Errorf("external: plugin %s circuit open", e.manifest.Name)
	}
	return nil
}

func (e *ExternalReader) ReadPlugin() imageio.ReadPlugin   { return &readAdapter{host: e} }
func (e *ExternalReader) WritePlugin() imageio.WritePlugin { return nil }
