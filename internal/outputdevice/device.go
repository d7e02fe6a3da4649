// Package outputdevice implements the Output Device Abstraction from
// spec.md §4.11: a pull interface consumed by BMD SDI, NDI senders, and
// the in-process viewport renderer. The device owns a background poll
// loop that samples the core's current frame at a configured rate and
// holds it for consumers to pull; it never pushes frames itself.
// Grounded on the teacher's core.ProviderManager (hot-swappable,
// observable enabled/active state with a lifecycle independent of the
// rest of the core) and on gopsutil host telemetry the way
// scannermodule's adaptive_throttler.go samples it.
package outputdevice

import (
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/mantonx/tlplay/internal/compare"
	"github.com/mantonx/tlplay/internal/config"
	"github.com/mantonx/tlplay/internal/events"
	"github.com/mantonx/tlplay/internal/logger"
	"github.com/mantonx/tlplay/internal/requestqueue"
	"github.com/mantonx/tlplay/pkg/imageio"
	"github.com/mantonx/tlplay/pkg/otio"
)

// ViewTransform is the pan/zoom/rotate (or auto-frame) state applied to
// the composited frame before it reaches a sink.
type ViewTransform struct {
	PanX, PanY   float64
	Zoom         float64
	RotationDeg  float64
	AutoFrame    bool
}

// ColorOptions bundles every opaque-to-the-core color/display knob
// spec.md §4.11 says the device carries through without interpreting:
// OCIO, LUT, HDR, image, display, compare, and background color.
type ColorOptions struct {
	Image      otio.ImageOptions
	Display    otio.ImageOptions
	OCIO       otio.OCIOOptions
	LUT        otio.LUTOptions
	HDR        otio.HDROptions
	Compare    otio.CompareOptions
	Background [3]float64
}

// Frame is everything one device poll tick hands to a sink: composited
// video inputs and boxes, the current audio buffer, view/color state,
// an optional overlay image, and the volume/mute/offset triple.
type Frame struct {
	Video              compare.Result
	Audio              requestqueue.AudioResult
	View               ViewTransform
	Color              ColorOptions
	Overlay            *imageio.Image
	Volume             float64
	Muted              bool
	AudioOffsetSeconds float64
	Sequence           int64
}

// Source is the core-side contract the device polls. CurrentVideo/
// CurrentAudio report ok=false when nothing new is ready since the last
// poll, in which case the device repeats its last frame rather than
// blocking or stalling the sink.
type Source interface {
	CurrentVideo() (compare.Result, bool)
	CurrentAudio() (requestqueue.AudioResult, bool)
	ViewTransform() ViewTransform
	ColorOptions() ColorOptions
	Overlay() *imageio.Image
	Volume() (level float64, muted bool, audioOffsetSeconds float64)
}

// HostTelemetry is a snapshot of host resource usage, sampled via
// gopsutil the way the teacher's adaptive throttler samples CPU/memory
// to decide scan concurrency; here it is informational only, exposed
// for diagnostics alongside the device's own state.
type HostTelemetry struct {
	CPUPercent    float64
	MemoryPercent float64
	SampledAt     time.Time
}

// Device implements spec.md §4.11. Construct with New, Start it to
// begin the background poll loop, and have sinks call CurrentFrame to
// pull the latest composed output.
type Device struct {
	source Source
	log    hclog.Logger

	mu        sync.RWMutex
	current   Frame
	haveFrame bool
	sequence  int64
	enabled   bool
	telemetry HostTelemetry

	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool

	DeviceConfig *events.Observable[config.OutputDeviceConfig]
	Enabled      *events.Observable[bool]
	Active       *events.Observable[bool]
	Size         *events.Observable[compare.Box]
	FrameRate    *events.Observable[float64]
}

// New constructs a Device polling source under cfg. The device starts
// disabled; call SetEnabled(true) and Start to begin pulling frames.
func New(source Source, cfg config.OutputDeviceConfig) *Device {
	return &Device{
		source:       source,
		log:          logger.Named("outputdevice"),
		stopCh:       make(chan struct{}),
		DeviceConfig: events.NewObservable(cfg),
		Enabled:      events.NewObservable(false),
		Active:       events.NewObservable(false),
		Size:         events.NewObservable(compare.Box{}),
		FrameRate:    events.NewObservable(cfg.PollFrameRate),
	}
}

// SetDeviceConfig hot-reconfigures device index/display mode/pixel type
// without disturbing the core (spec.md §4.11's "hot-reconfiguration").
// Changing PollFrameRate takes effect on the device's next poll tick.
func (d *Device) SetDeviceConfig(cfg config.OutputDeviceConfig) {
	d.DeviceConfig.Next(cfg)
	d.FrameRate.Next(cfg.PollFrameRate)
}

// SetEnabled records user intent to drive this device; it does not by
// itself imply a hardware link is up (see SetActive).
func (d *Device) SetEnabled(enabled bool) {
	d.mu.Lock()
	d.enabled = enabled
	d.mu.Unlock()
	d.Enabled.Next(enabled)
	if !enabled {
		d.Active.Next(false)
	}
}

// SetActive reports whether the underlying hardware link (SDI lock, NDI
// connection) is actually up. A BMD/NDI sink implementation calls this
// from its own link-status callback; the core never infers it.
func (d *Device) SetActive(active bool) {
	d.Active.Next(active)
}

// Start launches the background poll loop. Calling Start twice is a
// no-op.
func (d *Device) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return
	}
	d.running = true
	d.wg.Add(1)
	go d.run()
}

// Stop halts the poll loop and joins it before returning.
func (d *Device) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	d.mu.Unlock()

	close(d.stopCh)
	d.wg.Wait()
}

// CurrentFrame is the pull interface sinks call: it returns the last
// frame the poll loop produced, or ok=false if none has ever been
// produced yet.
func (d *Device) CurrentFrame() (Frame, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.current, d.haveFrame
}

// HostStats returns the most recently sampled host telemetry.
func (d *Device) HostStats() HostTelemetry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.telemetry
}

// run is the device thread loop (spec.md §4.11): poll input at
// frame-rate; render a new frame if one is available, otherwise repeat
// the last one. Host telemetry is resampled once a second regardless of
// frame rate.
func (d *Device) run() {
	defer d.wg.Done()

	frameTicker := time.NewTicker(pollInterval(d.FrameRate.Value()))
	defer frameTicker.Stop()
	telemetryTicker := time.NewTicker(time.Second)
	defer telemetryTicker.Stop()

	for {
		select {
		case <-d.stopCh:
			return
		case <-telemetryTicker.C:
			d.sampleTelemetry()
		case <-frameTicker.C:
			rate := d.FrameRate.Value()
			frameTicker.Reset(pollInterval(rate))
			d.poll()
		}
	}
}

func pollInterval(rate float64) time.Duration {
	if rate <= 0 {
		rate = 24
	}
	return time.Duration(float64(time.Second) / rate)
}

func (d *Device) poll() {
	d.mu.RLock()
	enabled := d.enabled
	d.mu.RUnlock()
	if !enabled {
		return
	}

	video, haveVideo := d.source.CurrentVideo()
	audio, haveAudio := d.source.CurrentAudio()
	if !haveVideo && !haveAudio {
		return // repeat last frame: nothing changed since last poll
	}

	level, muted, offset := d.source.Volume()
	next := Frame{
		Video:              video,
		Audio:              audio,
		View:               d.source.ViewTransform(),
		Color:              d.source.ColorOptions(),
		Overlay:            d.source.Overlay(),
		Volume:             level,
		Muted:              muted,
		AudioOffsetSeconds: offset,
	}

	d.mu.Lock()
	if !haveVideo {
		next.Video = d.current.Video
	}
	if !haveAudio {
		next.Audio = d.current.Audio
	}
	d.sequence++
	next.Sequence = d.sequence
	d.current = next
	d.haveFrame = true
	d.mu.Unlock()

	if haveVideo {
		d.Size.Next(compare.Box{W: video.RenderSize.W, H: video.RenderSize.H})
	}
}

func (d *Device) sampleTelemetry() {
	cpuPercents, cpuErr := cpu.Percent(0, false)
	memStats, memErr := mem.VirtualMemory()

	t := HostTelemetry{SampledAt: time.Now()}
	if cpuErr == nil && len(cpuPercents) > 0 {
		t.CPUPercent = cpuPercents[0]
	}
	if memErr == nil && memStats != nil {
		t.MemoryPercent = memStats.UsedPercent
	}

	d.mu.Lock()
	d.telemetry = t
	d.mu.Unlock()
}
