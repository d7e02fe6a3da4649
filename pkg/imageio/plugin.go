package imageio

import (
	"context"

	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/tlplay/pkg/mediapath"
	"github.com/mantonx/tlplay/pkg/rationaltime"
)

// Plugin constants identify the capability a codec plugin advertises.
const (
	PluginTypeReader = "reader"
	PluginTypeWriter = "writer"
	PluginTypeCodec  = "codec" // both read and write
)

// PluginInfo describes a loaded codec plugin.
type PluginInfo struct {
	ID         string
	Name       string
	Version    string
	Type       string
	Extensions []string // lowercase, no leading dot: "exr", "mov", "dpx"
}

// PluginContext is handed to a plugin at Initialize time.
type PluginContext struct {
	PluginID string
	BasePath string
	LogLevel string
	Logger   hclog.Logger
}

// Implementation is what every codec plugin must implement, whether it
// runs in-process or out-of-process behind a go-plugin RPC boundary.
// ReadPlugin and WritePlugin return nil when the plugin doesn't support that
// direction, the same optional-service shape the host registry uses to
// probe for extras without a type switch per plugin.
type Implementation interface {
	Initialize(ctx *PluginContext) error
	Info() (*PluginInfo, error)
	Health() error

	ReadPlugin() ReadPlugin
	WritePlugin() WritePlugin
}

// ReadPlugin decodes images/audio from a Source identified by Path.
type ReadPlugin interface {
	// CanRead reports whether this plugin handles the given extension.
	CanRead(extension string) bool

	// Info returns the IOInfo for a source without decoding any frame
	// data, used by the timeline resolver to learn duration/format.
	Info(ctx context.Context, src mediapath.Source) (IOInfo, error)

	// ReadVideo decodes the video frame nearest to t for the given layer.
	ReadVideo(ctx context.Context, src mediapath.Source, t rationaltime.Time, layer int) (VideoData, error)

	// ReadAudio decodes up to one second of audio starting at
	// startSeconds.
	ReadAudio(ctx context.Context, src mediapath.Source, startSeconds float64) (AudioData, error)

	// CancelRequests is best-effort: outstanding futures may still
	// complete successfully if they were already past the point of no
	// return when cancellation arrived.
	CancelRequests()
}

// WritePlugin encodes images/audio to a destination path.
type WritePlugin interface {
	CanWrite(extension string) bool
	Open(ctx context.Context, dst mediapath.Source, info IOInfo) error
	WriteVideo(ctx context.Context, data VideoData) error
	WriteAudio(ctx context.Context, data AudioData) error
	Close(ctx context.Context) error
}

// HealthStatus mirrors the plugin health contract used elsewhere in the
// pack, reused here so /healthz can report per-plugin status uniformly.
type HealthStatus struct {
	Status  string // "healthy", "degraded", "unhealthy"
	Message string
}
