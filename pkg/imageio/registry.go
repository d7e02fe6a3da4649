package imageio

import (
	"fmt"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
)

// Registry maps file extensions to the plugins that can read/write them.
// One process-wide Registry is normally constructed at startup and handed
// to the reader and request-queue layers.
type Registry struct {
	mu      sync.RWMutex
	logger  hclog.Logger
	plugins []Implementation
	byExt   map[string][]Implementation
}

// NewRegistry constructs an empty Registry.
func NewRegistry(logger hclog.Logger) *Registry {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Registry{
		logger: logger.Named("imageio.registry"),
		byExt:  make(map[string][]Implementation),
	}
}

// Register adds a plugin to the registry, indexing it by the extensions
// its PluginInfo declares.
func (r *Registry) Register(impl Implementation) error {
	info, err := impl.Info()
	if err != nil {
		return fmt.Errorf("imageio: plugin info: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins = append(r.plugins, impl)
	for _, ext := range info.Extensions {
		ext = strings.ToLower(strings.TrimPrefix(ext, "."))
		r.byExt[ext] = append(r.byExt[ext], impl)
	}
	r.logger.Info("registered plugin", "id", info.ID, "name", info.Name, "extensions", info.Extensions)
	return nil
}

// ReaderFor returns the first registered plugin able to read extension,
// or false if none can.
func (r *Registry) ReaderFor(extension string) (ReadPlugin, bool) {
	extension = strings.ToLower(strings.TrimPrefix(extension, "."))
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, impl := range r.byExt[extension] {
		if rp := impl.ReadPlugin(); rp != nil && rp.CanRead(extension) {
			return rp, true
		}
	}
	return nil, false
}

// WriterFor returns the first registered plugin able to write extension,
// or false if none can.
func (r *Registry) WriterFor(extension string) (WritePlugin, bool) {
	extension = strings.ToLower(strings.TrimPrefix(extension, "."))
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, impl := range r.byExt[extension] {
		if wp := impl.WritePlugin(); wp != nil && wp.CanWrite(extension) {
			return wp, true
		}
	}
	return nil, false
}

// Plugins returns a snapshot of all registered plugin implementations.
func (r *Registry) Plugins() []Implementation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Implementation, len(r.plugins))
	copy(out, r.plugins)
	return out
}

// Health aggregates Health() across every registered plugin, keyed by
// plugin ID, recording a plugin's Health error as an "unhealthy" entry
// rather than failing the whole call. A plugin whose Info fails is left
// out of the map.
func (r *Registry) Health() map[string]HealthStatus {
	r.mu.RLock()
	plugins := make([]Implementation, len(r.plugins))
	copy(plugins, r.plugins)
	r.mu.RUnlock()

	out := make(map[string]HealthStatus, len(plugins))
	for _, impl := range plugins {
		info, err := impl.Info()
		if err != nil {
			continue
		}
		if err := impl.Health(); err != nil {
			out[info.ID] = HealthStatus{Status: "unhealthy", Message: err.Error()}
			continue
		}
		out[info.ID] = HealthStatus{Status: "healthy"}
	}
	return out
}
