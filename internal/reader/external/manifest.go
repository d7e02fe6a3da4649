// Package external hosts a Reader implementation out-of-process, the way
// the FFmpeg (movie) and NDI (network stream) plugins spec.md §4.3
// describes: a separate binary speaking hashicorp/go-plugin's RPC
// protocol over a handshake-negotiated pipe, so a decoder crash never
// takes the coordinator process down with it.
package external

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileType mirrors spec.md §4.2's plugin-declared extension kind.
type FileType string

const (
	FileTypeMovie    FileType = "movie"
	FileTypeSequence FileType = "sequence"
	FileTypeAudio    FileType = "audio"
)

// Manifest describes an external reader/writer plugin binary: its name,
// the extensions it claims, and whether each is a movie/sequence/audio
// source. Loaded from a plugin.yaml next to the plugin binary, mirroring
// the teacher's ReadPluginManifestFile convention.
type Manifest struct {
	Name       string              `yaml:"name"`
	Version    string              `yaml:"version"`
	BinaryPath string              `yaml:"binary_path"`
	Extensions map[string]FileType `yaml:"extensions"`
	CanWrite   bool                `yaml:"can_write"`
}

// LoadManifest reads and parses a plugin.yaml file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("external: read manifest %s: %w", path, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("external: parse manifest %s: %w", path, err)
	}
	if m.Name == "" {
		return nil, fmt.Errorf("external: manifest %s missing name", path)
	}
	return &m, nil
}
