package imageio

import (
	"context"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mantonx/tlplay/pkg/mediapath"
	"github.com/mantonx/tlplay/pkg/rationaltime"
)

type fakePlugin struct {
	info PluginInfo
	read *fakeReader
}

func (f *fakePlugin) Initialize(ctx *PluginContext) error { return nil }
func (f *fakePlugin) Info() (*PluginInfo, error)           { return &f.info, nil }
func (f *fakePlugin) Health() error                        { return nil }
func (f *fakePlugin) ReadPlugin() ReadPlugin {
	if f.read == nil {
		return nil
	}
	return f.read
}
func (f *fakePlugin) WritePlugin() WritePlugin { return nil }

type fakeReader struct {
	ext string
}

func (r *fakeReader) CanRead(extension string) bool { return extension == r.ext }
func (r *fakeReader) Info(ctx context.Context, src mediapath.Source) (IOInfo, error) {
	return IOInfo{}, nil
}
func (r *fakeReader) ReadVideo(ctx context.Context, src mediapath.Source, t rationaltime.Time, layer int) (VideoData, error) {
	return VideoData{}, nil
}
func (r *fakeReader) ReadAudio(ctx context.Context, src mediapath.Source, startSeconds float64) (AudioData, error) {
	return AudioData{}, nil
}
func (r *fakeReader) CancelRequests() {}

func TestRegistryReaderForMatchesExtension(t *testing.T) {
	reg := NewRegistry(hclog.NewNullLogger())
	plugin := &fakePlugin{
		info: PluginInfo{ID: "exr", Name: "OpenEXR", Extensions: []string{"exr"}},
		read: &fakeReader{ext: "exr"},
	}
	require.NoError(t, reg.Register(plugin))

	rp, ok := reg.ReaderFor(".EXR")
	require.True(t, ok)
	assert.True(t, rp.CanRead("exr"))

	_, ok = reg.ReaderFor("mov")
	assert.False(t, ok)
}

func TestRegistryHealthAggregatesPlugins(t *testing.T) {
	reg := NewRegistry(hclog.NewNullLogger())
	require.NoError(t, reg.Register(&fakePlugin{info: PluginInfo{ID: "a"}}))
	require.NoError(t, reg.Register(&fakePlugin{info: PluginInfo{ID: "b"}}))

	h := reg.Health()
	assert.Len(t, h, 2)
	assert.Equal(t, "healthy", h["a"].Status)
}
