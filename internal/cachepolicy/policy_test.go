package cachepolicy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mantonx/tlplay/internal/config"
	"github.com/mantonx/tlplay/internal/iocache"
	"github.com/mantonx/tlplay/internal/requestqueue"
	"github.com/mantonx/tlplay/pkg/imageio"
	"github.com/mantonx/tlplay/pkg/mediapath"
	"github.com/mantonx/tlplay/pkg/otio"
	"github.com/mantonx/tlplay/pkg/rationaltime"
)

type instantReader struct{}

func (instantReader) CanRead(extension string) bool { return true }
func (instantReader) Info(ctx context.Context, src mediapath.Source) (imageio.IOInfo, error) {
	return imageio.IOInfo{}, nil
}
func (instantReader) ReadVideo(ctx context.Context, src mediapath.Source, t rationaltime.Time, layer int) (imageio.VideoData, error) {
	return imageio.VideoData{Time: t, Layer: layer, Image: imageio.Image{Valid: true, Data: make([]byte, 1024)}}, nil
}
func (instantReader) ReadAudio(ctx context.Context, src mediapath.Source, startSeconds float64) (imageio.AudioData, error) {
	return imageio.AudioData{Seconds: startSeconds}, nil
}
func (instantReader) CancelRequests() {}

type instantPlugin struct{}

func (instantPlugin) Initialize(ctx *imageio.PluginContext) error { return nil }
func (instantPlugin) Info() (*imageio.PluginInfo, error) {
	return &imageio.PluginInfo{ID: "exr", Extensions: []string{"exr"}}, nil
}
func (instantPlugin) Health() error                   { return nil }
func (instantPlugin) ReadPlugin() imageio.ReadPlugin   { return instantReader{} }
func (instantPlugin) WritePlugin() imageio.WritePlugin { return nil }

func testTimeline(rate float64) *otio.Timeline {
	src, _ := mediapath.Parse("/a/shot.0001.exr")
	clip := otio.Item{
		Kind: otio.ItemClip,
		RangeInParent: rationaltime.NewRange(
			rationaltime.New(0, rate), rationaltime.New(100, rate),
		),
		Clip: &otio.Clip{
			Source: mediapath.NewFileSource(src),
			TrimmedRange: rationaltime.NewRange(
				rationaltime.New(0, rate), rationaltime.New(100, rate),
			),
		},
	}
	return &otio.Timeline{
		Tracks: []otio.Track{
			{Kind: otio.TrackVideo, Items: []otio.Item{clip}},
		},
	}
}

func newTestPolicy(t *testing.T) (*Policy, *requestqueue.Queue) {
	t.Helper()
	reg := imageio.NewRegistry(nil)
	require.NoError(t, reg.Register(instantPlugin{}))
	resolver := otio.NewResolver(reg)
	perf := config.PerformanceConfig{VideoRequestCount: 8, AudioRequestCount: 8}
	q := requestqueue.New(resolver, testTimeline(24), perf)
	q.Start()
	t.Cleanup(q.Stop)

	cache := iocache.New(1<<20, nil)
	return New(cache, q), q
}

func TestAdvanceFillsWindowAndCaches(t *testing.T) {
	p, _ := newTestPolicy(t)

	params := Params{
		CurrentTime:       rationaltime.New(10, 24),
		Direction:         Forward,
		Rate:              24,
		ReadAheadSeconds:  0.2,
		ReadBehindSeconds: 0.1,
		AvailableBytes:    1 << 20,
		InOutRange:        rationaltime.NewRange(rationaltime.New(0, 24), rationaltime.New(100, 24)),
		Loop:              LoopOnce,
	}

	p.Advance(params)

	require.Eventually(t, func() bool {
		return p.cache.Contains("video:10")
	}, time.Second, 5*time.Millisecond)

	info := p.Advance(params)
	assert.GreaterOrEqual(t, info.BytesUsed, int64(0))
}

func TestAdvanceEvictsOutOfWindowEntries(t *testing.T) {
	p, _ := newTestPolicy(t)
	p.cache.Add("video:999", "stale", 10)

	params := Params{
		CurrentTime:       rationaltime.New(10, 24),
		Direction:         Forward,
		Rate:              24,
		ReadAheadSeconds:  0.1,
		ReadBehindSeconds: 0.1,
		AvailableBytes:    1,
		InOutRange:        rationaltime.NewRange(rationaltime.New(0, 24), rationaltime.New(100, 24)),
		Loop:              LoopOnce,
	}
	p.Advance(params)

	assert.False(t, p.cache.Contains("video:999"))
}
