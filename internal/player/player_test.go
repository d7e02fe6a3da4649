package player

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mantonx/tlplay/internal/cachepolicy"
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
	return imageio.VideoData{Time: t, Layer: layer, Image: imageio.Image{Valid: true}}, nil
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

func newTestPlayer(t *testing.T, loop LoopMode) *Player {
	t.Helper()
	reg := imageio.NewRegistry(nil)
	require.NoError(t, reg.Register(instantPlugin{}))
	resolver := otio.NewResolver(reg)

	src, _ := mediapath.Parse("/a/shot.0001.exr")
	clip := otio.Item{
		Kind: otio.ItemClip,
		RangeInParent: rationaltime.NewRange(
			rationaltime.New(0, 24), rationaltime.New(100, 24),
		),
		Clip: &otio.Clip{
			Source: mediapath.NewFileSource(src),
			TrimmedRange: rationaltime.NewRange(
				rationaltime.New(0, 24), rationaltime.New(100, 24),
			),
		},
	}
	tl := &otio.Timeline{Tracks: []otio.Track{{Kind: otio.TrackVideo, Items: []otio.Item{clip}}}}

	perf := config.PerformanceConfig{VideoRequestCount: 8, AudioRequestCount: 8}
	q := requestqueue.New(resolver, tl, perf)
	q.Start()
	t.Cleanup(q.Stop)

	policy := cachepolicy.New(iocache.New(1<<20, nil), q)

	cfg := Config{
		Rate:               24,
		ReadAheadSeconds:   0.1,
		ReadBehindSeconds:  0.1,
		AvailableBytes:     1 << 20,
		StopOnScrub:        true,
		ScrubWindowSeconds: 0.5,
	}
	inOut := rationaltime.NewRange(rationaltime.New(0, 24), rationaltime.New(50, 24))
	p := New(q, policy, cfg, rationaltime.New(0, 24), inOut)
	p.SetLoop(loop)
	return p
}

func TestPlayerTickAdvancesForward(t *testing.T) {
	p := newTestPlayer(t, Loop)
	p.SetPlayback(Forward)

	base := time.Now()
	p.Tick(base) // establishes lastWall baseline, no advance yet
	p.Tick(base.Add(500 * time.Millisecond))

	got := p.CurrentTime.Value()
	assert.Greater(t, got.ToSeconds(), 0.0)
}

func TestPlayerOnceStopsAtRangeEnd(t *testing.T) {
	p := newTestPlayer(t, Once)
	p.SetPlayback(Forward)
	p.Seek(rationaltime.New(48, 24))

	base := time.Now()
	p.playback = Forward
	p.Tick(base)
	p.Tick(base.Add(time.Second))

	assert.Equal(t, Stopped, p.Playback.Value())
}

func TestPlayerPingPongReversesAtBoundary(t *testing.T) {
	p := newTestPlayer(t, PingPong)
	p.SetPlayback(Forward)
	p.Seek(rationaltime.New(49, 24))
	p.SetPlayback(Forward) // StopOnScrub stopped playback on the Seek

	base := time.Now()
	p.Tick(base)
	p.Tick(base.Add(time.Second))

	assert.Equal(t, Reverse, p.Playback.Value())
}

func TestPlayerSeekStopsOnScrub(t *testing.T) {
	p := newTestPlayer(t, Loop)
	p.SetPlayback(Forward)
	p.Seek(rationaltime.New(10, 24))
	assert.Equal(t, Stopped, p.Playback.Value())
}

// newClipThenGapPlayer builds a one-track timeline with a valid clip
// followed by a gap, so a seek into the gap exercises the missing-frame
// policy against a known last-good frame.
func newClipThenGapPlayer(t *testing.T, policy imageio.MissingFramePolicy) *Player {
	t.Helper()
	reg := imageio.NewRegistry(nil)
	require.NoError(t, reg.Register(instantPlugin{}))
	resolver := otio.NewResolver(reg)

	src, _ := mediapath.Parse("/a/shot.0001.exr")
	clip := otio.Item{
		Kind:          otio.ItemClip,
		RangeInParent: rationaltime.NewRange(rationaltime.New(0, 24), rationaltime.New(24, 24)),
		Clip: &otio.Clip{
			Source:       mediapath.NewFileSource(src),
			TrimmedRange: rationaltime.NewRange(rationaltime.New(0, 24), rationaltime.New(24, 24)),
		},
	}
	gap := otio.Item{
		Kind:          otio.ItemGap,
		RangeInParent: rationaltime.NewRange(rationaltime.New(24, 24), rationaltime.New(24, 24)),
	}
	tl := &otio.Timeline{Tracks: []otio.Track{{Kind: otio.TrackVideo, Items: []otio.Item{clip, gap}}}}

	perf := config.PerformanceConfig{VideoRequestCount: 8, AudioRequestCount: 8}
	q := requestqueue.New(resolver, tl, perf)
	q.Start()
	t.Cleanup(q.Stop)

	cp := cachepolicy.New(iocache.New(1<<20, nil), q)
	cfg := Config{
		Rate:               24,
		ReadAheadSeconds:   0.1,
		ReadBehindSeconds:  0.1,
		AvailableBytes:     1 << 20,
		StopOnScrub:        true,
		ScrubWindowSeconds: 0.5,
		MissingFramePolicy: policy,
	}
	inOut := rationaltime.NewRange(rationaltime.New(0, 24), rationaltime.New(48, 24))
	return New(q, cp, cfg, rationaltime.New(0, 24), inOut)
}

func waitForVideo(t *testing.T, p *Player, ti rationaltime.Time) requestqueue.VideoResult {
	t.Helper()
	ch, unsubscribe := p.VideoData.Subscribe()
	defer unsubscribe()
	p.Seek(ti)
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for video data")
		return requestqueue.VideoResult{}
	}
}

func TestMissingFramePolicyBlackLeavesInvalidImage(t *testing.T) {
	p := newClipThenGapPlayer(t, imageio.MissingFrameBlack)
	waitForVideo(t, p, rationaltime.New(0, 24))
	result := waitForVideo(t, p, rationaltime.New(25, 24))
	require.Len(t, result.Layers, 1)
	assert.False(t, result.Layers[0].A.Image.Valid)
}

func TestMissingFramePolicyPreviousReusesLastGoodFrame(t *testing.T) {
	p := newClipThenGapPlayer(t, imageio.MissingFramePrevious)
	waitForVideo(t, p, rationaltime.New(0, 24))
	result := waitForVideo(t, p, rationaltime.New(25, 24))
	require.Len(t, result.Layers, 1)
	assert.True(t, result.Layers[0].A.Image.Valid)
}

func TestMissingFramePolicyScratchedSynthesizesPattern(t *testing.T) {
	p := newClipThenGapPlayer(t, imageio.MissingFrameScratched)
	waitForVideo(t, p, rationaltime.New(0, 24))
	result := waitForVideo(t, p, rationaltime.New(25, 24))
	require.Len(t, result.Layers, 1)
	img := result.Layers[0].A.Image
	assert.True(t, img.Valid)
	assert.Equal(t, "scratched", img.Tags["generator"])
}
