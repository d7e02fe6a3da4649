package requestqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mantonx/tlplay/internal/config"
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
func (instantPlugin) Health() error                     { return nil }
func (instantPlugin) ReadPlugin() imageio.ReadPlugin     { return instantReader{} }
func (instantPlugin) WritePlugin() imageio.WritePlugin   { return nil }

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
			{Kind: otio.TrackAudio, Items: []otio.Item{clip}},
		},
	}
}

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	reg := imageio.NewRegistry(nil)
	require.NoError(t, reg.Register(instantPlugin{}))
	resolver := otio.NewResolver(reg)
	perf := config.PerformanceConfig{VideoRequestCount: 4, AudioRequestCount: 4}
	q := New(resolver, testTimeline(24), perf)
	q.Start()
	t.Cleanup(q.Stop)
	return q
}

func TestQueueResolvesVideoRequest(t *testing.T) {
	q := newTestQueue(t)

	_, future := q.SubmitVideo(rationaltime.New(10, 24))

	select {
	case <-future.Done():
	case <-time.After(time.Second):
		t.Fatal("video request did not resolve in time")
	}

	result, err := future.Wait()
	require.NoError(t, err)
	require.Len(t, result.Layers, 1)
	assert.True(t, result.Layers[0].A.Image.Valid)
}

func TestQueueResolvesAudioRequest(t *testing.T) {
	q := newTestQueue(t)

	rng := rationaltime.NewRange(rationaltime.New(0, 24), rationaltime.New(24, 24))
	_, future := q.SubmitAudio(rng)

	select {
	case <-future.Done():
	case <-time.After(time.Second):
		t.Fatal("audio request did not resolve in time")
	}

	result, err := future.Wait()
	require.NoError(t, err)
	require.Len(t, result.Layers, 1)
}

func TestQueueCancelBreaksPendingPromise(t *testing.T) {
	reg := imageio.NewRegistry(nil)
	require.NoError(t, reg.Register(instantPlugin{}))
	resolver := otio.NewResolver(reg)
	perf := config.PerformanceConfig{VideoRequestCount: 4, AudioRequestCount: 4}
	// Coordinator goroutine deliberately not started: Cancel must be able
	// to break a promise that is still sitting in the pending FIFO.
	q := New(resolver, testTimeline(24), perf)

	id, future := q.SubmitVideo(rationaltime.New(5, 24))
	q.Cancel(id)

	_, err := future.Wait()
	require.Error(t, err)
}

func TestQueueStopBreaksOutstandingPromises(t *testing.T) {
	q := newTestQueue(t)
	_, future := q.SubmitVideo(rationaltime.New(5, 24))
	q.Stop()

	select {
	case <-future.Done():
	case <-time.After(time.Second):
		t.Fatal("promise not resolved after Stop")
	}
}
