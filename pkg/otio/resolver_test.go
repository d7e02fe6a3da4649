package otio

import (
	"context"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mantonx/tlplay/pkg/imageio"
	"github.com/mantonx/tlplay/pkg/mediapath"
	"github.com/mantonx/tlplay/pkg/rationaltime"
)

type stubReader struct{ ext string }

func (s *stubReader) CanRead(extension string) bool { return extension == s.ext }
func (s *stubReader) Info(ctx context.Context, src mediapath.Source) (imageio.IOInfo, error) {
	return imageio.IOInfo{}, nil
}
func (s *stubReader) ReadVideo(ctx context.Context, src mediapath.Source, t rationaltime.Time, layer int) (imageio.VideoData, error) {
	tags := map[string]string{"sourceFile": src.Path.Get()}
	return imageio.VideoData{
		Time:  t,
		Layer: layer,
		Image: imageio.Image{Valid: true, Tags: tags},
		Tags:  tags,
	}, nil
}
func (s *stubReader) ReadAudio(ctx context.Context, src mediapath.Source, startSeconds float64) (imageio.AudioData, error) {
	return imageio.AudioData{Seconds: startSeconds}, nil
}
func (s *stubReader) CancelRequests() {}

type stubPlugin struct {
	info imageio.PluginInfo
	rp   imageio.ReadPlugin
}

func (p *stubPlugin) Initialize(ctx *imageio.PluginContext) error { return nil }
func (p *stubPlugin) Info() (*imageio.PluginInfo, error)          { return &p.info, nil }
func (p *stubPlugin) Health() error                               { return nil }
func (p *stubPlugin) ReadPlugin() imageio.ReadPlugin               { return p.rp }
func (p *stubPlugin) WritePlugin() imageio.WritePlugin             { return nil }

func newTestRegistry(t *testing.T) *imageio.Registry {
	t.Helper()
	reg := imageio.NewRegistry(hclog.NewNullLogger())
	require.NoError(t, reg.Register(&stubPlugin{
		info: imageio.PluginInfo{ID: "exr", Extensions: []string{"exr"}},
		rp:   &stubReader{ext: "exr"},
	}))
	return reg
}

func clipItem(name string, parentStart, parentDur int64, rate float64, path string) Item {
	src, _ := mediapath.Parse(path)
	return Item{
		Kind: ItemClip,
		Name: name,
		RangeInParent: rationaltime.NewRange(
			rationaltime.New(float64(parentStart), rate),
			rationaltime.New(float64(parentDur), rate),
		),
		Clip: &Clip{
			Source: mediapath.NewFileSource(src),
			TrimmedRange: rationaltime.NewRange(
				rationaltime.New(0, rate),
				rationaltime.New(float64(parentDur), rate),
			),
		},
	}
}

func TestResolveVideoSingleClip(t *testing.T) {
	reg := newTestRegistry(t)
	resolver := NewResolver(reg)

	tl := &Timeline{
		Tracks: []Track{
			{
				Kind: TrackVideo,
				Items: []Item{
					clipItem("clip", 0, 5, 24, "/renders/shot.0001.exr"),
				},
			},
		},
	}

	for i := int64(0); i < 5; i++ {
		vld, err := resolver.ResolveVideo(context.Background(), tl, 0, rationaltime.New(float64(i), 24))
		require.NoError(t, err)
		assert.True(t, vld.A.Image.Valid)
		assert.False(t, vld.InTransition)
	}
}

func TestResolveVideoGapReturnsInvalidImage(t *testing.T) {
	reg := newTestRegistry(t)
	resolver := NewResolver(reg)

	tl := &Timeline{
		Tracks: []Track{
			{
				Kind: TrackVideo,
				Items: []Item{
					{
						Kind: ItemGap,
						RangeInParent: rationaltime.NewRange(
							rationaltime.New(0, 24), rationaltime.New(5, 24),
						),
					},
				},
			},
		},
	}

	vld, err := resolver.ResolveVideo(context.Background(), tl, 0, rationaltime.New(2, 24))
	require.NoError(t, err)
	assert.False(t, vld.A.Image.Valid)
}

func TestResolveVideoOutOfRangeReturnsInvalidImageNotError(t *testing.T) {
	reg := newTestRegistry(t)
	resolver := NewResolver(reg)

	tl := &Timeline{
		Tracks: []Track{
			{Kind: TrackVideo, Items: []Item{clipItem("clip", 0, 5, 24, "/a/shot.0001.exr")}},
		},
	}

	vld, err := resolver.ResolveVideo(context.Background(), tl, 0, rationaltime.New(100, 24))
	require.NoError(t, err)
	assert.False(t, vld.A.Image.Valid)
}

// TestResolveVideoTransitionMidpoint implements the two-clip dissolve
// scenario: clips A and B joined by a 5-frame Dissolve item occupying
// frames 8-13 between them. At the transition's midpoint both sides
// resolve and transition_value == 0.5.
func TestResolveVideoTransitionMidpoint(t *testing.T) {
	reg := newTestRegistry(t)
	resolver := NewResolver(reg)

	rate := 24.0
	a := clipItem("A", 0, 8, rate, "/a/A.0001.exr")
	transition := Item{
		Kind: ItemTransition,
		RangeInParent: rationaltime.NewRange(
			rationaltime.New(8, rate), rationaltime.New(5, rate),
		),
		Transition: &Transition{
			Kind:      TransitionDissolve,
			InOffset:  rationaltime.New(2, rate),
			OutOffset: rationaltime.New(3, rate),
		},
	}
	b := clipItem("B", 13, 8, rate, "/b/B.0001.exr")

	tl := &Timeline{Tracks: []Track{{Kind: TrackVideo, Items: []Item{a, transition, b}}}}

	midpoint := rationaltime.New(8+2.5, rate)
	vld, err := resolver.ResolveVideo(context.Background(), tl, 0, midpoint)
	require.NoError(t, err)

	require.True(t, vld.InTransition)
	require.NotNil(t, vld.B)
	assert.InDelta(t, 0.5, vld.TransitionValue, 1e-9)
	assert.Equal(t, TransitionDissolve, vld.TransitionKind)
	assert.True(t, vld.A.Image.Valid)
	assert.True(t, vld.B.Image.Valid)
}

func TestResolveVideoNestedTimelineDepthLimit(t *testing.T) {
	reg := newTestRegistry(t)
	resolver := NewResolver(reg)

	rate := 24.0
	inner := &Timeline{Tracks: []Track{{Kind: TrackVideo, Items: []Item{clipItem("inner", 0, 5, rate, "/a/i.0001.exr")}}}}

	outerClip := clipItem("outer", 0, 5, rate, "/a/o.0001.exr")
	outerClip.Clip.Nested = inner
	outer := &Timeline{Tracks: []Track{{Kind: TrackVideo, Items: []Item{outerClip}}}}

	// Make the inner timeline reference the outer one, forming a cycle.
	inner.Tracks[0].Items[0].Clip.Nested = outer

	_, err := resolver.ResolveVideo(context.Background(), outer, 0, rationaltime.New(1, rate))
	require.Error(t, err)
	var compErr *CompositionError
	assert.ErrorAs(t, err, &compErr)
}

func TestResolveVideoBadTrackIndexIsCompositionError(t *testing.T) {
	reg := newTestRegistry(t)
	resolver := NewResolver(reg)
	tl := &Timeline{Tracks: []Track{{Kind: TrackVideo}}}

	_, err := resolver.ResolveVideo(context.Background(), tl, 5, rationaltime.New(0, 24))
	var compErr *CompositionError
	assert.ErrorAs(t, err, &compErr)
}

func TestTimelineTimeRangeUnion(t *testing.T) {
	rate := 24.0
	tl := &Timeline{
		GlobalStartTime: rationaltime.New(0, rate),
		Tracks: []Track{
			{Kind: TrackVideo, Items: []Item{clipItem("a", 0, 5, rate, "/a/a.0001.exr")}},
			{Kind: TrackVideo, Items: []Item{clipItem("b", 0, 10, rate, "/a/b.0001.exr")}},
		},
	}
	tr := tl.TimeRange()
	assert.Equal(t, 10.0, tr.Duration.ToSeconds()*rate)
}

func TestTouchIncrementsRevision(t *testing.T) {
	tl := &Timeline{}
	assert.Equal(t, uint64(0), tl.Revision)
	tl.Touch()
	assert.Equal(t, uint64(1), tl.Revision)
}
