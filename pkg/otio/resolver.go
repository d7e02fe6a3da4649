package otio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mantonx/tlplay/pkg/imageio"
	"github.com/mantonx/tlplay/pkg/rationaltime"
)

// CompositionError reports a composition that cannot be resolved: a
// self-referential nested timeline, an out-of-range track index, or a
// track kind mismatch.
type CompositionError struct {
	Reason string
}

func (e *CompositionError) Error() string {
	return fmt.Sprintf("otio: composition error: %s", e.Reason)
}

// maxResolveDepth bounds recursion into nested (stack) clips. A
// self-referential timeline (a clip nested inside itself, directly or
// transitively) fails with CompositionError once this depth is exceeded
// rather than recursing until the stack overflows.
const maxResolveDepth = 32

// VideoLayerData is what the resolver hands back for one video track at
// one track time: either a single resolved clip read, an invalid-image
// gap, or both sides of an in-progress transition plus its progress value.
type VideoLayerData struct {
	Time            rationaltime.Time
	TrackIndex      int
	A               imageio.VideoData
	B               *imageio.VideoData
	InTransition    bool
	TransitionValue float64 // 0..1 progress through the transition
	TransitionKind  TransitionKind
}

// AudioLayerData is what the resolver hands back for one audio track
// covering a track time range, tagged for downstream crossfade handling.
type AudioLayerData struct {
	Range         rationaltime.Range
	TrackIndex    int
	Data          imageio.AudioData
	InTransition  bool
	OutTransition bool
}

// ReadCacheEntry is one resolved reader binding plus its last-touch time,
// used by ReadCache to decide what to evict.
type ReadCacheEntry struct {
	Reader     imageio.ReadPlugin
	LastAccess time.Time
}

// ReadCache is the per-timeline reader cache described in spec.md §4.6:
// keyed by clip target URL + extension, it creates a reader on first
// touch and reuses it thereafter. It does not own reader goroutines
// itself (imageio.ReadPlugin calls are synchronous from the resolver's
// point of view; asynchrony is layered on top by internal/requestqueue).
type ReadCache struct {
	mu      sync.Mutex
	entries map[string]*ReadCacheEntry
}

// NewReadCache constructs an empty ReadCache.
func NewReadCache() *ReadCache {
	return &ReadCache{entries: make(map[string]*ReadCacheEntry)}
}

// Get returns the cached reader for key, constructing and storing one via
// registry.ReaderFor(extension) on first touch.
func (c *ReadCache) Get(registry *imageio.Registry, key, extension string) (imageio.ReadPlugin, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.LastAccess = time.Now()
		return e.Reader, nil
	}

	reader, ok := registry.ReaderFor(extension)
	if !ok {
		return nil, &CompositionError{Reason: fmt.Sprintf("no reader registered for extension %q", extension)}
	}
	c.entries[key] = &ReadCacheEntry{Reader: reader, LastAccess: time.Now()}
	return reader, nil
}

// Evict drops the cached reader for key, if present. Callers must ensure
// any futures it has outstanding have drained or been cancelled first.
func (c *ReadCache) Evict(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Keys returns the set of cached reader keys.
func (c *ReadCache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.entries))
	for k := range c.entries {
		out = append(out, k)
	}
	return out
}

// Resolver maps track time to reads against the I/O plugin registry,
// consulting a per-timeline ReadCache for reader reuse.
type Resolver struct {
	Registry *imageio.Registry
	Reads    *ReadCache
}

// NewResolver constructs a Resolver backed by registry, with a fresh
// per-timeline ReadCache.
func NewResolver(registry *imageio.Registry) *Resolver {
	return &Resolver{Registry: registry, Reads: NewReadCache()}
}

// toVideoMediaTime computes the media-local time for trackTime inside an
// item whose range in its parent track is parentRange, trimmed to
// trimmedRange in the media's own coordinates at mediaRate. The result is
// clamped to trimmedRange's end-exclusive bound.
func toVideoMediaTime(trackTime rationaltime.Time, parentRange, trimmedRange rationaltime.Range, mediaRate float64) rationaltime.Time {
	offset := trackTime.Sub(parentRange.Start)
	mediaTime := trimmedRange.Start.Add(offset).RescaledTo(mediaRate)
	end := trimmedRange.EndTimeExclusive().RescaledTo(mediaRate)
	if mediaTime.Compare(end) >= 0 {
		mediaTime = rationaltime.New(end.Value-1, end.Rate)
	}
	if mediaTime.Compare(trimmedRange.Start.RescaledTo(mediaRate)) < 0 {
		mediaTime = trimmedRange.Start.RescaledTo(mediaRate)
	}
	return mediaTime
}

// toAudioMediaTime maps a track-time range to the equivalent media-time
// range at sampleRate, clamped so it never extends past trimmedRange.
func toAudioMediaTime(trackRange rationaltime.Range, parentRange, trimmedRange rationaltime.Range, sampleRate float64) rationaltime.Range {
	offset := trackRange.Start.Sub(parentRange.Start)
	mediaStart := trimmedRange.Start.Add(offset).RescaledTo(sampleRate)
	mediaDuration := trackRange.Duration.RescaledTo(sampleRate)
	r := rationaltime.NewRange(mediaStart, mediaDuration)
	return trimmedRange.ClampedRange(r)
}

// readerKeyFor builds the ReadCache key for a clip's source.
func readerKeyFor(clip *Clip) string {
	return clip.Source.Path.Get()
}

// ResolveVideo resolves trackTime against the video track at trackIndex.
// Out-of-range times and gaps return an invalid-image VideoData rather
// than an error, per spec.md §4.6's edge cases.
func (r *Resolver) ResolveVideo(ctx context.Context, tl *Timeline, trackIndex int, trackTime rationaltime.Time) (VideoLayerData, error) {
	return r.resolveVideoDepth(ctx, tl, trackIndex, trackTime, 0)
}

func (r *Resolver) resolveVideoDepth(ctx context.Context, tl *Timeline, trackIndex int, trackTime rationaltime.Time, depth int) (VideoLayerData, error) {
	if depth > maxResolveDepth {
		return VideoLayerData{}, &CompositionError{Reason: "max nested-timeline recursion depth exceeded (self-referential composition?)"}
	}
	if trackIndex < 0 || trackIndex >= len(tl.Tracks) {
		return VideoLayerData{}, &CompositionError{Reason: "track index out of range"}
	}
	track := &tl.Tracks[trackIndex]
	if track.Kind != TrackVideo {
		return VideoLayerData{}, &CompositionError{Reason: "track is not a video track"}
	}

	result := VideoLayerData{Time: trackTime, TrackIndex: trackIndex}

	idx, ok := track.IndexAtTime(trackTime)
	if !ok {
		// Past end, before start, or landed exactly on the exclusive end
		// boundary: resolver returns an invalid-image gap rather than error.
		result.A = imageio.VideoData{Time: trackTime, Image: imageio.InvalidImage()}
		return result, nil
	}
	item := track.Items[idx]

	switch item.Kind {
	case ItemGap:
		result.A = imageio.VideoData{Time: trackTime, Image: imageio.InvalidImage()}
		return result, nil

	case ItemClip:
		vd, err := r.readClipVideo(ctx, item, trackTime, depth)
		if err != nil {
			return VideoLayerData{}, err
		}
		result.A = vd
		return result, nil

	case ItemTransition:
		prevItem, hasPrev := track.ItemAt(idx - 1)
		nextItem, hasNext := track.ItemAt(idx + 1)
		if !hasPrev || !hasNext || prevItem.Kind != ItemClip || nextItem.Kind != ItemClip {
			return VideoLayerData{}, &CompositionError{Reason: "transition must sit between two clips"}
		}

		progress := 0.0
		if item.RangeInParent.Duration.ToSeconds() > 0 {
			elapsed := trackTime.Sub(item.RangeInParent.Start)
			progress = elapsed.ToSeconds() / item.RangeInParent.Duration.ToSeconds()
		}
		if progress < 0 {
			progress = 0
		}
		if progress > 1 {
			progress = 1
		}

		aData, err := r.readClipVideo(ctx, prevItem, trackTime, depth)
		if err != nil {
			return VideoLayerData{}, err
		}
		bData, err := r.readClipVideo(ctx, nextItem, trackTime, depth)
		if err != nil {
			return VideoLayerData{}, err
		}

		result.A = aData
		result.B = &bData
		result.InTransition = true
		result.TransitionValue = progress
		result.TransitionKind = item.Transition.Kind
		return result, nil

	default:
		return VideoLayerData{}, &CompositionError{Reason: "unknown item kind"}
	}
}

func (r *Resolver) readClipVideo(ctx context.Context, item Item, trackTime rationaltime.Time, depth int) (imageio.VideoData, error) {
	clip := item.Clip
	if clip == nil {
		return imageio.VideoData{}, &CompositionError{Reason: "clip item missing clip data"}
	}

	if clip.Nested != nil {
		// Recurse into the embedded timeline; its own track 0 stands in
		// for the clip's video content at the equivalent nested time.
		mediaTime := toVideoMediaTime(trackTime, item.RangeInParent, clip.TrimmedRange, clip.TrimmedRange.Start.Rate)
		nested, err := r.resolveVideoDepth(ctx, clip.Nested, 0, mediaTime, depth+1)
		if err != nil {
			return imageio.VideoData{}, err
		}
		return nested.A, nil
	}

	mediaRate := clip.TrimmedRange.Start.Rate
	mediaTime := toVideoMediaTime(trackTime, item.RangeInParent, clip.TrimmedRange, mediaRate)

	reader, err := r.Reads.Get(r.Registry, readerKeyFor(clip), clip.Source.Path.Extension)
	if err != nil {
		return imageio.VideoData{Time: trackTime, Image: imageio.InvalidImage()}, nil
	}

	vd, err := reader.ReadVideo(ctx, clip.Source, mediaTime, 0)
	if err != nil {
		return imageio.VideoData{Time: trackTime, Image: imageio.InvalidImage()}, nil
	}
	vd.Time = trackTime
	return vd, nil
}

// ResolveAudio resolves a one-second-ish track time range against the
// audio track at trackIndex, returning zero or more decoded layers.
func (r *Resolver) ResolveAudio(ctx context.Context, tl *Timeline, trackIndex int, trackRange rationaltime.Range) (AudioLayerData, error) {
	if trackIndex < 0 || trackIndex >= len(tl.Tracks) {
		return AudioLayerData{}, &CompositionError{Reason: "track index out of range"}
	}
	track := &tl.Tracks[trackIndex]
	if track.Kind != TrackAudio {
		return AudioLayerData{}, &CompositionError{Reason: "track is not an audio track"}
	}

	result := AudioLayerData{Range: trackRange, TrackIndex: trackIndex}

	if !tl.AudioAudible(trackIndex) {
		return result, nil
	}

	idx, ok := track.IndexAtTime(trackRange.Start)
	if !ok {
		return result, nil
	}
	item := track.Items[idx]
	if item.Kind != ItemClip || item.Clip == nil {
		return result, nil
	}
	clip := item.Clip

	sampleRate := float64(48000)
	mediaRange := toAudioMediaTime(trackRange, item.RangeInParent, clip.TrimmedRange, sampleRate)

	reader, err := r.Reads.Get(r.Registry, readerKeyFor(clip), clip.Source.Path.Extension)
	if err != nil {
		return result, nil
	}

	ad, err := reader.ReadAudio(ctx, clip.Source, mediaRange.Start.ToSeconds())
	if err != nil {
		return result, nil
	}
	result.Data = ad

	if idx > 0 {
		if prev, ok := track.ItemAt(idx - 1); ok && prev.Kind == ItemTransition {
			result.InTransition = prev.RangeInParent.Intersects(trackRange)
		}
	}
	if nxt, ok := track.ItemAt(idx + 1); ok && nxt.Kind == ItemTransition {
		result.OutTransition = nxt.RangeInParent.Intersects(trackRange)
	}

	return result, nil
}
