// Package otio models a timeline composition: tracks of clips, gaps, and
// transitions, plus the resolver that maps a track time to the VideoData/
// AudioData reads it implies. The composition graph is a value-owned tree
// indexed by slice position rather than intrusive pointers, so a
// maliciously-crafted (or just buggy) JSON source cannot produce a
// reference cycle the way a pointer-linked graph could.
package otio

import (
	"github.com/mantonx/tlplay/pkg/mediapath"
	"github.com/mantonx/tlplay/pkg/rationaltime"
)

// TrackKind distinguishes video from audio tracks. A Track carries only
// one kind for its whole lifetime.
type TrackKind int

const (
	TrackVideo TrackKind = iota
	TrackAudio
)

// ItemKind distinguishes the three things that can occupy a track slot.
type ItemKind int

const (
	ItemClip ItemKind = iota
	ItemGap
	ItemTransition
)

// TransitionKind names the compositing behavior a Transition implies;
// the resolver only records which one is active, compositing the pixels
// is a renderer concern.
type TransitionKind int

const (
	TransitionDissolve TransitionKind = iota
	TransitionSMPTEDissolve
	TransitionWipe
)

// Clip references media: a file/URL/memory Source with a trimmed range
// in that media's own time coordinates. Nested is non-nil when this clip
// embeds another full Timeline (a "stack" clip) rather than a decodable
// media file; the resolver recurses into it with a depth limit.
type Clip struct {
	Source       mediapath.Source
	TrimmedRange rationaltime.Range
	Nested       *Timeline
}

// Transition overlaps the end of one item and the start of the next.
// InOffset/OutOffset record how far the transition eats into the
// previous/next item respectively; both must be clamped by the builder
// so the overlap never exceeds either neighboring item's own duration.
type Transition struct {
	Kind      TransitionKind
	Name      string
	InOffset  rationaltime.Time
	OutOffset rationaltime.Time
}

// Item is one slot in a Track: a Clip, a Gap, or a Transition. RangeInParent
// is always in the owning Track's time coordinates.
type Item struct {
	Kind          ItemKind
	Name          string
	RangeInParent rationaltime.Range
	Clip          *Clip       // set iff Kind == ItemClip
	Transition    *Transition // set iff Kind == ItemTransition
}

// Track is an ordered sequence of Items, all of the same kind. Muted and
// Soloed apply only to audio tracks: a muted track contributes silence,
// and when any audio track in the timeline is soloed, every non-soloed
// audio track is treated as muted for the duration of playback.
type Track struct {
	Kind   TrackKind
	Name   string
	Items  []Item
	Muted  bool
	Soloed bool
}

// ItemAt returns the item occupying index i, or false if out of range.
func (t *Track) ItemAt(i int) (Item, bool) {
	if i < 0 || i >= len(t.Items) {
		return Item{}, false
	}
	return t.Items[i], true
}

// IndexAtTime returns the index of the item whose RangeInParent contains
// trackTime, preferring a Transition over its flanking Clips when the
// time falls inside the transition's own overlap window (transitions are
// stored as their own item entry spanning that overlap).
func (t *Track) IndexAtTime(trackTime rationaltime.Time) (int, bool) {
	for i, item := range t.Items {
		if item.Kind == ItemTransition && item.RangeInParent.Contains(trackTime) {
			return i, true
		}
	}
	for i, item := range t.Items {
		if item.Kind != ItemTransition && item.RangeInParent.Contains(trackTime) {
			return i, true
		}
	}
	return 0, false
}

// Timeline is a composition of tracks sharing a global start time. A
// Revision counter is bumped by Touch. No cache here (the resolver's read
// cache, the playback cache policy, the request queue) is keyed on it or
// consults it.
type Timeline struct {
	Tracks          []Track
	GlobalStartTime rationaltime.Time
	Revision        uint64
}

// Touch bumps the revision counter. It does not invalidate or notify any
// cache.
func (tl *Timeline) Touch() {
	tl.Revision++
}

// TimeRange returns the timeline's own time range: start at
// GlobalStartTime, duration the maximum end time among all tracks.
func (tl *Timeline) TimeRange() rationaltime.Range {
	rate := tl.GlobalStartTime.Rate
	if rate <= 0 {
		rate = 24
	}
	maxEnd := tl.GlobalStartTime
	for _, track := range tl.Tracks {
		if len(track.Items) == 0 {
			continue
		}
		last := track.Items[len(track.Items)-1]
		end := last.RangeInParent.EndTimeExclusive().RescaledTo(rate)
		if end.Compare(maxEnd) > 0 {
			maxEnd = end
		}
	}
	duration := maxEnd.Sub(tl.GlobalStartTime)
	return rationaltime.NewRange(tl.GlobalStartTime, duration)
}

// VideoTracks returns the indices of tracks of kind TrackVideo, in order.
func (tl *Timeline) VideoTracks() []int {
	var out []int
	for i, t := range tl.Tracks {
		if t.Kind == TrackVideo {
			out = append(out, i)
		}
	}
	return out
}

// AudioTracks returns the indices of tracks of kind TrackAudio, in order.
func (tl *Timeline) AudioTracks() []int {
	var out []int
	for i, t := range tl.Tracks {
		if t.Kind == TrackAudio {
			out = append(out, i)
		}
	}
	return out
}

// AnyAudioSoloed reports whether at least one audio track has Soloed set,
// which silences every other audio track for the resolver's audio-layer
// assembly (see internal/requestqueue).
func (tl *Timeline) AnyAudioSoloed() bool {
	for _, t := range tl.Tracks {
		if t.Kind == TrackAudio && t.Soloed {
			return true
		}
	}
	return false
}

// AudioAudible reports whether trackIndex should be heard given the
// timeline's current mute/solo state.
func (tl *Timeline) AudioAudible(trackIndex int) bool {
	if trackIndex < 0 || trackIndex >= len(tl.Tracks) {
		return false
	}
	t := tl.Tracks[trackIndex]
	if t.Muted {
		return false
	}
	if tl.AnyAudioSoloed() {
		return t.Soloed
	}
	return true
}
