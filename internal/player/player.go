// Package player implements the playback state machine from spec.md
// §4.8: Stopped/Forward/Reverse crossed with Loop/Once/PingPong, driven
// by an external tick(wall_clock_now) call, publishing its state on
// push observables. Grounded on the teacher's playbackmodule/manager.go
// constructor shape (config struct with defaults, Named sub-loggers)
// and internal/events for the observable side.
package player

import (
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/tlplay/internal/cachepolicy"
	"github.com/mantonx/tlplay/internal/events"
	"github.com/mantonx/tlplay/internal/logger"
	"github.com/mantonx/tlplay/internal/reader"
	"github.com/mantonx/tlplay/internal/requestqueue"
	"github.com/mantonx/tlplay/pkg/imageio"
	"github.com/mantonx/tlplay/pkg/rationaltime"
)

// defaultFrameSize is the Scratched policy's fallback frame size when no
// last-good frame has been seen yet on a track to size the pattern from.
var defaultFrameSize = imageio.Size{Width: 1920, Height: 1080, PixelAspect: 1}

// PlaybackState is the Stopped/Forward/Reverse axis of spec.md §4.8's
// state machine.
type PlaybackState int

const (
	Stopped PlaybackState = iota
	Forward
	Reverse
)

// LoopMode is re-exported from cachepolicy, which needs the same
// vocabulary to decide whether its prefetch window wraps.
type LoopMode = cachepolicy.LoopMode

const (
	Loop     = cachepolicy.LoopRepeat
	Once     = cachepolicy.LoopOnce
	PingPong = cachepolicy.LoopPingPong
)

// CacheInfo is published on the cache_info observable: bytes used plus
// the time ranges currently covered.
type CacheInfo = cachepolicy.Info

// Config carries the tunables a Player needs beyond the timeline itself.
type Config struct {
	Rate              float64
	ReadAheadSeconds  float64
	ReadBehindSeconds float64
	AvailableBytes    int64
	StopOnScrub       bool
	ScrubWindowSeconds float64

	// MissingFramePolicy picks what VideoData a gap or failed read
	// publishes (spec.md §7): Black leaves imageio's invalid-image
	// sentinel in place, Previous substitutes the last good frame seen
	// on that track, Scratched substitutes a generated failure pattern.
	MissingFramePolicy imageio.MissingFramePolicy
}

// Player drives one timeline's current_time, issuing video/audio
// requests through a requestqueue.Queue and a cachepolicy.Policy, and
// publishing every piece of state spec.md §4.8 names as a push
// observable. The caller's UI/tick thread owns Tick/Seek/Set*; Player
// itself does no blocking I/O (spec.md §5's "Player runs on the
// caller's UI/tick thread and only touches non-blocking observables").
type Player struct {
	queue  *requestqueue.Queue
	policy *cachepolicy.Policy
	cfg    Config
	log    hclog.Logger

	mu           sync.Mutex
	playback     PlaybackState
	loop         LoopMode
	currentTime  rationaltime.Time
	inOutRange   rationaltime.Range
	externalTime *rationaltime.Time
	lastWall     time.Time

	lastVideoRequest  rationaltime.Time
	lastVideoRequestSet bool
	coveredAudioSecond int64
	coveredAudioSecondSet bool

	// lastGoodImages holds the most recent valid image per track index,
	// keyed by otio.VideoLayerData.TrackIndex. It survives Seek: the
	// Previous missing-frame policy exists precisely to paper over gaps
	// and scrubs with whatever real content was last on screen.
	lastGoodImages map[int]imageio.Image

	CurrentTime *events.Observable[rationaltime.Time]
	Playback    *events.Observable[PlaybackState]
	Loop        *events.Observable[LoopMode]
	InOutRange  *events.Observable[rationaltime.Range]
	VideoData   *events.Observable[requestqueue.VideoResult]
	AudioData   *events.Observable[requestqueue.AudioResult]
	CacheInfo   *events.Observable[CacheInfo]
}

// New constructs a Player at startTime, with inOutRange as its initial
// loop boundary.
func New(queue *requestqueue.Queue, policy *cachepolicy.Policy, cfg Config, startTime rationaltime.Time, inOutRange rationaltime.Range) *Player {
	return &Player{
		queue:       queue,
		policy:      policy,
		cfg:         cfg,
		log:         logger.Named("player"),
		playback:    Stopped,
		loop:        Once,
		currentTime: startTime,
		inOutRange:  inOutRange,
		lastWall:    time.Time{},

		lastGoodImages: make(map[int]imageio.Image),

		CurrentTime: events.NewObservable(startTime),
		Playback:    events.NewObservable(Stopped),
		Loop:        events.NewObservable[LoopMode](Once),
		InOutRange:  events.NewObservable(inOutRange),
		VideoData:   events.NewObservable(requestqueue.VideoResult{}),
		AudioData:   events.NewObservable(requestqueue.AudioResult{}),
		CacheInfo:   events.NewObservable(CacheInfo{}),
	}
}

// SetPlayback changes the play direction/stop state. Changing away from
// Stopped resets the tick baseline so the next Tick doesn't apply a
// stale elapsed-time jump.
func (p *Player) SetPlayback(s PlaybackState) {
	p.mu.Lock()
	p.playback = s
	p.lastWall = time.Time{}
	p.mu.Unlock()
	p.Playback.Next(s)
}

// SetLoop changes the loop mode.
func (p *Player) SetLoop(m LoopMode) {
	p.mu.Lock()
	p.loop = m
	p.mu.Unlock()
	p.Loop.Next(m)
}

// SetInOutRange changes the active in/out range used for loop wrapping
// and Once/PingPong boundaries.
func (p *Player) SetInOutRange(r rationaltime.Range) {
	p.mu.Lock()
	p.inOutRange = r
	p.mu.Unlock()
	p.InOutRange.Next(r)
}

// SetExternalTime slaves this player's current_time to an externally
// driven clock (used to lock two players together); pass nil to release
// it back to internal tick-driven advance.
func (p *Player) SetExternalTime(t *rationaltime.Time) {
	p.mu.Lock()
	p.externalTime = t
	p.mu.Unlock()
}

// Seek jumps current_time immediately: spec.md §4.8's scrubbing
// contract. If Config.StopOnScrub is set, playback stops. Any in-flight
// predictive read outside a small window around the new time is
// cancelled.
func (p *Player) Seek(t rationaltime.Time) {
	p.mu.Lock()
	p.currentTime = t
	p.lastVideoRequestSet = false
	p.coveredAudioSecondSet = false
	if p.cfg.StopOnScrub {
		p.playback = Stopped
	}
	stopped := p.playback
	p.mu.Unlock()

	p.CurrentTime.Next(t)
	if stopped == Stopped {
		p.Playback.Next(Stopped)
	}

	window := rationaltime.NewRange(
		rationaltime.New(t.Value-p.cfg.ScrubWindowSeconds*t.Rate, t.Rate),
		rationaltime.New(2*p.cfg.ScrubWindowSeconds*t.Rate, t.Rate),
	)
	p.queue.CancelOutsideWindow(window)
	p.issueRequests(t)
}

// Tick advances current_time by the elapsed wall-clock time since the
// previous Tick (or does nothing if Stopped), applies the active loop
// mode at the in/out boundary, publishes every observable spec.md §4.8
// names, and issues the video/audio requests and cache-policy advance
// the new time implies.
func (p *Player) Tick(wallNow time.Time) {
	p.mu.Lock()
	playback := p.playback
	if playback == Stopped {
		p.mu.Unlock()
		return
	}
	if p.lastWall.IsZero() {
		p.lastWall = wallNow
		p.mu.Unlock()
		return
	}

	elapsed := wallNow.Sub(p.lastWall).Seconds()
	p.lastWall = wallNow

	deltaFrames := elapsed * p.cfg.Rate
	if playback == Reverse {
		deltaFrames = -deltaFrames
	}
	desired := rationaltime.New(p.currentTime.Value+deltaFrames, p.currentTime.Rate)

	newTime, newPlayback := applyLoopMode(desired, p.inOutRange, p.loop, playback)
	p.currentTime = newTime
	p.playback = newPlayback

	external := p.externalTime
	if external != nil {
		p.currentTime = *external
	}
	out := p.currentTime
	outPlayback := p.playback
	p.mu.Unlock()

	p.CurrentTime.Next(out)
	if outPlayback != playback {
		p.Playback.Next(outPlayback)
	}

	p.issueRequests(out)
}

// applyLoopMode implements spec.md §4.8's per-loop-mode boundary
// behavior at the in/out range.
func applyLoopMode(desired rationaltime.Time, inOut rationaltime.Range, loop LoopMode, playback PlaybackState) (rationaltime.Time, PlaybackState) {
	start := inOut.Start
	end := inOut.EndTimeExclusive()
	span := end.Sub(start)

	switch loop {
	case Once:
		if desired.Compare(end) >= 0 {
			return inOut.EndTimeInclusive(), Stopped
		}
		if desired.Compare(start) < 0 {
			return start, Stopped
		}
		return desired, playback

	case PingPong:
		if desired.Compare(end) >= 0 {
			overshoot := desired.Sub(end)
			reflected := end.Sub(overshoot)
			return reflected, Reverse
		}
		if desired.Compare(start) < 0 {
			overshoot := start.Sub(desired)
			reflected := start.Add(overshoot)
			return reflected, Forward
		}
		return desired, playback

	default: // Loop
		if span.Value <= 0 {
			return start, playback
		}
		v := desired.Value
		spanVal := span.RescaledTo(desired.Rate).Value
		startVal := start.RescaledTo(desired.Rate).Value
		offset := v - startVal
		wrapped := mod(offset, spanVal) + startVal
		return rationaltime.New(wrapped, desired.Rate), playback
	}
}

func mod(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	m := a - b*float64(int64(a/b))
	if m < 0 {
		m += b
	}
	return m
}

// issueRequests issues a video request for t if none is outstanding for
// it, advances the cache policy, and issues an audio request for
// floor(t.to_seconds()) if it isn't already covered.
func (p *Player) issueRequests(t rationaltime.Time) {
	p.mu.Lock()
	needVideo := !p.lastVideoRequestSet || !p.lastVideoRequest.StrictlyEqual(t)
	if needVideo {
		p.lastVideoRequest = t
		p.lastVideoRequestSet = true
	}
	second := int64(t.ToSeconds())
	needAudio := !p.coveredAudioSecondSet || p.coveredAudioSecond != second
	if needAudio {
		p.coveredAudioSecond = second
		p.coveredAudioSecondSet = true
	}
	playback := p.playback
	loop := p.loop
	inOut := p.inOutRange
	cfg := p.cfg
	p.mu.Unlock()

	if needVideo {
		_, future := p.queue.SubmitVideo(t)
		go func() {
			result, err := future.Wait()
			if err == nil {
				p.VideoData.Next(p.applyMissingFramePolicy(result))
			}
		}()
	}
	if needAudio {
		rng := rationaltime.NewRange(rationaltime.New(float64(second), 1), rationaltime.New(1, 1))
		_, future := p.queue.SubmitAudio(rng)
		go func() {
			result, err := future.Wait()
			if err == nil {
				p.AudioData.Next(result)
			}
		}()
	}

	direction := cachepolicy.Forward
	if playback == Reverse {
		direction = cachepolicy.Reverse
	}
	info := p.policy.Advance(cachepolicy.Params{
		CurrentTime:       t,
		Direction:         direction,
		Rate:              cfg.Rate,
		ReadAheadSeconds:  cfg.ReadAheadSeconds,
		ReadBehindSeconds: cfg.ReadBehindSeconds,
		AvailableBytes:    cfg.AvailableBytes,
		InOutRange:        inOut,
		Loop:              loop,
	})
	p.CacheInfo.Next(info)
}

// applyMissingFramePolicy substitutes a replacement image into every
// invalid layer of result per Config.MissingFramePolicy, and records every
// valid image it sees as that track's new last-good frame.
func (p *Player) applyMissingFramePolicy(result requestqueue.VideoResult) requestqueue.VideoResult {
	for i := range result.Layers {
		layer := &result.Layers[i]
		p.substituteMissingImage(&layer.A, layer.TrackIndex)
		if layer.B != nil {
			p.substituteMissingImage(layer.B, layer.TrackIndex)
		}
	}
	return result
}

// substituteMissingImage leaves vd untouched when it already holds a
// valid image (besides recording it as the track's last-good frame).
// Otherwise it maps the policy to a replacement: Black keeps the
// invalid-image sentinel, Previous reuses the last good frame seen on
// trackIndex if any, Scratched synthesizes a failure pattern sized off
// that last-good frame (or a default size if none has been seen yet).
func (p *Player) substituteMissingImage(vd *imageio.VideoData, trackIndex int) {
	if vd.Image.Valid {
		p.mu.Lock()
		p.lastGoodImages[trackIndex] = vd.Image
		p.mu.Unlock()
		return
	}

	switch p.cfg.MissingFramePolicy {
	case imageio.MissingFramePrevious:
		p.mu.Lock()
		prev, ok := p.lastGoodImages[trackIndex]
		p.mu.Unlock()
		if ok {
			vd.Image = prev
		}

	case imageio.MissingFrameScratched:
		size := defaultFrameSize
		p.mu.Lock()
		if prev, ok := p.lastGoodImages[trackIndex]; ok && prev.Info.Size.Width > 0 {
			size = prev.Info.Size
		}
		p.mu.Unlock()
		vd.Image = reader.ScratchedImage(size)
	}
}
