// Package cachepolicy implements the playback cache policy from
// spec.md §4.9: given current_time/direction/rate and read-ahead/
// read-behind windows, it submits read requests for frames the window
// needs, evicts cache entries outside the window under LRU, and cancels
// in-flight requests whose target time left the window. Grounded on the
// teacher's segment_prefetcher.go LRU-plus-window shape, retargeted from
// HLS segment bytes to decoded video/audio frames.
package cachepolicy

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/tlplay/internal/iocache"
	"github.com/mantonx/tlplay/internal/logger"
	"github.com/mantonx/tlplay/internal/requestqueue"
	"github.com/mantonx/tlplay/pkg/rationaltime"
)

// Direction is the playback direction the policy computes its window
// against; Reverse swaps which side of current_time gets the larger
// margin.
type Direction int

const (
	Forward Direction = iota
	Reverse
)

// LoopMode mirrors the Player's loop mode (spec.md §4.8); the cache
// policy needs it to decide whether the window wraps at the in/out
// range boundary.
type LoopMode int

const (
	LoopRepeat LoopMode = iota
	LoopOnce
	LoopPingPong
)

// Info reports the cache's current byte usage and the set of time
// ranges it covers, published on the Player's cache_info observable.
type Info struct {
	BytesUsed int64
	Coverage  []rationaltime.Range
}

// Params bundles one Advance call's inputs (spec.md §4.9's named
// inputs).
type Params struct {
	CurrentTime       rationaltime.Time
	Direction         Direction
	Rate              float64
	ReadAheadSeconds  float64
	ReadBehindSeconds float64
	AvailableBytes    int64
	InOutRange        rationaltime.Range
	Loop              LoopMode
}

type issuedRequest struct {
	id     uuid.UUID
	cancel func()
}

// Policy owns the pinned-window bookkeeping and drives the shared
// iocache.Cache and requestqueue.Queue to realize one timeline's
// playback cache behavior.
type Policy struct {
	cache *iocache.Cache
	queue *requestqueue.Queue
	log   hclog.Logger

	mu          sync.Mutex
	issuedVideo map[int64]issuedRequest // frame value -> outstanding request
	issuedAudio map[int64]issuedRequest // integer second -> outstanding request
	pinned      map[string]bool
}

// New constructs a Policy sharing cache and queue with the rest of the
// playback core.
func New(cache *iocache.Cache, queue *requestqueue.Queue) *Policy {
	return &Policy{
		cache:       cache,
		queue:       queue,
		log:         logger.Named("cachepolicy"),
		issuedVideo: make(map[int64]issuedRequest),
		issuedAudio: make(map[int64]issuedRequest),
		pinned:      make(map[string]bool),
	}
}

func videoKey(frame int64) string  { return fmt.Sprintf("video:%d", frame) }
func audioKey(second int64) string { return fmt.Sprintf("audio:%d", second) }

// Advance computes the target window from params and performs the four
// operations spec.md §4.9 names: issue missing reads, evict outside the
// window, cancel requests that left the window, and report Info.
func (p *Policy) Advance(params Params) Info {
	windows := targetWindows(params)

	wantedVideo := make(map[int64]bool)
	for _, w := range windows {
		for _, frame := range framesIn(w, params.Rate) {
			wantedVideo[frame] = true
			key := videoKey(frame)
			if !p.cache.Contains(key) {
				p.issueVideo(frame, params.Rate)
			}
		}
	}

	wantedAudio := make(map[int64]bool)
	for _, w := range windows {
		for sec := secondsFloor(w.Start); sec <= secondsFloor(w.EndTimeInclusive()); sec++ {
			wantedAudio[sec] = true
			key := audioKey(sec)
			if !p.cache.Contains(key) {
				p.issueAudio(sec)
			}
		}
	}

	p.mu.Lock()
	p.cancelOutsideLocked(p.issuedVideo, wantedVideo)
	p.cancelOutsideLocked(p.issuedAudio, wantedAudio)
	p.mu.Unlock()

	p.repin(wantedVideo, wantedAudio)
	p.cache.SetMax(params.AvailableBytes)

	return Info{BytesUsed: p.cache.Size(), Coverage: windows}
}

func secondsFloor(t rationaltime.Time) int64 {
	s := t.ToSeconds()
	f := int64(s)
	if s < 0 && float64(f) != s {
		f--
	}
	return f
}

// targetWindows computes the window(s) described in spec.md §4.9: the
// primary `[current-behind, current+ahead]` (swapped in Reverse),
// clamped to the in/out range, plus any spillover wrapped to the
// opposite end when Loop mode is active.
func targetWindows(p Params) []rationaltime.Range {
	ahead := rationaltime.New(p.ReadAheadSeconds*p.Rate, p.Rate)
	behind := rationaltime.New(p.ReadBehindSeconds*p.Rate, p.Rate)

	var start, end rationaltime.Time
	if p.Direction == Forward {
		start = p.CurrentTime.Sub(behind)
		end = p.CurrentTime.Add(ahead)
	} else {
		start = p.CurrentTime.Sub(ahead)
		end = p.CurrentTime.Add(behind)
	}

	primary := rationaltime.NewRange(start, end.Sub(start))
	clamped := p.InOutRange.ClampedRange(primary)
	windows := []rationaltime.Range{clamped}

	if p.Loop != LoopRepeat {
		return windows
	}

	overEnd := end.Sub(p.InOutRange.EndTimeExclusive())
	if overEnd.ToSeconds() > 0 {
		windows = append(windows, rationaltime.NewRange(p.InOutRange.Start, overEnd))
	}
	underStart := p.InOutRange.Start.Sub(start)
	if underStart.ToSeconds() > 0 {
		wrapEnd := p.InOutRange.EndTimeExclusive()
		wrapStart := wrapEnd.Sub(underStart)
		windows = append(windows, rationaltime.NewRange(wrapStart, underStart))
	}
	return windows
}

func framesIn(r rationaltime.Range, rate float64) []int64 {
	if rate <= 0 {
		return nil
	}
	start := r.Start.RescaledTo(rate)
	dur := r.Duration.RescaledTo(rate)
	first := int64(start.Value)
	count := int64(dur.Value)
	out := make([]int64, 0, count)
	for v := first; v < first+count; v++ {
		out = append(out, v)
	}
	return out
}

func (p *Policy) issueVideo(frame int64, rate float64) {
	p.mu.Lock()
	if _, ok := p.issuedVideo[frame]; ok {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	t := rationaltime.New(float64(frame), rate)
	id, future := p.queue.SubmitVideo(t)

	p.mu.Lock()
	p.issuedVideo[frame] = issuedRequest{id: id, cancel: func() { p.queue.Cancel(id) }}
	p.mu.Unlock()

	go func() {
		result, err := future.Wait()
		p.mu.Lock()
		delete(p.issuedVideo, frame)
		p.mu.Unlock()
		if err != nil {
			return
		}
		p.cache.Add(videoKey(frame), result, videoByteCost(result))
	}()
}

func (p *Policy) issueAudio(second int64) {
	p.mu.Lock()
	if _, ok := p.issuedAudio[second]; ok {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	rng := rationaltime.NewRange(rationaltime.New(float64(second), 1), rationaltime.New(1, 1))
	id, future := p.queue.SubmitAudio(rng)

	p.mu.Lock()
	p.issuedAudio[second] = issuedRequest{id: id, cancel: func() { p.queue.Cancel(id) }}
	p.mu.Unlock()

	go func() {
		result, err := future.Wait()
		p.mu.Lock()
		delete(p.issuedAudio, second)
		p.mu.Unlock()
		if err != nil {
			return
		}
		p.cache.Add(audioKey(second), result, audioByteCost(result))
	}()
}

func videoByteCost(result requestqueue.VideoResult) int64 {
	var total int64
	for _, layer := range result.Layers {
		total += int64(len(layer.A.Image.Data))
		if layer.B != nil {
			total += int64(len(layer.B.Image.Data))
		}
	}
	return total
}

func audioByteCost(result requestqueue.AudioResult) int64 {
	var total int64
	for _, layer := range result.Layers {
		for _, l := range layer.Data.Layers {
			total += int64(len(l.Samples))
		}
	}
	return total
}

// cancelOutsideLocked cancels and removes every issued request whose key
// isn't in wanted. Callers must hold p.mu.
func (p *Policy) cancelOutsideLocked(issued map[int64]issuedRequest, wanted map[int64]bool) {
	for k, req := range issued {
		if !wanted[k] {
			req.cancel()
			delete(issued, k)
		}
	}
}

func (p *Policy) repin(wantedVideo, wantedAudio map[int64]bool) {
	next := make(map[string]bool, len(wantedVideo)+len(wantedAudio))
	for f := range wantedVideo {
		key := videoKey(f)
		next[key] = true
		// Pin ignores keys not yet cached, so re-pin every wanted key each
		// pass: an entry that lands after it was first wanted gets pinned too.
		p.cache.Pin(key)
	}
	for s := range wantedAudio {
		key := audioKey(s)
		next[key] = true
		p.cache.Pin(key)
	}
	for key := range p.pinned {
		if !next[key] {
			p.cache.Unpin(key)
		}
	}
	p.pinned = next
}
