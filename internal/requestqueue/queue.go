// Package requestqueue implements the coordinator thread described in
// spec.md §4.7: two priority FIFOs (pending video, pending audio), two
// in-progress sets, and a tick loop that drains pending work into the
// resolver, polls in-progress futures, and enforces a cap on concurrent
// in-progress requests. Grounded on the teacher's internal/events/bus.go
// coordinator goroutine (eventChannel + stopCh + sync.WaitGroup join),
// adapted from event fan-out to request/future dispatch.
package requestqueue

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/mantonx/tlplay/internal/config"
	"github.com/mantonx/tlplay/internal/ioerrors"
	"github.com/mantonx/tlplay/internal/logger"
	"github.com/mantonx/tlplay/internal/reader"
	"github.com/mantonx/tlplay/pkg/otio"
	"github.com/mantonx/tlplay/pkg/rationaltime"
)

// VideoResult folds every video track's layer at one track time into a
// single value. Pixel compositing of overlapping layers happens in the
// renderer/output device, same as the compare pipeline's boxes-without-
// pixels contract (spec.md §4.10).
type VideoResult struct {
	Time   rationaltime.Time
	Layers []otio.VideoLayerData
}

// AudioResult folds every audio track's layer covering one track-time
// range into a single value; mixdown happens downstream.
type AudioResult struct {
	Range  rationaltime.Range
	Layers []otio.AudioLayerData
}

type videoRequest struct {
	id      uuid.UUID
	time    rationaltime.Time
	promise *reader.Future[VideoResult]
	ctx     context.Context
	cancel  context.CancelFunc
}

type audioRequest struct {
	id      uuid.UUID
	rng     rationaltime.Range
	promise *reader.Future[AudioResult]
	ctx     context.Context
	cancel  context.CancelFunc
}

// Queue is the coordinator: it owns the pending FIFOs and in-progress
// sets for one timeline and drives the resolver on a background
// goroutine.
type Queue struct {
	resolver *otio.Resolver
	timeline *otio.Timeline
	perf     config.PerformanceConfig
	log      hclogLogger

	mu           sync.Mutex
	pendingVideo []*videoRequest
	pendingAudio []*audioRequest
	inVideo      map[uuid.UUID]*videoRequest
	inAudio      map[uuid.UUID]*audioRequest

	wake    chan struct{}
	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
}

// hclogLogger is the narrow slice of hclog.Logger's interface this
// package needs, kept local so tests can pass a no-op without pulling
// in hclog's NullLogger construction.
type hclogLogger interface {
	Debug(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// New constructs a Queue for timeline, resolving through resolver and
// respecting perf's video_request_count/audio_request_count caps.
func New(resolver *otio.Resolver, timeline *otio.Timeline, perf config.PerformanceConfig) *Queue {
	return &Queue{
		resolver: resolver,
		timeline: timeline,
		perf:     perf,
		log:      logger.Named("requestqueue"),
		inVideo:  make(map[uuid.UUID]*videoRequest),
		inAudio:  make(map[uuid.UUID]*audioRequest),
		wake:     make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
	}
}

// Start launches the coordinator goroutine. Calling Start twice is a
// no-op.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.running = true
	q.wg.Add(1)
	go q.run()
}

// Stop breaks every pending promise with Cancelled, cancels every
// in-progress request's context, and joins the coordinator goroutine
// deterministically before returning.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	q.mu.Unlock()

	close(q.stopCh)
	q.wg.Wait()
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// SubmitVideo enqueues a video resolve at t, returning its id and a
// future the caller can Wait on.
func (q *Queue) SubmitVideo(t rationaltime.Time) (uuid.UUID, *reader.Future[VideoResult]) {
	ctx, cancel := context.WithCancel(context.Background())
	req := &videoRequest{
		id:      uuid.New(),
		time:    t,
		promise: reader.NewFuture[VideoResult](),
		ctx:     ctx,
		cancel:  cancel,
	}
	q.mu.Lock()
	q.pendingVideo = append(q.pendingVideo, req)
	q.mu.Unlock()
	q.signal()
	return req.id, req.promise
}

// SubmitAudio enqueues an audio resolve over rng, returning its id and a
// future the caller can Wait on.
func (q *Queue) SubmitAudio(rng rationaltime.Range) (uuid.UUID, *reader.Future[AudioResult]) {
	ctx, cancel := context.WithCancel(context.Background())
	req := &audioRequest{
		id:      uuid.New(),
		rng:     rng,
		promise: reader.NewFuture[AudioResult](),
		ctx:     ctx,
		cancel:  cancel,
	}
	q.mu.Lock()
	q.pendingAudio = append(q.pendingAudio, req)
	q.mu.Unlock()
	q.signal()
	return req.id, req.promise
}

// Cancel cancels a pending or in-progress request by id; it is a no-op
// if the request has already resolved.
func (q *Queue) Cancel(id uuid.UUID) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, r := range q.pendingVideo {
		if r.id == id {
			q.pendingVideo = append(q.pendingVideo[:i], q.pendingVideo[i+1:]...)
			r.cancel()
			r.promise.Cancel(cancelledErr())
			return
		}
	}
	for i, r := range q.pendingAudio {
		if r.id == id {
			q.pendingAudio = append(q.pendingAudio[:i], q.pendingAudio[i+1:]...)
			r.cancel()
			r.promise.Cancel(cancelledErr())
			return
		}
	}
	if r, ok := q.inVideo[id]; ok {
		r.cancel()
	}
	if r, ok := q.inAudio[id]; ok {
		r.cancel()
	}
}

// CancelOutsideWindow cancels every pending or in-progress video request
// whose target time falls outside window, the cache policy's "cancel
// in-flight requests whose target time has left the window" operation
// (spec.md §4.9).
func (q *Queue) CancelOutsideWindow(window rationaltime.Range) {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.pendingVideo[:0]
	for _, r := range q.pendingVideo {
		if window.Contains(r.time) {
			kept = append(kept, r)
		} else {
			r.cancel()
			r.promise.Cancel(cancelledErr())
		}
	}
	q.pendingVideo = kept

	for _, r := range q.inVideo {
		if !window.Contains(r.time) {
			r.cancel()
		}
	}
}

func cancelledErr() error {
	return &ioerrors.Error{Kind: ioerrors.KindCancelled, Module: "requestqueue", Message: "request cancelled"}
}

// run is the coordinator loop: per spec.md §4.7's three-step tick, it
// drains pending requests into in-progress, polls in-progress futures
// with a non-blocking select, and folds completions into their promise.
func (q *Queue) run() {
	defer q.wg.Done()
	for {
		select {
		case <-q.stopCh:
			q.drainOnShutdown()
			return
		case <-q.wake:
			q.tick()
		}
	}
}

func (q *Queue) tick() {
	q.drainPending()
	q.pollInProgress()
}

func (q *Queue) drainPending() {
	q.mu.Lock()
	videoCap := q.perf.VideoRequestCount
	audioCap := q.perf.AudioRequestCount

	var toStartVideo []*videoRequest
	for len(q.pendingVideo) > 0 && len(q.inVideo) < videoCap {
		req := q.pendingVideo[0]
		q.pendingVideo = q.pendingVideo[1:]
		q.inVideo[req.id] = req
		toStartVideo = append(toStartVideo, req)
	}

	var toStartAudio []*audioRequest
	for len(q.pendingAudio) > 0 && len(q.inAudio) < audioCap {
		req := q.pendingAudio[0]
		q.pendingAudio = q.pendingAudio[1:]
		q.inAudio[req.id] = req
		toStartAudio = append(toStartAudio, req)
	}
	q.mu.Unlock()

	for _, req := range toStartVideo {
		q.startVideo(req)
	}
	for _, req := range toStartAudio {
		q.startAudio(req)
	}
}

func (q *Queue) startVideo(req *videoRequest) {
	go func() {
		layers := make([]otio.VideoLayerData, 0, len(q.timeline.Tracks))
		for i, track := range q.timeline.Tracks {
			if track.Kind != otio.TrackVideo {
				continue
			}
			if req.ctx.Err() != nil {
				req.promise.Cancel(cancelledErr())
				return
			}
			layer, err := q.resolver.ResolveVideo(req.ctx, q.timeline, i, req.time)
			if err != nil {
				q.log.Warn("video resolve failed", "track", i, "error", err)
				continue
			}
			layers = append(layers, layer)
		}
		if req.ctx.Err() != nil {
			req.promise.Cancel(cancelledErr())
		} else {
			req.promise.Resolve(VideoResult{Time: req.time, Layers: layers})
		}
		q.signal()
	}()
}

func (q *Queue) startAudio(req *audioRequest) {
	go func() {
		layers := make([]otio.AudioLayerData, 0, len(q.timeline.Tracks))
		for i, track := range q.timeline.Tracks {
			if track.Kind != otio.TrackAudio {
				continue
			}
			if req.ctx.Err() != nil {
				req.promise.Cancel(cancelledErr())
				return
			}
			layer, err := q.resolver.ResolveAudio(req.ctx, q.timeline, i, req.rng)
			if err != nil {
				q.log.Warn("audio resolve failed", "track", i, "error", err)
				continue
			}
			layers = append(layers, layer)
		}
		if req.ctx.Err() != nil {
			req.promise.Cancel(cancelledErr())
		} else {
			req.promise.Resolve(AudioResult{Range: req.rng, Layers: layers})
		}
		q.signal()
	}()
}

// pollInProgress checks each in-progress future with a zero-timeout
// select and moves completed ones out of the in-progress set, freeing a
// slot under the cap for the next drainPending.
func (q *Queue) pollInProgress() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for id, req := range q.inVideo {
		select {
		case <-req.promise.Done():
			delete(q.inVideo, id)
		default:
		}
	}
	for id, req := range q.inAudio {
		select {
		case <-req.promise.Done():
			delete(q.inAudio, id)
		default:
		}
	}
}

func (q *Queue) drainOnShutdown() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, r := range q.pendingVideo {
		r.cancel()
		r.promise.Cancel(cancelledErr())
	}
	q.pendingVideo = nil
	for _, r := range q.pendingAudio {
		r.cancel()
		r.promise.Cancel(cancelledErr())
	}
	q.pendingAudio = nil
	for _, r := range q.inVideo {
		r.cancel()
	}
	for _, r := range q.inAudio {
		r.cancel()
	}
}

// Stats reports queue depth, used by cache_info-style observables and
// diagnostics.
type Stats struct {
	PendingVideo int
	PendingAudio int
	InVideo      int
	InAudio      int
}

func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		PendingVideo: len(q.pendingVideo),
		PendingAudio: len(q.pendingAudio),
		InVideo:      len(q.inVideo),
		InAudio:      len(q.inAudio),
	}
}
