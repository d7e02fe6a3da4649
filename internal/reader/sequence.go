package reader

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/tlplay/pkg/imageio"
	"github.com/mantonx/tlplay/pkg/mediapath"
	"github.com/mantonx/tlplay/pkg/rationaltime"
)

// DecodeFunc decodes a single frame file into an Image. It is the only
// format-specific piece a sequence plugin needs; everything else (worker
// pool, cancellation, IOInfo bookkeeping) is generic. Real PNG/JPEG/EXR/
// DPX/TIFF decode math is out of scope (spec.md §1); DecodeFunc is the
// seam a codec plugin would fill in.
type DecodeFunc func(ctx context.Context, path mediapath.Path, frame int64) (imageio.Image, error)

type videoJob struct {
	ctx    context.Context
	path   mediapath.Path
	frame  int64
	t      rationaltime.Time
	layer  int
	future *Future[imageio.VideoData]
}

// SequenceReader dispatches one-frame-per-file decode work across a fixed
// pool of worker goroutines. It replaces the inheritance-based
// ISequenceRead base class spec.md §9 describes with composition: callers
// supply a DecodeFunc and SequenceReader supplies the concurrency.
type SequenceReader struct {
	logger     hclog.Logger
	extensions map[string]bool
	decode     DecodeFunc
	rate       float64

	jobs      chan *videoJob
	wg        sync.WaitGroup
	closeOnce sync.Once
	closed    chan struct{}

	mu      sync.Mutex
	pending []*Future[imageio.VideoData]

	watchMu  sync.Mutex
	watchers map[string]*mediapath.SequenceWatcher
	liveMin  map[string]int64
	liveMax  map[string]int64
}

// NewSequenceReader starts workerCount decode goroutines servicing reads
// for any of extensions, using decode for the per-frame work and rate as
// the nominal frame rate when no frame-range metadata is available.
func NewSequenceReader(extensions []string, workerCount int, rate float64, decode DecodeFunc, logger hclog.Logger) *SequenceReader {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if workerCount < 1 {
		workerCount = 1
	}
	extSet := make(map[string]bool, len(extensions))
	for _, e := range extensions {
		extSet[strings.ToLower(strings.TrimPrefix(e, "."))] = true
	}

	sr := &SequenceReader{
		logger:     logger.Named("reader.sequence"),
		extensions: extSet,
		decode:     decode,
		rate:       rate,
		jobs:       make(chan *videoJob, workerCount*4),
		closed:     make(chan struct{}),
	}
	for i := 0; i < workerCount; i++ {
		sr.wg.Add(1)
		go sr.worker(i)
	}
	return sr
}

func (sr *SequenceReader) worker(id int) {
	defer sr.wg.Done()
	for job := range sr.jobs {
		sr.runJob(job)
	}
}

func (sr *SequenceReader) runJob(job *videoJob) {
	if job.future.Cancelled() {
		return
	}
	select {
	case <-job.ctx.Done():
		job.future.Cancel(job.ctx.Err())
		return
	default:
	}

	img, err := sr.decode(job.ctx, job.path, job.frame)
	if job.future.Cancelled() {
		return
	}
	if err != nil {
		sr.logger.Warn("sequence decode failed", "frame", job.frame, "error", err)
		job.future.Resolve(imageio.VideoData{Time: job.t, Layer: job.layer, Image: imageio.InvalidImage()})
		return
	}
	job.future.Resolve(imageio.VideoData{Time: job.t, Layer: job.layer, Image: img, Tags: img.Tags})
}

// CanRead reports whether extension is one this sequence reader decodes.
func (sr *SequenceReader) CanRead(extension string) bool {
	return sr.extensions[strings.ToLower(strings.TrimPrefix(extension, "."))]
}

// Info reports the sequence's frame range as a video time range at the
// reader's configured rate; it never decodes a frame. As a side effect it
// starts (once per directory+base+extension) a mediapath.SequenceWatcher
// on src's directory, so a render farm dropping frames into that
// directory after this call is made is reflected in the range a later
// Info call returns (spec.md §4.3's in-progress-sequence playback).
func (sr *SequenceReader) Info(ctx context.Context, src mediapath.Source) (imageio.IOInfo, error) {
	p := src.Path
	sr.ensureWatch(p)

	rate := sr.rate
	if rate <= 0 {
		rate = 24
	}

	frameMin, frameMax, ranged := p.FrameMin, p.FrameMax, p.Ranged
	if lo, hi, ok := sr.liveRange(p); ok {
		switch {
		case ranged:
			if lo < frameMin {
				frameMin = lo
			}
			if hi > frameMax {
				frameMax = hi
			}
		default:
			frameMin, frameMax, ranged = lo, hi, true
		}
	}

	var vr rationaltime.Range
	if ranged {
		start := rationaltime.FromFrame(frameMin, rate)
		dur := rationaltime.FromFrame(frameMax-frameMin+1, rate)
		vr = rationaltime.NewRange(start, dur)
	}
	return imageio.IOInfo{
		VideoRange: vr,
		Tags:       map[string]string{"sourceFile": p.Get()},
	}, nil
}

// watchKey identifies the sequence p belongs to for watch/live-range
// bookkeeping: same directory, base, and extension.
func watchKey(p mediapath.Path) string {
	return p.Directory + "\x00" + p.Base + "\x00" + p.Extension
}

// ensureWatch starts a SequenceWatcher on p's directory the first time a
// given sequence is seen. A directory that can't be watched (missing,
// permission denied, platform limits) is logged and otherwise ignored:
// Info still works from the path's own static frame-range metadata.
func (sr *SequenceReader) ensureWatch(p mediapath.Path) {
	if !p.HasNumber || p.Directory == "" {
		return
	}
	key := watchKey(p)

	sr.watchMu.Lock()
	if sr.watchers == nil {
		sr.watchers = make(map[string]*mediapath.SequenceWatcher)
		sr.liveMin = make(map[string]int64)
		sr.liveMax = make(map[string]int64)
	}
	if _, exists := sr.watchers[key]; exists {
		sr.watchMu.Unlock()
		return
	}
	sr.watchers[key] = nil // claim the slot before releasing the lock
	sr.watchMu.Unlock()

	w, err := mediapath.NewSequenceWatcher(p, sr.logger)
	if err != nil {
		sr.logger.Warn("watch sequence directory", "dir", p.Directory, "error", err)
		sr.watchMu.Lock()
		delete(sr.watchers, key)
		sr.watchMu.Unlock()
		return
	}

	sr.watchMu.Lock()
	sr.watchers[key] = w
	sr.watchMu.Unlock()

	go sr.drainWatch(key, w)
}

// drainWatch folds FrameAdded events into the sequence's live observed
// frame bounds until the watcher is closed.
func (sr *SequenceReader) drainWatch(key string, w *mediapath.SequenceWatcher) {
	for ev := range w.Events() {
		if ev.Kind != mediapath.FrameAdded || !ev.Path.HasNumber {
			continue
		}
		sr.watchMu.Lock()
		if cur, ok := sr.liveMin[key]; !ok || ev.Path.Number < cur {
			sr.liveMin[key] = ev.Path.Number
		}
		if cur, ok := sr.liveMax[key]; !ok || ev.Path.Number > cur {
			sr.liveMax[key] = ev.Path.Number
		}
		sr.watchMu.Unlock()
	}
}

// liveRange returns the min/max frame numbers observed by the watcher for
// p's sequence, if any have landed since the watch started.
func (sr *SequenceReader) liveRange(p mediapath.Path) (min, max int64, ok bool) {
	key := watchKey(p)
	sr.watchMu.Lock()
	defer sr.watchMu.Unlock()
	lo, haveLo := sr.liveMin[key]
	hi, haveHi := sr.liveMax[key]
	return lo, hi, haveLo && haveHi
}

// ReadVideo submits a decode job for the frame nearest t and blocks until
// it resolves or ctx is cancelled.
func (sr *SequenceReader) ReadVideo(ctx context.Context, src mediapath.Source, t rationaltime.Time, layer int) (imageio.VideoData, error) {
	frame := t.ToFrame()
	future := NewFuture[imageio.VideoData]()

	sr.mu.Lock()
	sr.pending = append(sr.pending, future)
	sr.mu.Unlock()

	job := &videoJob{ctx: ctx, path: src.Path, frame: frame, t: t, layer: layer, future: future}

	select {
	case sr.jobs <- job:
	case <-ctx.Done():
		future.Cancel(ctx.Err())
		return imageio.VideoData{Time: t, Layer: layer, Image: imageio.InvalidImage()}, nil
	case <-sr.closed:
		return imageio.VideoData{}, fmt.Errorf("reader: sequence reader closed")
	}

	go func() {
		select {
		case <-ctx.Done():
			future.Cancel(ctx.Err())
		case <-future.Done():
		}
	}()

	vd, err := future.Wait()
	if err != nil {
		return imageio.VideoData{Time: t, Layer: layer, Image: imageio.InvalidImage()}, nil
	}
	return vd, nil
}

// ReadAudio always returns silence: a sequence of single-frame image
// files carries no audio of its own (companion audio is located per
// config.FileSequenceConfig and read through a separate audio-capable
// reader, outside this plugin's job).
func (sr *SequenceReader) ReadAudio(ctx context.Context, src mediapath.Source, startSeconds float64) (imageio.AudioData, error) {
	return imageio.AudioData{Seconds: startSeconds}, nil
}

// CancelRequests cancels every future this reader has outstanding.
func (sr *SequenceReader) CancelRequests() {
	sr.mu.Lock()
	pending := sr.pending
	sr.pending = nil
	sr.mu.Unlock()
	for _, f := range pending {
		f.Cancel(fmt.Errorf("reader: cancelled"))
	}
}

// Close stops accepting new work and joins the worker pool. Outstanding
// futures must be drained or cancelled by the caller first.
func (sr *SequenceReader) Close() {
	sr.closeOnce.Do(func() {
		close(sr.closed)
		close(sr.jobs)
	})
	sr.wg.Wait()

	sr.watchMu.Lock()
	for _, w := range sr.watchers {
		if w != nil {
			w.Close()
		}
	}
	sr.watchers = nil
	sr.watchMu.Unlock()
}

// SequencePlugin adapts a SequenceReader to the imageio.Implementation
// contract so it can register in an imageio.Registry like any codec
// plugin, in-process or not.
type SequencePlugin struct {
	info   imageio.PluginInfo
	reader *SequenceReader
}

// NewSequencePlugin wraps reader behind an Implementation describing
// itself with info.
func NewSequencePlugin(info imageio.PluginInfo, reader *SequenceReader) *SequencePlugin {
	return &SequencePlugin{info: info, reader: reader}
}

func (p *SequencePlugin) Initialize(ctx *imageio.PluginContext) error { return nil }
func (p *SequencePlugin) Info() (*imageio.PluginInfo, error)          { return &p.info, nil }
func (p *SequencePlugin) Health() error                               { return nil }
func (p *SequencePlugin) ReadPlugin() imageio.ReadPlugin               { return p.reader }
func (p *SequencePlugin) WritePlugin() imageio.WritePlugin             { return nil }
