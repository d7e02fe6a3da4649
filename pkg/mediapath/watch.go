package mediapath

import (
	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-hclog"
)

// SequenceWatcher watches a sequence's directory for newly-landed frames,
// the way a render farm writes frames into a directory tlplay is already
// playing back. It reports new/removed files belonging to the sequence the
// watched Path describes, by directory+base+extension match (Path.Sequence).
type SequenceWatcher struct {
	logger  hclog.Logger
	watcher *fsnotify.Watcher
	ref     Path
	events  chan FrameEvent
}

// FrameEventKind distinguishes an added frame from a removed one.
type FrameEventKind int

const (
	FrameAdded FrameEventKind = iota
	FrameRemoved
)

// FrameEvent reports a filesystem change affecting one frame of a sequence.
type FrameEvent struct {
	Kind FrameEventKind
	Path Path
}

// NewSequenceWatcher starts watching ref's directory for sibling frames.
func NewSequenceWatcher(ref Path, logger hclog.Logger) (*SequenceWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(ref.Directory); err != nil {
		w.Close()
		return nil, err
	}

	sw := &SequenceWatcher{
		logger:  logger,
		watcher: w,
		ref:     ref,
		events:  make(chan FrameEvent, 64),
	}
	go sw.run()
	return sw, nil
}

// Events returns the channel of frame additions/removals for this sequence.
func (sw *SequenceWatcher) Events() <-chan FrameEvent {
	return sw.events
}

// Close stops watching and releases the underlying OS watch handle.
func (sw *SequenceWatcher) Close() error {
	close(sw.events)
	return sw.watcher.Close()
}

func (sw *SequenceWatcher) run() {
	for {
		select {
		case ev, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			sw.handle(ev)
		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			sw.logger.Warn("sequence watcher error", "error", err, "dir", sw.ref.Directory)
		}
	}
}

func (sw *SequenceWatcher) handle(ev fsnotify.Event) {
	p, err := Parse(ev.Name)
	if err != nil {
		return
	}
	if !p.Sequence(sw.ref) {
		return
	}

	switch {
	case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
		select {
		case sw.events <- FrameEvent{Kind: FrameAdded, Path: p}:
		default:
			sw.logger.Warn("sequence watcher event dropped, channel full", "path", p.Get())
		}
	case ev.Op&fsnotify.Remove != 0:
		select {
		case sw.events <- FrameEvent{Kind: FrameRemoved, Path: p}:
		default:
		}
	}
}
