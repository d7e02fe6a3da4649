// Package compare implements the Compare Pipeline from spec.md §4.10:
// given an A timeline's current_time and a second ("B") timeline, it
// derives B's time under the active time-mode, computes the per-mode
// render size and per-input boxes, and pairs up the resolved VideoData
// for each active input. It does not read or composite pixels itself;
// that happens downstream in the renderer, same as the teacher's
// PlaybackPlanner only decides playback parameters without touching
// encoded bytes.
package compare

import (
	"context"
	"math"

	"github.com/mantonx/tlplay/internal/requestqueue"
	"github.com/mantonx/tlplay/pkg/otio"
	"github.com/mantonx/tlplay/pkg/rationaltime"
)

// Options is the Compare Pipeline's configuration, spec.md §3's
// CompareOptions.
type Options = otio.CompareOptions

// Box is a pixel-space rectangle an input is placed into within the
// composited render.
type Box struct {
	X, Y, W, H int
}

// InputFrame pairs one input's resolved video layers with its box.
type InputFrame struct {
	Label  string // "A" or "B"
	Layers []otio.VideoLayerData
	Box    Box
}

// Result is what one Advance call hands back: the composite render
// size and one InputFrame per active input, in draw order.
type Result struct {
	RenderSize Box // X/Y unused, W/H is the composite size
	Inputs     []InputFrame
}

// Pipeline holds timeline A (driven externally by the Player) plus an
// optional timeline B and the queue used to resolve B's frames.
type Pipeline struct {
	aRange rationaltime.Range // A's full time_range, for Relative B_time
	bRange rationaltime.Range // B's full time_range

	bQueue *requestqueue.Queue // nil when no B timeline is set
}

// New constructs a Pipeline scoped to timeline A's time range. Call
// SetB to attach a second timeline for comparison.
func New(aRange rationaltime.Range) *Pipeline {
	return &Pipeline{aRange: aRange}
}

// SetB attaches timeline B (via its own request queue, already wired
// to B's resolver) and its time range. Passing a nil queue detaches B,
// after which Advance always returns a single-input A-only Result.
func (p *Pipeline) SetB(queue *requestqueue.Queue, bRange rationaltime.Range) {
	p.bQueue = queue
	p.bRange = bRange
}

// HasB reports whether a B timeline is currently attached.
func (p *Pipeline) HasB() bool {
	return p.bQueue != nil
}

// BTime derives B_time from A's current_time under opts.TimeMode
// (spec.md §4.10).
func (p *Pipeline) BTime(currentTime rationaltime.Time, opts Options) rationaltime.Time {
	if opts.TimeMode == otio.CompareTimeAbsolute {
		return currentTime
	}
	offset := currentTime.Sub(p.aRange.Start)
	return p.bRange.Start.Add(offset)
}

// Advance resolves A's already-fetched layers against B (if attached)
// at the time opts.TimeMode implies, and returns the composited boxes
// and render size for opts.Mode. aResult is the video result the
// caller already obtained from its own Player/Queue for A; Advance
// fetches B's layers itself when B is attached.
func (p *Pipeline) Advance(ctx context.Context, currentTime rationaltime.Time, aResult requestqueue.VideoResult, opts Options) (Result, error) {
	aSize := layerSize(aResult.Layers)

	if !p.HasB() || opts.Mode == otio.CompareA {
		return Result{
			RenderSize: Box{W: aSize.W, H: aSize.H},
			Inputs:     []InputFrame{{Label: "A", Layers: aResult.Layers, Box: Box{W: aSize.W, H: aSize.H}}},
		}, nil
	}

	bTime := p.BTime(currentTime, opts)
	_, future := p.bQueue.SubmitVideo(bTime)
	bResult, err := future.Wait()
	if err != nil {
		return Result{}, err
	}
	bSize := layerSize(bResult.Layers)

	if opts.Mode == otio.CompareB {
		return Result{
			RenderSize: Box{W: bSize.W, H: bSize.H},
			Inputs:     []InputFrame{{Label: "B", Layers: bResult.Layers, Box: Box{W: bSize.W, H: bSize.H}}},
		}, nil
	}

	inputs := []InputFrame{
		{Label: "A", Layers: aResult.Layers},
		{Label: "B", Layers: bResult.Layers},
	}

	switch opts.Mode {
	case otio.CompareWipe, otio.CompareOverlay, otio.CompareDifference:
		box := Box{W: aSize.W, H: aSize.H}
		inputs[0].Box = box
		inputs[1].Box = box
		return Result{RenderSize: box, Inputs: inputs}, nil

	case otio.CompareHorizontal:
		inputs[0].Box = Box{X: 0, Y: 0, W: aSize.W, H: aSize.H}
		inputs[1].Box = Box{X: aSize.W, Y: 0, W: bSize.W, H: bSize.H}
		return Result{RenderSize: Box{W: aSize.W + bSize.W, H: maxInt(aSize.H, bSize.H)}, Inputs: inputs}, nil

	case otio.CompareVertical:
		inputs[0].Box = Box{X: 0, Y: 0, W: aSize.W, H: aSize.H}
		inputs[1].Box = Box{X: 0, Y: aSize.H, W: bSize.W, H: bSize.H}
		return Result{RenderSize: Box{W: maxInt(aSize.W, bSize.W), H: aSize.H + bSize.H}, Inputs: inputs}, nil

	case otio.CompareTile:
		return tileLayout(inputs), nil

	default:
		box := Box{W: aSize.W, H: aSize.H}
		inputs[0].Box = box
		inputs[1].Box = box
		return Result{RenderSize: box, Inputs: inputs}, nil
	}
}

// tileLayout arranges n inputs into a ceil(sqrt(n)) grid of equal-sized
// cells (cell size is the max width/height across inputs), in
// row-major order (spec.md §4.10).
func tileLayout(inputs []InputFrame) Result {
	n := len(inputs)
	cols := int(math.Ceil(math.Sqrt(float64(n))))
	rows := int(math.Ceil(float64(n) / float64(cols)))

	cellW, cellH := 0, 0
	for _, in := range inputs {
		sz := layerSize(in.Layers)
		if sz.W > cellW {
			cellW = sz.W
		}
		if sz.H > cellH {
			cellH = sz.H
		}
	}

	for i := range inputs {
		row := i / cols
		col := i % cols
		inputs[i].Box = Box{X: col * cellW, Y: row * cellH, W: cellW, H: cellH}
	}

	return Result{RenderSize: Box{W: cols * cellW, H: rows * cellH}, Inputs: inputs}
}

// layerSize returns the first valid layer's image size, or zero if
// every layer is invalid (a gap with no active clip).
func layerSize(layers []otio.VideoLayerData) Box {
	for _, l := range layers {
		if l.A.Image.Valid {
			return Box{W: l.A.Image.Info.Size.Width, H: l.A.Image.Info.Size.Height}
		}
	}
	return Box{}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
