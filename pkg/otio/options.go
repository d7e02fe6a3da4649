package otio

// CompareMode selects how two timelines' images are related spatially
// and temporally during an A/B session.
type CompareMode int

const (
	CompareA CompareMode = iota
	CompareB
	CompareWipe
	CompareOverlay
	CompareDifference
	CompareHorizontal
	CompareVertical
	CompareTile
)

// CompareTimeMode selects how B's time is derived from A's current time.
type CompareTimeMode int

const (
	CompareTimeAbsolute CompareTimeMode = iota
	CompareTimeRelative
)

// CompareOptions configures the Compare Pipeline (see package compare).
type CompareOptions struct {
	Mode            CompareMode
	WipeCenterX     float64 // 0..1
	WipeCenterY     float64 // 0..1
	WipeRotationDeg float64
	OverlayBlend    float64 // 0..1
	TimeMode        CompareTimeMode
}

// DefaultCompareOptions returns the A-only, absolute-time default.
func DefaultCompareOptions() CompareOptions {
	return CompareOptions{
		Mode:            CompareA,
		WipeCenterX:     0.5,
		WipeCenterY:     0.5,
		WipeRotationDeg: 0,
		OverlayBlend:    0.5,
		TimeMode:        CompareTimeAbsolute,
	}
}

// ChannelSelect picks which image channel(s) a viewport displays.
type ChannelSelect int

const (
	ChannelColor ChannelSelect = iota
	ChannelRed
	ChannelGreen
	ChannelBlue
	ChannelAlpha
)

// ImageFilter selects the resampling kernel used when magnifying or
// minifying; near is a nearest-neighbor box filter, linear interpolates.
type ImageFilter int

const (
	FilterNearest ImageFilter = iota
	FilterLinear
)

// ImageOptions are opaque-to-the-core rendering knobs
// carried alongside a VideoData from resolver through to the renderer.
// None of their fields affect cache keys or decode behavior.
type ImageOptions struct {
	Channel            ChannelSelect
	MirrorX            bool
	MirrorY            bool
	Brightness         float64
	Contrast           float64
	Saturation         float64
	Tint               float64
	LevelsInLow        float64
	LevelsInHigh       float64
	LevelsOutLow       float64
	LevelsOutHigh      float64
	SoftClip           float64
	EXRDisplay         bool
	Normalize          bool
	VideoLevels        int
	IgnoreChromaticity bool
	HighlightInvalid   bool
	MagnifyFilter      ImageFilter
	MinifyFilter       ImageFilter
}

// DefaultImageOptions returns a no-op rendering configuration.
func DefaultImageOptions() ImageOptions {
	return ImageOptions{
		Brightness:    1,
		Contrast:      1,
		Saturation:    1,
		LevelsInHigh:  1,
		LevelsOutHigh: 1,
		MagnifyFilter: FilterLinear,
		MinifyFilter:  FilterLinear,
	}
}

// OCIOOptions names an OpenColorIO config/display/view/look chain. The
// resolver and cache never interpret these fields; they only compare them
// for equality when a cache key must differentiate decoder-independent
// display state (it currently never needs to — see DESIGN.md).
type OCIOOptions struct {
	ConfigName string
	Input      string
	Display    string
	View       string
	Look       string
}

// LUTOptions names an external 1D/3D LUT file and its interpolation mode.
type LUTOptions struct {
	FileName      string
	Interpolation ImageFilter
}

// HDROptions carries display HDR tone-mapping parameters, independent of
// the per-image HDRData carried on imageio.Image.
type HDROptions struct {
	Enabled       bool
	PeakLuminance float64
	ToneMapper    string
}
