// Package rationaltime implements exact fractional time arithmetic used
// throughout the timeline playback pipeline: RationalTime (value/rate) and
// TimeRange (start/duration), plus timecode and frame conversions.
package rationaltime

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Time is an exact fractional time expressed as a value at a rate (fps).
// A Time with Rate <= 0 is the invalid sentinel and poisons arithmetic:
// every operation on an invalid Time returns an invalid Time.
type Time struct {
	Value float64
	Rate  float64
}

// Invalid is the canonical invalid/sentinel time.
var Invalid = Time{Value: 0, Rate: 0}

// New constructs a Time, returning Invalid if rate is not strictly positive.
func New(value, rate float64) Time {
	if rate <= 0 {
		return Invalid
	}
	return Time{Value: value, Rate: rate}
}

// IsInvalid reports whether t is the poisoned sentinel.
func (t Time) IsInvalid() bool {
	return t.Rate <= 0
}

// ToSeconds converts the time to seconds.
func (t Time) ToSeconds() float64 {
	if t.IsInvalid() {
		return 0
	}
	return t.Value / t.Rate
}

// FromSeconds builds a Time from a seconds value at rate.
func FromSeconds(seconds, rate float64) Time {
	if rate <= 0 {
		return Invalid
	}
	return Time{Value: seconds * rate, Rate: rate}
}

// ToFrame floors the time to an integer frame index at its own rate.
func (t Time) ToFrame() int64 {
	if t.IsInvalid() {
		return 0
	}
	return int64(math.Floor(t.Value))
}

// FromFrame builds a Time directly from an integer frame count at rate.
func FromFrame(frame int64, rate float64) Time {
	if rate <= 0 {
		return Invalid
	}
	return Time{Value: float64(frame), Rate: rate}
}

// RescaledTo rescales t to newRate, rounding the value to the nearest
// representable frame at the new rate.
func (t Time) RescaledTo(newRate float64) Time {
	if t.IsInvalid() || newRate <= 0 {
		return Invalid
	}
	if t.Rate == newRate {
		return t
	}
	seconds := t.Value / t.Rate
	return Time{Value: math.Round(seconds * newRate), Rate: newRate}
}

// Add returns t + other, rescaling other to t's rate first.
func (t Time) Add(other Time) Time {
	if t.IsInvalid() || other.IsInvalid() {
		return Invalid
	}
	o := other.RescaledTo(t.Rate)
	return Time{Value: t.Value + o.Value, Rate: t.Rate}
}

// Sub returns t - other, rescaling other to t's rate first.
func (t Time) Sub(other Time) Time {
	if t.IsInvalid() || other.IsInvalid() {
		return Invalid
	}
	o := other.RescaledTo(t.Rate)
	return Time{Value: t.Value - o.Value, Rate: t.Rate}
}

// Compare returns -1, 0, or 1 comparing t and other by their seconds value.
// Invalid times compare as equal to each other and less than any valid time.
func (t Time) Compare(other Time) int {
	if t.IsInvalid() && other.IsInvalid() {
		return 0
	}
	if t.IsInvalid() {
		return -1
	}
	if other.IsInvalid() {
		return 1
	}
	ts, os := t.ToSeconds(), other.ToSeconds()
	switch {
	case ts < os:
		return -1
	case ts > os:
		return 1
	default:
		return 0
	}
}

// Equal compares two times by their effective seconds value (24,24) == (1,1).
func (t Time) Equal(other Time) bool {
	return t.Compare(other) == 0
}

// StrictlyEqual compares value and rate exactly, so (24,24) != (1,1).
func (t Time) StrictlyEqual(other Time) bool {
	return t.Value == other.Value && t.Rate == other.Rate
}

func (t Time) String() string {
	if t.IsInvalid() {
		return "Time(invalid)"
	}
	return fmt.Sprintf("Time(%g, %g)", t.Value, t.Rate)
}

// isDropFrameRate reports the well-known NTSC rates where drop-frame timecode
// correction applies.
func isDropFrameRate(rate float64) bool {
	return math.Abs(rate-29.97) < 0.01 || math.Abs(rate-59.94) < 0.01
}

// nominalRate rounds a drop-frame rate to its nominal integer frame count
// (29.97 -> 30, 59.94 -> 60) used for hh:mm:ss:ff digit math.
func nominalRate(rate float64) int64 {
	return int64(math.Round(rate))
}

// ToTimecode renders t as hh:mm:ss:ff, applying the SMPTE drop-frame rule
// at 29.97/59.94 when dropFrame is true: frames 0 and 1 (and their analogue
// at higher drop counts) are skipped at the start of every minute except
// every tenth minute.
func (t Time) ToTimecode(dropFrame bool) (string, error) {
	if t.IsInvalid() {
		return "", fmt.Errorf("rationaltime: cannot render timecode for invalid time")
	}

	nominal := nominalRate(t.Rate)
	frameCount := t.ToFrame()
	if frameCount < 0 {
		return "", fmt.Errorf("rationaltime: cannot render timecode for negative time")
	}

	useDropFrame := dropFrame && isDropFrameRate(t.Rate)
	if !useDropFrame {
		framesPerHour := nominal * 3600
		hh := frameCount / framesPerHour
		rem := frameCount % framesPerHour
		mm := rem / (nominal * 60)
		rem = rem % (nominal * 60)
		ss := rem / nominal
		ff := rem % nominal
		hh = hh % 24
		return fmt.Sprintf("%02d:%02d:%02d:%02d", hh, mm, ss, ff), nil
	}

	// Drop-frame: 2 frame numbers are dropped per minute except every 10th.
	dropPerMinute := int64(2)
	if math.Abs(t.Rate-59.94) < 0.01 {
		dropPerMinute = 4
	}
	framesPer10Min := nominal*60*10 - dropPerMinute*9
	framesPerMin := nominal*60 - dropPerMinute

	d := frameCount / framesPer10Min
	m := frameCount % framesPer10Min

	var totalMinutes int64
	if m < nominal*60 {
		totalMinutes = 10 * d
	} else {
		totalMinutes = 10*d + 1 + (m-nominal*60)/framesPerMin
	}
	frameCount += dropPerMinute * (totalMinutes - totalMinutes/10)

	framesPerHour := nominal * 3600
	hh := (frameCount / framesPerHour) % 24
	rem := frameCount % framesPerHour
	mm := rem / (nominal * 60)
	rem = rem % (nominal * 60)
	ss := rem / nominal
	ff := rem % nominal

	return fmt.Sprintf("%02d:%02d:%02d;%02d", hh, mm, ss, ff), nil
}

// FromTimecode parses hh:mm:ss:ff (or hh:mm:ss;ff for drop-frame) at rate,
// rejecting malformed strings rather than panicking.
func FromTimecode(tc string, rate float64) (Time, error) {
	if rate <= 0 {
		return Invalid, fmt.Errorf("rationaltime: rate must be positive")
	}

	dropFrame := strings.Contains(tc, ";")
	normalized := strings.ReplaceAll(tc, ";", ":")
	parts := strings.Split(normalized, ":")
	if len(parts) != 4 {
		return Invalid, fmt.Errorf("rationaltime: malformed timecode %q", tc)
	}

	nums := make([]int64, 4)
	for i, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil || n < 0 {
			return Invalid, fmt.Errorf("rationaltime: malformed timecode component %q in %q", p, tc)
		}
		nums[i] = n
	}
	hh, mm, ss, ff := nums[0], nums[1], nums[2], nums[3]

	nominal := nominalRate(rate)
	if ff >= nominal {
		return Invalid, fmt.Errorf("rationaltime: frame %d out of range for rate %g in %q", ff, rate, tc)
	}

	useDropFrame := dropFrame && isDropFrameRate(rate)
	if !useDropFrame {
		frameCount := hh*3600*nominal + mm*60*nominal + ss*nominal + ff
		return FromFrame(frameCount, rate), nil
	}

	dropPerMinute := int64(2)
	if math.Abs(rate-59.94) < 0.01 {
		dropPerMinute = 4
	}

	totalMinutes := hh*60 + mm
	frameCount := hh*3600*nominal + mm*60*nominal + ss*nominal + ff
	frameCount -= dropPerMinute * (totalMinutes - totalMinutes/10)

	return FromFrame(frameCount, rate), nil
}
