// Package mediapath parses media locators (local files, URLs, numbered
// frame sequences, in-memory blobs) into structured Paths and yields
// readable sources for the I/O plugin registry.
package mediapath

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// SeqWildcard is the sequence number wildcard token, matching any padded
// numeric field in the position it appears.
const SeqWildcard = "#"

// ParseError reports a malformed path string. It never panics; callers
// always get an error back for arbitrary input.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("mediapath: cannot parse %q: %s", e.Input, e.Reason)
}

// Path is a parsed media locator: protocol, directory, base name, an
// optional numeric/sequence field with its padding, and an extension.
type Path struct {
	Protocol  string // "", "file", "http", "https", "ndi", ...
	Directory string
	Base      string
	Number    int64 // valid only when HasNumber is true
	HasNumber bool
	Padding   int // digit-run width; 0 if no number
	Wildcard  bool
	Extension string
	Request   string // raw query/request suffix, if any (after '?')

	// FrameMin/FrameMax describe an explicit sequence range, e.g.
	// "shot.1001-1100.exr". Present only when both are set (Ranged).
	FrameMin int64
	FrameMax int64
	Ranged   bool
}

// Parse splits a locator string into a Path. It never panics; malformed
// input returns a *ParseError.
func Parse(raw string) (Path, error) {
	if raw == "" {
		return Path{}, &ParseError{Input: raw, Reason: "empty path"}
	}

	p := Path{}

	rest := raw
	if idx := strings.Index(rest, "://"); idx >= 0 {
		p.Protocol = rest[:idx]
		rest = rest[idx+3:]
	}

	if idx := strings.Index(rest, "?"); idx >= 0 {
		p.Request = rest[idx+1:]
		rest = rest[:idx]
	}

	dir, file := filepath.Split(rest)
	p.Directory = dir
	if file == "" {
		return Path{}, &ParseError{Input: raw, Reason: "no filename component"}
	}

	ext := filepath.Ext(file)
	base := strings.TrimSuffix(file, ext)
	p.Extension = strings.TrimPrefix(ext, ".")

	base, frameMin, frameMax, ranged := extractRange(base)
	p.FrameMin, p.FrameMax, p.Ranged = frameMin, frameMax, ranged

	if strings.Contains(base, SeqWildcard) {
		// Padding equals the run length of consecutive '#' characters.
		idx := strings.Index(base, SeqWildcard)
		run := 0
		for i := idx; i < len(base) && base[i] == '#'; i++ {
			run++
		}
		p.Base = base[:idx]
		p.Wildcard = true
		p.HasNumber = true
		p.Padding = run
		trailing := base[idx+run:]
		if trailing != "" {
			p.Base += trailing
		}
		return p, nil
	}

	base, number, padding, hasNumber := extractTrailingDigits(base)
	p.Base = base
	p.Number = number
	p.Padding = padding
	p.HasNumber = hasNumber

	return p, nil
}

// extractTrailingDigits scans backward over base for a trailing run of
// ASCII digits immediately before the extension (the sequence number).
// The scan advances one byte at a time and never loops on a zero-length
// match (spec.md §9 open question about zero-length regex matches).
func extractTrailingDigits(base string) (string, int64, int, bool) {
	end := len(base)
	start := end
	for start > 0 {
		c := base[start-1]
		if c < '0' || c > '9' {
			break
		}
		start--
	}
	if start == end {
		return base, 0, 0, false
	}
	digits := base[start:end]
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return base, 0, 0, false
	}
	return base[:start], n, len(digits), true
}

// extractRange looks for a "NNNN-MMMM" range suffix on base (used to
// declare an explicit frame range for a sequence, e.g. "shot.0001-0100").
func extractRange(base string) (string, int64, int64, bool) {
	idx := strings.LastIndex(base, "-")
	if idx < 0 || idx == 0 || idx == len(base)-1 {
		return base, 0, 0, false
	}
	left, right := base[:idx], base[idx+1:]

	rightStart, rightNum, _, rightHas := extractTrailingDigits(right)
	if !rightHas || rightStart != "" {
		return base, 0, 0, false
	}
	leftStart, leftNum, _, leftHas := extractTrailingDigits(left)
	if !leftHas {
		return base, 0, 0, false
	}
	return leftStart, leftNum, rightNum, true
}

// IsSequence reports whether the path carries a number and the frame
// range, if any, is nontrivial (more than a single frame).
func (p Path) IsSequence() bool {
	if !p.HasNumber {
		return false
	}
	if p.Ranged {
		return p.FrameMax > p.FrameMin
	}
	return true
}

// HasSeqWildcard reports whether the parsed path used the "#" wildcard.
func (p Path) HasSeqWildcard() bool {
	return p.Wildcard
}

// Get reconstructs the locator string.
func (p Path) Get() string {
	var b strings.Builder
	if p.Protocol != "" {
		b.WriteString(p.Protocol)
		b.WriteString("://")
	}
	b.WriteString(p.Directory)
	b.WriteString(p.GetFilename(false))
	if p.Request != "" {
		b.WriteString("?")
		b.WriteString(p.Request)
	}
	return b.String()
}

// GetFilename returns base+number+extension, optionally prefixed by the
// directory.
func (p Path) GetFilename(withDir bool) string {
	var b strings.Builder
	if withDir {
		b.WriteString(p.Directory)
	}
	b.WriteString(p.Base)
	if p.HasNumber {
		if p.Wildcard {
			b.WriteString(strings.Repeat("#", p.Padding))
		} else {
			b.WriteString(padNumber(p.Number, p.Padding))
		}
	}
	if p.Extension != "" {
		b.WriteString(".")
		b.WriteString(p.Extension)
	}
	return b.String()
}

// GetFrame returns the path's filename with the sequence number replaced
// by n, padded to the path's padding width.
func (p Path) GetFrame(n int64, withDir bool) string {
	q := p
	q.Number = n
	q.Wildcard = false
	q.HasNumber = true
	return q.GetFilename(withDir)
}

func padNumber(n int64, padding int) string {
	s := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	if len(s) < padding {
		s = strings.Repeat("0", padding-len(s)) + s
	}
	if neg {
		s = "-" + s
	}
	return s
}

// Sequence reports whether p and other belong to the same numbered
// sequence: directory, base, and extension match and both carry a number.
func (p Path) Sequence(other Path) bool {
	if !p.HasNumber || !other.HasNumber {
		return false
	}
	return p.Directory == other.Directory &&
		p.Base == other.Base &&
		p.Extension == other.Extension
}
