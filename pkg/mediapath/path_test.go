package mediapath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSequencePadding(t *testing.T) {
	p, err := Parse("/renders/shot010/image.0001.exr")
	require.NoError(t, err)

	assert.Equal(t, "/renders/shot010/", p.Directory)
	assert.Equal(t, "image.", p.Base)
	assert.Equal(t, "exr", p.Extension)
	assert.True(t, p.HasNumber)
	assert.Equal(t, 4, p.Padding)
	assert.Equal(t, int64(1), p.Number)
	assert.True(t, p.IsSequence())
}

func TestParseWildcard(t *testing.T) {
	p, err := Parse("/renders/shot010/image.####.exr")
	require.NoError(t, err)

	assert.True(t, p.HasSeqWildcard())
	assert.Equal(t, 4, p.Padding)
}

func TestParseNonSequence(t *testing.T) {
	p, err := Parse("/media/movie.mov")
	require.NoError(t, err)

	assert.False(t, p.HasNumber)
	assert.False(t, p.IsSequence())
}

func TestParseRejectsEmpty(t *testing.T) {
	_, err := Parse("")
	assert.Error(t, err)

	var parseErr *ParseError
	assert.ErrorAs(t, err, &parseErr)
}

func TestParseNeverPanics(t *testing.T) {
	inputs := []string{
		"###", "....", "http://", "a://b://c", "/", "-", "a-b-c-d.ext",
		"∂∆˚¬Ω.exr", string([]byte{0x00, 0xff}),
	}
	for _, in := range inputs {
		assert.NotPanics(t, func() {
			_, _ = Parse(in)
		}, "input %q must not panic", in)
	}
}

func TestGetFrameRoundTripsSequencePredicate(t *testing.T) {
	p, err := Parse("/renders/shot010/image.0010.exr")
	require.NoError(t, err)

	frameMin := int64(1)
	framed := p.GetFrame(frameMin, true)

	reparsed, err := Parse(framed)
	require.NoError(t, err)

	assert.True(t, reparsed.Sequence(p), "P.get_frame(min).sequence(P) must hold")
	assert.Equal(t, p.Padding, reparsed.Padding, "padding must be preserved")
}

func TestSequencePredicateRequiresBothNumbered(t *testing.T) {
	seqA, _ := Parse("/a/image.0001.exr")
	seqB, _ := Parse("/a/image.0002.exr")
	plain, _ := Parse("/a/image.exr")

	assert.True(t, seqA.Sequence(seqB))
	assert.False(t, seqA.Sequence(plain))
}

func TestGetReconstructsURL(t *testing.T) {
	p, err := Parse("https://example.com/path/clip.mov?token=abc")
	require.NoError(t, err)

	assert.Equal(t, "https", p.Protocol)
	assert.Equal(t, "abc", strip(p.Request, "token="))
	assert.Contains(t, p.Get(), "https://")
	assert.Contains(t, p.Get(), "clip.mov")
}

func strip(s, prefix string) string {
	if len(s) >= len(prefix) && s[:len(prefix)] == prefix {
		return s[len(prefix):]
	}
	return s
}
