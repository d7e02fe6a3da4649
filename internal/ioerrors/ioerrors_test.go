package ioerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByKindRegardlessOfMessage(t *testing.T) {
	err := New(KindCancelled, "requestqueue", "future cancelled by caller")
	assert.True(t, errors.Is(err, ErrCancelled))
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestWrapPreservesCauseForUnwrap(t *testing.T) {
	cause := errors.New("disk read failed")
	err := Wrap(KindFormat, "reader.sequence", "decode failed", cause)
	assert.ErrorIs(t, err, cause)
}

func TestKindOfExtractsKind(t *testing.T) {
	err := New(KindOutOfRange, "resolver", "time past end")
	k, ok := KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, KindOutOfRange, k)

	_, ok = KindOf(errors.New("plain error"))
	assert.False(t, ok)
}

func TestIsCancelledAndIsOutOfRangeHelpers(t *testing.T) {
	assert.True(t, IsCancelled(New(KindCancelled, "m", "x")))
	assert.False(t, IsCancelled(New(KindFormat, "m", "x")))
	assert.True(t, IsOutOfRange(New(KindOutOfRange, "m", "x")))
}
