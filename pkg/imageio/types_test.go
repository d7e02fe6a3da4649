package imageio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDataByteCountPackedRGB(t *testing.T) {
	info := ImageInfo{
		Size:      Size{Width: 100, Height: 50},
		PixelType: PixelRGBA_U8,
		RowAlign:  4,
	}
	// 100 * 4 bytes = 400, already 4-aligned.
	assert.Equal(t, 400*50, info.DataByteCount())
}

func TestDataByteCountRowAlignment(t *testing.T) {
	info := ImageInfo{
		Size:      Size{Width: 3, Height: 2},
		PixelType: PixelRGB_U8, // 3 bytes/pixel, row = 9 bytes, aligns to 12
		RowAlign:  4,
	}
	assert.Equal(t, 12*2, info.DataByteCount())
}

func TestDataByteCountYUV420Planar(t *testing.T) {
	info := ImageInfo{
		Size:      Size{Width: 4, Height: 4},
		PixelType: PixelYUV420P,
		RowAlign:  1,
	}
	// Y: 4x4=16, chroma planes: 2x2 each x2 = 8. Total 24.
	assert.Equal(t, 24, info.DataByteCount())
}

func TestInvalidImageIsNotValid(t *testing.T) {
	img := InvalidImage()
	assert.False(t, img.Valid)
	assert.Nil(t, img.Data)
}

func TestPixelTypeBitDepthAndChannels(t *testing.T) {
	assert.Equal(t, 8, PixelRGBA_U8.BitDepth())
	assert.Equal(t, 4, PixelRGBA_U8.ChannelCount())
	assert.Equal(t, 32, PixelRGB_F32.BitDepth())
	assert.Equal(t, 3, PixelRGB_F32.ChannelCount())
}
