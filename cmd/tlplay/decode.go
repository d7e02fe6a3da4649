package main

import (
	"context"
	"fmt"
	"image"
	"os"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/mantonx/tlplay/pkg/imageio"
	"github.com/mantonx/tlplay/pkg/mediapath"
)

// decodeStdlibImage is the reader.DecodeFunc backing the in-process
// sequence reader: it opens one numbered frame file and normalizes it to
// 8-bit RGBA, the way the teacher's mediaassetmodule/image_processor.go
// dispatches PNG/JPEG/GIF/BMP/TIFF decode to disintegration/imaging
// rather than hand-rolling a decoder per format. EXR, DPX, and other
// VFX-only formats have no such library in the example pack and are
// left to an external plugin instead.
func decodeStdlibImage(ctx context.Context, path mediapath.Path, frame int64) (imageio.Image, error) {
	framePath := path.GetFrame(frame, true)

	f, err := os.Open(framePath)
	if err != nil {
		return imageio.Image{}, fmt.Errorf("decode: open %s: %w", framePath, err)
	}
	defer f.Close()

	img, err := imaging.Decode(f, imaging.AutoOrientation(true))
	if err != nil {
		return imageio.Image{}, fmt.Errorf("decode: %s: %w", framePath, err)
	}

	rgba := toNRGBA(img)
	bounds := rgba.Bounds()
	info := imageio.ImageInfo{
		Size:      imageio.Size{Width: bounds.Dx(), Height: bounds.Dy(), PixelAspect: 1},
		PixelType: imageio.PixelRGBA_U8,
	}

	return imageio.Image{
		Info:  info,
		Data:  rgba.Pix,
		Valid: true,
		Tags:  map[string]string{"sourceFile": framePath},
	}, nil
}

func toNRGBA(img image.Image) *image.NRGBA {
	if nrgba, ok := img.(*image.NRGBA); ok {
		return nrgba
	}
	return imaging.Clone(img)
}

// decodableExtensions lists the frame-sequence extensions
// disintegration/imaging can decode without an external plugin.
func decodableExtensions() []string {
	return strings.Split("png,jpg,jpeg,gif,bmp,tiff", ",")
}
