package reader

import (
	"context"

	"github.com/mantonx/tlplay/pkg/imageio"
	"github.com/mantonx/tlplay/pkg/mediapath"
	"github.com/mantonx/tlplay/pkg/rationaltime"
)

// GeneratorReader produces placeholder images for generator clips (solid
// color, countdown leader, slate). Gap reads do not go through it: the
// player's missing-frame policies keep the invalid image (Black) or call
// ScratchedImage directly (Scratched). It never touches a file and never
// blocks.
type GeneratorReader struct {
	size imageio.Size
}

// NewGeneratorReader builds a GeneratorReader that produces images at size.
func NewGeneratorReader(size imageio.Size) *GeneratorReader {
	return &GeneratorReader{size: size}
}

func (g *GeneratorReader) CanRead(extension string) bool { return extension == "generator" }

func (g *GeneratorReader) Info(ctx context.Context, src mediapath.Source) (imageio.IOInfo, error) {
	return imageio.IOInfo{
		Video: []imageio.ImageInfo{{Size: g.size, PixelType: imageio.PixelRGBA_U8}},
	}, nil
}

// ReadVideo synthesizes one solid-color (or scratched-pattern) frame
// according to the generator kind named in src.Path.Base.
func (g *GeneratorReader) ReadVideo(ctx context.Context, src mediapath.Source, t rationaltime.Time, layer int) (imageio.VideoData, error) {
	info := imageio.ImageInfo{Size: g.size, PixelType: imageio.PixelRGBA_U8}
	data := make([]byte, info.DataByteCount())
	fillPattern(data, src.Path.Base)

	img := imageio.Image{
		Info:  info,
		Data:  data,
		Valid: true,
		Tags:  map[string]string{"generator": src.Path.Base},
	}
	return imageio.VideoData{Time: t, Layer: layer, Image: img, Tags: img.Tags}, nil
}

func (g *GeneratorReader) ReadAudio(ctx context.Context, src mediapath.Source, startSeconds float64) (imageio.AudioData, error) {
	return imageio.AudioData{Seconds: startSeconds}, nil
}

func (g *GeneratorReader) CancelRequests() {}

// ScratchedImage synthesizes a standalone scratched-pattern frame at size,
// independent of any GeneratorReader instance. The player's
// imageio.MissingFrameScratched policy calls this directly to paper over a
// failed or missing read without routing a synthetic request through the
// registry.
func ScratchedImage(size imageio.Size) imageio.Image {
	info := imageio.ImageInfo{Size: size, PixelType: imageio.PixelRGBA_U8}
	data := make([]byte, info.DataByteCount())
	fillPattern(data, "scratched")
	return imageio.Image{Info: info, Data: data, Valid: true, Tags: map[string]string{"generator": "scratched"}}
}

// fillPattern paints data in-place: a mid-gray slate for most kinds, and
// a coarse diagonal stripe for "scratched" (the missing-frame policy's
// visible failure indicator).
func fillPattern(data []byte, kind string) {
	if kind == "scratched" {
		for i := 0; i < len(data); i += 4 {
			if (i/4)%7 == 0 {
				data[i], data[i+1], data[i+2], data[i+3] = 255, 0, 0, 255
			} else {
				data[i], data[i+1], data[i+2], data[i+3] = 0, 0, 0, 255
			}
		}
		return
	}
	for i := 0; i < len(data); i += 4 {
		data[i], data[i+1], data[i+2], data[i+3] = 64, 64, 64, 255
	}
}

// GeneratorPlugin adapts GeneratorReader to imageio.Implementation.
type GeneratorPlugin struct {
	reader *GeneratorReader
}

// NewGeneratorPlugin wraps reader as a registrable Implementation.
func NewGeneratorPlugin(reader *GeneratorReader) *GeneratorPlugin {
	return &GeneratorPlugin{reader: reader}
}

func (p *GeneratorPlugin) Initialize(ctx *imageio.PluginContext) error { return nil }
func (p *GeneratorPlugin) Info() (*imageio.PluginInfo, error) {
	return &imageio.PluginInfo{ID: "generator", Name: "Placeholder Generator", Type: imageio.PluginTypeReader, Extensions: []string{"generator"}}, nil
}
func (p *GeneratorPlugin) Health() error                   { return nil }
func (p *GeneratorPlugin) ReadPlugin() imageio.ReadPlugin   { return p.reader }
func (p *GeneratorPlugin) WritePlugin() imageio.WritePlugin { return nil }
