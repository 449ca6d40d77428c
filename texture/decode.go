package texture

import (
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	"golang.org/x/sync/errgroup"
)

// Pixels is a tightly packed RGBA8 image.
type Pixels struct {
	Width  int
	Height int
	Data   []byte
}

func (p Pixels) Validate() error {
	if p.Width <= 0 || p.Height <= 0 {
		return errors.Newf("invalid image size %dx%d", p.Width, p.Height)
	}
	if len(p.Data) != p.Width*p.Height*4 {
		return errors.Newf("%dx%d RGBA8 image needs %d bytes, got %d", p.Width, p.Height, p.Width*p.Height*4, len(p.Data))
	}
	return nil
}

// Decode reads any registered image format and converts it to RGBA8.
func Decode(r io.Reader) (Pixels, error) {
	decoded, _, err := image.Decode(r)
	if err != nil {
		return Pixels{}, err
	}

	bounds := decoded.Bounds()
	rgba, ok := decoded.(*image.RGBA)
	if !ok || rgba.Stride != bounds.Dx()*4 || bounds.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(rgba, rgba.Bounds(), decoded, bounds.Min, draw.Src)
	}

	return Pixels{
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Data:   rgba.Pix,
	}, nil
}

func DecodeFile(path string) (Pixels, error) {
	file, err := os.Open(path)
	if err != nil {
		return Pixels{}, errors.Wrapf(err, "load texture %s", path)
	}
	defer file.Close()

	pixels, err := Decode(file)
	if err != nil {
		return Pixels{}, errors.Wrapf(err, "load texture %s", path)
	}
	return pixels, nil
}

// DecodeFiles decodes every path concurrently. All images must share the dimensions of the first.
func DecodeFiles(paths []string) ([]Pixels, error) {
	if len(paths) == 0 {
		return nil, errors.New("no texture files given")
	}

	layers := make([]Pixels, len(paths))
	var group errgroup.Group
	for i, path := range paths {
		group.Go(func() error {
			pixels, err := DecodeFile(path)
			if err != nil {
				return err
			}
			layers[i] = pixels
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	for i, layer := range layers {
		if layer.Width != layers[0].Width || layer.Height != layers[0].Height {
			return nil, errors.Newf("texture %s is %dx%d, expected %dx%d like %s",
				paths[i], layer.Width, layer.Height, layers[0].Width, layers[0].Height, paths[0])
		}
	}
	return layers, nil
}
